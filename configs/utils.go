package configs

import (
	"fmt"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"io"
	"os"
	"time"
)

// Logger is the process wide logger, every helper below writes through it.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.00"}).
	With().Timestamp().Logger()

// SetLogOutput redirects the logger, e.g. into a debug file.
func SetLogOutput(w io.Writer) {
	LogToFile = true
	Logger = zerolog.New(w).With().Timestamp().Logger()
}

func TxnPrint(xid string, format string, a ...interface{}) {
	if ShowDebugInfo {
		Logger.Debug().Str("xid", xid).Msgf(format, a...)
	}
}

func DPrintf(format string, a ...interface{}) {
	if ShowDebugInfo {
		Logger.Debug().Msgf(format, a...)
	}
}

func TPrintf(format string, a ...interface{}) {
	if ShowTestInfo {
		Logger.Info().Msgf(format, a...)
	}
}

func TimeTrack(start time.Time, name string, xid string) {
	TPrintf(xid + ": Time cost for " + name + " : " + time.Since(start).String())
}

func JToString(v interface{}) string {
	byt, _ := json.Marshal(v)
	return string(byt)
}

func JPrint(v interface{}) {
	byt, _ := json.Marshal(v)
	fmt.Println(string(byt))
}

func Assert(cond bool, msg string) bool {
	if !cond {
		panic("[ERROR] Assert error at " + msg + "\n")
	}
	return cond
}

func Warn(cond bool, msg string) bool {
	if ShowWarnings && !cond {
		Logger.Warn().Msg(msg)
	}
	return cond
}

func CheckError(err error) {
	if err != nil {
		panic(err.Error())
	}
}
