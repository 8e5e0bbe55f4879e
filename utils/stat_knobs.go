package utils

import (
	"GLM/configs"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Stat collects one Info per lock attempt of the contention benchmark.
type Stat struct {
	mu        *sync.Mutex
	infos     []*Info
	beginTS   int
	beginTime time.Time
	endTime   time.Time
}

func NewStat() *Stat {
	res := &Stat{
		infos:     make([]*Info, 0, 1024),
		mu:        &sync.Mutex{},
		beginTS:   0,
		beginTime: time.Now(),
		endTime:   time.Now(),
	}
	return res
}

func (st *Stat) Append(info *Info) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.endTime = time.Now()
	st.infos = append(st.infos, info)
}

func (st *Stat) Range() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if configs.ProfileStore {
		fmt.Printf("Time range [%v  ----  %v]\n", st.beginTime.String(), st.endTime.String())
	}
}

// Summary is the aggregate of the attempts since the last Clear.
type Summary struct {
	Attempts   int
	Granted    int
	Refused    int
	Faults     int
	Rollbacks  int
	Rows       int
	Throughput float64
	P50        time.Duration
	P90        time.Duration
	P99        time.Duration
	Average    time.Duration
}

func (st *Stat) Summary() *Summary {
	st.mu.Lock()
	defer st.mu.Unlock()
	res := &Summary{}
	latencies := make([]int, 0, len(st.infos)-st.beginTS)
	latencySum := 0
	for i := st.beginTS; i < len(st.infos); i++ {
		tmp := st.infos[i]
		res.Attempts++
		res.Rows += tmp.Rows
		if tmp.Fault {
			res.Faults++
		} else if tmp.Granted {
			res.Granted++
		} else {
			res.Refused++
		}
		if tmp.Rollback {
			res.Rollbacks++
		}
		if tmp.Latency > 0 {
			latencySum += int(tmp.Latency)
			latencies = append(latencies, int(tmp.Latency))
		}
	}
	if elapsed := st.endTime.Sub(st.beginTime).Seconds(); elapsed > 0 {
		res.Throughput = float64(res.Granted) / elapsed
	}
	sort.Ints(latencies)
	if len(latencies) > 0 {
		res.P99 = time.Duration(latencies[configs.Min((len(latencies)*99+99)/100, len(latencies)-1)])
		res.P90 = time.Duration(latencies[configs.Min((len(latencies)*9+9)/10, len(latencies)-1)])
		res.P50 = time.Duration(latencies[configs.Min((len(latencies)+1)/2, len(latencies)-1)])
		res.Average = time.Duration(float64(latencySum) / float64(len(latencies)))
	}
	return res
}

// Log prints the summary in the key:value; form the result scripts parse.
func (st *Stat) Log() string {
	s := st.Summary()
	msg := "attempt_cnt:" + strconv.Itoa(s.Attempts) + ";"
	msg += "granted:" + strconv.Itoa(s.Granted) + ";"
	msg += "refused:" + strconv.Itoa(s.Refused) + ";"
	msg += "fault:" + strconv.Itoa(s.Faults) + ";"
	msg += "rollback:" + strconv.Itoa(s.Rollbacks) + ";"
	msg += "rows:" + strconv.Itoa(s.Rows) + ";"
	msg += "client:" + strconv.Itoa(configs.ClientRoutineNumber) + ";"
	msg += "store:" + configs.StoreMode + ";"
	msg += "granted_per_second:" + fmt.Sprintf("%.2f", s.Throughput) + ";"
	if s.Attempts > 0 && s.Average > 0 {
		msg += "p99_latency:" + s.P99.String() + ";"
		msg += "p90_latency:" + s.P90.String() + ";"
		msg += "p50_latency:" + s.P50.String() + ";"
		msg += "ave_latency:" + s.Average.String() + ";"
	} else {
		msg += "p99_latency:nil;"
		msg += "p90_latency:nil;"
		msg += "p50_latency:nil;"
		msg += "ave_latency:nil;"
	}
	fmt.Println(msg)
	return msg
}

func (st *Stat) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.beginTS = len(st.infos)
	st.beginTime = time.Now()
}

// Info describes one acquire attempt.
type Info struct {
	Rows     int
	Granted  bool
	Fault    bool
	Rollback bool
	Latency  time.Duration
}

func NewInfo(rows int) *Info {
	return &Info{Rows: rows}
}
