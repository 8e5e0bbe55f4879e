package main

import (
	"GLM/benchmark"
	"GLM/configs"
	"GLM/locks"
	"GLM/storage"
	"context"
	"flag"
	"fmt"
	"github.com/rcrowley/go-metrics"
	"os"
	"runtime"
	"runtime/pprof"
	"time"
)

var (
	conf       string
	store      string
	addr       string
	con        int
	rows       int
	res        int
	l          int
	branches   int
	sk         float64
	rollback   int
	deferred   int
	dur        int
	debug      bool
	cpuProfile string
	memProfile string
)

func usage() {
	flag.PrintDefaults()
}

func init() {
	flag.StringVar(&conf, "conf", configs.ConfigFileLocation, "the properties file describing the lock store")
	flag.StringVar(&store, "store", "", "override store.mode: memory, file, db, or mongo")
	flag.StringVar(&addr, "addr", "127.0.0.1:8091", "the coordinator address used to build xids")
	flag.IntVar(&con, "c", configs.ClientRoutineNumber, "the number of clients")
	flag.IntVar(&rows, "rows", configs.NumberOfRows, "the number of lockable rows per resource")
	flag.IntVar(&res, "res", configs.NumberOfResources, "the number of resources")
	flag.IntVar(&l, "len", configs.TransactionLength, "the rows locked per transaction")
	flag.IntVar(&branches, "branch", configs.BranchesPerTransaction, "the branches per transaction")
	flag.Float64Var(&sk, "skew", configs.YCSBDataSkewness, "the skew factor for the zipfian row picker")
	flag.IntVar(&rollback, "rollback", configs.RollbackPercentage, "the percentage of transactions rolled back (%)")
	flag.IntVar(&deferred, "defer", configs.NonAutoCommitPercentage, "the percentage of acquires without auto commit (%)")
	flag.IntVar(&dur, "dur", configs.RunTestInterval, "the benchmark duration in seconds")
	flag.BoolVar(&debug, "debug", false, "log debug info into debug file")
	flag.StringVar(&cpuProfile, "cpu_prof", "", "write cpu profiling")
	flag.StringVar(&memProfile, "mem_prof", "", "write memory profiling")

	flag.Usage = usage
}

func main() {
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()
	flag.Parse()
	if debug {
		f, err := os.OpenFile(fmt.Sprintf("logs/logfiles_%v.log", time.Now().Format("20060102_150405")), os.O_RDWR|os.O_CREATE, 0666)
		if err != nil {
			configs.Logger.Fatal().Err(err).Msg("error opening debug file")
		}
		defer f.Close()
		configs.SetLogOutput(f)
	}
	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			configs.Logger.Fatal().Err(err).Msg("could not create CPU profile")
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			configs.Logger.Fatal().Err(err).Msg("could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	configs.ClientRoutineNumber = con
	configs.NumberOfRows = rows
	configs.NumberOfResources = res
	configs.TransactionLength = l
	configs.BranchesPerTransaction = branches
	configs.YCSBDataSkewness = sk
	configs.RollbackPercentage = rollback
	configs.NonAutoCommitPercentage = deferred
	configs.BenchmarkDuration = time.Duration(dur) * time.Second
	configs.ShowWarnings = debug
	configs.ShowTestInfo = debug

	cfg, err := configs.LoadStoreConfig(conf)
	if err != nil {
		configs.Logger.Fatal().Err(err).Str("conf", conf).Msg("could not load store config")
	}
	if store != "" {
		configs.SetStoreMode(store)
		cfg.Mode = store
	} else {
		configs.SetStoreMode(cfg.Mode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), configs.DefaultStoreOpTimeout)
	s, err := storage.NewLockStore(ctx, cfg)
	cancel()
	if err != nil {
		configs.Logger.Fatal().Err(err).Str("mode", cfg.Mode).Msg("could not open lock store")
	}
	defer func() {
		if err := s.Close(); err != nil {
			configs.Logger.Error().Err(err).Msg("close lock store")
		}
	}()

	locks.RegMetrics(metrics.DefaultRegistry)
	go metrics.Log(metrics.DefaultRegistry, configs.LogMetricsFreq, &configs.Logger)

	configs.Logger.Info().Str("mode", cfg.Mode).Int("clients", con).Msg("starting contention benchmark")
	if err := benchmark.TestContention(addr, s); err != nil {
		configs.Logger.Error().Err(err).Msg("lock exclusivity violated")
		exitCode = 1
	}
	if memProfile != "" {
		f, err := os.Create(memProfile)
		if err != nil {
			configs.Logger.Fatal().Err(err).Msg("could not create memory profile")
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			configs.Logger.Fatal().Err(err).Msg("could not write memory profile")
		}
	}
}
