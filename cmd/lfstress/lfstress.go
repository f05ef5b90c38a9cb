package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/min1324/lockfree/stress"
	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func newLogger(logfile, level string) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, errors.Wrapf(err, "loglevel %q", level)
	}
	if logfile == "" {
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMicro}
		return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), io.NopCloser(nil), nil
	}
	f := &lumberjack.Logger{Filename: logfile, MaxSize: 10, MaxBackups: 3}
	return zerolog.New(f).Level(lvl).With().Timestamp().Logger(), f, nil
}

func printReport(rep stress.Report) {
	fmt.Printf("%-12s pushed %d popped %d in %v (%.0f ops/s)\n",
		rep.Structure, rep.Pushed, rep.Popped, rep.Elapsed.Round(time.Millisecond),
		float64(rep.Pushed+rep.Popped)/rep.Elapsed.Seconds())
	if rep.Stats.Allocs > 0 {
		fmt.Printf("%-12s nodes allocated %d freed %d, arena full %d times\n",
			"", rep.Stats.Allocs, rep.Stats.Frees, rep.Full)
	}
	if err := rep.Err(); err != nil {
		color.Red("FAIL %v", err)
		return
	}
	color.Green("PASS")
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n\n%s [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	structure := flag.String("structure", stress.Stack,
		fmt.Sprintf("Structure to exercise (possible: %s, all)", strings.Join(stress.Structures(), ", ")))
	producers := flag.Int("producers", 4, "Number of producer goroutines (spsc: 1)")
	consumers := flag.Int("consumers", 4, "Number of consumer goroutines (spsc: 1)")
	n := flag.Int("n", 100000, "Values pushed by each producer")
	capacity := flag.Int("capacity", 0, "Node arena capacity, 0 for the default")
	timeout := flag.Duration("timeout", time.Minute, "Abort a run after this long")
	logfile := flag.String("logfile", "", "Write JSON logs to this rotated file instead of stderr")
	loglevel := flag.String("loglevel", "info", "Log level (debug, info, warn, error)")
	cpuprofile := flag.String("cpuprofile", "", "CPU profile file")
	memprofile := flag.String("memprofile", "", "Memory profile file")
	flag.Parse()

	log, closer, err := newLogger(*logfile, *loglevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer closer.Close()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal().Err(err).Msg("cpuprofile")
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	names := []string{*structure}
	if *structure == "all" {
		names = stress.Structures()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	failed := false
	for _, name := range names {
		cfg := stress.Config{
			Structure:   name,
			Producers:   *producers,
			Consumers:   *consumers,
			PerProducer: *n,
			Capacity:    *capacity,
		}
		if name == stress.SPSC {
			cfg.Producers, cfg.Consumers = 1, 1
		}
		runCtx, cancel := context.WithTimeout(ctx, *timeout)
		rep, err := stress.Run(runCtx, cfg, log)
		cancel()
		if err != nil {
			color.Red("FAIL %s: %v", name, err)
			failed = true
			if errors.Cause(err) == stress.ErrConfig {
				flag.Usage()
				break
			}
			continue
		}
		printReport(rep)
		failed = failed || rep.Err() != nil
	}

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			log.Fatal().Err(err).Msg("memprofile")
		}
		pprof.WriteHeapProfile(f)
		f.Close()
	}
	if failed {
		// os.Exit skips deferred calls
		pprof.StopCPUProfile()
		closer.Close()
		os.Exit(1)
	}
}
