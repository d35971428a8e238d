package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/padmon/internal/probe"
	"github.com/okian/padmon/pkg/logger"
)

// Default configuration constants.
const (
	defaultReadings      = 1000
	defaultDuplicateRate = 0.05
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultTimeout       = 10 * time.Second
	defaultStreamWait    = 30 * time.Second
	defaultRunTimeout    = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		email      = flag.String("email", "probe@padmon.local", "Account used for authenticated routes")
		password   = flag.String("password", "probe-password", "Account password")
		readings   = flag.Int("readings", defaultReadings, "Number of unique measurements to submit")
		dupRate    = flag.Float64("duplicates", defaultDuplicateRate, "Share of extra submissions that resend a readingId")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		streamWait = flag.Duration("stream-wait", defaultStreamWait, "How long to wait for the live stream to catch up")
		seed       = flag.Int64("seed", 0, "Generator seed (0 uses the clock)")
		logFormat  = flag.String("log-format", "text", "Log format: text or json")
		verbose    = flag.Bool("verbose", false, "Log every submission")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*logFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &probe.Config{
		BaseURL:       *baseURL,
		Email:         *email,
		Password:      *password,
		Readings:      *readings,
		DuplicateRate: *dupRate,
		Workers:       *workers,
		Timeout:       *timeout,
		StreamWait:    *streamWait,
		Seed:          *seed,
		Verbose:       *verbose,
	}
	if _, err := probe.Run(ctx, cfg, logger.Named("probe")); err != nil {
		logger.Get().Error(ctx, "probe failed", logger.Error(err))
		os.Exit(1)
	}
}
