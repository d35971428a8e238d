package probe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/padmon/internal/domain/analytics"
	"github.com/okian/padmon/internal/domain/model"
	"github.com/okian/padmon/pkg/logger"
)

// ErrVerification is returned when the service state disagrees with what was
// submitted.
var ErrVerification = errors.New("verification failed")

// Run executes the complete probe.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	if log == nil {
		log = logger.Nop()
	}
	stats := &Stats{StartTime: time.Now()}
	log.Info(ctx, "starting padmon probe",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("readings", cfg.Readings),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
	)

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}
	if _, err := client.SignIn(ctx, cfg.Email, cfg.Password); err != nil {
		return stats, err
	}

	before, err := client.Readings(ctx, 1)
	if err != nil {
		return stats, err
	}
	stats.TotalBefore = before.Total

	w, err := watch(ctx, cfg.BaseURL)
	if err != nil {
		return stats, err
	}
	defer w.close()

	batch, dups := generate(cfg.Readings, cfg.DuplicateRate, cfg.Seed, time.Now())
	stats.Generated = len(batch)
	log.Info(ctx, "generated measurements", logger.Int("unique", cfg.Readings), logger.Int("resent", dups))

	submit(ctx, client, cfg, batch, stats, log)

	stats.StreamCaughtUp = w.waitFor(ctx, stats.TotalBefore+stats.Accepted, cfg.StreamWait)
	stats.SnapshotsReceived = int(w.snapshots.Load())

	after, err := client.Readings(ctx, 1)
	if err != nil {
		return stats, err
	}
	stats.TotalAfter = after.Total

	day, err := client.Analytics(ctx, analytics.RangeDay)
	if err != nil {
		return stats, err
	}
	stats.AnalyticsCount = day.Count

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats)
	return stats, verify(stats, cfg.Readings)
}

// submit posts batch with cfg.Workers concurrent submitters.
func submit(ctx context.Context, client *Client, cfg *Config, batch []model.Measurement, stats *Stats, log logger.Logger) {
	workers := max(cfg.Workers, 1)
	ch := make(chan model.Measurement, workers*2)
	var accepted, duplicate, failed atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range ch {
				result, err := client.Submit(ctx, m)
				switch result {
				case ResultAccepted:
					accepted.Add(1)
				case ResultDuplicate:
					duplicate.Add(1)
				default:
					failed.Add(1)
					log.Warn(ctx, "submission failed", logger.String("readingId", m.ReadingID), logger.Error(err))
				}
				if cfg.Verbose {
					log.Debug(ctx, "submitted", logger.String("readingId", m.ReadingID), logger.String("result", result))
				}
			}
		}()
	}

feed:
	for _, m := range batch {
		select {
		case <-ctx.Done():
			break feed
		case ch <- m:
		}
	}
	close(ch)
	wg.Wait()

	stats.Accepted = int(accepted.Load())
	stats.Duplicate = int(duplicate.Load())
	stats.Failed = int(failed.Load())
	stats.Submitted = stats.Accepted + stats.Duplicate + stats.Failed
}

// verify checks that every unique reading was accepted exactly once and
// became visible in the history.
func verify(stats *Stats, unique int) error {
	var errs []error
	if stats.Failed > 0 {
		errs = append(errs, fmt.Errorf("%d submissions failed", stats.Failed))
	}
	if stats.Accepted != unique {
		errs = append(errs, fmt.Errorf("accepted %d of %d unique readings", stats.Accepted, unique))
	}
	if stats.TotalAfter < stats.TotalBefore+stats.Accepted {
		errs = append(errs, fmt.Errorf("history grew by %d, want at least %d", stats.TotalAfter-stats.TotalBefore, stats.Accepted))
	}
	if !stats.StreamCaughtUp {
		errs = append(errs, errors.New("stream did not report every reading"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrVerification, errors.Join(errs...))
	}
	return nil
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	log.Info(ctx, "probe statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("failed", stats.Failed),
		logger.Int("totalBefore", stats.TotalBefore),
		logger.Int("totalAfter", stats.TotalAfter),
		logger.Int("snapshots", stats.SnapshotsReceived),
		logger.Bool("streamCaughtUp", stats.StreamCaughtUp),
		logger.Int("analyticsDayCount", stats.AnalyticsCount),
		logger.Duration("duration", stats.Duration),
		logger.Float64("submissionsPerSecond", perSecond),
	)
}
