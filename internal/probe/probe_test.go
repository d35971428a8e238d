package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/padmon/internal/adapters/http/api"
	"github.com/okian/padmon/internal/adapters/http/ws"
	service "github.com/okian/padmon/internal/app"
	"github.com/okian/padmon/internal/config"
	"github.com/okian/padmon/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.New()
	cfg.SimulationAutostart = false
	cfg.SimulationInterval = time.Hour
	cfg.BcryptCost = bcrypt.MinCost
	cfg.WorkerCount = 2

	ctx := context.Background()
	svc := service.New(service.WithConfig(cfg), service.WithLogger(logger.Nop()))
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)
	mux.Handle("/readings/stream", ws.NewStream(svc, nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Stop(ctx)
	})
	return srv.URL
}

func testProbeConfig(url string) *Config {
	return &Config{
		BaseURL:       url,
		Email:         "probe@example.com",
		Password:      "probe-password",
		Readings:      50,
		DuplicateRate: 0.2,
		Workers:       4,
		Timeout:       5 * time.Second,
		StreamWait:    5 * time.Second,
		Seed:          7,
	}
}

func TestRun(t *testing.T) {
	convey.Convey("Given a running service", t, func() {
		url := startServer(t)
		ctx := context.Background()

		convey.Convey("When the probe runs", func() {
			stats, err := Run(ctx, testProbeConfig(url), nil)

			convey.Convey("Then every unique reading is accepted once and streamed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(stats.Accepted, convey.ShouldEqual, 50)
				convey.So(stats.Duplicate, convey.ShouldEqual, stats.Generated-50)
				convey.So(stats.Failed, convey.ShouldEqual, 0)
				convey.So(stats.TotalAfter, convey.ShouldEqual, 50)
				convey.So(stats.StreamCaughtUp, convey.ShouldBeTrue)
				convey.So(stats.AnalyticsCount, convey.ShouldEqual, 50)
			})

			convey.Convey("Then a second run signs in to the existing account", func() {
				stats, err := Run(ctx, testProbeConfig(url), nil)
				convey.So(err, convey.ShouldBeNil)
				convey.So(stats.TotalBefore, convey.ShouldEqual, 50)
			})
		})
	})

	convey.Convey("Given no service", t, func() {
		cfg := testProbeConfig("http://127.0.0.1:1")
		cfg.Timeout = 200 * time.Millisecond

		convey.Convey("Then the health check fails", func() {
			_, err := Run(context.Background(), cfg, nil)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestGenerate(t *testing.T) {
	convey.Convey("Given a fixed seed", t, func() {
		now := time.UnixMilli(1_700_000_000_000)
		batch, dups := generate(100, 0.1, 42, now)

		convey.Convey("Then unique ids come first and resends repeat them", func() {
			convey.So(len(batch), convey.ShouldEqual, 100+dups)
			seen := map[string]bool{}
			for _, m := range batch[:100] {
				convey.So(seen[m.ReadingID], convey.ShouldBeFalse)
				seen[m.ReadingID] = true
			}
			for _, m := range batch[100:] {
				convey.So(seen[m.ReadingID], convey.ShouldBeTrue)
			}
		})

		convey.Convey("Then values stay in the simulated ranges", func() {
			for _, m := range batch {
				convey.So(m.BloodFlow, convey.ShouldBeBetweenOrEqual, 40, 100)
				convey.So(m.Pressure, convey.ShouldBeBetweenOrEqual, 80, 150)
				convey.So(m.Timestamp, convey.ShouldBeGreaterThanOrEqualTo, now.UnixMilli())
			}
		})
	})
}

func TestVerify(t *testing.T) {
	convey.Convey("Given probe statistics", t, func() {
		ok := &Stats{Accepted: 3, TotalBefore: 2, TotalAfter: 5, StreamCaughtUp: true}

		convey.Convey("Then consistent results pass", func() {
			convey.So(verify(ok, 3), convey.ShouldBeNil)
		})

		convey.Convey("Then a lagging stream fails", func() {
			bad := *ok
			bad.StreamCaughtUp = false
			convey.So(errors.Is(verify(&bad, 3), ErrVerification), convey.ShouldBeTrue)
		})

		convey.Convey("Then missing history fails", func() {
			bad := *ok
			bad.TotalAfter = 4
			convey.So(verify(&bad, 3), convey.ShouldNotBeNil)
		})
	})
}

func TestStreamURL(t *testing.T) {
	convey.Convey("Given base URLs", t, func() {
		u, err := streamURL("http://localhost:9080/")
		convey.So(err, convey.ShouldBeNil)
		convey.So(u, convey.ShouldEqual, "ws://localhost:9080/readings/stream?limit=1")

		u, err = streamURL("https://pad.example.com/api")
		convey.So(err, convey.ShouldBeNil)
		convey.So(u, convey.ShouldEqual, "wss://pad.example.com/api/readings/stream?limit=1")
	})
}
