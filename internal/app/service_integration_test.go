package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/okian/padmon/internal/adapters/mq/kafka"
	service "github.com/okian/padmon/internal/app"
	"github.com/okian/padmon/internal/config"
	"github.com/okian/padmon/internal/domain/model"
	kafkago "github.com/segmentio/kafka-go"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestServiceIntegration_Redis(t *testing.T) {
	Convey("Given a service backed by Redis with Kafka fan-out", t, func() {
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.StoreBackend = config.StoreRedis
		cfg.RedisAddr = mr.Addr()
		cfg.RedisStream = "it:readings"

		writer := &recordingWriter{}
		pub, err := kafka.NewPublisher(nil, "it.readings", kafka.WithWriter(writer))
		So(err, ShouldBeNil)

		svc := newService(cfg, service.WithPublisher(pub))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(context.Background())

		Convey("When a subscriber is attached and readings are ingested", func() {
			sub, err := svc.Subscribe(ctx, 3)
			So(err, ShouldBeNil)
			defer sub.Close()

			first := <-sub.C()
			So(first.Readings, ShouldBeEmpty)

			for i := 0; i < 5; i++ {
				_, err := svc.Ingest(ctx, model.Measurement{
					ReadingID:   fmt.Sprintf("dev-%d", i),
					BloodFlow:   90 - float64(i),
					Temperature: 36.5,
					Pressure:    110,
					Timestamp:   int64(1_000 + i),
				})
				So(err, ShouldBeNil)
			}

			Convey("Then the subscriber converges on the newest three", func() {
				var last model.Snapshot
				deadline := time.After(5 * time.Second)
			loop:
				for {
					select {
					case snap, ok := <-sub.C():
						if !ok {
							break loop
						}
						last = snap
						if snap.Total == 5 {
							break loop
						}
					case <-deadline:
						break loop
					}
				}
				So(last.Total, ShouldEqual, 5)
				So(last.Readings, ShouldHaveLength, 3)
				So(last.Readings[2].Timestamp, ShouldEqual, 1_004)
			})

			Convey("Then every persisted reading is published", func() {
				deadline := time.Now().Add(3 * time.Second)
				for writer.count() < 5 && time.Now().Before(deadline) {
					time.Sleep(10 * time.Millisecond)
				}
				So(writer.count(), ShouldEqual, 5)

				writer.mu.Lock()
				var r model.SensorReading
				So(json.Unmarshal(writer.msgs[0].Value, &r), ShouldBeNil)
				So(string(writer.msgs[0].Key), ShouldEqual, r.ID)
				writer.mu.Unlock()
			})

			Convey("Then the readings are in the stream", func() {
				snap := waitForReadings(svc, 5)
				So(snap.Total, ShouldEqual, 5)
				So(svc.GetStats()["storeBackend"], ShouldEqual, config.StoreRedis)
			})
		})
	})

	Convey("Given a Redis backed service whose Redis goes away", t, func() {
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.StoreBackend = config.StoreRedis
		cfg.RedisAddr = mr.Addr()
		svc := newService(cfg)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)
		mr.Close()

		Convey("When readings are loaded", func() {
			_, err := svc.Readings(ctx, 10)

			Convey("Then the failure is reported", func() {
				So(err, ShouldNotBeNil)
				latest := svc.Notifications(1)
				So(latest, ShouldHaveLength, 1)
				So(latest[0].Title, ShouldEqual, "Data Error")
				So(latest[0].Description, ShouldEqual, "Failed to fetch sensor readings from database")
			})
		})

		Convey("When a subscription is opened", func() {
			sub, err := svc.Subscribe(ctx, 5)

			Convey("Then it is refused and the failure is reported", func() {
				So(err, ShouldNotBeNil)
				So(sub, ShouldBeNil)
				So(hasNotification(svc, "Data Error"), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unreachable Redis", t, func() {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := testConfig()
		cfg.StoreBackend = config.StoreRedis
		cfg.RedisAddr = addr
		svc := newService(cfg)

		Convey("Then Start fails", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})
}

func TestServiceIntegration_ConcurrentIngest(t *testing.T) {
	Convey("Given a started in-memory service", t, func() {
		svc := newService(testConfig())
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		Convey("When many goroutines ingest at once", func() {
			var wg sync.WaitGroup
			for g := 0; g < 8; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for i := 0; i < 25; i++ {
						_, _ = svc.Ingest(ctx, model.Measurement{
							ReadingID:   fmt.Sprintf("g%d-%d", g, i),
							BloodFlow:   85,
							Temperature: 36.6,
							Pressure:    115,
						})
					}
				}(g)
			}
			wg.Wait()

			Convey("Then every reading is stored exactly once", func() {
				snap := waitForReadings(svc, 200)
				So(snap.Total, ShouldEqual, 200)
			})
		})
	})
}
