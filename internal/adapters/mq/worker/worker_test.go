package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/padmon/internal/adapters/mq/queue"
	worker "github.com/okian/padmon/internal/adapters/mq/worker"
	model "github.com/okian/padmon/internal/domain/model"
	logging "github.com/okian/padmon/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	readings chan model.SensorReading
	once     sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{readings: make(chan model.SensorReading, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan model.SensorReading {
	return mq.readings
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.readings) })
	return nil
}

type mockStore struct {
	mu       sync.Mutex
	readings []model.SensorReading
	failAt   map[int64]error
}

func newMockStore() *mockStore {
	return &mockStore{failAt: make(map[int64]error)}
}

func (ms *mockStore) Append(_ context.Context, r model.SensorReading) (string, error) { //nolint:gocritic // readings travel by value
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if err, ok := ms.failAt[r.Timestamp]; ok {
		return "", err
	}
	r.ID = fmt.Sprintf("r-%d", len(ms.readings)+1)
	ms.readings = append(ms.readings, r)
	return r.ID, nil
}

func (ms *mockStore) setError(ts int64, err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.failAt[ts] = err
}

func (ms *mockStore) count() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.readings)
}

type mockPublisher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (mp *mockPublisher) Publish(_ context.Context, r model.SensorReading) error { //nolint:gocritic // readings travel by value
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if mp.err != nil {
		return mp.err
	}
	mp.ids = append(mp.ids, r.ID)
	return nil
}

func (mp *mockPublisher) published() []string {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]string(nil), mp.ids...)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		q := newMockQueue()
		store := newMockStore()
		pub := &mockPublisher{}

		convey.Convey("When running a worker", func() {
			var mu sync.Mutex
			var failed []error
			w := worker.NewInMemoryWorker(q, store,
				worker.WithName("test-worker"),
				worker.WithLogger(logging.Nop()),
				worker.WithPublisher(pub),
				worker.WithFailureHandler(func(_ context.Context, _ model.SensorReading, err error) {
					mu.Lock()
					failed = append(failed, err)
					mu.Unlock()
				}),
			)
			go w.Run(ctx)

			convey.Convey("And when processing readings", func() {
				q.readings <- model.SensorReading{Timestamp: 1, PadRiskScore: 10, Source: model.SourceAPI}
				q.readings <- model.SensorReading{Timestamp: 2, PadRiskScore: 20, Source: model.SourceAPI}

				convey.Convey("Then they are stored and published with their ids", func() {
					convey.So(eventually(func() bool { return len(pub.published()) == 2 }), convey.ShouldBeTrue)
					convey.So(store.count(), convey.ShouldEqual, 2)
					convey.So(pub.published(), convey.ShouldResemble, []string{"r-1", "r-2"})
				})
			})

			convey.Convey("And when the store fails", func() {
				boom := errors.New("disk full")
				store.setError(7, boom)
				q.readings <- model.SensorReading{Timestamp: 7}

				convey.Convey("Then the failure handler is told and nothing is published", func() {
					convey.So(eventually(func() bool {
						mu.Lock()
						defer mu.Unlock()
						return len(failed) == 1
					}), convey.ShouldBeTrue)
					mu.Lock()
					convey.So(errors.Is(failed[0], boom), convey.ShouldBeTrue)
					mu.Unlock()
					convey.So(pub.published(), convey.ShouldBeEmpty)
				})
			})

			convey.Convey("And when publishing fails", func() {
				pub.mu.Lock()
				pub.err = errors.New("broker down")
				pub.mu.Unlock()
				q.readings <- model.SensorReading{Timestamp: 3}

				convey.Convey("Then the reading is still stored", func() {
					convey.So(eventually(func() bool { return store.count() == 1 }), convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When context is cancelled", func() {
			w := worker.NewInMemoryWorker(q, store)
			runCtx, runCancel := context.WithCancel(ctx)
			go w.Run(runCtx)
			runCancel()

			convey.Convey("Then worker should stop", func() {
				select {
				case <-w.Done():
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new WorkerPool", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		store := newMockStore()

		convey.Convey("When creating a worker pool with default count", func() {
			pool := worker.NewPool(0, newMockQueue(), store)

			convey.Convey("Then it should have four workers", func() {
				convey.So(pool.Size(), convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When starting a worker pool over a real queue", func() {
			q := queue.NewInMemoryQueue(queue.WithCapacity(200))
			pool := worker.NewPool(3, q, store, worker.WithLogger(logging.Nop()))
			pool.Start(ctx)

			for i := 0; i < 100; i++ {
				convey.So(q.Enqueue(ctx, model.SensorReading{Timestamp: int64(i)}), convey.ShouldBeTrue)
			}

			convey.Convey("Then shutdown drains every reading", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer shutdownCancel()
				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
				convey.So(store.count(), convey.ShouldEqual, 100)
				convey.So(pool.Stored(), convey.ShouldEqual, 100)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})
}

func TestWorkerOptions(t *testing.T) {
	convey.Convey("Given worker options", t, func() {
		convey.Convey("When nil values are passed", func() {
			w := worker.NewInMemoryWorker(newMockQueue(), newMockStore(),
				worker.WithName(""),
				worker.WithLogger(nil),
				worker.WithPublisher(nil),
				worker.WithFailureHandler(nil),
			)

			convey.Convey("Then defaults are kept", func() {
				convey.So(w, convey.ShouldNotBeNil)
			})
		})
	})
}
