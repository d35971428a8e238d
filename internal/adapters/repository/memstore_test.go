package repository_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/padmon/internal/adapters/repository"
	"github.com/okian/padmon/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func reading(ts int64) model.SensorReading {
	return model.SensorReading{Timestamp: ts, BloodFlow: 90, Temperature: 36.5, Pressure: 110, PadRiskScore: 6}
}

func receive(sub *repository.Subscription) (model.Snapshot, bool) {
	select {
	case snap, ok := <-sub.C():
		return snap, ok
	case <-time.After(2 * time.Second):
		return model.Snapshot{}, false
	}
}

func timestamps(snap model.Snapshot) []int64 {
	out := make([]int64, len(snap.Readings))
	for i, r := range snap.Readings {
		out[i] = r.Timestamp
	}
	return out
}

func TestMemoryStore_Append(t *testing.T) {
	Convey("Given an empty memory store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()

		Convey("When readings are appended out of order", func() {
			ids := make(map[string]bool)
			for _, ts := range []int64{30, 10, 20} {
				id, err := store.Append(ctx, reading(ts))
				So(err, ShouldBeNil)
				So(id, ShouldNotBeEmpty)
				ids[id] = true
			}

			Convey("Then each gets a distinct id", func() {
				So(ids, ShouldHaveLength, 3)
				So(store.Count(ctx), ShouldEqual, 3)
			})

			Convey("Then Recent is ascending by timestamp", func() {
				snap, err := store.Recent(ctx, 10)
				So(err, ShouldBeNil)
				So(timestamps(snap), ShouldResemble, []int64{10, 20, 30})
				So(snap.Total, ShouldEqual, 3)
				latest, ok := snap.Latest()
				So(ok, ShouldBeTrue)
				So(latest.Timestamp, ShouldEqual, 30)
			})

			Convey("Then Recent keeps only the newest readings", func() {
				snap, err := store.Recent(ctx, 2)
				So(err, ShouldBeNil)
				So(timestamps(snap), ShouldResemble, []int64{20, 30})
			})

			Convey("Then Since returns readings at or after the cutoff", func() {
				got, err := store.Since(ctx, time.UnixMilli(20))
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				So(got[0].Timestamp, ShouldEqual, 20)
				So(got[1].Timestamp, ShouldEqual, 30)
			})
		})

		Convey("When Recent is asked for zero readings", func() {
			_, err := store.Recent(ctx, 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("When the store is closed", func() {
			So(store.Close(), ShouldBeNil)
			_, err := store.Append(ctx, reading(1))

			Convey("Then appends fail", func() {
				So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
				So(store.Close(), ShouldBeNil)
			})
		})
	})

	Convey("Given a memory store with retention", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx, repository.WithRetention(3))
		defer store.Close()

		for ts := int64(1); ts <= 5; ts++ {
			_, err := store.Append(ctx, reading(ts))
			So(err, ShouldBeNil)
		}

		Convey("Then the oldest readings are trimmed", func() {
			So(store.Count(ctx), ShouldEqual, 3)
			snap, _ := store.Recent(ctx, 10)
			So(timestamps(snap), ShouldResemble, []int64{3, 4, 5})
		})

		Convey("When a reading older than the retained window arrives", func() {
			id, err := store.Append(ctx, reading(2))

			Convey("Then it is rejected and nothing is trimmed", func() {
				So(errors.Is(err, repository.ErrOutsideRetention), ShouldBeTrue)
				So(id, ShouldBeEmpty)
				snap, _ := store.Recent(ctx, 10)
				So(timestamps(snap), ShouldResemble, []int64{3, 4, 5})
			})
		})

		Convey("When a backdated reading still inside the window arrives", func() {
			id, err := store.Append(ctx, reading(4))

			Convey("Then it is kept and the oldest is trimmed", func() {
				So(err, ShouldBeNil)
				So(id, ShouldNotBeEmpty)
				snap, _ := store.Recent(ctx, 10)
				So(timestamps(snap), ShouldResemble, []int64{4, 4, 5})
			})
		})
	})
}

func TestMemoryStore_Subscribe(t *testing.T) {
	Convey("Given a memory store with two readings", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()
		_, _ = store.Append(ctx, reading(100))
		_, _ = store.Append(ctx, reading(200))

		Convey("When subscribing with an unsupported order", func() {
			_, err := store.Subscribe(ctx, repository.Query{OrderBy: "bloodFlow", Limit: 10})
			So(errors.Is(err, repository.ErrUnsupportedOrder), ShouldBeTrue)
		})

		Convey("When subscribing with an invalid limit", func() {
			_, err := store.Subscribe(ctx, repository.Query{OrderBy: repository.OrderByTimestamp})
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("When subscribing", func() {
			sub, err := store.Subscribe(ctx, repository.Query{OrderBy: repository.OrderByTimestamp, Limit: 2})
			So(err, ShouldBeNil)
			defer sub.Close()

			Convey("Then the current snapshot arrives immediately", func() {
				snap, ok := receive(sub)
				So(ok, ShouldBeTrue)
				So(timestamps(snap), ShouldResemble, []int64{100, 200})
			})

			Convey("Then an append produces a new snapshot", func() {
				_, _ = receive(sub)
				_, _ = store.Append(ctx, reading(150))
				snap, ok := receive(sub)
				So(ok, ShouldBeTrue)
				So(timestamps(snap), ShouldResemble, []int64{150, 200})
				So(snap.Total, ShouldEqual, 3)
			})

			Convey("Then a slow reader only sees the latest snapshot", func() {
				_, _ = receive(sub)
				for ts := int64(300); ts < 310; ts++ {
					_, _ = store.Append(ctx, reading(ts))
				}
				snap, ok := receive(sub)
				So(ok, ShouldBeTrue)
				So(timestamps(snap), ShouldResemble, []int64{308, 309})
			})

			Convey("Then Close ends the stream", func() {
				sub.Close()
				_, _ = receive(sub)
				_, ok := receive(sub)
				So(ok, ShouldBeFalse)
				So(sub.Err(), ShouldBeNil)
			})
		})

		Convey("When the subscriber context is cancelled", func() {
			subCtx, cancel := context.WithCancel(ctx)
			sub, err := store.Subscribe(subCtx, repository.Query{OrderBy: repository.OrderByTimestamp, Limit: 1})
			So(err, ShouldBeNil)
			cancel()

			Convey("Then the subscription ends", func() {
				select {
				case <-sub.Done():
					So(true, ShouldBeTrue)
				case <-time.After(2 * time.Second):
					So("subscription still open", ShouldBeEmpty)
				}
			})
		})

		Convey("When the store is closed", func() {
			sub, err := store.Subscribe(ctx, repository.Query{OrderBy: repository.OrderByTimestamp, Limit: 1})
			So(err, ShouldBeNil)
			So(store.Close(), ShouldBeNil)

			Convey("Then open subscriptions end and new ones are refused", func() {
				<-sub.Done()
				_, err := store.Subscribe(ctx, repository.Query{OrderBy: repository.OrderByTimestamp, Limit: 1})
				So(errors.Is(err, repository.ErrClosed), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	Convey("Given concurrent writers", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer store.Close()

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					_, _ = store.Append(ctx, reading(int64(w*1000+i)))
				}
			}(w)
		}
		wg.Wait()

		Convey("Then every reading is stored and ordered", func() {
			So(store.Count(ctx), ShouldEqual, 800)
			snap, _ := store.Recent(ctx, 800)
			ordered := true
			for i := 1; i < len(snap.Readings); i++ {
				if model.Less(snap.Readings[i], snap.Readings[i-1]) {
					ordered = false
				}
			}
			So(ordered, ShouldBeTrue)
		})
	})
}

func BenchmarkMemoryStore_Append(b *testing.B) {
	ctx := context.Background()
	store := repository.NewMemoryStore(ctx, repository.WithRetention(10_000))
	defer store.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Append(ctx, reading(int64(i)))
	}
}

func BenchmarkMemoryStore_Recent(b *testing.B) {
	ctx := context.Background()
	store := repository.NewMemoryStore(ctx)
	defer store.Close()
	for i := 0; i < 10_000; i++ {
		_, _ = store.Append(ctx, reading(int64(i)))
	}

	for _, limit := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("limit=%d", limit), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, _ = store.Recent(ctx, limit)
			}
		})
	}
}
