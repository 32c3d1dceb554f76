package dedupe_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	dedupe "github.com/okian/hoops/internal/domain/dedupe"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
)

func committed(id int64) []model.ScoreEvent {
	return []model.ScoreEvent{{ID: id, GameID: 1, TeamID: 1, Kind: model.KindPoint2P, Point: 2, Quarter: model.QuarterFirst}}
}

// behaves runs the shared contract against any Deduper.
func behaves(d dedupe.Deduper) {
	ctx := context.Background()

	Convey("When a key is claimed for the first time", func() {
		_, seen, err := d.SeenAndRecord(ctx, "k1")

		Convey("Then it should be newly recorded", func() {
			So(err, ShouldBeNil)
			So(seen, ShouldBeFalse)
		})

		Convey("And claimed again before completion", func() {
			r, seen, err := d.SeenAndRecord(ctx, "k1")

			Convey("Then it should be reported as pending", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldBeTrue)
				So(r.Pending, ShouldBeTrue)
			})
		})

		Convey("And completed then claimed again", func() {
			So(d.Complete(ctx, "k1", committed(42)), ShouldBeNil)
			r, seen, err := d.SeenAndRecord(ctx, "k1")

			Convey("Then the original receipt should be returned", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldBeTrue)
				So(r.Pending, ShouldBeFalse)
				So(len(r.Events), ShouldEqual, 1)
				So(r.Events[0].ID, ShouldEqual, 42)
			})
		})

		Convey("And unrecorded", func() {
			So(d.Unrecord(ctx, "k1"), ShouldBeNil)
			_, seen, err := d.SeenAndRecord(ctx, "k1")

			Convey("Then it can be claimed again", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldBeFalse)
			})
		})
	})

	Convey("When completing a key that was never claimed", func() {
		err := d.Complete(ctx, "ghost", committed(1))

		Convey("Then it should fail with ErrUnknownKey", func() {
			So(errors.Is(err, dedupe.ErrUnknownKey), ShouldBeTrue)
		})
	})
}

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		behaves(d)
	})

	Convey("Given a bounded deduper at capacity", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
		_, _, _ = d.SeenAndRecord(ctx, "a")
		_, _, _ = d.SeenAndRecord(ctx, "b")
		_, _, _ = d.SeenAndRecord(ctx, "c")

		Convey("Then the oldest key should be evicted", func() {
			So(d.Size(), ShouldEqual, 2)
			_, seen, _ := d.SeenAndRecord(ctx, "a")
			So(seen, ShouldBeFalse)
			_, seen, _ = d.SeenAndRecord(ctx, "c")
			So(seen, ShouldBeTrue)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			_, _, _ = d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i))
		}
		So(d.Size(), ShouldEqual, 1000)
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given many goroutines racing for one key", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		var wg sync.WaitGroup
		var winners atomic.Int32

		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, seen, _ := d.SeenAndRecord(ctx, dedupe.Key(7, "tok")); !seen {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one should claim it", func() {
			So(winners.Load(), ShouldEqual, 1)
		})
	})
}

func TestRedisDeduper(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	Convey("Given a RedisDeduper", t, func() {
		mr.FlushAll()
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer func() { _ = rdb.Close() }()
		d := dedupe.NewRedisDeduper(rdb, dedupe.WithTTL(time.Minute), dedupe.WithKeyPrefix("test:"))

		behaves(d)

		Convey("When a key is claimed", func() {
			_, _, _ = d.SeenAndRecord(context.Background(), dedupe.Key(3, "abc"))

			Convey("Then it should be stored under the prefix with a TTL", func() {
				So(mr.Exists("test:game:3:abc"), ShouldBeTrue)
				So(mr.TTL("test:game:3:abc"), ShouldEqual, time.Minute)
			})
		})
	})
}

func TestKey(t *testing.T) {
	Convey("Given the same token in two games", t, func() {
		So(dedupe.Key(1, "t"), ShouldNotEqual, dedupe.Key(2, "t"))
		So(dedupe.Key(1, "t"), ShouldEqual, "game:1:t")
	})
}
