package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/okian/hoops/internal/adapters/mq/queue"
	"github.com/okian/hoops/internal/adapters/mq/worker"
	"github.com/okian/hoops/internal/adapters/pubsub"
	"github.com/okian/hoops/internal/domain/model"
	"github.com/okian/hoops/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recordingPublisher struct {
	mu   sync.Mutex
	got  []pubsub.GameUpdated
	fail error
}

func (p *recordingPublisher) Publish(_ context.Context, u pubsub.GameUpdated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.got = append(p.got, u)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
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

func TestRelay(t *testing.T) {
	convey.Convey("Given a relay worker", t, func() {
		convey.So(logger.Init(logger.WithOutput(io.Discard)), convey.ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		pub := &recordingPublisher{}
		w := worker.NewRelay(q, pub, worker.WithName("relay-test"))
		go w.Run(ctx)

		convey.Convey("When a change is enqueued", func() {
			q.Enqueue(ctx, model.Change{Op: model.ChangeUpdate, GameID: 4, TeamID: 2, EventID: 9, Seq: 6})

			convey.Convey("Then a feed notification should be published", func() {
				convey.So(eventually(func() bool { return pub.count() == 1 }), convey.ShouldBeTrue)
				convey.So(pub.got[0], convey.ShouldResemble, pubsub.GameUpdated{GameID: 4, TeamID: 2, Source: pubsub.SourceFeed, Seq: 6})
			})
		})

		convey.Convey("When the publisher fails", func() {
			pub.mu.Lock()
			pub.fail = errors.New("broker down")
			pub.mu.Unlock()
			q.Enqueue(ctx, model.Change{Op: model.ChangeInsert, GameID: 4})
			q.Enqueue(ctx, model.Change{Op: model.ChangeInsert, GameID: 5})

			convey.Convey("Then the worker should keep running", func() {
				convey.So(eventually(func() bool { return q.Len() == 0 }), convey.ShouldBeTrue)
				pub.mu.Lock()
				pub.fail = nil
				pub.mu.Unlock()
				q.Enqueue(ctx, model.Change{Op: model.ChangeInsert, GameID: 6})
				convey.So(eventually(func() bool { return pub.count() == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shut down", func() {
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over the in-process hub", t, func() {
		convey.So(logger.Init(logger.WithOutput(io.Discard)), convey.ShouldBeNil)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		hub := pubsub.NewHub(pubsub.WithBufferSize(64))
		sub, err := hub.Subscribe(ctx, 3)
		convey.So(err, convey.ShouldBeNil)

		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		pool := worker.NewPool(4, q, hub)
		convey.So(pool.Size(), convey.ShouldEqual, 4)
		pool.Start(ctx)

		for i := 1; i <= 20; i++ {
			q.Enqueue(ctx, model.Change{Op: model.ChangeInsert, GameID: 3, Seq: int64(i)})
		}

		convey.Convey("Then every change should reach the subscriber once", func() {
			convey.So(eventually(func() bool { return pool.Processed() == 20 }), convey.ShouldBeTrue)
			seen := map[int64]bool{}
			for len(seen) < 20 {
				u := <-sub.C()
				convey.So(seen[u.Seq], convey.ShouldBeFalse)
				seen[u.Seq] = true
			}
		})

		convey.Convey("Then shutdown should close the queue and return", func() {
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a non-positive worker count", t, func() {
		convey.So(logger.Init(logger.WithOutput(io.Discard)), convey.ShouldBeNil)
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), pubsub.NewHub())
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}
