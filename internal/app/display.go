package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/hoops/internal/adapters/pubsub"
	"github.com/okian/hoops/internal/domain/aggregate"
	"github.com/okian/hoops/pkg/logger"
	"github.com/okian/hoops/pkg/metrics"
)

// Refresh triggers.
const (
	TriggerInitial  = "initial"
	TriggerFeed     = "feed"
	TriggerOpener   = "opener"
	TriggerPeriodic = "periodic"
	TriggerManual   = "manual"
)

// Frame is one recomputation of a display.
type Frame struct {
	// Revision counts refreshes since the display opened.
	Revision uint64             `json:"revision"`
	Trigger  string             `json:"trigger"`
	Snapshot aggregate.Snapshot `json:"snapshot"`
	// Error is set when the store could not be read; Snapshot is then empty.
	Error string `json:"error,omitempty"`
}

// Display is a passive surface showing one game. It re-reads and re-folds
// the log whenever the feed or its opener mailbox signals, and periodically
// to cover lost notifications.
type Display struct {
	id     string
	gameID int64
	svc    *Service

	sub        pubsub.Subscription
	mailbox    <-chan struct{}
	unregister func()
	interval   time.Duration

	revision atomic.Uint64
	frames   chan Frame
	manual   chan struct{}

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	logger logger.Logger
}

// OpenDisplay subscribes a new display to gameID. The first frame is
// available immediately on Frames.
func (s *Service) OpenDisplay(ctx context.Context, gameID int64) (*Display, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	if _, err := s.store.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := s.broker.Subscribe(runCtx, gameID)
	if err != nil {
		cancel()
		return nil, err
	}
	d := &Display{
		id:       uuid.NewString(),
		gameID:   gameID,
		svc:      s,
		sub:      sub,
		interval: s.refreshInterval,
		frames:   make(chan Frame, 1),
		manual:   make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   s.logger.Named("display"),
	}
	d.mailbox, d.unregister = s.opener.Register(d.id)

	s.mu.Lock()
	s.displays[d.id] = d
	s.mu.Unlock()
	metrics.IncActiveDisplays()

	d.refresh(runCtx, TriggerInitial)
	go d.run(runCtx)
	return d, nil
}

// ID is the display id controllers name as their opener.
func (d *Display) ID() string { return d.id }

// GameID returns the displayed game.
func (d *Display) GameID() int64 { return d.gameID }

// Revision returns the revalidation counter.
func (d *Display) Revision() uint64 { return d.revision.Load() }

// Frames delivers the latest frame. Older unread frames are replaced, and
// the channel is closed when the display closes.
func (d *Display) Frames() <-chan Frame { return d.frames }

// Refresh asks for a manual re-fetch.
func (d *Display) Refresh() {
	select {
	case d.manual <- struct{}{}:
	default:
	}
}

// Done is closed once the display stopped.
func (d *Display) Done() <-chan struct{} { return d.done }

// Close tears down the subscription and the opener mailbox.
func (d *Display) Close() {
	d.closeOnce.Do(func() {
		d.cancel()
		<-d.done
		d.svc.mu.Lock()
		delete(d.svc.displays, d.id)
		d.svc.mu.Unlock()
		metrics.DecActiveDisplays()
	})
}

func (d *Display) run(ctx context.Context) {
	defer close(d.done)
	defer close(d.frames)
	defer d.unregister()
	defer d.sub.Close()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	updates := d.sub.C()
	mailbox := d.mailbox
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				// Broker went away; keep serving on periodic refreshes.
				updates = nil
				continue
			}
			d.refresh(ctx, TriggerFeed)
		case _, ok := <-mailbox:
			if !ok {
				mailbox = nil
				continue
			}
			d.refresh(ctx, TriggerOpener)
		case <-d.manual:
			d.refresh(ctx, TriggerManual)
		case <-ticker.C:
			d.refresh(ctx, TriggerPeriodic)
		}
	}
}

func (d *Display) refresh(ctx context.Context, trigger string) {
	rev := d.revision.Add(1)
	metrics.RecordDisplayRefresh(trigger)
	f := Frame{Revision: rev, Trigger: trigger}
	snap, err := d.svc.Scoreboard(ctx, d.gameID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		d.logger.Warn(ctx, "display refresh failed",
			logger.Any("game_id", d.gameID),
			logger.String("trigger", trigger),
			logger.Error(err),
		)
		metrics.RecordErrorByComponent("display", "refresh")
		f.Error = err.Error()
	} else {
		f.Snapshot = snap
	}
	d.publish(f)
}

// publish replaces any unread frame with f.
func (d *Display) publish(f Frame) {
	for {
		select {
		case d.frames <- f:
			return
		default:
		}
		select {
		case <-d.frames:
		default:
		}
	}
}
