package service

import (
	"time"

	"github.com/okian/hoops/internal/adapters/pubsub"
	"github.com/okian/hoops/internal/adapters/repository"
	"github.com/okian/hoops/internal/domain/dedupe"
	"github.com/okian/hoops/internal/domain/types"
	"github.com/okian/hoops/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the event store. Defaults to an in-memory store.
func WithStore(s repository.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.store = s
		}
	}
}

// WithBroker sets the notification broker. Defaults to an in-process hub.
func WithBroker(b pubsub.Broker) Option {
	return func(svc *Service) {
		if b != nil {
			svc.broker = b
		}
	}
}

// WithDeduper sets the idempotency ledger. Defaults to an in-memory ledger.
func WithDeduper(d dedupe.Deduper) Option {
	return func(svc *Service) {
		if d != nil {
			svc.deduper = d
		}
	}
}

// WithRelayWorkers sets the number of change feed relay workers.
func WithRelayWorkers(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.relayWorkers = count
		}
	}
}

// WithQueueSize sets the capacity of the change feed queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithStatusClearAfter sets how long controller statuses stay visible.
func WithStatusClearAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.statusClearAfter = d
		}
	}
}

// WithRefreshInterval sets the periodic full refresh of display surfaces.
func WithRefreshInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshInterval = d
		}
	}
}

// WithGamesPlayedPolicy sets the default ranking denominator.
func WithGamesPlayedPolicy(p types.GamesPlayedPolicy) Option {
	return func(s *Service) {
		if p != "" {
			s.gamesPlayed = p
		}
	}
}

// WithResultPolicy sets how submitted game results are checked.
func WithResultPolicy(p ResultPolicy) Option {
	return func(s *Service) {
		if p != "" {
			s.resultPolicy = p
		}
	}
}

// WithRankingLimit sets the default number of ranking rows.
func WithRankingLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.rankingLimit = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
