// Package poller runs the long-polling ingestion loop of one bot entry.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/metrics"
)

type State string

const (
	StateIdle    State = "idle"
	StatePolling State = "polling"
	StateStopped State = "stopped"
)

const (
	defaultPollTimeout = 25 * time.Second
	fetchBackoff       = 5 * time.Second
)

// FetchFunc performs one long-poll round against the platform.
type FetchFunc func(ctx context.Context, marker int64, timeout time.Duration) (ports.UpdateBatch, error)

// HandleFunc processes one fetched update. Handler errors are the handler's
// business; the loop keeps going either way.
type HandleFunc func(ctx context.Context, u *model.InboundUpdate)

// Poller drives repeated GetUpdates rounds. The platform's marker is adopted
// as soon as a batch arrives, before any update is processed: a handler crash
// must not make the whole batch come back again. A failed fetch keeps the
// current marker and retries after a fixed backoff.
type Poller struct {
	entryID string
	fetch   FetchFunc
	handle  HandleFunc
	timeout time.Duration
	backoff time.Duration
	log     *zerolog.Logger

	mu     sync.Mutex
	state  State
	marker int64
}

func New(entryID string, fetch FetchFunc, handle HandleFunc, logger *zerolog.Logger) *Poller {
	l := logger.With().Str("component", "poller").Str("entry_id", entryID).Logger()
	return &Poller{
		entryID: entryID,
		fetch:   fetch,
		handle:  handle,
		timeout: defaultPollTimeout,
		backoff: fetchBackoff,
		log:     &l,
		state:   StateIdle,
	}
}

// Run polls until ctx is cancelled. An invalid token stops the loop for
// good; every other fetch error is backed off and retried.
func (p *Poller) Run(ctx context.Context) error {
	p.setState(StatePolling)
	defer p.setState(StateStopped)
	p.log.Info().Msg("polling started")

	for {
		if ctx.Err() != nil {
			p.log.Info().Msg("polling stopped")
			return nil
		}

		batch, err := p.fetch(ctx, p.Marker(), p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				p.log.Info().Msg("polling stopped")
				return nil
			}
			if errors.Is(err, domain.ErrAuthentication) {
				p.log.Error().Err(err).Msg("token rejected, polling aborted")
				return err
			}
			metrics.PollFetchError(p.entryID)
			p.log.Warn().Err(err).Dur("backoff", p.backoff).Msg("fetch failed")
			if !sleepCtx(ctx, p.backoff) {
				p.log.Info().Msg("polling stopped")
				return nil
			}
			continue
		}

		if batch.Marker != 0 {
			p.setMarker(batch.Marker)
		} else if max := highestUpdateID(batch.Updates); max != 0 {
			// No marker in the response: advance past the batch ourselves.
			p.setMarker(max + 1)
		}
		for i := range batch.Updates {
			if ctx.Err() != nil {
				p.log.Info().Msg("polling stopped")
				return nil
			}
			p.handle(ctx, &batch.Updates[i])
		}
	}
}

// Marker reports the current long-poll offset.
func (p *Poller) Marker() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marker
}

func (p *Poller) setMarker(m int64) {
	p.mu.Lock()
	p.marker = m
	p.mu.Unlock()
}

// State reports the loop's lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func highestUpdateID(updates []model.InboundUpdate) int64 {
	var max int64
	for i := range updates {
		if updates[i].UpdateID > max {
			max = updates[i].UpdateID
		}
	}
	return max
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
