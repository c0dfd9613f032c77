package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/metrics"
)

// Pipeline is the per-entry ingestion path: dedup, parse, emit. Both the
// polling loop and the webhook handler of an entry feed the same pipeline,
// sharing one dedup window, so an update arriving over both transports
// produces one event.
type Pipeline struct {
	entryID     string
	dedup       ports.Deduplicator
	sink        ports.EventSink
	ttl         time.Duration
	callbackTTL time.Duration
	log         *zerolog.Logger
}

func NewPipeline(entryID string, dedup ports.Deduplicator, sink ports.EventSink, ttl, callbackTTL time.Duration, logger *zerolog.Logger) *Pipeline {
	l := logger.With().Str("component", "pipeline").Str("entry_id", entryID).Logger()
	return &Pipeline{
		entryID:     entryID,
		dedup:       dedup,
		sink:        sink,
		ttl:         ttl,
		callbackTTL: callbackTTL,
		log:         &l,
	}
}

// Process runs one update through the pipeline. Returns nil for duplicates
// (they are dropped, not failed). A malformed update is logged and dropped;
// the returned error then reports it to the caller's tests, never aborts a
// batch.
func (p *Pipeline) Process(ctx context.Context, u *model.InboundUpdate, transport string) error {
	metrics.UpdateReceived(p.entryID, transport)

	key := u.DedupKey()
	ttl := p.ttl
	if u.UpdateType == model.UpdateMessageCallback {
		ttl = p.callbackTTL
	}
	fresh, err := p.dedup.Admit(ctx, key, ttl)
	if err != nil {
		// Dedup backend down: prefer a possible duplicate over a lost event.
		p.log.Warn().Err(err).Str("event_id", key).Msg("dedup check failed, admitting")
		fresh = true
	}
	if !fresh {
		metrics.UpdateDeduplicated(p.entryID)
		p.log.Debug().Str("event_id", key).Msg("duplicate dropped")
		return nil
	}

	ev, err := ParseUpdate(p.entryID, u)
	if err != nil {
		var perr *domain.ParseError
		if errors.As(err, &perr) {
			metrics.UpdateParseFailed(p.entryID)
			p.log.Warn().Str("event_id", key).Str("reason", perr.Reason).Msg("malformed update dropped")
			return err
		}
		return err
	}

	if err := p.sink.Emit(ctx, ev); err != nil {
		p.log.Error().Err(err).Str("event_id", ev.EventID).Msg("event emit failed")
		return err
	}
	metrics.EventEmitted(p.entryID, ev.UpdateType)
	return nil
}
