package sink

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
)

// Log writes events to the structured log instead of an external consumer.
// Used when no Home Assistant endpoint is configured.
type Log struct {
	log *zerolog.Logger
}

var _ ports.EventSink = (*Log)(nil)

func NewLog(logger *zerolog.Logger) *Log {
	l := logger.With().Str("component", "log_sink").Logger()
	return &Log{log: &l}
}

func (s *Log) Emit(_ context.Context, ev *model.NormalizedEvent) error {
	s.log.Info().
		Str("event_id", ev.EventID).
		Str("update_type", ev.UpdateType).
		Str("entry_id", ev.ConfigEntryID).
		Int64("chat_id", ev.ChatID).
		Int64("user_id", ev.UserID).
		Str("command", ev.Command).
		Str("callback_data", ev.CallbackData).
		Msg("inbound event")
	return nil
}
