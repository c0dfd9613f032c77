// Package sink delivers normalized inbound events to their consumer. The
// primary implementation fires Home Assistant events over its REST API; the
// log sink is the fallback for headless runs.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kai-zer-ru/max-notify-ha/internal/config"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
)

const emitTimeout = 10 * time.Second

// HomeAssistant posts each event to POST {url}/api/events/{event_type} with
// a long-lived access token. Event data is the normalized payload verbatim.
type HomeAssistant struct {
	base      string
	token     string
	eventType string
	http      *http.Client
	log       *zerolog.Logger
}

var _ ports.EventSink = (*HomeAssistant)(nil)

func NewHomeAssistant(cfg *config.HomeAssistantConfig, logger *zerolog.Logger) *HomeAssistant {
	l := logger.With().Str("component", "ha_sink").Logger()
	return &HomeAssistant{
		base:      strings.TrimRight(cfg.URL, "/"),
		token:     cfg.Token,
		eventType: cfg.EventType,
		http:      &http.Client{Timeout: emitTimeout},
		log:       &l,
	}
}

func (h *HomeAssistant) Emit(ctx context.Context, ev *model.NormalizedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	url := h.base + "/api/events/" + h.eventType
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("emit event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("emit event: unexpected status %d", resp.StatusCode)
	}
	h.log.Debug().Str("event_id", ev.EventID).Str("update_type", ev.UpdateType).Msg("event emitted")
	return nil
}
