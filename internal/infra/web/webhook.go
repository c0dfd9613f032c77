package web

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
)

const maxWebhookBody = 1 << 20

// handleWebhook ingests platform deliveries for one entry. The platform is
// acked immediately once the payload is accepted; processing happens on the
// worker pool. A delivery for an unknown or non-webhook entry gets 404 so
// the platform stops retrying it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entryID")
	entry, ok := s.entries.Entry(entryID)
	if !ok || entry.ReceiveMode != model.ReceiveWebhook {
		http.NotFound(w, r)
		return
	}

	if entry.WebhookSecret != "" {
		got := r.Header.Get("X-Max-Bot-Api-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(entry.WebhookSecret)) != 1 {
			s.log.Warn().Str("entry_id", entryID).Msg("webhook secret mismatch")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	updates, err := decodeWebhookBody(body)
	if err != nil {
		s.log.Warn().Err(err).Str("entry_id", entryID).Msg("undecodable webhook body")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	for _, u := range updates {
		if !s.receiver.Submit(entryID, u) {
			s.log.Warn().Str("entry_id", entryID).Msg("webhook update dropped, no receiver")
		}
	}
	// Ack regardless of processing outcome; the dedup window absorbs any
	// platform redelivery.
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// decodeWebhookBody accepts both shapes the platform sends: one update
// object, or a batch under "updates".
func decodeWebhookBody(body []byte) ([]*model.InboundUpdate, error) {
	var batch struct {
		Updates []model.InboundUpdate `json:"updates"`
	}
	if err := json.Unmarshal(body, &batch); err == nil && len(batch.Updates) > 0 {
		out := make([]*model.InboundUpdate, len(batch.Updates))
		for i := range batch.Updates {
			out[i] = &batch.Updates[i]
		}
		return out, nil
	}

	var single model.InboundUpdate
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	if single.UpdateType == "" {
		return nil, errEmptyUpdate
	}
	return []*model.InboundUpdate{&single}, nil
}

type webhookError string

func (e webhookError) Error() string { return string(e) }

const errEmptyUpdate = webhookError("update_type missing")
