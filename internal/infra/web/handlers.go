package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/usecase"
)

// sendPayload is the service API request body. A single recipient via
// entity/chat_id/user_id, or a fan-out via entities/chat_ids/user_ids.
type sendPayload struct {
	Entity        string   `json:"entity,omitempty"`
	EntityID      string   `json:"entity_id,omitempty"` // alias of entity
	Entities      []string `json:"entities,omitempty"`
	ConfigEntryID string   `json:"config_entry_id,omitempty"`
	ChatID        int64    `json:"chat_id,omitempty"`
	ChatIDs       []int64  `json:"chat_ids,omitempty"`
	UserID        int64    `json:"user_id,omitempty"`
	UserIDs       []int64  `json:"user_ids,omitempty"`

	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	Caption string `json:"caption,omitempty"` // media sends; falls back to message
	File    string `json:"file,omitempty"`
	Format  string `json:"format,omitempty"`

	Keyboard     model.Keyboard `json:"keyboard,omitempty"`
	SendKeyboard *bool          `json:"send_keyboard,omitempty"`
}

type sendResponse struct {
	Status    string `json:"status"`
	Delivered int    `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// refs expands the payload into one TargetRef per recipient.
func (p *sendPayload) refs() []usecase.TargetRef {
	var out []usecase.TargetRef
	for _, e := range p.Entities {
		out = append(out, usecase.TargetRef{Entity: e})
	}
	for _, id := range p.ChatIDs {
		out = append(out, usecase.TargetRef{ConfigEntryID: p.ConfigEntryID, ChatID: id})
	}
	for _, id := range p.UserIDs {
		out = append(out, usecase.TargetRef{ConfigEntryID: p.ConfigEntryID, UserID: id})
	}
	if len(out) > 0 {
		return out
	}
	entity := p.Entity
	if entity == "" {
		entity = p.EntityID
	}
	return []usecase.TargetRef{{
		Entity:        entity,
		ConfigEntryID: p.ConfigEntryID,
		ChatID:        p.ChatID,
		UserID:        p.UserID,
	}}
}

func (s *Server) handleSend(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p sendPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSON(w, http.StatusBadRequest, sendResponse{Status: "error", Error: "invalid JSON body"})
			return
		}
		if kind != "message" && p.File == "" {
			writeJSON(w, http.StatusBadRequest, sendResponse{Status: "error", Error: "file is required"})
			return
		}

		text := p.Message
		if kind != "message" && p.Caption != "" {
			text = p.Caption
		}

		// Fan-out keeps going past failures; the first error decides the
		// response status.
		delivered := 0
		var firstErr error
		for _, ref := range p.refs() {
			req := usecase.SendRequest{
				Ref:          ref,
				Title:        p.Title,
				Message:      text,
				File:         p.File,
				Format:       p.Format,
				Buttons:      p.Keyboard,
				SendKeyboard: p.SendKeyboard,
			}

			var err error
			switch kind {
			case "photo":
				err = s.dispatcher.SendPhoto(r.Context(), req)
			case "document":
				err = s.dispatcher.SendDocument(r.Context(), req)
			case "video":
				err = s.dispatcher.SendVideo(r.Context(), req)
			default:
				err = s.dispatcher.SendMessage(r.Context(), req)
			}
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			delivered++
		}
		if firstErr != nil {
			writeJSON(w, sendErrorStatus(firstErr), sendResponse{
				Status:    "error",
				Delivered: delivered,
				Error:     firstErr.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, sendResponse{Status: "ok", Delivered: delivered})
	}
}

// sendErrorStatus maps dispatcher errors onto HTTP statuses: caller mistakes
// are 400, platform rejections 502.
func sendErrorStatus(err error) int {
	if domain.IsResolution(err) || errors.Is(err, domain.ErrUnsupportedMedia) {
		return http.StatusBadRequest
	}
	var derr *domain.DeliveryError
	if errors.As(err, &derr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
