package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
)

// MessagePayload is one outbound message: text plus an optional media
// attachment and an optional inline keyboard.
type MessagePayload struct {
	Text       string
	Format     string // "" = plain
	Keyboard   model.Keyboard
	Attachment *MediaAttachment
}

// MediaAttachment references an already-uploaded file. Payload is the token
// object returned by the upload endpoint, passed through verbatim.
type MediaAttachment struct {
	Kind    string // "image" | "file" | "video"
	Payload json.RawMessage
}

// UploadSlot is the platform's answer to an upload request: a one-shot CDN
// URL and, for video, the attachment token assigned up front.
type UploadSlot struct {
	URL   string
	Token string
}

// UpdateBatch is one long-poll result. Marker is the offset to pass on the
// next fetch; 0 means the platform did not advance it.
type UpdateBatch struct {
	Updates []model.InboundUpdate
	Marker  int64
}

// BotAPI is the MAX platform client. One physical HTTP call per method; all
// retry policy lives with the callers. Errors are *domain.DeliveryError for
// platform rejections and domain.ErrAuthentication for invalid tokens on
// read paths.
type BotAPI interface {
	ValidateToken(ctx context.Context, token string) error
	SetCommands(ctx context.Context, token string, commands []model.BotCommand) error

	GetUpdates(ctx context.Context, token string, marker int64, timeout time.Duration) (UpdateBatch, error)
	Subscribe(ctx context.Context, token, url, secret string) error
	Unsubscribe(ctx context.Context, token, url string) error

	// ResolveDialogChatID finds the dialog chat for a user via the chat list.
	// Returns 0 when no dialog with that user is visible to the bot.
	ResolveDialogChatID(ctx context.Context, token string, userID int64) (int64, error)
	SendMessage(ctx context.Context, token string, chatID, userID int64, msg MessagePayload) error
	RequestUpload(ctx context.Context, token, uploadType string) (UploadSlot, error)
	UploadFile(ctx context.Context, token, uploadURL, filename, contentType string, data []byte) (json.RawMessage, error)
}
