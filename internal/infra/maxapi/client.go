package maxapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
)

const (
	DefaultBaseURL = "https://platform-api.max.ru"
	apiVersion     = "1.2.5"

	pollLimit     = 100
	chatsPageSize = 100
	// GET /chats pages scanned when resolving a dialog before giving up.
	maxChatPages = 50
)

var receiveTypes = []string{model.UpdateMessageCreated, model.UpdateMessageCallback}

// Client talks to the MAX bot platform. One HTTP call per method; callers own
// all retry policy. The zero http.Client timeout is deliberate: every method
// bounds itself with a context deadline (long polls outlive any sane global
// timeout).
type Client struct {
	baseURL string
	http    *http.Client
	log     *zerolog.Logger
}

var _ ports.BotAPI = (*Client)(nil)

func NewClient(baseURL string, httpClient *http.Client, logger *zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	compLog := logger.With().Str("component", "maxapi").Logger()
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient, log: &compLog}
}

func (c *Client) endpoint(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("v", apiVersion)
	return c.baseURL + path + "?" + query.Encode()
}

func (c *Client) do(ctx context.Context, method, rawURL, token string, body io.Reader, contentType string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return 0, nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &domain.DeliveryError{Detail: err.Error(), Transient: true}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, &domain.DeliveryError{Status: resp.StatusCode, Detail: err.Error(), Transient: true}
	}
	return resp.StatusCode, b, nil
}

func (c *Client) doJSON(ctx context.Context, method, rawURL, token string, payload any) (int, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	return c.do(ctx, method, rawURL, token, bytes.NewReader(b), "application/json")
}

func apiError(status int, body []byte) error {
	return &domain.DeliveryError{
		Status:    status,
		Detail:    truncate(string(body), 500),
		Transient: status >= 500,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ValidateToken calls GET /me. Returns domain.ErrAuthentication on 401.
func (c *Client) ValidateToken(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	status, body, err := c.do(ctx, http.MethodGet, c.endpoint("/me", nil), token, nil, "")
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized:
		return domain.ErrAuthentication
	default:
		return apiError(status, body)
	}
}

// SetCommands syncs the bot's chat-menu command list via PATCH /me.
func (c *Client) SetCommands(ctx context.Context, token string, commands []model.BotCommand) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if commands == nil {
		commands = []model.BotCommand{}
	}
	status, body, err := c.doJSON(ctx, http.MethodPatch, c.endpoint("/me", nil), token, commandsRequest{Commands: commands})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiError(status, body)
	}
	return nil
}

// GetUpdates performs one long poll. The HTTP deadline is the platform poll
// timeout plus slack so the platform, not us, closes an idle poll.
func (c *Client) GetUpdates(ctx context.Context, token string, marker int64, timeout time.Duration) (ports.UpdateBatch, error) {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	q.Set("limit", strconv.Itoa(pollLimit))
	q.Set("types", strings.Join(receiveTypes, ","))
	if marker != 0 {
		q.Set("marker", strconv.FormatInt(marker, 10))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout+10*time.Second)
	defer cancel()

	status, body, err := c.do(ctx, http.MethodGet, c.endpoint("/updates", q), token, nil, "")
	if err != nil {
		return ports.UpdateBatch{}, err
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusUnauthorized:
		return ports.UpdateBatch{}, domain.ErrAuthentication
	default:
		return ports.UpdateBatch{}, apiError(status, body)
	}
	var out updatesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ports.UpdateBatch{}, fmt.Errorf("decode updates: %w", err)
	}
	return ports.UpdateBatch{Updates: out.Updates, Marker: out.Marker}, nil
}

// Subscribe registers a webhook URL upstream (POST /subscriptions).
func (c *Client) Subscribe(ctx context.Context, token, hookURL, secret string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req := subscriptionRequest{URL: hookURL, UpdateTypes: receiveTypes}
	// The platform silently ignores secrets shorter than 5 chars.
	if len(secret) >= 5 {
		req.Secret = secret
	}
	status, body, err := c.doJSON(ctx, http.MethodPost, c.endpoint("/subscriptions", nil), token, req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiError(status, body)
	}
	var ok successResponse
	if err := json.Unmarshal(body, &ok); err != nil || !ok.Success {
		return apiError(status, body)
	}
	return nil
}

// Unsubscribe removes a webhook registration (DELETE /subscriptions).
func (c *Client) Unsubscribe(ctx context.Context, token, hookURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	q := url.Values{}
	q.Set("url", hookURL)
	status, body, err := c.do(ctx, http.MethodDelete, c.endpoint("/subscriptions", q), token, nil, "")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiError(status, body)
	}
	return nil
}

// ResolveDialogChatID pages GET /chats looking for the dialog with userID.
// Dialogs the bot cannot see resolve to 0 with a nil error; the caller then
// falls back to addressing by user_id.
func (c *Client) ResolveDialogChatID(ctx context.Context, token string, userID int64) (int64, error) {
	var marker *int64
	for page := 0; page < maxChatPages; page++ {
		q := url.Values{}
		q.Set("count", strconv.Itoa(chatsPageSize))
		if marker != nil {
			q.Set("marker", strconv.FormatInt(*marker, 10))
		}
		pageCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		status, body, err := c.do(pageCtx, http.MethodGet, c.endpoint("/chats", q), token, nil, "")
		cancel()
		if err != nil {
			return 0, err
		}
		if status != http.StatusOK {
			return 0, apiError(status, body)
		}
		var out chatsResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return 0, fmt.Errorf("decode chats: %w", err)
		}
		for _, chat := range out.Chats {
			if chat.DialogWithUser != nil && chat.DialogWithUser.UserID == userID {
				return chat.ChatID, nil
			}
		}
		if out.Marker == nil {
			break
		}
		marker = out.Marker
	}
	return 0, nil
}

// SendMessage posts one message (POST /messages). chatID wins over userID as
// the recipient selector.
func (c *Client) SendMessage(ctx context.Context, token string, chatID, userID int64, msg ports.MessagePayload) error {
	q := url.Values{}
	switch {
	case chatID != 0:
		q.Set("chat_id", strconv.FormatInt(chatID, 10))
	case userID != 0:
		q.Set("user_id", strconv.FormatInt(userID, 10))
	default:
		return domain.ErrNoRecipient
	}

	body := messageBody{Text: msg.Text, Format: msg.Format}
	if msg.Attachment != nil {
		body.Attachments = append(body.Attachments, attachment{
			Type:    msg.Attachment.Kind,
			Payload: msg.Attachment.Payload,
		})
	}
	if kb := msg.Keyboard.Normalize(); len(kb) > 0 {
		body.Attachments = append(body.Attachments, attachment{
			Type:    "inline_keyboard",
			Payload: keyboardPayload{Buttons: kb},
		})
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	status, respBody, err := c.doJSON(ctx, http.MethodPost, c.endpoint("/messages", q), token, body)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return apiError(status, respBody)
	}
	return nil
}

// RequestUpload asks for a CDN upload slot (POST /uploads). Video slots also
// carry the attachment token.
func (c *Client) RequestUpload(ctx context.Context, token, uploadType string) (ports.UploadSlot, error) {
	q := url.Values{}
	q.Set("type", uploadType)
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	status, body, err := c.do(ctx, http.MethodPost, c.endpoint("/uploads", q), token, nil, "")
	if err != nil {
		return ports.UploadSlot{}, err
	}
	if status != http.StatusOK {
		return ports.UploadSlot{}, apiError(status, body)
	}
	var slot uploadSlot
	if err := json.Unmarshal(body, &slot); err != nil {
		return ports.UploadSlot{}, fmt.Errorf("decode upload slot: %w", err)
	}
	if slot.URL == "" {
		return ports.UploadSlot{}, &domain.DeliveryError{Status: status, Detail: "upload response has no url"}
	}
	return ports.UploadSlot{URL: slot.URL, Token: slot.Token}, nil
}

// UploadFile pushes file bytes to the CDN slot as a multipart form and
// returns the raw upload response (shape varies by media kind).
func (c *Client) UploadFile(ctx context.Context, token, uploadURL, filename, contentType string, data []byte) (json.RawMessage, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="data"; filename=%q`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	status, body, err := c.do(ctx, http.MethodPost, uploadURL, token, &buf, w.FormDataContentType())
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		return nil, apiError(status, body)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(body), nil
}
