package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/maxapi"
	"github.com/kai-zer-ru/max-notify-ha/internal/infra/metrics"
)

// MediaFile is a fully loaded outbound file, ready for upload.
type MediaFile struct {
	Data        []byte
	Filename    string
	ContentType string
}

// FileSource loads media referenced by a send request, from the local media
// directory or by downloading a URL.
type FileSource interface {
	Load(ctx context.Context, ref string) (*MediaFile, error)
}

const (
	maxTextLen      = 4000
	maxSendAttempts = 3
	retryBaseDelay  = 500 * time.Millisecond

	imageUploadSettle = 1500 * time.Millisecond
	videoUploadSettle = 5 * time.Second
)

// Delays between resend attempts while the platform still reports the
// uploaded attachment as not ready. Video transcoding takes longer, so it
// gets one extra round.
var (
	imageReadyDelays = []time.Duration{3 * time.Second, 5 * time.Second, 8 * time.Second}
	videoReadyDelays = []time.Duration{3 * time.Second, 5 * time.Second, 8 * time.Second, 12 * time.Second}
)

// Containers the platform accepts for video uploads. Anything else is
// rejected before any file is read or uploaded.
var videoExts = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
	".mkv":  true,
}

// SendRequest is one logical outbound delivery. Exactly one recipient; the
// service API fans multi-target calls out to one request per target.
type SendRequest struct {
	Ref     TargetRef
	Message string
	Title   string
	File    string // media sends: local path or http(s) URL

	// Format overrides the entry's configured message format when set.
	Format string

	// Buttons, when present, win over the entry's stored keyboard.
	// SendKeyboard=false suppresses the stored keyboard entirely.
	Buttons      model.Keyboard
	SendKeyboard *bool
}

// Dispatcher executes outbound sends: resolve the recipient, prepare media,
// deliver with transient retry. One rate limiter per entry keeps a burst of
// automations from tripping platform throttling.
type Dispatcher struct {
	api      ports.BotAPI
	resolver *Resolver
	files    FileSource
	log      *zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(api ports.BotAPI, resolver *Resolver, files FileSource, logger *zerolog.Logger) *Dispatcher {
	l := logger.With().Str("component", "dispatcher").Logger()
	return &Dispatcher{
		api:      api,
		resolver: resolver,
		files:    files,
		log:      &l,
		limiters: make(map[string]*rate.Limiter),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Dispatcher) limiter(entryID string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	lim, ok := d.limiters[entryID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(20), 5)
		d.limiters[entryID] = lim
	}
	return lim
}

// SendMessage delivers a text message, optionally with an inline keyboard.
func (d *Dispatcher) SendMessage(ctx context.Context, req SendRequest) error {
	return d.send(ctx, "message", req, nil)
}

// SendPhoto uploads the referenced image and delivers it with the caption.
func (d *Dispatcher) SendPhoto(ctx context.Context, req SendRequest) error {
	return d.sendMedia(ctx, "photo", "image", imageReadyDelays, imageUploadSettle, req)
}

// SendDocument uploads the referenced file as a plain document.
func (d *Dispatcher) SendDocument(ctx context.Context, req SendRequest) error {
	return d.sendMedia(ctx, "document", "file", imageReadyDelays, imageUploadSettle, req)
}

// SendVideo uploads the referenced video. Only known container extensions
// are accepted; the check runs before any network traffic.
func (d *Dispatcher) SendVideo(ctx context.Context, req SendRequest) error {
	if ext := fileExt(req.File); ext != "" && !videoExts[ext] {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, ext)
	}
	return d.sendMedia(ctx, "video", "video", videoReadyDelays, videoUploadSettle, req)
}

// fileExt extracts the lower-cased extension of a path or URL, with any
// query string stripped first.
func fileExt(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return strings.ToLower(path.Ext(ref))
}

func (d *Dispatcher) send(ctx context.Context, kind string, req SendRequest, att *ports.MediaAttachment) error {
	start := time.Now()
	err := d.deliver(ctx, kind, req, att, nil)
	metrics.SendFinished(kind, err == nil, time.Since(start))
	return err
}

func (d *Dispatcher) sendMedia(ctx context.Context, kind, uploadType string, readyDelays []time.Duration, settle time.Duration, req SendRequest) error {
	start := time.Now()
	err := d.deliverMedia(ctx, kind, uploadType, readyDelays, settle, req)
	metrics.SendFinished(kind, err == nil, time.Since(start))
	return err
}

func (d *Dispatcher) deliverMedia(ctx context.Context, kind, uploadType string, readyDelays []time.Duration, settle time.Duration, req SendRequest) error {
	rcpt, err := d.resolver.Resolve(req.Ref)
	if err != nil {
		return err
	}

	file, err := d.files.Load(ctx, req.File)
	if err != nil {
		return fmt.Errorf("load media: %w", err)
	}

	slot, err := d.api.RequestUpload(ctx, rcpt.Entry.AccessToken, uploadType)
	if err != nil {
		return fmt.Errorf("request upload slot: %w", err)
	}
	raw, err := d.api.UploadFile(ctx, rcpt.Entry.AccessToken, slot.URL, file.Filename, file.ContentType, file.Data)
	if err != nil {
		return fmt.Errorf("upload %s: %w", uploadType, err)
	}

	att := &ports.MediaAttachment{Kind: uploadType}
	if uploadType == "video" {
		// Video uploads carry the token from the slot, not the upload body.
		att.Payload, _ = json.Marshal(map[string]string{"token": slot.Token})
	} else {
		payload, ok := maxapi.ExtractAttachmentPayload(raw)
		if !ok {
			return &domain.DeliveryError{Detail: "upload response carried no attachment token"}
		}
		att.Payload = payload
	}

	// The CDN needs a moment before the token is attachable at all.
	if err := d.sleep(ctx, settle); err != nil {
		return err
	}
	return d.deliver(ctx, kind, req, att, readyDelays)
}

// deliver resolves the recipient and posts the message, retrying transient
// failures and, for media, waiting out "attachment.not.ready" rounds.
func (d *Dispatcher) deliver(ctx context.Context, kind string, req SendRequest, att *ports.MediaAttachment, readyDelays []time.Duration) error {
	rcpt, err := d.resolver.Resolve(req.Ref)
	if err != nil {
		return err
	}
	entry := rcpt.Entry

	sendID := ulid.Make().String()
	log := d.log.With().
		Str("send_id", sendID).
		Str("kind", kind).
		Str("entry_id", entry.ID).
		Logger()

	msg := ports.MessagePayload{
		Text:       composeText(req.Title, req.Message),
		Format:     pickFormat(req.Format, entry.MessageFormat),
		Keyboard:   pickKeyboard(req, entry),
		Attachment: att,
	}

	chatID, userID := rcpt.Target.ChatID, rcpt.Target.UserID
	if chatID == 0 && userID != 0 {
		// Prefer addressing the dialog chat; fall back to user_id when the
		// dialog is not visible yet.
		if resolved, rerr := d.api.ResolveDialogChatID(ctx, entry.AccessToken, userID); rerr == nil && resolved != 0 {
			chatID, userID = resolved, 0
		}
	}

	lim := d.limiter(entry.ID)
	for round := 0; ; round++ {
		err = d.sendOnce(ctx, kind, lim, entry.AccessToken, chatID, userID, msg, &log)
		if err == nil {
			log.Info().Int64("chat_id", chatID).Int64("user_id", userID).Msg("message delivered")
			return nil
		}
		if attachmentNotReady(err) && round < len(readyDelays) {
			log.Debug().Dur("delay", readyDelays[round]).Msg("attachment not ready, waiting")
			if serr := d.sleep(ctx, readyDelays[round]); serr != nil {
				return serr
			}
			continue
		}
		log.Error().Err(err).Msg("delivery failed")
		return err
	}
}

// sendOnce posts the message with the transient-retry budget applied.
func (d *Dispatcher) sendOnce(ctx context.Context, kind string, lim *rate.Limiter, token string, chatID, userID int64, msg ports.MessagePayload, log *zerolog.Logger) error {
	var err error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if werr := lim.Wait(ctx); werr != nil {
			return werr
		}
		err = d.api.SendMessage(ctx, token, chatID, userID, msg)
		if err == nil || !isTransient(err) || attempt == maxSendAttempts {
			return err
		}
		delay := retryBaseDelay << (attempt - 1)
		metrics.SendRetried(kind)
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("transient send failure, retrying")
		if serr := d.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

func isTransient(err error) bool {
	var derr *domain.DeliveryError
	return errors.As(err, &derr) && derr.Transient
}

func attachmentNotReady(err error) bool {
	var derr *domain.DeliveryError
	return errors.As(err, &derr) && derr.Status == 400 && strings.Contains(derr.Detail, "attachment.not.ready")
}

func composeText(title, message string) string {
	text := message
	if title != "" {
		text = title + "\n" + message
	}
	if len(text) > maxTextLen {
		text = truncateText(text, maxTextLen)
	}
	return text
}

// truncateText cuts at a rune boundary so a multi-byte character is never
// split mid-sequence.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func pickFormat(override, configured string) string {
	if override != "" && override != "plain" {
		return override
	}
	if override == "plain" {
		return ""
	}
	if configured == "" || configured == "plain" {
		return ""
	}
	return configured
}

// pickKeyboard applies precedence: explicit buttons beat the stored
// keyboard, which is attached only while send_keyboard stays enabled.
func pickKeyboard(req SendRequest, entry *model.BotEntry) model.Keyboard {
	if !req.Buttons.Empty() {
		return req.Buttons.Normalize()
	}
	if req.SendKeyboard != nil && !*req.SendKeyboard {
		return nil
	}
	return entry.Keyboard
}
