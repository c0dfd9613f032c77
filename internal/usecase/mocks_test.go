package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
)

// --- entry source ---

type fakeEntries struct {
	entries []*model.BotEntry
}

var _ ports.EntrySource = (*fakeEntries)(nil)

func (f *fakeEntries) Entry(id string) (*model.BotEntry, bool) {
	for _, e := range f.entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

func (f *fakeEntries) ByEntity(entity string) (*model.BotEntry, model.ChatTarget, bool) {
	for _, e := range f.entries {
		for _, t := range e.Targets {
			if t.Entity == entity {
				return e, t, true
			}
		}
	}
	return nil, model.ChatTarget{}, false
}

func (f *fakeEntries) Single() (*model.BotEntry, bool) {
	if len(f.entries) == 1 {
		return f.entries[0], true
	}
	return nil, false
}

func (f *fakeEntries) List() []*model.BotEntry { return f.entries }

// --- bot API ---

type sentMessage struct {
	token  string
	chatID int64
	userID int64
	msg    ports.MessagePayload
}

type fakeAPI struct {
	mu   sync.Mutex
	sent []sentMessage

	// sendErrs is consumed one per SendMessage call; exhaustion means success.
	sendErrs []error

	uploadSlot    ports.UploadSlot
	uploadResp    json.RawMessage
	uploadCalls   int
	slotCalls     int
	resolveChatID int64
	resolveErr    error
}

var _ ports.BotAPI = (*fakeAPI)(nil)

func (f *fakeAPI) ValidateToken(context.Context, string) error { return nil }

func (f *fakeAPI) SetCommands(context.Context, string, []model.BotCommand) error { return nil }

func (f *fakeAPI) GetUpdates(context.Context, string, int64, time.Duration) (ports.UpdateBatch, error) {
	return ports.UpdateBatch{}, nil
}

func (f *fakeAPI) Subscribe(context.Context, string, string, string) error { return nil }

func (f *fakeAPI) Unsubscribe(context.Context, string, string) error { return nil }

func (f *fakeAPI) ResolveDialogChatID(_ context.Context, _ string, _ int64) (int64, error) {
	return f.resolveChatID, f.resolveErr
}

func (f *fakeAPI) SendMessage(_ context.Context, token string, chatID, userID int64, msg ports.MessagePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{token: token, chatID: chatID, userID: userID, msg: msg})
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		return err
	}
	return nil
}

func (f *fakeAPI) RequestUpload(context.Context, string, string) (ports.UploadSlot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slotCalls++
	return f.uploadSlot, nil
}

func (f *fakeAPI) UploadFile(context.Context, string, string, string, string, []byte) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	return f.uploadResp, nil
}

func (f *fakeAPI) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeAPI) lastSent() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

// --- sink ---

type fakeSink struct {
	mu     sync.Mutex
	events []*model.NormalizedEvent
	err    error
}

var _ ports.EventSink = (*fakeSink)(nil)

func (f *fakeSink) Emit(_ context.Context, ev *model.NormalizedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// --- dedup ---

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

var _ ports.Deduplicator = (*fakeDedup)(nil)

func newFakeDedup() *fakeDedup { return &fakeDedup{seen: make(map[string]bool)} }

func (f *fakeDedup) Admit(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.seen[eventID] {
		return false, nil
	}
	f.seen[eventID] = true
	return true, nil
}

// --- file source ---

type fakeFiles struct {
	file  *MediaFile
	err   error
	calls int
}

var _ FileSource = (*fakeFiles)(nil)

func (f *fakeFiles) Load(context.Context, string) (*MediaFile, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.file, nil
}

// noSleep replaces timed waits in dispatcher tests.
func noSleep(context.Context, time.Duration) error { return nil }
