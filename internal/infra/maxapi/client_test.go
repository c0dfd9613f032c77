package maxapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	log := zerolog.Nop()
	return NewClient(srv.URL, srv.Client(), &log), srv
}

func TestClient_GetUpdates(t *testing.T) {
	var gotQuery map[string]string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/updates" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "tok" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Write([]byte(`{"updates":[{"update_id":5,"update_type":"message_created"}],"marker":6}`))
	})
	defer srv.Close()

	batch, err := c.GetUpdates(context.Background(), "tok", 4, 25*time.Second)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if batch.Marker != 6 || len(batch.Updates) != 1 || batch.Updates[0].UpdateID != 5 {
		t.Errorf("batch = %+v", batch)
	}
	if gotQuery["timeout"] != "25" || gotQuery["limit"] != "100" || gotQuery["marker"] != "4" {
		t.Errorf("query = %v", gotQuery)
	}
	if gotQuery["types"] != "message_created,message_callback" {
		t.Errorf("types = %q", gotQuery["types"])
	}
	if gotQuery["v"] != apiVersion {
		t.Errorf("v = %q", gotQuery["v"])
	}
}

func TestClient_GetUpdatesAuthFailure(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	defer srv.Close()

	_, err := c.GetUpdates(context.Background(), "bad", 0, time.Second)
	if !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("err = %v", err)
	}
}

func TestClient_SendMessage(t *testing.T) {
	var gotBody messageBody
	var gotChatID string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotChatID = r.URL.Query().Get("chat_id")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	})
	defer srv.Close()

	msg := ports.MessagePayload{
		Text:   "hi",
		Format: "markdown",
		Keyboard: model.Keyboard{{
			{Type: model.ButtonCallback, Text: "On", Payload: "/on"},
		}},
		Attachment: &ports.MediaAttachment{Kind: "image", Payload: json.RawMessage(`{"token":"x"}`)},
	}
	// chat_id wins even with both ids set.
	if err := c.SendMessage(context.Background(), "tok", -200, 42, msg); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if gotChatID != "-200" {
		t.Errorf("chat_id = %q", gotChatID)
	}
	if gotBody.Text != "hi" || gotBody.Format != "markdown" {
		t.Errorf("body = %+v", gotBody)
	}
	// Media attachment first, keyboard second.
	if len(gotBody.Attachments) != 2 ||
		gotBody.Attachments[0].Type != "image" ||
		gotBody.Attachments[1].Type != "inline_keyboard" {
		t.Errorf("attachments = %+v", gotBody.Attachments)
	}
}

func TestClient_SendMessageErrors(t *testing.T) {
	status := http.StatusBadRequest
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"code":"attachment.not.ready"}`))
	})
	defer srv.Close()

	err := c.SendMessage(context.Background(), "tok", 1, 0, ports.MessagePayload{Text: "x"})
	var derr *domain.DeliveryError
	if !errors.As(err, &derr) || derr.Status != 400 || derr.Transient {
		t.Fatalf("400 err = %v", err)
	}

	status = http.StatusBadGateway
	err = c.SendMessage(context.Background(), "tok", 1, 0, ports.MessagePayload{Text: "x"})
	if !errors.As(err, &derr) || !derr.Transient {
		t.Fatalf("502 err = %v", err)
	}

	if err := c.SendMessage(context.Background(), "tok", 0, 0, ports.MessagePayload{}); !errors.Is(err, domain.ErrNoRecipient) {
		t.Fatalf("no recipient err = %v", err)
	}
}

func TestClient_Subscribe(t *testing.T) {
	var got subscriptionRequest
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		got = subscriptionRequest{}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"success":true}`))
	})
	defer srv.Close()

	if err := c.Subscribe(context.Background(), "tok", "https://ha/api/max_notify/e1", "s3cret"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if got.URL != "https://ha/api/max_notify/e1" || got.Secret != "s3cret" {
		t.Errorf("request = %+v", got)
	}

	// Secrets under 5 chars are not sent at all.
	if err := c.Subscribe(context.Background(), "tok", "https://ha/h", "abc"); err != nil {
		t.Fatal(err)
	}
	if got.Secret != "" {
		t.Errorf("short secret sent: %q", got.Secret)
	}
}

func TestClient_SubscribeReportedFailure(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false}`))
	})
	defer srv.Close()

	if err := c.Subscribe(context.Background(), "tok", "https://ha/h", "s3cret"); err == nil {
		t.Fatal("want error for success=false")
	}
}

func TestClient_ResolveDialogChatID(t *testing.T) {
	page := 0
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		page++
		switch page {
		case 1:
			if r.URL.Query().Get("marker") != "" {
				t.Errorf("first page marker = %q", r.URL.Query().Get("marker"))
			}
			w.Write([]byte(`{"chats":[{"chat_id":1,"dialog_with_user":{"user_id":7}}],"marker":99}`))
		default:
			if r.URL.Query().Get("marker") != "99" {
				t.Errorf("second page marker = %q", r.URL.Query().Get("marker"))
			}
			w.Write([]byte(`{"chats":[{"chat_id":2,"dialog_with_user":{"user_id":42}}]}`))
		}
	})
	defer srv.Close()

	chatID, err := c.ResolveDialogChatID(context.Background(), "tok", 42)
	if err != nil {
		t.Fatalf("ResolveDialogChatID: %v", err)
	}
	if chatID != 2 {
		t.Errorf("chat_id = %d", chatID)
	}

	// Unknown user: 0 without error, callers fall back to user_id.
	page = 0
	chatID, err = c.ResolveDialogChatID(context.Background(), "tok", 1000)
	if err != nil || chatID != 0 {
		t.Errorf("unknown user: chat_id = %d err = %v", chatID, err)
	}
}

func TestClient_UploadFile(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		f, hdr, err := r.FormFile("data")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "cam.jpg" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "image/jpeg" {
			t.Errorf("part content type = %q", ct)
		}
		w.Write([]byte(`{"photos":{"p":{"token":"tkn"}}}`))
	})
	defer srv.Close()

	raw, err := c.UploadFile(context.Background(), "tok", srv.URL+"/upload", "cam.jpg", "image/jpeg", []byte("jpegdata"))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	payload, ok := ExtractAttachmentPayload(raw)
	if !ok {
		t.Fatalf("no payload in %s", raw)
	}
	var obj map[string]string
	json.Unmarshal(payload, &obj)
	if obj["token"] != "tkn" {
		t.Errorf("payload = %s", payload)
	}
}

func TestClient_UploadFileEmptyResponse(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	raw, err := c.UploadFile(context.Background(), "tok", srv.URL, "clip.mp4", "video/mp4", []byte("x"))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if string(raw) != "{}" {
		t.Errorf("raw = %s", raw)
	}
}

func TestExtractAttachmentPayload(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare token", `{"token":"a"}`, `{"token":"a"}`, true},
		{"photos map", `{"photos":{"k":{"token":"b"}}}`, `{"token":"b"}`, true},
		{"files map", `{"files":{"k":{"token":"c"}}}`, `{"token":"c"}`, true},
		{"file object", `{"file":{"token":"d"}}`, `{"token":"d"}`, true},
		{"no token", `{"photos":{"k":{}}}`, "", false},
		{"not json", `nope`, "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractAttachmentPayload(json.RawMessage(tc.in))
			if ok != tc.ok {
				t.Fatalf("ok = %v", ok)
			}
			if ok && string(got) != tc.want {
				t.Errorf("payload = %s, want %s", got, tc.want)
			}
		})
	}
}
