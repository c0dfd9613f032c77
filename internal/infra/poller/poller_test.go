package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
	"github.com/kai-zer-ru/max-notify-ha/internal/domain/ports"
)

type recorder struct {
	mu      sync.Mutex
	handled []int64
	markers []int64
}

func (r *recorder) handle(p *Poller) HandleFunc {
	return func(_ context.Context, u *model.InboundUpdate) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.handled = append(r.handled, u.UpdateID)
		r.markers = append(r.markers, p.Marker())
	}
}

func batchOf(marker int64, ids ...int64) ports.UpdateBatch {
	b := ports.UpdateBatch{Marker: marker}
	for _, id := range ids {
		b.Updates = append(b.Updates, model.InboundUpdate{
			UpdateID:   id,
			UpdateType: model.UpdateMessageCreated,
			Message:    &model.Message{Body: &model.Body{Text: "x"}},
		})
	}
	return b
}

func TestPoller_MarkerAdoptedBeforeProcessing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	log := zerolog.Nop()

	var p *Poller
	rec := &recorder{}
	calls := 0
	fetch := func(_ context.Context, marker int64, _ time.Duration) (ports.UpdateBatch, error) {
		calls++
		switch calls {
		case 1:
			if marker != 0 {
				t.Errorf("first fetch marker = %d", marker)
			}
			return batchOf(8, 5, 6, 7), nil
		case 2:
			if marker != 8 {
				t.Errorf("second fetch marker = %d, want 8", marker)
			}
			cancel()
			return ports.UpdateBatch{}, ctx.Err()
		}
		return ports.UpdateBatch{}, context.Canceled
	}

	p = New("entry-1", fetch, nil, &log)
	p.handle = rec.handle(p)

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.handled) != 3 || rec.handled[0] != 5 || rec.handled[2] != 7 {
		t.Fatalf("handled = %v", rec.handled)
	}
	// The new marker was visible while the batch was still being processed.
	for _, m := range rec.markers {
		if m != 8 {
			t.Fatalf("marker during processing = %v, want 8", rec.markers)
		}
	}
	if p.State() != StateStopped {
		t.Errorf("state = %q", p.State())
	}
}

func TestPoller_FetchErrorKeepsMarker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	log := zerolog.Nop()

	calls := 0
	fetch := func(_ context.Context, marker int64, _ time.Duration) (ports.UpdateBatch, error) {
		calls++
		switch calls {
		case 1:
			return batchOf(42, 1), nil
		case 2:
			return ports.UpdateBatch{}, errors.New("network down")
		default:
			if marker != 42 {
				t.Errorf("marker after failed fetch = %d, want 42", marker)
			}
			cancel()
			return ports.UpdateBatch{}, ctx.Err()
		}
	}

	p := New("entry-1", fetch, func(context.Context, *model.InboundUpdate) {}, &log)
	p.backoff = time.Millisecond

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls < 3 {
		t.Fatalf("fetch calls = %d, want retry after failure", calls)
	}
}

func TestPoller_AuthFailureAborts(t *testing.T) {
	log := zerolog.Nop()
	fetch := func(context.Context, int64, time.Duration) (ports.UpdateBatch, error) {
		return ports.UpdateBatch{}, domain.ErrAuthentication
	}
	p := New("entry-1", fetch, func(context.Context, *model.InboundUpdate) {}, &log)

	err := p.Run(context.Background())
	if !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("err = %v", err)
	}
	if p.State() != StateStopped {
		t.Errorf("state = %q", p.State())
	}
}

func TestPoller_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	log := zerolog.Nop()

	fetch := func(context.Context, int64, time.Duration) (ports.UpdateBatch, error) {
		return ports.UpdateBatch{}, errors.New("still down")
	}
	p := New("entry-1", fetch, func(context.Context, *model.InboundUpdate) {}, &log)
	p.backoff = time.Hour

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("poller did not stop promptly on cancel")
	}
}
