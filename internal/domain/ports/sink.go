package ports

import (
	"context"

	"github.com/kai-zer-ru/max-notify-ha/internal/domain/model"
)

// EventSink publishes one normalized event to the host. The host bus gives
// no acknowledgement beyond the transport result; duplicate suppression is
// the caller's job.
type EventSink interface {
	Emit(ctx context.Context, event *model.NormalizedEvent) error
}
