package domain

import (
	"errors"
	"fmt"
)

var (
	// Resolution errors: bad or ambiguous recipient. Surfaced immediately, never retried.
	ErrEntryNotFound      = errors.New("config entry not found")
	ErrUnknownEntity      = errors.New("unknown notify entity")
	ErrNoRecipient        = errors.New("no chat_id, user_id or entity supplied")
	ErrAmbiguousRecipient = errors.New("both chat_id and user_id supplied")

	ErrUnsupportedMedia = errors.New("unsupported media file type")
	ErrAuthentication   = errors.New("authentication failed")
)

// IsResolution reports whether err belongs to the recipient-resolution class.
func IsResolution(err error) bool {
	return errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrUnknownEntity) ||
		errors.Is(err, ErrNoRecipient) ||
		errors.Is(err, ErrAmbiguousRecipient)
}

// DeliveryError is a send rejected by the MAX platform, or one that kept
// failing after the transient-retry budget was spent. Detail carries the
// platform's response body so the caller sees the real reason.
type DeliveryError struct {
	Status    int
	Detail    string
	Transient bool
}

func (e *DeliveryError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("delivery failed: %s", e.Detail)
	}
	return fmt.Sprintf("delivery failed: status=%d %s", e.Status, e.Detail)
}

// ParseError marks an inbound update this service cannot normalize. Such
// updates are logged and dropped, never emitted and never retried.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse update: " + e.Reason }
