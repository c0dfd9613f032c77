package model

// Button kinds understood by the MAX inline keyboard.
const (
	ButtonCallback = "callback"
	ButtonMessage  = "message"
)

// Button is one inline-keyboard button. Payload is only meaningful for
// callback buttons and is echoed back in message_callback updates.
type Button struct {
	Type    string `yaml:"type" json:"type"`
	Text    string `yaml:"text" json:"text"`
	Payload string `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Keyboard is an ordered grid of buttons: rows of buttons, top to bottom.
// An empty keyboard is valid and means "no keyboard".
type Keyboard [][]Button

func (k Keyboard) Empty() bool {
	for _, row := range k {
		if len(row) > 0 {
			return false
		}
	}
	return true
}

// Normalize returns the keyboard in the shape the MAX API accepts: unknown
// button types fall back to callback, empty-label buttons and empty rows are
// dropped, payload is kept only on callback buttons.
func (k Keyboard) Normalize() Keyboard {
	if len(k) == 0 {
		return nil
	}
	out := make(Keyboard, 0, len(k))
	for _, row := range k {
		nr := make([]Button, 0, len(row))
		for _, b := range row {
			if b.Text == "" {
				continue
			}
			kind := b.Type
			if kind != ButtonCallback && kind != ButtonMessage {
				kind = ButtonCallback
			}
			nb := Button{Type: kind, Text: b.Text}
			if kind == ButtonCallback {
				nb.Payload = b.Payload
			}
			nr = append(nr, nb)
		}
		if len(nr) > 0 {
			out = append(out, nr)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
