package trigger

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

type Event struct {
	EventID   string
	EventType string
	// Data is the base64 encoded message body; empty when the trigger
	// carried no payload.
	Data string
}

func (e Event) HasData() bool {
	return e.Data != ""
}

// DecodeData returns the message body as text.
func (e Event) DecodeData() (string, error) {
	raw, err := base64.StdEncoding.DecodeString(e.Data)
	if err != nil {
		return "", fmt.Errorf("error decoding message data: %w", err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("message data is not valid utf-8")
	}
	return string(raw), nil
}
