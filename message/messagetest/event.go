// Package messagetest provides a minimal JSON-encoded security event used by
// the transport tests and the runnable examples. Real deployments register
// their own message implementation instead.
package messagetest

import (
	"encoding/json"
	"fmt"
	"time"

	"alertwire/message"
)

const ContentType = "application/json"

// Event is a small structured security alert.
type Event struct {
	ID       string    `json:"id"`
	CreateAt time.Time `json:"create_at,omitzero"`
	Category string    `json:"category"`
	Severity int       `json:"severity"`
	Detail   string    `json:"detail,omitempty"`
}

func (e *Event) Serialize(contentType string) ([]byte, error) {
	if contentType != ContentType {
		return nil, fmt.Errorf("%w: %s", message.ErrUnsupportedContentType, contentType)
	}
	return json.Marshal(e)
}

// Register installs the JSON event decoder, mapping the ".json" extension to
// it for mailbox scans. Safe to call more than once.
func Register() {
	message.RegisterDecoder(ContentType, message.DecoderFunc(decode), ".json")
}

func decode(body []byte) (message.Message, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
