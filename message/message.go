// Package message defines the capability transports require from domain
// messages: serialization to a MIME content type on the way out, and a
// process-wide decoder registry on the way in. The message object model
// itself lives outside this module; transports only ever see the Message
// interface and raw bytes.
package message

import "errors"

var (
	ErrUnsupportedContentType = errors.New("message: unsupported content type")
	ErrDecodeFailure          = errors.New("message: decode failure")
)

// Message is anything that can serialize itself to a given MIME content type.
type Message interface {
	Serialize(contentType string) ([]byte, error)
}

// Serialized pairs a content type with encoded message bytes. It is the unit
// exchanged over every wire and file boundary.
type Serialized struct {
	ContentType string
	Body        []byte
}

// Decoder turns serialized bytes back into a Message. Implementations must
// not retain body after Decode returns.
type Decoder interface {
	Decode(body []byte) (Message, error)
}

type DecoderFunc func(body []byte) (Message, error)

func (f DecoderFunc) Decode(body []byte) (Message, error) { return f(body) }
