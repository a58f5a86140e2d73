package message

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type textMessage struct{ body string }

func (m *textMessage) Serialize(contentType string) ([]byte, error) {
	return []byte(m.body), nil
}

func textDecoder(body []byte) (Message, error) {
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	return &textMessage{body: string(body)}, nil
}

func TestRegistry_DecodeDispatch(t *testing.T) {
	RegisterDecoder("application/x-reg-test", DecoderFunc(textDecoder), ".regtest")

	require.True(t, Supported("application/x-reg-test"))
	require.True(t, Supported("Application/X-Reg-Test; charset=utf-8"))

	m, err := Deserialize("application/x-reg-test", []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, &textMessage{body: "hello"}, m)
}

func TestRegistry_UnsupportedContentType(t *testing.T) {
	_, err := Deserialize("application/x-nobody-registered-this", []byte("x"))
	require.ErrorIs(t, err, ErrUnsupportedContentType)
	require.False(t, Supported("application/x-nobody-registered-this"))
}

func TestRegistry_DecodeFailure(t *testing.T) {
	RegisterDecoder("application/x-reg-fail", DecoderFunc(textDecoder))
	_, err := Deserialize("application/x-reg-fail", nil)
	require.ErrorIs(t, err, ErrDecodeFailure)
}

func TestRegistry_ExtensionMapping(t *testing.T) {
	RegisterDecoder("application/x-reg-ext", DecoderFunc(textDecoder), ".rege", ".regalt")

	ext, ok := ExtensionByType("application/x-reg-ext")
	require.True(t, ok)
	require.Equal(t, ".rege", ext)

	ct, ok := TypeByExtension(".regalt")
	require.True(t, ok)
	require.Equal(t, "application/x-reg-ext", ct)

	// Extensions normalize to a lowercase dotted form.
	ct, ok = TypeByExtension("REGE")
	require.True(t, ok)
	require.Equal(t, "application/x-reg-ext", ct)
}

func TestRegistry_ExtensionFallsBackToMIMETable(t *testing.T) {
	// Nothing registered for text/html; the system MIME table still knows it.
	ct, ok := TypeByExtension(".html")
	require.True(t, ok)
	require.Equal(t, "text/html", ct)
}

func TestRegistry_UnknownExtension(t *testing.T) {
	_, ok := TypeByExtension(".no-such-extension-anywhere")
	require.False(t, ok)
	_, ok = TypeByExtension("")
	require.False(t, ok)
}

func TestRegisterDecoder_PanicsOnBadArgs(t *testing.T) {
	require.Panics(t, func() { RegisterDecoder("", DecoderFunc(textDecoder)) })
	require.Panics(t, func() { RegisterDecoder("application/x-p", nil) })
}
