package message

import (
	"fmt"
	"mime"
	"strings"

	cmap "github.com/orcaman/concurrent-map/v2"
)

var (
	decoders  = cmap.New[Decoder]()
	extByType = cmap.New[string]()
	typeByExt = cmap.New[string]()
)

// RegisterDecoder makes d available for the given content type, optionally
// binding filename extensions (".json") to it for directory scans. Decoders
// are registered during process initialization, typically from an init
// function or main; a later registration for the same content type replaces
// the earlier one. The first extension becomes the type's preferred one.
func RegisterDecoder(contentType string, d Decoder, extensions ...string) {
	if contentType == "" || d == nil {
		panic("message: RegisterDecoder with empty content type or nil decoder")
	}
	ct := canonical(contentType)
	decoders.Set(ct, d)
	for i, ext := range extensions {
		ext = normalizeExt(ext)
		typeByExt.Set(ext, ct)
		if i == 0 {
			extByType.Set(ct, ext)
		}
	}
}

// Supported reports whether a decoder is registered for contentType.
func Supported(contentType string) bool {
	return decoders.Has(canonical(contentType))
}

// Deserialize decodes body using the decoder registered for contentType.
func Deserialize(contentType string, body []byte) (Message, error) {
	d, ok := decoders.Get(canonical(contentType))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
	}
	m, err := d.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, contentType, err)
	}
	return m, nil
}

// ExtensionByType returns the preferred filename extension for a content
// type, consulting registered extensions first and the system MIME table as
// a fallback.
func ExtensionByType(contentType string) (string, bool) {
	ct := canonical(contentType)
	if ext, ok := extByType.Get(ct); ok {
		return ext, true
	}
	if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
		return exts[0], true
	}
	return "", false
}

// TypeByExtension is the inverse of ExtensionByType.
func TypeByExtension(ext string) (string, bool) {
	ext = normalizeExt(ext)
	if ext == "" {
		return "", false
	}
	if ct, ok := typeByExt.Get(ext); ok {
		return ct, true
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return canonical(ct), true
	}
	return "", false
}

// canonical strips parameters and normalizes case, so "Application/JSON;
// charset=utf-8" and "application/json" address the same registry slot.
func canonical(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
