package http

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"alertwire/internal/logging"
	"alertwire/message"
	"alertwire/msgqueue"
	"alertwire/telemetry"
)

const (
	// Requests at or above this size are rejected outright.
	maxContentLength = 655360

	// Content type assumed for parts that do not declare one.
	defaultPartType = "text/plain"
)

// handler implements the single POST / endpoint. The admission protocol is
// strictly sequenced: validate the framing, decode every part, and only then
// touch the queue. All N decoded messages are admitted in one critical
// section or the whole request is rejected; a multi-message request is never
// partially accepted.
type handler struct {
	queue *msgqueue.Queue[message.Message]
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if p := recover(); p != nil {
			logging.L().Error("http: handler panic", "panic", p)
			fail(w, http.StatusInternalServerError)
		}
	}()

	if r.Method != http.MethodPost {
		fail(w, http.StatusNotImplemented)
		return
	}
	if r.URL.Path != "/" {
		fail(w, http.StatusForbidden)
		return
	}

	length, status := contentLength(r)
	if status != 0 {
		fail(w, status)
		return
	}

	parts, err := readParts(r.Header.Get("Content-Type"), io.LimitReader(r.Body, length))
	if err != nil {
		fail(w, http.StatusUnsupportedMediaType)
		return
	}
	msgs := make([]message.Message, 0, len(parts))
	for _, p := range parts {
		m, err := message.Deserialize(p.ContentType, p.Body)
		if err != nil {
			// One bad part poisons the whole request, before the queue is
			// touched.
			telemetry.Dropped.WithLabelValues("http", "decode").Inc()
			fail(w, http.StatusUnsupportedMediaType)
			return
		}
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		fail(w, http.StatusUnprocessableEntity)
		return
	}

	if !h.queue.TryEnqueueAll(msgs...) {
		telemetry.Dropped.WithLabelValues("http", "queue_full").Inc()
		fail(w, http.StatusServiceUnavailable)
		return
	}
	telemetry.Received.WithLabelValues("http").Add(float64(len(msgs)))
	w.WriteHeader(http.StatusNoContent)
}

// contentLength enforces the framing rules: a declared length is mandatory
// (411), must be numeric (400) and must fall under the ceiling (413).
// It returns (length, 0) on success.
func contentLength(r *http.Request) (int64, int) {
	raw := r.Header.Get("Content-Length")
	if raw == "" && r.ContentLength > 0 {
		raw = strconv.FormatInt(r.ContentLength, 10)
	}
	if raw == "" {
		return 0, http.StatusLengthRequired
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, http.StatusBadRequest
	}
	if n >= maxContentLength {
		return 0, http.StatusRequestEntityTooLarge
	}
	return n, 0
}

// readParts splits the request body into serialized messages: a multipart
// entity contributes one per part, anything else is a single part typed by
// the request's own Content-Type header.
func readParts(contentType string, body io.Reader) ([]message.Serialized, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = defaultPartType
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, errors.New("multipart body without boundary")
		}
		var parts []message.Serialized
		mr := multipart.NewReader(body, boundary)
		for {
			p, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return parts, nil
			}
			if err != nil {
				return nil, err
			}
			data, err := io.ReadAll(p)
			if err != nil {
				return nil, err
			}
			parts = append(parts, message.Serialized{ContentType: partType(p), Body: data})
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	return []message.Serialized{{ContentType: mediaType, Body: data}}, nil
}

func partType(p *multipart.Part) string {
	ct := p.Header.Get("Content-Type")
	if ct == "" {
		return defaultPartType
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}

func fail(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}
