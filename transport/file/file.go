// Package file implements the mailbox transport: every message is one file
// in a shared directory, handed between processes under advisory file locks.
// The filename extension selects the decoder on the receiving side.
package file

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/sys/unix"

	"alertwire/internal/logging"
	"alertwire/message"
	"alertwire/msgqueue"
	"alertwire/telemetry"
	"alertwire/transport"
)

// lockTimeout bounds the poller's wait for a writer to release a file.
const lockTimeout = 30 * time.Second

// putTimeout bounds the wait on a full receive queue; tests shorten it.
var putTimeout = 30 * time.Second

func ptr(v float64) *float64 { return &v }

var specs = map[string]transport.ParamSpec{
	"interval":    {Kind: transport.KindFloat, Min: ptr(1)},
	"delay":       {Kind: transport.KindFloat, Min: ptr(0)},
	"uid":         {Kind: transport.KindInt, Min: ptr(-1)},
	"gid":         {Kind: transport.KindInt, Min: ptr(-1)},
	"permissions": {Kind: transport.KindInt, Min: ptr(0o000), Max: ptr(0o777)},
}

func defaults() map[string]any {
	return map[string]any{
		"interval":    float64(10),
		"delay":       float64(0),
		"uid":         int64(-1),
		"gid":         int64(-1),
		"permissions": int64(0o640),
	}
}

func init() {
	transport.Register("file", func(rawURL string, queue *msgqueue.Queue[message.Message], contentType string) (transport.Transport, error) {
		return New(rawURL, queue, contentType)
	})
}

// Transport is the mailbox backend. One instance owns at most one poller
// goroutine; the queue is caller-owned and shared.
type Transport struct {
	path        string
	contentType string
	params      *transport.Params
	queue       *msgqueue.Queue[message.Message]

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New validates the mailbox location and content type before any resource is
// allocated. The URL path must name an existing directory with read/write
// access.
func New(rawURL string, queue *msgqueue.Queue[message.Message], contentType string) (*Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return nil, fmt.Errorf("%w: want a file:// URL, got %q", transport.ErrInvalidLocation, rawURL)
	}
	path := filepath.FromSlash(u.Path)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a directory", transport.ErrInvalidLocation, path)
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK); err != nil {
		return nil, fmt.Errorf("%w: %q is not readable and writable", transport.ErrInvalidLocation, path)
	}
	if contentType == "" {
		contentType = transport.DefaultContentType
	}
	if !message.Supported(contentType) {
		return nil, fmt.Errorf("%w: %s", message.ErrUnsupportedContentType, contentType)
	}
	return &Transport{
		path:        path,
		contentType: contentType,
		params:      transport.NewParams(specs, defaults()),
		queue:       queue,
	}, nil
}

func (t *Transport) SetParameter(name string, value any) error { return t.params.Set(name, value) }
func (t *Transport) GetParameter(name string) (any, error)     { return t.params.Get(name) }

// SendMessage writes one message file. The file is created exclusively and
// the write happens under an exclusive flock, so a reader can never observe
// a partially written message.
func (t *Transport) SendMessage(m message.Message) error {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return transport.ErrNotStarted
	}

	ext, ok := message.ExtensionByType(t.contentType)
	if !ok {
		return fmt.Errorf("%w: no file extension for %s", transport.ErrDeliveryFailure, t.contentType)
	}
	body, err := m.Serialize(t.contentType)
	if err != nil {
		return fmt.Errorf("%w: serialize: %v", transport.ErrDeliveryFailure, err)
	}

	perm := os.FileMode(t.params.Int("permissions"))
	uid := int(t.params.Int("uid"))
	gid := int(t.params.Int("gid"))

	name := filepath.Join(t.path, strconv.FormatInt(time.Now().UnixNano(), 10)+ext)
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		telemetry.DeliveryFailures.WithLabelValues("file").Inc()
		return fmt.Errorf("%w: %v", transport.ErrDeliveryFailure, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		telemetry.DeliveryFailures.WithLabelValues("file").Inc()
		return fmt.Errorf("%w: lock %s: %v", transport.ErrDeliveryFailure, name, err)
	}
	if err := t.write(f, body, perm, uid, gid); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		telemetry.DeliveryFailures.WithLabelValues("file").Inc()
		return fmt.Errorf("%w: write %s: %v", transport.ErrDeliveryFailure, name, err)
	}
	if err := f.Close(); err != nil {
		telemetry.DeliveryFailures.WithLabelValues("file").Inc()
		return fmt.Errorf("%w: close %s: %v", transport.ErrDeliveryFailure, name, err)
	}
	telemetry.Sent.WithLabelValues("file").Inc()
	return nil
}

func (t *Transport) write(f *os.File, body []byte, perm os.FileMode, uid, gid int) error {
	// O_CREAT honors the umask; re-apply the configured bits explicitly.
	if err := f.Chmod(perm); err != nil {
		return err
	}
	if uid != -1 || gid != -1 {
		if err := f.Chown(uid, gid); err != nil {
			return err
		}
	}
	for len(body) > 0 {
		n, err := f.Write(body)
		if err != nil {
			return err
		}
		body = body[n:]
	}
	return nil
}

// Start launches the poller when a queue was supplied; a send-only instance
// just flips the lifecycle flag.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return transport.ErrAlreadyStarted
	}
	if t.queue != nil {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		t.cancel, t.done = cancel, done
		go t.poll(ctx, done)
	}
	t.started = true
	return nil
}

// Stop cancels the poller and blocks until it has exited, bounded by one
// poll interval plus the handling of any in-flight file.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return transport.ErrNotStarted
	}
	if t.cancel != nil {
		t.cancel()
		<-t.done
		t.cancel, t.done = nil, nil
	}
	t.started = false
	return nil
}

func (t *Transport) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	if !transport.Sleep(ctx, t.params.Duration("delay")) {
		return
	}
	for {
		t.scan(ctx)
		if !transport.Sleep(ctx, t.params.Duration("interval")) {
			return
		}
	}
}

// scan walks the mailbox once, consuming every file whose extension maps to
// a content type with a registered decoder. Anything else is left alone.
func (t *Transport) scan(ctx context.Context) {
	entries, err := os.ReadDir(t.path)
	if err != nil {
		logging.L().Warn("file: list mailbox", "path", t.path, "error", err)
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() {
			continue
		}
		ct, ok := message.TypeByExtension(filepath.Ext(entry.Name()))
		if !ok || !message.Supported(ct) {
			continue
		}
		t.consume(ctx, ct, filepath.Join(t.path, entry.Name()))
	}
}

// consume drains one message file under an exclusive lock, deletes it, then
// decodes and enqueues the result. Every failure is logged and skipped; a
// bad file must never take the poller down.
func (t *Transport) consume(ctx context.Context, contentType, path string) {
	// Opened read/write so an exclusive flock can be taken on systems that
	// require write access for it.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		logging.L().Warn("file: open", "path", path, "error", err)
		return
	}
	if err := lockFile(ctx, int(f.Fd())); err != nil {
		_ = f.Close()
		logging.L().Warn("file: lock", "path", path, "error", err)
		return
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(f); err != nil {
		_ = f.Close()
		logging.L().Warn("file: read", "path", path, "error", err)
		return
	}
	_ = f.Close()
	if err := os.Remove(path); err != nil {
		logging.L().Warn("file: remove", "path", path, "error", err)
		return
	}

	msg, err := message.Deserialize(contentType, buf.B)
	if err != nil {
		// The bytes are already gone from disk at this point; all that is
		// left to do is drop the message.
		logging.L().Warn("file: discard undecodable message", "path", path, "error", err)
		telemetry.Dropped.WithLabelValues("file", "decode").Inc()
		return
	}
	pctx, cancel := context.WithTimeout(ctx, putTimeout)
	defer cancel()
	if err := t.queue.Put(pctx, msg); err != nil {
		logging.L().Warn("file: queue full, dropping message", "path", path, "error", err)
		telemetry.Dropped.WithLabelValues("file", "queue_full").Inc()
		return
	}
	telemetry.Received.WithLabelValues("file").Inc()
}

// lockFile acquires an exclusive flock without blocking the poller
// indefinitely: contended attempts are retried with exponential backoff,
// bounded by lockTimeout and the cancellation token.
func lockFile(ctx context.Context, fd int) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = lockTimeout
	op := func() error {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == unix.EWOULDBLOCK {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
