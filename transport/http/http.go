// Package http implements the HTTP transport: an outbound POST client for
// sending and, when a receive queue is supplied, an embedded listener
// accepting batched messages on a single endpoint with all-or-nothing
// admission semantics.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"alertwire/message"
	"alertwire/msgqueue"
	"alertwire/telemetry"
	"alertwire/transport"
)

const shutdownTimeout = 5 * time.Second

func ptr(v float64) *float64 { return &v }

var specs = map[string]transport.ParamSpec{
	"my_cert": {Kind: transport.KindString},
	"my_key":  {Kind: transport.KindString},
	"ca_cert": {Kind: transport.KindString},
	"timeout": {Kind: transport.KindFloat, Min: ptr(0)},
	"retries": {Kind: transport.KindInt, Min: ptr(0), Max: ptr(10)},
	// Actual bound address of the embedded listener, maintained by the
	// backend while started. Lets callers bind port 0 and discover the port.
	"server_address": {Kind: transport.KindString, ReadOnly: true},
}

func defaults() map[string]any {
	return map[string]any{
		"my_cert":        "",
		"my_key":         "",
		"ca_cert":        "",
		"timeout":        float64(30),
		"retries":        int64(0),
		"server_address": "",
	}
}

func init() {
	factory := func(rawURL string, queue *msgqueue.Queue[message.Message], contentType string) (transport.Transport, error) {
		return New(rawURL, queue, contentType)
	}
	transport.Register("http", factory)
	transport.Register("https", factory)
}

// Transport is the HTTP backend. Sending is connectionless (one POST per
// message); receiving runs an embedded net/http server whose handler
// enforces the atomic batch admission protocol.
type Transport struct {
	rawURL      string
	u           *url.URL
	contentType string
	params      *transport.Params
	queue       *msgqueue.Queue[message.Message]

	mu      sync.Mutex
	started bool
	server  *http.Server
	done    chan struct{}
}

// New validates the URL before any resource is allocated: the scheme must be
// http or https and a hostname must be present.
func New(rawURL string, queue *msgqueue.Queue[message.Message], contentType string) (*Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: want an http:// or https:// URL, got %q", transport.ErrInvalidLocation, rawURL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: no hostname in %q", transport.ErrInvalidLocation, rawURL)
	}
	if contentType == "" {
		contentType = transport.DefaultContentType
	}
	if !message.Supported(contentType) {
		return nil, fmt.Errorf("%w: %s", message.ErrUnsupportedContentType, contentType)
	}
	return &Transport{
		rawURL:      rawURL,
		u:           u,
		contentType: contentType,
		params:      transport.NewParams(specs, defaults()),
		queue:       queue,
	}, nil
}

func (t *Transport) SetParameter(name string, value any) error { return t.params.Set(name, value) }
func (t *Transport) GetParameter(name string) (any, error)     { return t.params.Get(name) }

// SendMessage POSTs the serialized body to the configured URL. TLS material
// is read from the cert parameters per request, so a parameter change
// applies to the next send. Any transport error or non-2xx status is a
// delivery failure.
func (t *Transport) SendMessage(m message.Message) error {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return transport.ErrNotStarted
	}

	body, err := m.Serialize(t.contentType)
	if err != nil {
		return fmt.Errorf("%w: serialize: %v", transport.ErrDeliveryFailure, err)
	}
	client, err := t.client()
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrDeliveryFailure, err)
	}

	attempt := func() error {
		resp, err := client.Post(t.rawURL, t.contentType, bytes.NewReader(body))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 300 {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}
		return nil
	}
	if retries := t.params.Int("retries"); retries > 0 {
		err = backoff.Retry(attempt, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)))
	} else {
		err = attempt()
	}
	if err != nil {
		telemetry.DeliveryFailures.WithLabelValues("http").Inc()
		return fmt.Errorf("%w: %v", transport.ErrDeliveryFailure, err)
	}
	telemetry.Sent.WithLabelValues("http").Inc()
	return nil
}

func (t *Transport) client() (*http.Client, error) {
	tlsCfg, err := transport.BuildTLSConfig(
		t.params.Str("ca_cert"), t.params.Str("my_cert"), t.params.Str("my_key"))
	if err != nil {
		return nil, err
	}
	c := &http.Client{Timeout: t.params.Duration("timeout")}
	if tlsCfg != nil {
		c.Transport = &http.Transport{TLSClientConfig: tlsCfg}
	}
	return c, nil
}

// Start binds the embedded listener when a receive queue was supplied; a
// send-only instance allocates nothing.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return transport.ErrAlreadyStarted
	}
	if t.queue != nil {
		if err := t.listen(); err != nil {
			return err
		}
	}
	t.started = true
	return nil
}

func (t *Transport) listen() error {
	port := t.u.Port()
	if port == "" {
		p, err := net.LookupPort("tcp", t.u.Scheme)
		if err != nil {
			return fmt.Errorf("%w: no port for scheme %s: %v", transport.ErrStartFailure, t.u.Scheme, err)
		}
		port = strconv.Itoa(p)
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(t.u.Hostname(), port))
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrStartFailure, err)
	}
	if t.u.Scheme == "https" {
		cfg, err := t.serverTLS()
		if err != nil {
			_ = ln.Close()
			return err
		}
		ln = tls.NewListener(ln, cfg)
	}

	t.params.Store("server_address", ln.Addr().String())
	t.server = &http.Server{Handler: &handler{queue: t.queue}}
	t.done = make(chan struct{})
	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		_ = srv.Serve(ln)
	}(t.server, t.done)
	return nil
}

// serverTLS builds the listener config: my_cert/my_key are mandatory for
// https, ca_cert additionally demands verified client certificates.
func (t *Transport) serverTLS() (*tls.Config, error) {
	myCert, myKey := t.params.Str("my_cert"), t.params.Str("my_key")
	if myCert == "" || myKey == "" {
		return nil, fmt.Errorf("%w: https serving requires my_cert and my_key", transport.ErrStartFailure)
	}
	cert, err := tls.LoadX509KeyPair(myCert, myKey)
	if err != nil {
		return nil, fmt.Errorf("%w: load server keypair: %v", transport.ErrStartFailure, err)
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	if caCert := t.params.Str("ca_cert"); caCert != "" {
		clientCfg, err := transport.BuildTLSConfig(caCert, "", "")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", transport.ErrStartFailure, err)
		}
		cfg.ClientCAs = clientCfg.RootCAs
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// Stop shuts the listener down gracefully (bounded) and joins the serve
// goroutine before returning.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return transport.ErrNotStarted
	}
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = t.server.Shutdown(ctx)
		cancel()
		_ = t.server.Close()
		<-t.done
		t.server, t.done = nil, nil
		t.params.Store("server_address", "")
	}
	t.started = false
	return nil
}
