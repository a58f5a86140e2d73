// Package kafka implements the Kafka transport: a synchronous producer
// publishing to one topic and an optional consumer-group loop draining one
// or more topics into the receive queue. Content types travel as a record
// header, and a record is only accepted when exactly one such header is
// present.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"alertwire/internal/logging"
	"alertwire/message"
	"alertwire/msgqueue"
	"alertwire/telemetry"
	"alertwire/transport"
)

// flushTimeout bounds the synchronous produce before SendMessage gives up.
const flushTimeout = 60 * time.Second

// putTimeout bounds the wait on a full receive queue; tests shorten it.
var putTimeout = 30 * time.Second

func ptr(v float64) *float64 { return &v }

var specs = map[string]transport.ParamSpec{
	"my_cert":         {Kind: transport.KindString},
	"my_key":          {Kind: transport.KindString},
	"ca_cert":         {Kind: transport.KindString},
	"group_id":        {Kind: transport.KindString},
	"client_id":       {Kind: transport.KindString},
	"consumer_topics": {Kind: transport.KindString},
	"producer_topic":  {Kind: transport.KindString},
	"interval":        {Kind: transport.KindFloat, Min: ptr(1)},
}

func defaults() map[string]any {
	return map[string]any{
		"my_cert":         "",
		"my_key":          "",
		"ca_cert":         "",
		"group_id":        "",
		"client_id":       "",
		"consumer_topics": "alerts",
		"producer_topic":  "alerts",
		"interval":        float64(5),
	}
}

func init() {
	transport.Register("kafka", func(rawURL string, queue *msgqueue.Queue[message.Message], contentType string) (transport.Transport, error) {
		return New(rawURL, queue, contentType)
	})
}

// Transport is the Kafka backend. One instance owns at most one consume
// goroutine plus the sarama client handles created at Start.
type Transport struct {
	bootstrap   []string
	contentType string
	params      *transport.Params
	queue       *msgqueue.Queue[message.Message]

	mu       sync.Mutex
	started  bool
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	cancel   context.CancelFunc
	done     chan struct{}
}

// New validates the bootstrap server list and content type; brokers are not
// contacted until Start.
func New(rawURL string, queue *msgqueue.Queue[message.Message], contentType string) (*Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "kafka" {
		return nil, fmt.Errorf("%w: want a kafka:// URL, got %q", transport.ErrInvalidLocation, rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: no bootstrap servers in %q", transport.ErrInvalidLocation, rawURL)
	}
	if contentType == "" {
		contentType = transport.DefaultContentType
	}
	if !message.Supported(contentType) {
		return nil, fmt.Errorf("%w: %s", message.ErrUnsupportedContentType, contentType)
	}
	return &Transport{
		bootstrap:   strings.Split(u.Host, ","),
		contentType: contentType,
		params:      transport.NewParams(specs, defaults()),
		queue:       queue,
	}, nil
}

func (t *Transport) SetParameter(name string, value any) error { return t.params.Set(name, value) }
func (t *Transport) GetParameter(name string) (any, error)     { return t.params.Get(name) }

// SendMessage publishes the serialized body to the producer topic with a
// single Content-Type header and waits for the broker ack, bounded by the
// producer timeout.
func (t *Transport) SendMessage(m message.Message) error {
	t.mu.Lock()
	started, producer := t.started, t.producer
	t.mu.Unlock()
	if !started {
		return transport.ErrNotStarted
	}
	if producer == nil {
		return fmt.Errorf("%w: no producer topic configured", transport.ErrDeliveryFailure)
	}

	body, err := m.Serialize(t.contentType)
	if err != nil {
		return fmt.Errorf("%w: serialize: %v", transport.ErrDeliveryFailure, err)
	}
	_, _, err = producer.SendMessage(&sarama.ProducerMessage{
		Topic: t.params.Str("producer_topic"),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("Content-Type"), Value: []byte(t.contentType)},
		},
	})
	if err != nil {
		telemetry.DeliveryFailures.WithLabelValues("kafka").Inc()
		return fmt.Errorf("%w: %v", transport.ErrDeliveryFailure, err)
	}
	telemetry.Sent.WithLabelValues("kafka").Inc()
	return nil
}

// Start establishes the producer and/or the consumer group. At least one of
// the two must be configured, and any creation failure tears down whatever
// was already built.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return transport.ErrAlreadyStarted
	}

	cfg, err := t.saramaConfig()
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrStartFailure, err)
	}

	var producer sarama.SyncProducer
	if t.params.Str("producer_topic") != "" {
		if producer, err = sarama.NewSyncProducer(t.bootstrap, cfg); err != nil {
			return fmt.Errorf("%w: producer: %v", transport.ErrStartFailure, err)
		}
	}

	var group sarama.ConsumerGroup
	topics := splitTopics(t.params.Str("consumer_topics"))
	if t.queue != nil && len(topics) > 0 {
		groupID := t.params.Str("group_id")
		if groupID == "" {
			groupID = "alertwire-" + uuid.NewString()
		}
		if group, err = sarama.NewConsumerGroup(t.bootstrap, groupID, cfg); err != nil {
			if producer != nil {
				_ = producer.Close()
			}
			return fmt.Errorf("%w: consumer group: %v", transport.ErrStartFailure, err)
		}
	}

	if producer == nil && group == nil {
		return fmt.Errorf("%w: neither producer_topic nor consumer_topics configured", transport.ErrStartFailure)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.producer, t.group, t.cancel = producer, group, cancel
	if group != nil {
		t.done = make(chan struct{})
		go t.consume(ctx, group, topics, t.done)
	}
	t.started = true
	return nil
}

func (t *Transport) saramaConfig() (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	if id := t.params.Str("client_id"); id != "" {
		cfg.ClientID = id
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Timeout = flushTimeout
	tlsCfg, err := transport.BuildTLSConfig(
		t.params.Str("ca_cert"), t.params.Str("my_cert"), t.params.Str("my_key"))
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		cfg.Net.TLS.Enable = true
		cfg.Net.TLS.Config = tlsCfg
	}
	return cfg, nil
}

// Stop signals shutdown, closes the producer first (bounded drain), then
// joins the consume goroutine. The ordering deliberately leaves the consumer
// a little extra time to observe the signal between polls.
func (t *Transport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return transport.ErrNotStarted
	}
	t.cancel()
	if t.producer != nil {
		_ = t.producer.Close()
		t.producer = nil
	}
	if t.done != nil {
		<-t.done
		t.done = nil
	}
	if t.group != nil {
		_ = t.group.Close()
		t.group = nil
	}
	t.cancel = nil
	t.started = false
	return nil
}

// consume re-enters the consumer-group session until cancelled, re-reading
// the topic list and interval between entries so parameter changes take
// effect on the next iteration.
func (t *Transport) consume(ctx context.Context, group sarama.ConsumerGroup, topics []string, done chan struct{}) {
	defer close(done)
	h := &groupHandler{queue: t.queue}
	for {
		if err := group.Consume(ctx, topics, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			logging.L().Error("kafka: consume", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
		if !transport.Sleep(ctx, t.params.Duration("interval")) {
			return
		}
		if fresh := splitTopics(t.params.Str("consumer_topics")); len(fresh) > 0 {
			topics = fresh
		}
	}
}

func splitTopics(s string) []string {
	var out []string
	for _, topic := range strings.Split(s, ",") {
		if topic = strings.TrimSpace(topic); topic != "" {
			out = append(out, topic)
		}
	}
	return out
}
