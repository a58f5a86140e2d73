package kafka

import (
	"context"
	"strings"

	"github.com/IBM/sarama"

	"alertwire/internal/logging"
	"alertwire/message"
	"alertwire/msgqueue"
	"alertwire/telemetry"
)

// groupHandler receives records for one consumer-group session. Per-record
// failures (ambiguous headers, undecodable value, full queue) are logged and
// the record is skipped; they never terminate the session.
type groupHandler struct {
	queue *msgqueue.Queue[message.Message]
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (*groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return nil
		case rec, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handle(sess, rec)
		}
	}
}

func (h *groupHandler) handle(sess sarama.ConsumerGroupSession, rec *sarama.ConsumerMessage) {
	// The record is marked consumed whether it was enqueued or dropped;
	// skipping a bad record must not wedge the partition.
	defer sess.MarkMessage(rec, "")

	ct, ok := contentTypeOf(rec.Headers)
	if !ok {
		logging.L().Warn("kafka: dropping record without exactly one Content-Type header",
			"topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset)
		telemetry.Dropped.WithLabelValues("kafka", "ambiguous_content_type").Inc()
		return
	}
	msg, err := message.Deserialize(ct, rec.Value)
	if err != nil {
		logging.L().Warn("kafka: dropping undecodable record",
			"topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset, "error", err)
		telemetry.Dropped.WithLabelValues("kafka", "decode").Inc()
		return
	}
	ctx, cancel := context.WithTimeout(sess.Context(), putTimeout)
	defer cancel()
	if err := h.queue.Put(ctx, msg); err != nil {
		logging.L().Warn("kafka: queue full, dropping record",
			"topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset)
		telemetry.Dropped.WithLabelValues("kafka", "queue_full").Inc()
		return
	}
	telemetry.Received.WithLabelValues("kafka").Inc()
}

// contentTypeOf returns the record's content type only when exactly one
// Content-Type header is present; zero or several make the record ambiguous.
func contentTypeOf(headers []*sarama.RecordHeader) (string, bool) {
	var ct string
	n := 0
	for _, h := range headers {
		if h != nil && strings.EqualFold(string(h.Key), "content-type") {
			n++
			ct = string(h.Value)
		}
	}
	return ct, n == 1
}
