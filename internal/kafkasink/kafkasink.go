// Package kafkasink implements the "ssw.kafka-trace-sink" component
// class: a concrete sink that serializes decoded CTF messages to JSON
// and publishes them to a Kafka topic. Spec §2/§4.K define the
// Source/Filter/Sink component kinds abstractly but ship no concrete
// sink; this supplies one for downstream analytics consumption.
package kafkasink

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"ssw-trace-core/internal/bretry"
	"ssw-trace-core/internal/bterr"
	"ssw-trace-core/internal/config"
	"ssw-trace-core/internal/ctfiter"
	"ssw-trace-core/internal/medium"
	"ssw-trace-core/internal/metrics"
	"ssw-trace-core/internal/value"
)

// Source is anything a sink can pull decoded messages from: a
// trimmer.Trimmer, a muxer.Muxer, or a bare ctfiter.Iterator.
type Source interface {
	Next() (*ctfiter.Message, medium.Status, error)
}

// Sink drains Source and publishes one Kafka message per trace message.
// Its Run method satisfies internal/graph.Sink.
type Sink struct {
	cfg      config.KafkaSinkConfig
	logger   *logrus.Logger
	producer sarama.AsyncProducer
	breaker  *bretry.Breaker
	src      Source

	done      chan struct{}
	sentCount int64
	errCount  int64
}

// New builds a Sink publishing src's messages to the configured Kafka
// topic. It dials the producer eagerly; a broker that is unreachable at
// startup surfaces as an IO error rather than a later AGAIN.
func New(cfg config.KafkaSinkConfig, src Source, logger *logrus.Logger) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, bterr.New(bterr.KindInvalidArgument, bterr.ActorComponentClass, "kafkasink", "new", "no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, bterr.New(bterr.KindInvalidArgument, bterr.ActorComponentClass, "kafkasink", "new", "no topic configured")
	}

	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	sc.Producer.Partitioner = sarama.NewHashPartitioner

	switch strings.ToLower(cfg.Compression) {
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	default:
		sc.Producer.Compression = sarama.CompressionNone
	}

	if cfg.BatchSize > 0 {
		sc.Producer.Flush.Messages = cfg.BatchSize
	}
	if cfg.BatchTimeout != "" {
		if d, err := time.ParseDuration(cfg.BatchTimeout); err == nil {
			sc.Producer.Flush.Frequency = d
		}
	}
	if cfg.MaxMessageBytes > 0 {
		sc.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}

	if cfg.Auth.Enabled {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = cfg.Auth.Username
		sc.Net.SASL.Password = cfg.Auth.Password
		switch strings.ToUpper(cfg.Auth.Mechanism) {
		case "PLAIN":
			sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case "SCRAM-SHA-256":
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: sha256Generator}
			}
		case "SCRAM-SHA-512":
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &scramClient{HashGeneratorFcn: sha512Generator}
			}
		}
	}

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, bterr.Wrap(err, bterr.KindIO, bterr.ActorComponentClass, "kafkasink", "new", "failed to create producer")
	}

	s := &Sink{
		cfg:      cfg,
		logger:   logger,
		producer: producer,
		breaker:  bretry.NewBreaker(bretry.BreakerConfig{Name: "kafka_sink"}),
		src:      src,
		done:     make(chan struct{}),
	}
	go s.drainResponses()

	logger.WithFields(logrus.Fields{
		"brokers":     cfg.Brokers,
		"topic":       cfg.Topic,
		"compression": cfg.Compression,
	}).Info("kafka sink initialized")

	return s, nil
}

// wireMessage is the JSON wire shape published to Kafka, deliberately
// flatter than ctfiter.Message: downstream consumers don't need the
// Go-side sum-type discriminant machinery.
type wireMessage struct {
	Kind         string `json:"kind"`
	StreamID     uint64 `json:"stream_id"`
	TsNs         int64  `json:"ts_ns,omitempty"`
	EventClassID uint64 `json:"event_class_id,omitempty"`
	EventName    string `json:"event_name,omitempty"`
	Payload      any    `json:"payload,omitempty"`
	DiscardedCount uint64 `json:"discarded_count,omitempty"`
}

func toWire(m *ctfiter.Message) wireMessage {
	w := wireMessage{
		Kind:           m.Kind.String(),
		StreamID:       m.StreamID,
		TsNs:           m.TsNs,
		EventClassID:   m.EventClassID,
		EventName:      m.EventName,
		DiscardedCount: m.DiscardedCount,
	}
	if m.Payload != nil {
		w.Payload = toJSON(m.Payload)
	}
	return w
}

func toJSON(v *value.Value) any {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		return v.AsBool()
	case value.KindS64:
		return v.AsS64()
	case value.KindU64:
		return v.AsU64()
	case value.KindF64:
		return v.AsF64()
	case value.KindString:
		return v.AsString()
	case value.KindArray:
		out := make([]any, 0, len(v.AsArray()))
		for _, e := range v.AsArray() {
			out = append(out, toJSON(e))
		}
		return out
	case value.KindMap:
		out := make(map[string]any, len(v.Keys()))
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			out[k] = toJSON(e)
		}
		return out
	default:
		return nil
	}
}

// Run pulls one message from src and hands it to the Kafka producer,
// satisfying internal/graph.Sink. A producer send is never retried here;
// the circuit breaker governs whether sends are attempted at all.
func (s *Sink) Run() (medium.Status, error) {
	msg, status, err := s.src.Next()
	if status != medium.StatusOk {
		return status, err
	}

	start := time.Now()
	payload, mErr := json.Marshal(toWire(msg))
	if mErr != nil {
		metrics.KafkaProducerErrorsTotal.WithLabelValues(s.cfg.Topic, "marshal_error").Inc()
		return medium.StatusError, bterr.Wrap(mErr, bterr.KindInvalidState, bterr.ActorComponentClass, "kafkasink", "run", "failed to marshal message")
	}

	sendErr := s.breaker.Do(func() error {
		s.producer.Input() <- &sarama.ProducerMessage{
			Topic: s.cfg.Topic,
			Key:   sarama.StringEncoder(fmt.Sprintf("%d", msg.StreamID)),
			Value: sarama.ByteEncoder(payload),
		}
		return nil
	})
	metrics.KafkaBatchSendDuration.Observe(time.Since(start).Seconds())
	if sendErr != nil {
		metrics.KafkaProducerErrorsTotal.WithLabelValues(s.cfg.Topic, "breaker_open").Inc()
		atomic.AddInt64(&s.errCount, 1)
		return medium.StatusAgain, nil
	}

	atomic.AddInt64(&s.sentCount, 1)
	metrics.KafkaMessagesProducedTotal.WithLabelValues(s.cfg.Topic, "queued").Inc()
	return medium.StatusOk, nil
}

func (s *Sink) drainResponses() {
	for {
		select {
		case <-s.done:
			return
		case success, ok := <-s.producer.Successes():
			if !ok {
				return
			}
			s.breaker.RecordSuccess()
			metrics.KafkaMessagesProducedTotal.WithLabelValues(success.Topic, "delivered").Inc()
		case perr, ok := <-s.producer.Errors():
			if !ok {
				return
			}
			s.breaker.RecordFailure()
			s.logger.WithError(perr.Err).Warn("kafka sink: producer error")
			metrics.KafkaProducerErrorsTotal.WithLabelValues(perr.Msg.Topic, "produce_error").Inc()
		}
		metrics.KafkaCircuitBreakerState.Set(breakerStateValue(s.breaker.State()))
	}
}

func breakerStateValue(st bretry.State) float64 {
	switch st {
	case bretry.Closed:
		return 0
	case bretry.HalfOpen:
		return 1
	case bretry.Open:
		return 2
	default:
		return -1
	}
}

// Finalize stops the response-draining goroutine and closes the
// producer. Satisfies internal/graph.Finalizer, so Graph.Run calls it on
// every exit path once this Sink is registered via Graph.SetSink,
// instead of requiring a caller-side defer.
func (s *Sink) Finalize() error {
	close(s.done)
	return s.producer.Close()
}

// Query implements internal/query.ComponentClass, answering the
// "kafka-sink-stats" object with running send/error counters.
func (s *Sink) Query(objectName string, params *value.Value) (*value.Value, error) {
	if objectName != "kafka-sink-stats" {
		return nil, bterr.New(bterr.KindNotFound, bterr.ActorComponentClass, "kafkasink", "query",
			fmt.Sprintf("unknown query object %q", objectName))
	}
	out := value.Map()
	out.Insert("sent_total", value.S64(atomic.LoadInt64(&s.sentCount)))
	out.Insert("error_total", value.S64(atomic.LoadInt64(&s.errCount)))
	out.Insert("topic", value.String(s.cfg.Topic))
	out.Freeze()
	return out, nil
}
