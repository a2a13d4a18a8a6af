package sink

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/rowforge/rowforge/internal/schema"
)

// Publisher sends messages to a topic. *kafka.Writer implements it.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TableDataMessage is the JSON value published for each row.
type TableDataMessage struct {
	TableName string     `json:"tableName"`
	Schema    string     `json:"schema"`
	Data      schema.Row `json:"data"`
}

// Topic publishes one message per row, keyed schema.table.<seq>.
type Topic struct {
	topic   string
	jsonKey bool
	pub     Publisher
}

// NewTopic creates a topic sink backed by a kafka-go writer.
func NewTopic(t TopicTarget, logger *slog.Logger) (*Topic, error) {
	if t.Topic == "" {
		return nil, fmt.Errorf("topic sink requires a topic name")
	}
	brokers := t.Brokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  t.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	if err := applyProperties(w, t.Properties, logger); err != nil {
		return nil, err
	}
	return NewTopicWithPublisher(t, w)
}

// NewTopicWithPublisher creates a topic sink over an existing publisher.
func NewTopicWithPublisher(t TopicTarget, pub Publisher) (*Topic, error) {
	key, err := serializer(t.KeySerializer, "string", "json")
	if err != nil {
		return nil, fmt.Errorf("key serializer: %w", err)
	}
	if _, err := serializer(t.ValueSerializer, "json"); err != nil {
		return nil, fmt.Errorf("value serializer: %w", err)
	}
	return &Topic{topic: t.Topic, jsonKey: key == "json", pub: pub}, nil
}

func (s *Topic) Name() string { return "topic" }

// Write publishes rows in order. The batch fails as a whole if any message fails.
func (s *Topic) Write(ctx context.Context, table *schema.Table, rows []schema.Row) (Result, error) {
	name := table.QualifiedName()
	if len(rows) == 0 {
		return Result{}, nil
	}

	msgs := make([]kafka.Message, len(rows))
	for i, row := range rows {
		value, err := json.Marshal(TableDataMessage{TableName: table.Name, Schema: table.Schema, Data: row})
		if err != nil {
			return Result{}, &Error{Kind: KindWrite, Sink: s.Name(), Table: name, Err: fmt.Errorf("encoding row %d: %w", i, err)}
		}
		key := []byte(fmt.Sprintf("%s.%s.%d", table.Schema, table.Name, i))
		if s.jsonKey {
			key, _ = json.Marshal(string(key))
		}
		msgs[i] = kafka.Message{
			Key:   key,
			Value: value,
			Headers: []kafka.Header{
				{Key: "table", Value: []byte(name)},
			},
		}
	}

	if err := s.pub.WriteMessages(ctx, msgs...); err != nil {
		return Result{}, &Error{Kind: KindWrite, Sink: s.Name(), Table: name, Err: fmt.Errorf("publishing to %s: %w", s.topic, err)}
	}
	return Result{Rows: len(rows)}, nil
}

func (s *Topic) Close() error {
	return s.pub.Close()
}

// serializer maps a configured serializer, including Kafka client class names
// such as org.apache.kafka.common.serialization.StringSerializer, to one of allowed.
func serializer(name string, allowed ...string) (string, error) {
	n := strings.ToLower(name)
	switch {
	case n == "":
		return allowed[0], nil
	case strings.HasSuffix(n, "stringserializer"):
		n = "string"
	case strings.HasSuffix(n, "jsonserializer"):
		n = "json"
	}
	for _, a := range allowed {
		if n == a {
			return n, nil
		}
	}
	return "", fmt.Errorf("unsupported serializer %q (expected %s)", name, strings.Join(allowed, " or "))
}

// applyProperties maps Kafka producer properties onto the writer.
func applyProperties(w *kafka.Writer, props map[string]string, logger *slog.Logger) error {
	transport := &kafka.Transport{}
	custom := false

	var mechanism, user, pass string
	for k, v := range props {
		switch k {
		case "acks":
			switch v {
			case "all", "-1":
				w.RequiredAcks = kafka.RequireAll
			case "1":
				w.RequiredAcks = kafka.RequireOne
			case "0":
				w.RequiredAcks = kafka.RequireNone
			default:
				return fmt.Errorf("invalid acks %q", v)
			}
		case "compression.type":
			switch v {
			case "gzip":
				w.Compression = kafka.Gzip
			case "snappy":
				w.Compression = kafka.Snappy
			case "lz4":
				w.Compression = kafka.Lz4
			case "zstd":
				w.Compression = kafka.Zstd
			case "none":
			default:
				return fmt.Errorf("invalid compression.type %q", v)
			}
		case "batch.size":
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid batch.size %q: %w", v, err)
			}
			w.BatchSize = n
		case "linger.ms":
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid linger.ms %q: %w", v, err)
			}
			w.BatchTimeout = time.Duration(n) * time.Millisecond
		case "retries":
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid retries %q: %w", v, err)
			}
			w.MaxAttempts = n + 1
		case "client.id":
			transport.ClientID = v
			custom = true
		case "security.protocol":
			switch strings.ToUpper(v) {
			case "SSL", "SASL_SSL":
				transport.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
				custom = true
			case "PLAINTEXT", "SASL_PLAINTEXT":
			default:
				return fmt.Errorf("invalid security.protocol %q", v)
			}
		case "sasl.mechanism":
			mechanism = strings.ToUpper(v)
		case "sasl.username":
			user = v
		case "sasl.password":
			pass = v
		default:
			logger.Warn("ignoring unsupported topic property", "property", k)
		}
	}

	if mechanism != "" {
		m, err := saslMechanism(mechanism, user, pass)
		if err != nil {
			return err
		}
		transport.SASL = m
		custom = true
	}
	if custom {
		w.Transport = transport
	}
	return nil
}

func saslMechanism(name, user, pass string) (sasl.Mechanism, error) {
	switch name {
	case "PLAIN":
		return plain.Mechanism{Username: user, Password: pass}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, user, pass)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, user, pass)
	default:
		return nil, fmt.Errorf("unsupported sasl.mechanism %q", name)
	}
}
