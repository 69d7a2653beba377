package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

const kafkaRebalanceDelay = time.Second

// KafkaOptions, KafkaTransport ayarları.
type KafkaOptions struct {
	Brokers []string
	// GroupID her gateway instance'ı için benzersiz olmalı; aksi halde
	// partition'lar instance'lar arasında paylaşılır ve fan-out bozulur.
	GroupID string
}

// KafkaTransport, fan-out kanalını bir Kafka topic'i olarak kullanır.
type KafkaTransport struct {
	client   sarama.Client
	producer sarama.SyncProducer
	groupID  string
	logger   *slog.Logger

	mu     sync.Mutex
	groups []sarama.ConsumerGroup
	closed bool
}

// NewKafkaTransport, producer ve client'ı oluşturur.
func NewKafkaTransport(opts KafkaOptions, logger *slog.Logger) (*KafkaTransport, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if opts.GroupID == "" {
		return nil, errors.New("kafka: group id is required")
	}

	config := sarama.NewConfig()
	config.ClientID = "mqvi-gateway"

	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy

	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Session.Timeout = 10 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	config.Version = sarama.V3_6_0_0

	client, err := sarama.NewClient(opts.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &KafkaTransport{
		client:   client,
		producer: producer,
		groupID:  opts.GroupID,
		logger:   logger.With("component", "kafka"),
	}, nil
}

func (t *KafkaTransport) Name() string { return "kafka" }

// Publish, tek partition sırası için kanal adını key olarak kullanır.
func (t *KafkaTransport) Publish(_ context.Context, channel string, payload []byte) error {
	_, _, err := t.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     channel,
		Key:       sarama.StringEncoder(channel),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: time.Now(),
	})
	return err
}

func (t *KafkaTransport) Subscribe(ctx context.Context, channel string) (Receiver, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errors.New("kafka: transport closed")
	}

	group, err := sarama.NewConsumerGroupFromClient(t.groupID, t.client)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}
	t.groups = append(t.groups, group)

	ctx, cancel := context.WithCancel(ctx)
	r := &kafkaReceiver{
		group:    group,
		cancel:   cancel,
		messages: make(chan []byte, 256),
		errs:     make(chan error, 16),
		done:     make(chan struct{}),
	}
	go r.consume(ctx, channel, t.logger)
	go r.forwardErrors()

	return r, nil
}

// Ping, topic metadata'sını yenileyerek broker erişimini doğrular.
func (t *KafkaTransport) Ping(_ context.Context) error {
	if t.client.Closed() {
		return errors.New("kafka: client closed")
	}
	return t.client.RefreshMetadata()
}

func (t *KafkaTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var errs []error
	for _, g := range t.groups {
		if err := g.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close consumer group: %w", err))
		}
	}
	if err := t.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	if err := t.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
		errs = append(errs, fmt.Errorf("failed to close client: %w", err))
	}
	return errors.Join(errs...)
}

// kafkaReceiver, consumer group oturumlarından gelen mesajları Receive'e aktarır.
// Consume rebalance'ta döner; döngü yeni oturumla devam eder.
type kafkaReceiver struct {
	group    sarama.ConsumerGroup
	cancel   context.CancelFunc
	messages chan []byte
	errs     chan error
	done     chan struct{}
	once     sync.Once
}

func (r *kafkaReceiver) consume(ctx context.Context, topic string, logger *slog.Logger) {
	handler := &consumerGroupHandler{messages: r.messages}
	for {
		if err := r.group.Consume(ctx, []string{topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			logger.Warn("consumer group session ended", "topic", topic, "error", err)
			r.pushErr(err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(kafkaRebalanceDelay):
		}
	}
}

func (r *kafkaReceiver) forwardErrors() {
	for err := range r.group.Errors() {
		r.pushErr(err)
	}
}

func (r *kafkaReceiver) pushErr(err error) {
	select {
	case r.errs <- err:
	default:
	}
}

func (r *kafkaReceiver) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-r.messages:
		return msg, nil
	case err := <-r.errs:
		return nil, err
	case <-r.done:
		return nil, errors.New("kafka: receiver closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *kafkaReceiver) Close() error {
	r.once.Do(func() {
		close(r.done)
		r.cancel()
	})
	return nil
}

// consumerGroupHandler, sarama.ConsumerGroupHandler implementasyonu.
type consumerGroupHandler struct {
	messages chan<- []byte
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.messages <- msg.Value:
			case <-session.Context().Done():
				return nil
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
