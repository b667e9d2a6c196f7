package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
)

const maxDeliveriesAdvisory = "$JS.EVENT.ADVISORY.CONSUMER.MAX_DELIVERIES"

// NATSConfig configures the JetStream backend. Stream defaults to the
// subject upper-cased with dots replaced; dead letters go to Stream+"_DLQ"
// on Subject+".dlq".
type NATSConfig struct {
	URL             string
	Subject         string
	Stream          string
	QueueGroup      string
	MaxAttempts     int
	AckWait         time.Duration
	RedeliveryDelay time.Duration
	FetchWait       time.Duration
	Logger          *infra.Logger
}

// NATSQueue stores jobs in a JetStream work-queue stream and consumes them
// through one durable pull consumer shared by every worker loop. A publish
// succeeds only once the stream has stored the message.
type NATSQueue struct {
	nc              *nats.Conn
	js              jetstream.JetStream
	stream          string
	dlqStream       string
	subject         string
	dlqSubject      string
	durable         string
	maxAttempts     int
	ackWait         time.Duration
	redeliveryDelay time.Duration
	fetchWait       time.Duration
	logger          *infra.Logger
}

func NewNATSQueue(ctx context.Context, cfg NATSConfig) (*NATSQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = "generation.jobs"
	}
	if cfg.Stream == "" {
		cfg.Stream = strings.ToUpper(strings.NewReplacer(".", "_", "*", "_", ">", "_").Replace(cfg.Subject))
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "generation-workers"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 5 * time.Minute
	}
	if cfg.RedeliveryDelay <= 0 {
		cfg.RedeliveryDelay = 2 * time.Second
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	q := &NATSQueue{
		nc:              nc,
		js:              js,
		stream:          cfg.Stream,
		dlqStream:       cfg.Stream + "_DLQ",
		subject:         cfg.Subject,
		dlqSubject:      cfg.Subject + ".dlq",
		durable:         cfg.QueueGroup,
		maxAttempts:     cfg.MaxAttempts,
		ackWait:         cfg.AckWait,
		redeliveryDelay: cfg.RedeliveryDelay,
		fetchWait:       cfg.FetchWait,
		logger:          logger,
	}
	if err := q.ensureStreams(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return q, nil
}

func (q *NATSQueue) ensureStreams(ctx context.Context) error {
	if _, err := q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      q.stream,
		Subjects:  []string{q.subject},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
	}); err != nil {
		return fmt.Errorf("ensure stream %s: %w", q.stream, err)
	}
	if _, err := q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      q.dlqStream,
		Subjects:  []string{q.dlqSubject},
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	}); err != nil {
		return fmt.Errorf("ensure stream %s: %w", q.dlqStream, err)
	}
	return nil
}

func (q *NATSQueue) Close() error {
	if q.nc != nil {
		return q.nc.Drain()
	}
	return nil
}

// Ping flushes the connection to confirm the server is reachable.
func (q *NATSQueue) Ping(ctx context.Context) error {
	if q.nc == nil || !q.nc.IsConnected() {
		return nats.ErrConnectionClosed
	}
	return q.nc.FlushWithContext(ctx)
}

// Enqueue stores the message in the stream and returns its message id. The
// id doubles as the JetStream dedupe key.
func (q *NATSQueue) Enqueue(ctx context.Context, message domain.QueueMessage) (string, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return "", err
	}
	handle := uuid.NewString()
	if _, err := q.js.Publish(ctx, q.subject, data, jetstream.WithMsgID(handle)); err != nil {
		return "", fmt.Errorf("enqueue to nats: %w", err)
	}
	return handle, nil
}

// Consume pulls one message at a time from the durable consumer until ctx
// is done. Messages a crashed worker left unacknowledged come back after
// AckWait; those that exhaust MaxDeliver that way are dead-lettered from the
// server's max-deliveries advisory.
func (q *NATSQueue) Consume(ctx context.Context, handler Handler) error {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.stream, jetstream.ConsumerConfig{
		Durable:       q.durable,
		FilterSubject: q.subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       q.ackWait,
		MaxDeliver:    q.maxAttempts,
	})
	if err != nil {
		return fmt.Errorf("ensure consumer: %w", err)
	}

	advisory := fmt.Sprintf("%s.%s.%s", maxDeliveriesAdvisory, q.stream, q.durable)
	sub, err := q.nc.QueueSubscribe(advisory, q.durable, func(msg *nats.Msg) {
		q.onMaxDeliveries(context.WithoutCancel(ctx), msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe advisory: %w", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch, err := consumer.Fetch(1, jetstream.FetchMaxWait(q.fetchWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, jetstream.ErrNoMessages) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch: %w", err)
		}
		for msg := range batch.Messages() {
			q.handle(ctx, msg, handler)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, jetstream.ErrNoMessages) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch: %w", err)
		}
	}
}

// handle runs the handler with Attempt set from the delivery count and
// settles the message. Settling survives ctx cancellation.
func (q *NATSQueue) handle(ctx context.Context, msg jetstream.Msg, handler Handler) {
	settle := context.WithoutCancel(ctx)
	var message domain.QueueMessage
	if err := json.Unmarshal(msg.Data(), &message); err != nil || message.JobID == "" {
		q.logger.Error().Err(err).Str("subject", msg.Subject()).Msg("nats queue dropped malformed message")
		q.deadLetter(settle, msg.Data(), 0, "malformed message")
		_ = msg.Term()
		return
	}
	delivered := 1
	if md, err := msg.Metadata(); err == nil {
		delivered = int(md.NumDelivered)
	}
	message.Attempt = delivered - 1

	handleErr := handler(ctx, message)
	if handleErr == nil {
		if err := msg.DoubleAck(settle); err != nil {
			q.logger.Error().Err(err).Str("job_id", message.JobID).Msg("nats queue ack failed")
		}
		return
	}

	if delivered >= q.maxAttempts {
		q.logger.Error().Err(handleErr).Str("job_id", message.JobID).Int("attempt", delivered).Msg("nats queue moved message to DLQ")
		message.Attempt = delivered
		data, _ := json.Marshal(message)
		q.deadLetter(settle, data, delivered, handleErr.Error())
		if err := msg.DoubleAck(settle); err != nil {
			q.logger.Error().Err(err).Str("job_id", message.JobID).Msg("nats queue ack failed")
		}
		return
	}
	if err := msg.NakWithDelay(q.redeliveryDelay); err != nil {
		q.logger.Error().Err(err).Str("job_id", message.JobID).Msg("nats queue nak failed")
	}
}

func (q *NATSQueue) deadLetter(ctx context.Context, data []byte, attempt int, reason string) {
	msg := nats.NewMsg(q.dlqSubject)
	msg.Data = data
	msg.Header.Set("Genstudio-Error", reason)
	msg.Header.Set("Genstudio-Attempt", strconv.Itoa(attempt))
	msg.Header.Set("Genstudio-Moved-At", time.Now().UTC().Format(time.RFC3339Nano))
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		q.logger.Error().Err(err).Msg("nats queue dead-letter publish failed")
	}
}

type maxDeliveriesEvent struct {
	Stream     string `json:"stream"`
	Consumer   string `json:"consumer"`
	StreamSeq  uint64 `json:"stream_seq"`
	Deliveries int    `json:"deliveries"`
}

func (q *NATSQueue) onMaxDeliveries(ctx context.Context, payload []byte) {
	var event maxDeliveriesEvent
	if err := json.Unmarshal(payload, &event); err != nil || event.StreamSeq == 0 {
		q.logger.Error().Err(err).Msg("nats queue ignored malformed max-deliveries advisory")
		return
	}
	q.deadLetterSequence(ctx, event.StreamSeq, event.Deliveries)
}

// deadLetterSequence moves a stored message that the server stopped
// redelivering into the DLQ stream.
func (q *NATSQueue) deadLetterSequence(ctx context.Context, seq uint64, deliveries int) {
	stream, err := q.js.Stream(ctx, q.stream)
	if err != nil {
		q.logger.Error().Err(err).Msg("nats queue stream lookup failed")
		return
	}
	raw, err := stream.GetMsg(ctx, seq)
	if err != nil {
		if !errors.Is(err, jetstream.ErrMsgNotFound) {
			q.logger.Error().Err(err).Uint64("seq", seq).Msg("nats queue exhausted message lookup failed")
		}
		return
	}
	q.logger.Error().Uint64("seq", seq).Int("deliveries", deliveries).Msg("nats queue moved unacknowledged message to DLQ")
	q.deadLetter(ctx, raw.Data, deliveries, "max deliveries exceeded without ack")
	if err := stream.DeleteMsg(ctx, seq); err != nil && !errors.Is(err, jetstream.ErrMsgNotFound) {
		q.logger.Error().Err(err).Uint64("seq", seq).Msg("nats queue delete exhausted message failed")
	}
}

var _ Queue = (*NATSQueue)(nil)
