package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v4"

	"github.com/CarmenSalvado/ProofMesh-sub001/internal/logging"
	"github.com/CarmenSalvado/ProofMesh-sub001/pkg/types"
)

// Topic is the pub/sub topic the recorder consumes.
const Topic = "audit"

const (
	// MaxRetries bounds the attempts for one record.
	MaxRetries = 3
	// RetryInitialInterval is the first wait between attempts.
	RetryInitialInterval = 100 * time.Millisecond
	// RetryMaxInterval caps the wait between attempts.
	RetryMaxInterval = 2 * time.Second
)

type recordKind string

const (
	kindRun      recordKind = "run"
	kindMessage  recordKind = "message"
	kindDecision recordKind = "decision"
	kindMemory   recordKind = "memory"
)

type envelope struct {
	Kind recordKind      `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// PubSub is the queue the recorder publishes to and consumes from.
type PubSub interface {
	message.Publisher
	message.Subscriber
}

// Recorder is a Trail whose writes are queued and applied in the background,
// one at a time. The pub/sub may deliver records in a different order than
// they were queued; the wrapped Trail keeps the highest Version of a run or
// memory and sorts listings by time, so late stale records do no harm. Write
// failures are retried briefly, then logged and dropped; they never reach the
// caller. Reads go straight to the wrapped Trail.
type Recorder struct {
	trail  Trail
	pubsub PubSub

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ Trail = (*Recorder)(nil)

// NewRecorder subscribes to the audit topic on pubsub and starts the
// consumer.
func NewRecorder(trail Trail, pubsub PubSub) (*Recorder, error) {
	ctx, cancel := context.WithCancel(context.Background())
	messages, err := pubsub.Subscribe(ctx, Topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to %s: %w", Topic, err)
	}

	r := &Recorder{
		trail:  trail,
		pubsub: pubsub,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.consume(ctx, messages)
	return r, nil
}

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

func (r *Recorder) consume(ctx context.Context, messages <-chan *message.Message) {
	defer close(r.done)
	for msg := range messages {
		r.handle(ctx, msg)
		msg.Ack()
		r.wg.Done()
	}
}

func (r *Recorder) handle(ctx context.Context, msg *message.Message) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		logging.Error().Err(err).Str("uuid", msg.UUID).Msg("dropping malformed audit record")
		return
	}

	write, err := r.decode(env)
	if err != nil {
		logging.Error().Err(err).Str("kind", string(env.Kind)).Msg("dropping malformed audit record")
		return
	}

	err = backoff.Retry(func() error {
		return write(ctx)
	}, newRetryBackoff(ctx))
	if err != nil {
		logging.Error().Err(err).Str("kind", string(env.Kind)).Msg("audit write failed")
	}
}

func (r *Recorder) decode(env envelope) (func(context.Context) error, error) {
	switch env.Kind {
	case kindRun:
		var run types.Run
		if err := json.Unmarshal(env.Data, &run); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return r.trail.SaveRun(ctx, &run) }, nil
	case kindMessage:
		var m types.Message
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return r.trail.AppendMessage(ctx, &m) }, nil
	case kindDecision:
		var d types.Decision
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return r.trail.SaveDecision(ctx, &d) }, nil
	case kindMemory:
		var mem types.Memory
		if err := json.Unmarshal(env.Data, &mem); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return r.trail.SaveMemory(ctx, &mem) }, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", env.Kind)
}

func (r *Recorder) enqueue(kind recordKind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", kind, err)
	}
	payload, err := json.Marshal(envelope{Kind: kind, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s record: %w", kind, err)
	}

	r.wg.Add(1)
	if err := r.pubsub.Publish(Topic, message.NewMessage(watermill.NewULID(), payload)); err != nil {
		r.wg.Done()
		logging.Error().Err(err).Str("kind", string(kind)).Msg("failed to queue audit record")
	}
	return nil
}

func (r *Recorder) SaveRun(_ context.Context, run *types.Run) error {
	return r.enqueue(kindRun, run)
}

func (r *Recorder) AppendMessage(_ context.Context, msg *types.Message) error {
	return r.enqueue(kindMessage, msg)
}

func (r *Recorder) SaveDecision(_ context.Context, d *types.Decision) error {
	return r.enqueue(kindDecision, d)
}

func (r *Recorder) SaveMemory(_ context.Context, mem *types.Memory) error {
	return r.enqueue(kindMemory, mem)
}

func (r *Recorder) GetRun(ctx context.Context, filePath, runID string) (*types.Run, error) {
	return r.trail.GetRun(ctx, filePath, runID)
}

func (r *Recorder) ListRuns(ctx context.Context, filePath string) ([]*types.Run, error) {
	return r.trail.ListRuns(ctx, filePath)
}

func (r *Recorder) ListMessages(ctx context.Context, filePath string) ([]*types.Message, error) {
	return r.trail.ListMessages(ctx, filePath)
}

func (r *Recorder) ListDecisions(ctx context.Context, filePath, runID string) ([]*types.Decision, error) {
	return r.trail.ListDecisions(ctx, filePath, runID)
}

func (r *Recorder) GetMemory(ctx context.Context, filePath string) (*types.Memory, error) {
	return r.trail.GetMemory(ctx, filePath)
}

// Flush waits until every queued record has been handled.
func (r *Recorder) Flush() {
	r.wg.Wait()
}

// Close flushes the queue and stops the consumer.
func (r *Recorder) Close() error {
	r.Flush()
	r.cancel()
	<-r.done
	return nil
}
