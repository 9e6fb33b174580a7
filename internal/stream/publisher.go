package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"keytrace/internal/identity"
	"keytrace/internal/keystroke"
)

// Entry fields written to every stream message.
const (
	FieldType      = "type"
	FieldSessionID = "session_id"
	FieldCodec     = "codec"
	FieldPayload   = "payload"
	FieldAt        = "at"
)

// Entry types.
const (
	TypeSessionBegin = "session_begin"
	TypeSessionEnd   = "session_end"
	TypeKeyEvent     = "key_event"
)

// Options configures a Publisher.
type Options struct {
	// Key is the stream name.
	Key string
	// MaxLen trims the stream approximately to this length. 0 disables.
	MaxLen int64
	// Codec encodes payloads. Defaults to JSON.
	Codec Codec
}

// Publisher appends session markers and key events to a Redis stream.
type Publisher struct {
	client redis.Cmdable
	closer func() error
	opts   Options

	closeOnce sync.Once
	closeErr  error
}

// NewPublisher wraps an existing client. The caller keeps ownership of it.
func NewPublisher(client redis.Cmdable, opts Options) (*Publisher, error) {
	if opts.Key == "" {
		return nil, errors.New("stream: key is required")
	}
	if opts.Codec == nil {
		opts.Codec = JSON{}
	}
	return &Publisher{client: client, opts: opts}, nil
}

// Dial connects to Redis and returns a Publisher that owns the connection.
func Dial(ctx context.Context, addr, password string, db int, opts Options) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	p, err := NewPublisher(client, opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	p.closer = client.Close
	return p, nil
}

// Name identifies the sink.
func (p *Publisher) Name() string { return "redis" }

// BeginSession publishes the identity the session is recorded under.
func (p *Publisher) BeginSession(ctx context.Context, sessionID string, rec identity.Record, started time.Time) error {
	return p.add(ctx, TypeSessionBegin, sessionID, rec, started)
}

// EndSession publishes an end marker.
func (p *Publisher) EndSession(ctx context.Context, sessionID string, ended time.Time) error {
	return p.add(ctx, TypeSessionEnd, sessionID, nil, ended)
}

// Write publishes one event.
func (p *Publisher) Write(ctx context.Context, ev keystroke.Event) error {
	return p.add(ctx, TypeKeyEvent, ev.SessionID, ev, ev.Time())
}

func (p *Publisher) add(ctx context.Context, kind, sessionID string, payload any, at time.Time) error {
	values := map[string]any{
		FieldType:      kind,
		FieldSessionID: sessionID,
		FieldAt:        strconv.FormatInt(at.UnixNano(), 10),
	}
	if payload != nil {
		data, err := p.opts.Codec.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}
		values[FieldCodec] = p.opts.Codec.Name()
		values[FieldPayload] = data
	}

	args := &redis.XAddArgs{
		Stream: p.opts.Key,
		ID:     "*",
		Values: values,
	}
	if p.opts.MaxLen > 0 {
		args.MaxLen = p.opts.MaxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("XADD %s: %w", p.opts.Key, err)
	}
	return nil
}

// Ping checks that Redis answers.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the connection if the publisher owns it.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		if p.closer != nil {
			p.closeErr = p.closer()
		}
	})
	return p.closeErr
}
