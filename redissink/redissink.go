// Package redissink provides a Redis-backed response sink: every payload
// delivered to the sink is appended to a per-session Redis stream, letting an
// out-of-process consumer tail a session's responses with XREAD. One
// Publisher (one Redis client) serves any number of session sinks.
package redissink

import (
	"context"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/mostrub/perspective"
)

// Config for a Publisher. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all stream keys. ENV: PERSPECTIVE_SINK_KEY_PREFIX
	KeyPrefix string `env:"PERSPECTIVE_SINK_KEY_PREFIX,default=perspective:responses:"`
	// StreamMaxLen caps each stream's approximate length (0 = unbounded).
	// ENV: PERSPECTIVE_SINK_STREAM_MAXLEN
	StreamMaxLen int64 `env:"PERSPECTIVE_SINK_STREAM_MAXLEN,default=4096"`
}

// Publisher owns the Redis client shared by the sinks it hands out.
type Publisher struct {
	client    *redis.Client
	keyPrefix string
	maxLen    int64
}

func New(cfg Config) (*Publisher, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "perspective:responses:"
	}
	return &Publisher{client: cl, keyPrefix: prefix, maxLen: cfg.StreamMaxLen}, nil
}

// NewFromEnv builds a Publisher using envdecode to populate Config.
func NewFromEnv() (*Publisher, error) {
	var cfg Config
	// Defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg)
}

// Close closes the Redis client.
func (p *Publisher) Close() error { return p.client.Close() }

// Sink returns a response sink appending to the stream named by key. Pass
// the result to Server.NewSession; key is typically a stable per-client
// name so consumers know which stream to tail.
func (p *Publisher) Sink(key string) *Sink {
	return &Sink{p: p, stream: p.keyPrefix + key}
}

// Sink implements perspective.SessionHandler over one Redis stream.
type Sink struct {
	p      *Publisher
	stream string
}

var _ perspective.SessionHandler = (*Sink)(nil)

func (s *Sink) SendResponse(ctx context.Context, msg []byte) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{"d": msg},
	}
	if s.p.maxLen > 0 {
		args.MaxLen = s.p.maxLen
		args.Approx = true
	}
	if err := s.p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Cleanup deletes the stream behind the sink. Best-effort; call it after the
// owning session closes if stream data should not linger until trimmed.
func (s *Sink) Cleanup(ctx context.Context) error {
	c := context.WithoutCancel(ctx)
	return s.p.client.Del(c, s.stream).Err()
}
