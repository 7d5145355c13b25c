// Package redis stores records and recent events in Redis.
//
// Each record is a JSON string under <prefix>record:<kind>:<id>; a sorted set
// per kind, scored by creation time, indexes the ids. Events go to a capped
// list.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AaronLay10/FlowEngine/internal/events"
	"github.com/AaronLay10/FlowEngine/internal/store"
)

const (
	DefaultKeyPrefix = "flowengine:"
	DefaultMaxEvents = 1000
)

// Config holds connection settings.
type Config struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	MaxEvents int64  `yaml:"max_events"`
}

// Store implements store.Store and events.Sink.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	maxEvents int64
	now       func() time.Time
}

// Open connects and pings.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return New(client, cfg), nil
}

// New wraps an existing client.
func New(client redis.UniversalClient, cfg Config) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Store{client: client, keyPrefix: prefix, maxEvents: maxEvents, now: time.Now}
}

func (s *Store) recordKey(kind store.Kind, id string) string {
	return s.keyPrefix + "record:" + string(kind) + ":" + id
}

func (s *Store) indexKey(kind store.Kind) string {
	return s.keyPrefix + "index:" + string(kind)
}

func (s *Store) eventsKey() string {
	return s.keyPrefix + "events"
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Put(ctx context.Context, r store.Record) (store.Record, error) {
	if err := store.Check(r); err != nil {
		return store.Record{}, err
	}
	now := s.now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if prev, err := s.Get(ctx, r.Kind, r.ID); err == nil {
		r.CreatedAt = prev.CreatedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.Record{}, err
	}

	data, err := json.Marshal(r)
	if err != nil {
		return store.Record{}, fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(r.Kind, r.ID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(r.Kind), redis.Z{Score: float64(r.CreatedAt.UnixNano()), Member: r.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return store.Record{}, fmt.Errorf("put %s %s: %w", r.Kind, r.ID, err)
	}
	return r, nil
}

func (s *Store) Get(ctx context.Context, kind store.Kind, id string) (store.Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Record{}, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	var r store.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return store.Record{}, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, kind store.Kind, scope string) ([]store.Record, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(kind), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(kind, id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	out := make([]store.Record, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Index entry without a record; skip it.
			continue
		}
		var r store.Record
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", kind, ids[i], err)
		}
		if scope != "" && r.Scope != scope {
			continue
		}
		out = append(out, r)
	}
	store.SortRecords(out)
	return out, nil
}

func (s *Store) Delete(ctx context.Context, kind store.Kind, id string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.recordKey(kind, id))
	pipe.ZRem(ctx, s.indexKey(kind), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// AppendEvent pushes e onto the capped event list.
func (s *Store) AppendEvent(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.eventsKey(), data)
	pipe.LTrim(ctx, s.eventsKey(), -s.maxEvents, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentEvents returns up to n stored events, oldest first.
func (s *Store) RecentEvents(ctx context.Context, n int64) ([]events.Event, error) {
	if n <= 0 {
		n = s.maxEvents
	}
	vals, err := s.client.LRange(ctx, s.eventsKey(), -n, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]events.Event, 0, len(vals))
	for _, v := range vals {
		var e events.Event
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

var (
	_ store.Store = (*Store)(nil)
	_ events.Sink = (*Store)(nil)
)
