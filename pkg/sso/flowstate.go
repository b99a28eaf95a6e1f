package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// FlowStore holds in-flight login flows between initiation and the IdP
// callback. Consume is one-shot: a state token is invalidated the
// moment it is read, so a replayed callback finds nothing.
type FlowStore interface {
	Put(ctx context.Context, flow *FlowState) error
	Consume(ctx context.Context, state string) (*FlowState, error)
}

const flowKeyPrefix = "fedgate:flow:"

// RedisFlowStore is the Redis-backed FlowStore, for deployments with
// more than one gateway replica.
type RedisFlowStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisFlowStore creates a RedisFlowStore with the standard flow
// TTL.
func NewRedisFlowStore(client *redis.Client) *RedisFlowStore {
	return &RedisFlowStore{client: client, ttl: FlowTTL}
}

// Put stores the flow under its state token.
func (s *RedisFlowStore) Put(ctx context.Context, flow *FlowState) error {
	payload, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow state: %w", err)
	}
	if err := s.client.Set(ctx, flowKeyPrefix+flow.State, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store flow state: %w", err)
	}
	return nil
}

// Consume fetches and deletes the flow for a state token. Returns
// (nil, nil) for an unknown, expired, or already-consumed token.
func (s *RedisFlowStore) Consume(ctx context.Context, state string) (*FlowState, error) {
	key := flowKeyPrefix + state
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch flow state: %w", err)
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("failed to invalidate flow state: %w", err)
	}

	flow := &FlowState{}
	if err := json.Unmarshal(payload, flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow state: %w", err)
	}
	return flow, nil
}

// MemoryFlowStore is an in-process FlowStore for single-replica
// deployments and tests.
type MemoryFlowStore struct {
	cache *lru.LRU[string, *FlowState]
}

// NewMemoryFlowStore creates a MemoryFlowStore holding up to size
// concurrent flows.
func NewMemoryFlowStore(size int) *MemoryFlowStore {
	return &MemoryFlowStore{cache: lru.NewLRU[string, *FlowState](size, nil, FlowTTL)}
}

// Put stores the flow under its state token.
func (s *MemoryFlowStore) Put(_ context.Context, flow *FlowState) error {
	s.cache.Add(flow.State, flow)
	return nil
}

// Consume fetches and deletes the flow for a state token.
func (s *MemoryFlowStore) Consume(_ context.Context, state string) (*FlowState, error) {
	flow, ok := s.cache.Get(state)
	if !ok {
		return nil, nil
	}
	s.cache.Remove(state)
	return flow, nil
}
