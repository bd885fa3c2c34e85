package client

import (
	"context"
	"sync"
	"time"

	"github.com/go-authgate/wpgate/internal/cache"
)

// FlowState holds the one-time artifacts that must survive the authorize redirect.
type FlowState struct {
	State         string `json:"state,omitempty"`
	CodeVerifier  string `json:"code_verifier,omitempty"`
	ProcessedCode string `json:"processed_code,omitempty"`
}

// FlowStore persists FlowState across the redirect round trip.
type FlowStore interface {
	Load(ctx context.Context) (FlowState, error)
	Save(ctx context.Context, state FlowState) error
}

// MemoryFlowStore keeps the flow state in process memory.
type MemoryFlowStore struct {
	mu    sync.Mutex
	state FlowState
}

func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{}
}

func (s *MemoryFlowStore) Load(ctx context.Context) (FlowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *MemoryFlowStore) Save(ctx context.Context, state FlowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// CacheFlowStore keeps the flow state in a Token Store backend under one key,
// so a login started by one process can be completed by another.
type CacheFlowStore struct {
	cache cache.Cache[FlowState]
	key   string
	ttl   time.Duration
}

func NewCacheFlowStore(c cache.Cache[FlowState], key string, ttl time.Duration) *CacheFlowStore {
	return &CacheFlowStore{cache: c, key: key, ttl: ttl}
}

func (s *CacheFlowStore) Load(ctx context.Context) (FlowState, error) {
	state, err := s.cache.Get(ctx, s.key)
	if cache.IsMiss(err) {
		return FlowState{}, nil
	}
	return state, err
}

func (s *CacheFlowStore) Save(ctx context.Context, state FlowState) error {
	if state == (FlowState{}) {
		return s.cache.Delete(ctx, s.key)
	}
	return s.cache.Set(ctx, s.key, state, s.ttl)
}
