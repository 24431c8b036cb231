package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikhail-dubov/answerd/internal/domain"
)

type mockEngine struct {
	out    []byte
	err    error
	calls  int
	hcErr  error
	hcSeen bool
}

func (m *mockEngine) Answer(_ context.Context, _ string) ([]byte, error) {
	m.calls++
	return m.out, m.err
}

func (m *mockEngine) HealthCheck(_ context.Context) error {
	m.hcSeen = true
	return m.hcErr
}

type memStore struct {
	data   map[string][]byte
	getErr error
	setErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return nil, ErrKeyNotFound
}

func (s *memStore) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	return nil
}

func TestAnswer_MissThenHit(t *testing.T) {
	engine := &mockEngine{out: []byte(`{"answer":"x"}`)}
	c := New(engine, newMemStore(), "answerd:", time.Minute, nil)

	out, err := c.Answer(context.Background(), "q1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"answer":"x"}` {
		t.Errorf("unexpected output: %s", out)
	}
	if engine.calls != 1 {
		t.Fatalf("expected 1 engine call, got %d", engine.calls)
	}

	out, err = c.Answer(context.Background(), "q1")
	if err != nil {
		t.Fatalf("unexpected error on hit: %v", err)
	}
	if string(out) != `{"answer":"x"}` {
		t.Errorf("unexpected cached output: %s", out)
	}
	if engine.calls != 1 {
		t.Errorf("expected cached answer, engine called %d times", engine.calls)
	}
}

func TestAnswer_DistinctQueriesDistinctKeys(t *testing.T) {
	engine := &mockEngine{out: []byte("a")}
	c := New(engine, newMemStore(), "answerd:", time.Minute, nil)

	_, _ = c.Answer(context.Background(), "q1")
	_, _ = c.Answer(context.Background(), "q2")

	if engine.calls != 2 {
		t.Errorf("expected 2 engine calls for distinct queries, got %d", engine.calls)
	}
}

func TestAnswer_EngineErrorNotCached(t *testing.T) {
	engine := &mockEngine{err: domain.ErrEmptyAnswer}
	store := newMemStore()
	c := New(engine, store, "answerd:", time.Minute, nil)

	_, err := c.Answer(context.Background(), "q")
	if !errors.Is(err, domain.ErrEmptyAnswer) {
		t.Fatalf("expected engine error passthrough, got %v", err)
	}
	if len(store.data) != 0 {
		t.Error("failed answer must not be cached")
	}
}

func TestAnswer_StoreFailuresDegradeToMiss(t *testing.T) {
	engine := &mockEngine{out: []byte("a")}
	store := newMemStore()
	store.getErr = errors.New("connection refused")
	store.setErr = errors.New("connection refused")
	c := New(engine, store, "answerd:", time.Minute, nil)

	out, err := c.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("store failure must not fail the request: %v", err)
	}
	if string(out) != "a" {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestHealthCheck_Delegates(t *testing.T) {
	engine := &mockEngine{hcErr: errors.New("engine down")}
	c := New(engine, newMemStore(), "answerd:", time.Minute, nil)

	if err := c.HealthCheck(context.Background()); err == nil {
		t.Error("expected delegated health check error")
	}
	if !engine.hcSeen {
		t.Error("expected inner health check to be called")
	}
}
