package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/unisearch/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	mu         sync.Mutex
	dims       int
	failOn     string
	err        error
	calls      int
	batchCalls int
	batchSizes []int
}

func (m *mockEmbedder) vec(text string) []float32 {
	v := make([]float32, m.dims)
	for i := range v {
		v[i] = float32(len(text) + i)
	}
	return v
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec(text), TotalTokens: 1}, nil
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	m.batchCalls++
	m.batchSizes = append(m.batchSizes, len(texts))
	m.mu.Unlock()
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.failOn != "" && text == m.failOn {
			return domain.BatchEmbeddingResult{}, domain.ErrEmbeddingProviderError
		}
		out[i] = m.vec(text)
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

type mockHealthyEmbedder struct {
	mockEmbedder
	healthErr error
}

func (m *mockHealthyEmbedder) HealthCheck(context.Context) error { return m.healthErr }

func TestInstrumentedEmbedder_Embed(t *testing.T) {
	inner := &mockEmbedder{dims: 3}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	res, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embedding) != 3 {
		t.Errorf("expected 3 dimensions, got %d", len(res.Embedding))
	}
}

func TestInstrumentedEmbedder_EmbedError(t *testing.T) {
	inner := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
}

func TestInstrumentedEmbedder_BatchEmbedUsesNativeBatch(t *testing.T) {
	inner := &mockEmbedder{dims: 2}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchCalls != 1 || inner.calls != 0 {
		t.Errorf("expected one native batch call, got batch=%d single=%d", inner.batchCalls, inner.calls)
	}
	if len(res.Embeddings) != 3 {
		t.Errorf("expected 3 vectors, got %d", len(res.Embeddings))
	}
}

func TestInstrumentedEmbedder_BatchEmbedEmpty(t *testing.T) {
	inner := &mockEmbedder{dims: 2}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", zap.NewNop())

	if _, err := p.BatchEmbed(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchCalls != 0 {
		t.Error("empty batch must not reach the provider")
	}
}

func TestInstrumentedEmbedder_HealthCheck(t *testing.T) {
	down := errors.New("down")
	p := NewInstrumentedEmbedder(&mockHealthyEmbedder{healthErr: down}, "test", "m", zap.NewNop())
	if !errors.Is(p.HealthCheck(context.Background()), down) {
		t.Error("expected inner health error")
	}

	plain := NewInstrumentedEmbedder(&mockEmbedder{}, "test", "m", zap.NewNop())
	if err := plain.HealthCheck(context.Background()); err != nil {
		t.Errorf("embedder without health check must report healthy, got %v", err)
	}
}
