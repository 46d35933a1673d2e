package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"sync/atomic"
)

// MockClient produces deterministic embeddings without a network call.
// Texts sharing characters get nearby vectors.
type MockClient struct {
	dimension int
	calls     atomic.Int64
	err       error
}

// NewMockClient creates a mock client of the given dimension.
func NewMockClient(dimension int) *MockClient {
	if dimension <= 0 {
		dimension = 384
	}
	return &MockClient{dimension: dimension}
}

// FailWith makes every subsequent call return err.
func (c *MockClient) FailWith(err error) {
	c.err = err
}

// Calls returns how many times Embed was invoked.
func (c *MockClient) Calls() int {
	return int(c.calls.Load())
}

// Embed generates hash-based, L2-normalized embeddings.
func (c *MockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, c.dimension)
		for _, r := range text {
			h := fnv.New32a()
			_, _ = h.Write([]byte(string(r)))
			v[h.Sum32()%uint32(c.dimension)] += 1
		}
		embeddings[i] = normalize(v)
	}
	return embeddings, nil
}

// EmbedSingle generates a mock embedding for a single text.
func (c *MockClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Model returns the mock model name.
func (c *MockClient) Model() string {
	return "mock-embedding-model"
}

// Dimension returns the embedding dimension.
func (c *MockClient) Dimension() int {
	return c.dimension
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= n
	}
	return v
}
