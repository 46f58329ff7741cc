package imagegen

import (
	"context"
	"hash/fnv"
	"time"

	"asset-studio/internal/domain/model"
	"asset-studio/internal/domain/ports/adapter"
)

var _ adapter.GenerationClient = (*NoopClient)(nil)

// NoopClient implements adapter.GenerationClient for local/dev use and tests.
// It fabricates a deterministic placeholder asset instead of calling a real
// backend: the same prompt and seed always produce the same bytes.
type NoopClient struct {
	delay time.Duration
}

// NewNoopClient constructs the noop client. delay <= 0 defaults to 100ms.
func NewNoopClient(delay time.Duration) *NoopClient {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	return &NoopClient{delay: delay}
}

func (n *NoopClient) Provider() string { return "noop" }

func (n *NoopClient) Generate(ctx context.Context, req adapter.GenerateRequest) (*model.Asset, error) {
	if err := n.sleep(ctx); err != nil {
		return nil, adapter.NewGenerationError("generation cancelled", err)
	}
	return placeholder(req.Prompt+"|"+req.Seed, req.Width, req.Height), nil
}

func (n *NoopClient) Transform(ctx context.Context, req adapter.TransformRequest) (*model.Asset, error) {
	if err := n.sleep(ctx); err != nil {
		return nil, adapter.NewGenerationError("transform cancelled", err)
	}
	return placeholder(string(req.Direction)+"|"+string(req.Source.Data), req.Width, req.Height), nil
}

func (n *NoopClient) sleep(ctx context.Context) error {
	select {
	case <-time.After(n.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// placeholder derives a small deterministic payload from the request.
func placeholder(seed string, w, h int) *model.Asset {
	hash := fnv.New64a()
	_, _ = hash.Write([]byte(seed))
	sum := hash.Sum64()

	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(sum >> (uint(i%8) * 8))
	}
	return &model.Asset{Data: data, MIME: "image/png", Width: w, Height: h}
}
