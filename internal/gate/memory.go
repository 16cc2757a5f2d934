package gate

import (
	"context"
	"time"
)

// MemoryGate performs best-effort extraction/store; it is explicitly out
// of scope for the core pipeline's hard engineering (spec §4.1 stage 8).
// It never fails the pipeline: any error is swallowed into a soft_fail so
// memory write issues never block the response the user already has.
type MemoryGate struct {
	extract func(ctx context.Context, state PipelineState) error
}

func NewMemoryGate(extract func(ctx context.Context, state PipelineState) error) *MemoryGate {
	return &MemoryGate{extract: extract}
}

func (g *MemoryGate) Run(ctx context.Context, state PipelineState) Result[struct{}] {
	start := time.Now()
	if g.extract == nil {
		return Pass("memory", struct{}{}, time.Since(start))
	}
	if err := g.extract(ctx, state); err != nil {
		return SoftFail("memory", struct{}{}, err.Error(), time.Since(start))
	}
	return Pass("memory", struct{}{}, time.Since(start))
}
