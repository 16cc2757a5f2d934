package gate

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/novaos/novaos/internal/gate")

// Timeout defaults per gate (spec §4.1 "Timeout policy").
const (
	TimeoutIntent        = 2 * time.Second
	TimeoutShield         = 3 * time.Second
	TimeoutLens           = 10 * time.Second
	TimeoutStance         = 1 * time.Second
	TimeoutCapability     = 1 * time.Second
	TimeoutModel          = 15 * time.Second
	TimeoutConstitutional = 3 * time.Second
	TimeoutPipeline       = 30 * time.Second

	maxRegenerations = 2
)

// Outcome is the orchestrator's final, terminal result for one request.
type Outcome struct {
	State             PipelineState
	Status            string // success|await_ack|stopped|degraded|redirect
	ResponseText      string
	PendingAck        *PendingAck
	RedirectTarget    string
	StoppedReason     string
	RegenerationCount int
}

// Orchestrator drives the fixed, ordered gate sequence (spec §4.1).
type Orchestrator struct {
	intent        *IntentGate
	shield        *ShieldGate
	lens          *LensGate
	stance        *StanceGate
	capability    *CapabilityGate
	model         *ModelGate
	constitutional *ConstitutionalGate
	memory        *MemoryGate
}

func NewOrchestrator(intent *IntentGate, shield *ShieldGate, lens *LensGate, stance *StanceGate, cap *CapabilityGate, model *ModelGate, constitutional *ConstitutionalGate, memory *MemoryGate) *Orchestrator {
	return &Orchestrator{
		intent:        intent,
		shield:        shield,
		lens:          lens,
		stance:        stance,
		capability:    cap,
		model:         model,
		constitutional: constitutional,
		memory:        memory,
	}
}

// Run drives one request through the pipeline (spec §4.1). The deadline is
// min(callerDeadline, pipelineTimeout) — spec §5's cancellation rule.
func (o *Orchestrator) Run(ctx context.Context, state PipelineState) Outcome {
	ctx, cancel := context.WithTimeout(ctx, TimeoutPipeline)
	defer cancel()

	ctx, rootSpan := tracer.Start(ctx, "gate.pipeline", trace.WithAttributes(
		attribute.String("novaos.request_id", state.RequestID),
	))
	defer rootSpan.End()

	state.StartTime = time.Now()
	state.NormalizedMessage = normalizeMessage(state.UserMessage)

	// 1. Intent
	intentRes := runWithTimeout(ctx, "intent", TimeoutIntent, func(c context.Context) Result[*Intent] { return o.intent.Run(c, state) })
	state = state.WithIntent(intentRes.Output).WithGateExecuted("intent")

	// 2. Shield — a timeout fails open to pass, never soft_fail/continue
	// with a nil output (spec §4.1: "Shield (fail open => pass)").
	shieldRes := runWithTimeout(ctx, "shield", TimeoutShield, func(c context.Context) Result[*RiskSummary] { return o.shield.Run(c, state) })
	if shieldRes.Output == nil {
		shieldRes = Pass("shield", &RiskSummary{InterventionLevel: "none", Reason: "risk assessment timed out"}, TimeoutShield)
	}
	state = state.WithRiskSummary(shieldRes.Output).WithGateExecuted("shield")
	if shieldRes.Action == ActionStop {
		state = state.WithStance(StanceShield).WithStopped("shield", shieldRes.FailureReason)
		return terminal(state, "stopped", "", shieldRes.FailureReason)
	}
	if shieldRes.Action == ActionAwaitAck {
		state = state.WithStance(StanceShield)
		return Outcome{State: state, Status: "await_ack", PendingAck: shieldRes.Output.PendingAck, RegenerationCount: state.RegenerationCount}
	}
	if shieldRes.Output != nil && shieldRes.Output.ControlTrigger != "" {
		state = state.WithStance(StanceControl)
	}

	// 3. Lens
	lensRes := runWithTimeout(ctx, "lens", TimeoutLens, func(c context.Context) Result[*LensResult] { return o.lens.Run(c, state) })
	state = state.WithLensResult(lensRes.Output).WithGateExecuted("lens")

	// 4. Stance (skip if Shield already redirected to control)
	if state.Stance != StanceControl {
		stanceRes := runWithTimeout(ctx, "stance", TimeoutStance, func(c context.Context) Result[Stance] { return o.stance.Run(c, state) })
		state = state.WithStance(stanceRes.Output).WithGateExecuted("stance")
		if stanceRes.Action == ActionRedirect {
			state = state.WithRedirect(stanceRes.RedirectTarget)
			return terminal(state, "redirect", "", "")
		}
	} else {
		state = state.WithGateExecuted("stance")
	}

	// 5. Capability
	capRes := runWithTimeout(ctx, "capability", TimeoutCapability, func(c context.Context) Result[*CapabilityOutput] { return o.capability.Run(c, state) })
	state = state.WithGateExecuted("capability")
	if capRes.Output != nil {
		state = state.WithSwordMode(capRes.Output.SwordMode)
		if capRes.Output.EvidencePack != nil {
			state = state.WithEvidencePack(capRes.Output.EvidencePack)
		}
	}
	if state.SwordMode {
		return terminal(state, "redirect", "", "")
	}

	// 6. Model — fatal on failure or timeout (spec §4.1: "unless the gate
	// is Model (fatal)").
	modelRes := runWithTimeout(ctx, "model", TimeoutModel, func(c context.Context) Result[*Generation] { return o.model.Run(c, state) })
	state = state.WithGateExecuted("model")
	if modelRes.Action == ActionStop || modelRes.Output == nil {
		reason := modelRes.FailureReason
		if reason == "" {
			reason = "model gate timed out"
		}
		state = state.WithStopped("model", reason)
		return terminal(state, "stopped", "", reason)
	}
	state = state.WithGeneration(modelRes.Output)

	// 7. Constitutional, with bounded regeneration loop.
	for {
		constRes := runWithTimeout(ctx, "constitutional", TimeoutConstitutional, func(c context.Context) Result[any] {
			r := o.constitutional.Run(c, state)
			return Result[any]{GateID: r.GateID, Status: r.Status, Action: r.Action, Output: r.Output, FailureReason: r.FailureReason, ExecutionTimeMs: r.ExecutionTimeMs}
		})
		state = state.WithGateExecuted("constitutional")

		if constRes.Action != ActionRegenerate {
			break
		}
		if state.RegenerationCount >= maxRegenerations {
			break
		}
		regenRes := runWithTimeout(ctx, "model_regenerate", TimeoutModel, func(c context.Context) Result[*Generation] {
			return o.model.RunRegeneration(c, state, constRes.FailureReason)
		})
		if regenRes.Action == ActionStop {
			break
		}
		state = state.WithRegeneration(regenRes.Output)
	}

	// 8. Memory (best-effort, never fails the response).
	_ = runWithTimeout(ctx, "memory", 2*time.Second, func(c context.Context) Result[struct{}] { return o.memory.Run(c, state) })
	state = state.WithGateExecuted("memory")

	status := "success"
	if state.RegenerationCount >= maxRegenerations {
		status = "degraded"
	}
	responseText := ""
	if state.Generation != nil {
		responseText = state.Generation.Text
	}
	rootSpan.SetAttributes(attribute.String("novaos.status", status))
	return Outcome{State: state, Status: status, ResponseText: responseText, RegenerationCount: state.RegenerationCount}
}

func terminal(state PipelineState, status, responseText, reason string) Outcome {
	return Outcome{State: state, Status: status, ResponseText: responseText, StoppedReason: reason, RedirectTarget: state.RedirectTo, RegenerationCount: state.RegenerationCount}
}

// runWithTimeout enforces a per-gate deadline and converts a timeout into
// a soft_fail/continue result (spec §4.1: "Exceeding a per-gate timeout
// yields soft_fail + continue unless the gate is Model (fatal) or Shield
// (fail open => pass)").
func runWithTimeout[T any](ctx context.Context, gateName string, timeout time.Duration, fn func(context.Context) Result[T]) Result[T] {
	spanCtx, span := tracer.Start(ctx, "gate."+gateName)
	defer span.End()

	callCtx, cancel := context.WithTimeout(spanCtx, timeout)
	defer cancel()

	type outcome struct {
		result Result[T]
	}
	ch := make(chan outcome, 1)
	go func() {
		ch <- outcome{result: fn(callCtx)}
	}()

	select {
	case o := <-ch:
		span.SetAttributes(
			attribute.String("novaos.gate.status", string(o.result.Status)),
			attribute.String("novaos.gate.action", string(o.result.Action)),
		)
		if o.result.Status == StatusHardFail {
			span.SetStatus(codes.Error, o.result.FailureReason)
		}
		return o.result
	case <-callCtx.Done():
		var zero T
		span.SetStatus(codes.Error, "gate timed out")
		return SoftFail("", zero, "gate timed out", timeout)
	}
}
