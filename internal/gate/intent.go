package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/novaos/novaos/internal/llm"
)

const intentRubric = `Classify the user's message. Respond with JSON only: ` +
	`{"primaryRoute": "lens|sword|control|shield", "stanceHint": "lens|sword|control|shield", ` +
	`"urgency": "low|normal|high", "liveData": bool, "learningIntent": bool, "topic": string}.`

// IntentGate classifies {primaryRoute, stanceHint, urgency, liveData,
// learningIntent, topic} from the message (spec §4.1 stage 1).
type IntentGate struct {
	classifier llm.Provider
}

func NewIntentGate(classifier llm.Provider) *IntentGate {
	return &IntentGate{classifier: classifier}
}

func (g *IntentGate) Run(ctx context.Context, state PipelineState) Result[*Intent] {
	start := time.Now()
	normalized := normalizeMessage(state.UserMessage)

	if g.classifier == nil || !g.classifier.IsAvailable() {
		return SoftFail("intent", fallbackIntent(normalized), "classifier unavailable", time.Since(start))
	}

	completion, err := g.classifier.Complete(ctx, intentRubric, nil, normalized, llm.Params{Temperature: 0})
	if err != nil {
		return SoftFail("intent", fallbackIntent(normalized), err.Error(), time.Since(start))
	}

	raw := completion.Text
	if s := strings.IndexByte(raw, '{'); s >= 0 {
		if e := strings.LastIndexByte(raw, '}'); e >= s {
			raw = raw[s : e+1]
		}
	}

	var parsed struct {
		PrimaryRoute   string `json:"primaryRoute"`
		StanceHint     string `json:"stanceHint"`
		Urgency        string `json:"urgency"`
		LiveData       bool   `json:"liveData"`
		LearningIntent bool   `json:"learningIntent"`
		Topic          string `json:"topic"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return SoftFail("intent", fallbackIntent(normalized), fmt.Sprintf("parse error: %v", err), time.Since(start))
	}

	intent := &Intent{
		PrimaryRoute:   parsed.PrimaryRoute,
		StanceHint:     Stance(parsed.StanceHint),
		Urgency:        parsed.Urgency,
		LiveData:       parsed.LiveData,
		LearningIntent: parsed.LearningIntent,
		Topic:          parsed.Topic,
	}
	return Pass("intent", intent, time.Since(start))
}

func fallbackIntent(normalized string) *Intent {
	return &Intent{PrimaryRoute: "lens", StanceHint: StanceLens, Urgency: "normal", LiveData: containsLiveDataHint(normalized)}
}

func containsLiveDataHint(msg string) bool {
	for _, kw := range []string{"price", "weather", "exchange rate", "stock", "crypto", "time in"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// normalizeMessage lowercases, trims and collapses whitespace; used as the
// basis for classification and keyword fallback. Ack message hashes are
// computed over the raw user message, not this form.
func normalizeMessage(msg string) string {
	trimmed := strings.TrimSpace(msg)
	var b strings.Builder
	prevSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !prevSpace {
				b.WriteByte(' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
