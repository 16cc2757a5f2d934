package llm

import "context"

// StubProvider is the deterministic, always-succeeds provider that
// guarantees pipeline completion (spec §4.6: "The deterministic stub
// always succeeds so that pipeline completion is guaranteed").
type StubProvider struct{}

func NewStubProvider() *StubProvider { return &StubProvider{} }

func (s *StubProvider) Name() string      { return "stub" }
func (s *StubProvider) IsAvailable() bool { return true }

func (s *StubProvider) Complete(_ context.Context, _ string, _ []Message, userText string, params Params) (*Completion, error) {
	text := "I'm unable to reach a full language model right now, but here's what I can say: "
	if userText != "" {
		text += "I received your message and will follow up once I can generate a complete response."
	} else {
		text += "please try again shortly."
	}
	return &Completion{Text: text, TokensUsed: 0, Model: "stub"}, nil
}
