// Package novaosapi defines the wire-level request/response envelopes for
// the Gate Pipeline's upstream contract (spec §5 "Upstream (to
// callers)"). It is a pure data-contract package — no transport, no
// storage — so both the pipeline's HTTP edge and any future RPC edge can
// depend on it without pulling in internal/gate's orchestration machinery.
package novaosapi

import "time"

// Status is the terminal classification of a pipeline run, carried on
// the wire as ResponseEnvelope.Status.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusAwaitAck Status = "await_ack"
	StatusStopped  Status = "stopped"
	StatusDegraded Status = "degraded"
	StatusRedirect Status = "redirect"
	StatusError    Status = "error"
)

// RequestEnvelope is the inbound shape callers submit to the pipeline.
type RequestEnvelope struct {
	UserID      string `json:"userId"`
	UserMessage string `json:"userMessage"`

	// AckToken and AckText carry a prior soft-veto's acknowledgment back
	// for validation (spec §4.3 "Validation"); both empty on a fresh
	// request.
	AckToken string `json:"ackToken,omitempty"`
	AckText  string `json:"ackText,omitempty"`
}

// AckRequired is the pending-acknowledgment payload returned on
// status=await_ack (spec §5).
type AckRequired struct {
	Token        string    `json:"token"`
	RequiredText string    `json:"requiredText"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Metadata carries per-response bookkeeping the caller can log or
// display but never branches on.
type Metadata struct {
	RequestID    string `json:"requestId"`
	TotalTimeMs  int64  `json:"totalTimeMs"`
	Regenerations int   `json:"regenerations,omitempty"`
}

// ResponseEnvelope is the synchronous upstream contract (spec §5):
// {status, response, stance?, redirect?, ackRequired?, stoppedReason?,
// metadata}.
type ResponseEnvelope struct {
	Status        Status       `json:"status"`
	Response      string       `json:"response,omitempty"`
	Stance        string       `json:"stance,omitempty"`
	Redirect      string       `json:"redirect,omitempty"`
	AckRequired   *AckRequired `json:"ackRequired,omitempty"`
	StoppedReason string       `json:"stoppedReason,omitempty"`
	Metadata      Metadata     `json:"metadata"`
}

// SSEEventType enumerates the streaming variant's typed events (spec
// §5: "Streaming variant emits typed events: meta, thinking, token,
// done, error").
type SSEEventType string

const (
	SSEEventMeta     SSEEventType = "meta"
	SSEEventThinking SSEEventType = "thinking"
	SSEEventToken    SSEEventType = "token"
	SSEEventDone     SSEEventType = "done"
	SSEEventError    SSEEventType = "error"
)

// SSEEvent is one server-sent event frame. Data carries the event-specific
// payload, already JSON-marshaled by the caller's transport layer — this
// package only fixes the event vocabulary, not the framing.
type SSEEvent struct {
	Event SSEEventType `json:"event"`
	Data  any          `json:"data"`
}

// SSEMetaData is the payload of the first "meta" event.
type SSEMetaData struct {
	RequestID string `json:"requestId"`
	Stance    string `json:"stance,omitempty"`
}

// SSETokenData is the payload of each "token" event.
type SSETokenData struct {
	Text string `json:"text"`
}

// SSEDoneData is the payload of the terminal "done" event.
type SSEDoneData struct {
	Metadata Metadata `json:"metadata"`
}
