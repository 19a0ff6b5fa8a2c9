package runtime

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome tells the caller what a Load or Submit did to the session.
type Outcome string

const (
	// OutcomeAdvanced means a step was entered and its prompt emitted.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeAwaitingRetry means the session stayed on the same step after a
	// gateway failure or rejection; the user may answer again.
	OutcomeAwaitingRetry Outcome = "awaitingRetry"
	// OutcomeTerminal means the session has no current step any more.
	OutcomeTerminal Outcome = "terminal"
	// OutcomeIgnored means nothing happened: no step loaded, or another call in flight.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeUnavailable means the flow could not be entered at all.
	OutcomeUnavailable Outcome = "unavailable"
	// OutcomeClosed means the session was closed before the transition finished.
	OutcomeClosed Outcome = "closed"
)

// Result is returned by every Load and Submit. Failure is set when the outcome was
// caused by a configuration, transport or validation problem; the problem has
// already been shown to the user as a bot message.
type Result struct {
	Outcome     Outcome    `json:"outcome"`
	Messages    []Message  `json:"messages"`
	CurrentStep string     `json:"currentStep,omitempty"`
	Failure     *FlowError `json:"failure,omitempty"`
}

// Snapshot is an immutable copy of session state for renderers.
type Snapshot struct {
	Session     ChatSession       `json:"session"`
	FlowID      string            `json:"flowId,omitempty"`
	CurrentStep *ChatStep         `json:"currentStep,omitempty"`
	UserData    map[string]string `json:"userData"`
	Transcript  []Message         `json:"transcript"`
	Typing      bool              `json:"typing"`
	Terminal    bool              `json:"terminal"`
	Closed      bool              `json:"closed"`
}

// Session is one customer's run through a flow. Load and Submit are the only
// state transitions; at most one of them runs at a time, overlapping calls are ignored.
type Session struct {
	engine *Engine
	chat   ChatSession

	inFlight atomic.Bool
	closed   atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc

	mu         sync.Mutex
	flow       *ChatFlow
	current    *ChatStep
	loaded     bool
	typing     bool
	userData   *UserData
	transcript []Message
	lastActive time.Time
}

func (s *Session) ChatSession() ChatSession {
	return s.chat
}

// ID is the key the session is registered under: the session id, or the token when the backend issued none.
func (s *Session) ID() string {
	if s.chat.SessionID != "" {
		return s.chat.SessionID
	}
	return s.chat.SessionToken
}

// Close disposes the session. A transition paused in its typing delay is dropped.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
	}
}

func (s *Session) Closed() bool {
	return s.closed.Load()
}

// LastActive returns the time of the last Load or Submit.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Session:    s.chat,
		UserData:   s.userData.All(),
		Transcript: slices.Clone(s.transcript),
		Typing:     s.typing,
		Terminal:   s.loaded && s.current == nil,
		Closed:     s.closed.Load(),
	}
	if s.flow != nil {
		snap.FlowID = s.flow.ID
	}
	if s.current != nil {
		step := *s.current
		snap.CurrentStep = &step
	}
	return snap
}

// currentStep returns a copy of the current step.
func (s *Session) currentStep() (ChatStep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ChatStep{}, false
	}
	return *s.current, true
}

func (s *Session) setCurrent(step *ChatStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = step
}

func (s *Session) setTyping(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = v
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.engine.now()
}

// emit appends a message to the transcript and forwards it to the transcript sink,
// tagged with the step active at emission time.
func (s *Session) emit(sender Sender, text string, typ MessageType, options []string) Message {
	s.mu.Lock()
	stepKey := ""
	if s.current != nil {
		stepKey = s.current.StepKey
	}
	msg := newMessage(sender, text, typ, options, stepKey, s.engine.now())
	s.transcript = append(s.transcript, msg)
	data := s.userData.All()
	s.mu.Unlock()

	s.engine.record(Record{
		SessionToken: s.chat.SessionToken,
		Message:      msg,
		StepKey:      stepKey,
		UserData:     data,
	})
	return msg
}

func (s *Session) emitPrompt(step ChatStep) Message {
	return s.emit(SenderBot, step.MessageText, step.MessageType(), step.Options)
}
