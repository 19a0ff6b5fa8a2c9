package runtime

import (
	"context"
	"errors"
)

// Load enters flow at its initial step and emits that step's prompt. A flow with no
// step marked is_initial starts at its first step. A missing or empty flow leaves
// the session unavailable.
func (s *Session) Load(ctx context.Context, flow *ChatFlow) Result {
	if s.closed.Load() {
		return s.finish(Result{Outcome: OutcomeClosed})
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return s.finish(Result{Outcome: OutcomeIgnored})
	}
	defer s.inFlight.Store(false)
	s.touch()

	l := s.engine.l
	if flow == nil || len(flow.Steps) == 0 {
		failure := newFlowError(ErrorTypeConfiguration, ErrorCodeNoSteps, "", "flow has no steps")
		l.WarnContext(ctx, "Flow cannot be entered", "session", s.chat.SessionToken, "error", failure)

		s.mu.Lock()
		s.flow = flow
		s.current = nil
		s.loaded = false
		s.mu.Unlock()

		msg := s.emit(SenderBot, s.engine.cfg.Messages.Unavailable, MessageTypeMessage, nil)
		return s.finish(Result{Outcome: OutcomeUnavailable, Messages: []Message{msg}, Failure: failure})
	}

	step, marked, _ := flow.InitialStep()
	if !marked {
		l.WarnContext(ctx, "Flow has no initial step, starting at the first step",
			"session", s.chat.SessionToken,
			"flow", flow.ID,
			"step", step.StepKey,
			"code", ErrorCodeNoInitialStep)
	}

	s.mu.Lock()
	s.flow = flow
	s.current = &step
	s.loaded = true
	s.userData = NewUserData()
	s.mu.Unlock()

	l.InfoContext(ctx, "Flow loaded", "session", s.chat.SessionToken, "flow", flow.ID, "step", step.StepKey)

	msg := s.emitPrompt(step)
	return s.finish(Result{Outcome: OutcomeAdvanced, Messages: []Message{msg}, CurrentStep: step.StepKey})
}

// Submit answers the current step and moves the session to its next state.
//
// The answer is recorded under the step key. apiCall steps with an endpoint call the
// side-effect gateway first: a transport failure or a rejected input keeps the session
// on the step, and a ticket number ends the session. Otherwise the next step is
// resolved (see ResolveNextStep), the typing delay elapses, and the next prompt or
// the farewell is emitted.
func (s *Session) Submit(ctx context.Context, answer string) Result {
	if s.closed.Load() {
		return s.finish(Result{Outcome: OutcomeClosed})
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.engine.l.DebugContext(ctx, "Submit ignored, transition in flight", "session", s.chat.SessionToken)
		return s.finish(Result{Outcome: OutcomeIgnored})
	}
	defer s.inFlight.Store(false)

	step, ok := s.currentStep()
	if !ok {
		return s.finish(Result{Outcome: OutcomeIgnored})
	}
	s.touch()

	res := Result{CurrentStep: step.StepKey}
	res.Messages = append(res.Messages, s.emit(SenderUser, answer, inputMessageType(step), nil))

	s.mu.Lock()
	s.userData.Set(step.StepKey, answer)
	s.mu.Unlock()

	if step.StepType == StepTypeAPICall && step.hasEndpoint() {
		if stop, done := s.runSideEffect(ctx, step, answer, &res); stop {
			return s.finish(done)
		}
	}

	s.mu.Lock()
	data := s.userData.All()
	s.mu.Unlock()

	route, err := ResolveNextStep(step, answer, data, s.engine.evaluator)
	if err != nil {
		s.engine.l.WarnContext(ctx, "Skipped conditions while resolving next step",
			"session", s.chat.SessionToken,
			"step", step.StepKey,
			"error", err)
	}

	if !s.pause() {
		res.Outcome = OutcomeClosed
		return s.finish(res)
	}

	return s.finish(s.advance(ctx, step, route, res))
}

// runSideEffect calls the gateway for step. stop reports whether the transition
// ends here, with done as the result to return.
func (s *Session) runSideEffect(ctx context.Context, step ChatStep, answer string, res *Result) (stop bool, done Result) {
	e := s.engine
	l := e.l

	s.mu.Lock()
	data := s.userData.All()
	s.mu.Unlock()

	payload := gatewayPayload(e.cfg, s.chat, step, answer, data)
	method := gatewayMethod(step.APIConfig)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.GatewayTimeout)
	defer cancel()

	resp, err := s.callGateway(callCtx, step.APIConfig.Endpoint, method, payload)
	if err != nil {
		e.metrics.observeGateway("failed")
		failure := newFlowError(ErrorTypeTransport, ErrorCodeGatewayFailed, step.StepKey, "%s %s: %v", method, step.APIConfig.Endpoint, err)
		failure.Cause = err
		l.ErrorContext(ctx, "Side-effect call failed",
			"session", s.chat.SessionToken,
			"step", step.StepKey,
			"endpoint", step.APIConfig.Endpoint,
			"error", failure)

		res.Messages = append(res.Messages, s.emit(SenderBot, e.cfg.Messages.Apology, MessageTypeMessage, nil))
		res.Outcome = OutcomeAwaitingRetry
		res.Failure = failure
		return true, *res
	}

	s.mu.Lock()
	s.userData.Merge(resp.UserData)
	s.mu.Unlock()

	switch {
	case resp.Final():
		e.metrics.observeGateway("final")
		l.InfoContext(ctx, "Side-effect step completed the session",
			"session", s.chat.SessionToken,
			"step", step.StepKey,
			"ticket", resp.TicketNumber)

		res.Messages = append(res.Messages, s.emit(SenderBot, e.cfg.Messages.ticketCreated(resp.TicketNumber), MessageTypeMessage, nil))
		s.setCurrent(nil)
		res.Outcome = OutcomeTerminal
		res.CurrentStep = ""
		return true, *res

	case resp.Rejected():
		e.metrics.observeGateway("rejected")
		text := rejectionText(e.cfg.Messages, step, resp)
		failure := newFlowError(ErrorTypeValidation, ErrorCodeGatewayRejected, step.StepKey, "input rejected by %s", step.APIConfig.Endpoint)
		l.InfoContext(ctx, "Side-effect step rejected input",
			"session", s.chat.SessionToken,
			"step", step.StepKey,
			"reason", text)

		res.Messages = append(res.Messages, s.emit(SenderBot, text, MessageTypeMessage, nil))
		res.Outcome = OutcomeAwaitingRetry
		res.Failure = failure
		return true, *res
	}

	e.metrics.observeGateway("ok")
	return false, Result{}
}

func (s *Session) callGateway(ctx context.Context, endpoint, method string, payload any) (GatewayResponse, error) {
	if s.engine.gateway == nil {
		return GatewayResponse{}, errors.New("no side-effect gateway configured")
	}
	body, err := s.engine.gateway.Call(ctx, endpoint, method, payload)
	if err != nil {
		return GatewayResponse{}, err
	}
	return ParseGatewayResponse(body)
}

// pause shows the typing indicator for the configured delay. It reports false when
// the session was closed meanwhile, in which case the continuation must be dropped.
func (s *Session) pause() bool {
	s.setTyping(true)
	_ = s.engine.sleep(s.ctx, s.engine.cfg.TypingDelay)
	s.setTyping(false)
	return !s.closed.Load()
}

func (s *Session) advance(ctx context.Context, from ChatStep, route Route, res Result) Result {
	l := s.engine.l
	msgs := s.engine.cfg.Messages

	if route.End() {
		res.Messages = append(res.Messages, s.emit(SenderBot, msgs.Farewell, MessageTypeMessage, nil))
		s.setCurrent(nil)
		res.Outcome = OutcomeTerminal
		res.CurrentStep = ""
		l.InfoContext(ctx, "Flow finished", "session", s.chat.SessionToken, "step", from.StepKey)
		return res
	}

	s.mu.Lock()
	next, found := s.flow.Step(route.StepKey)
	s.mu.Unlock()

	if !found {
		failure := newFlowError(ErrorTypeConfiguration, ErrorCodeDanglingTarget, from.StepKey, "next step %q does not exist", route.StepKey)
		l.WarnContext(ctx, "Route points at a missing step",
			"session", s.chat.SessionToken,
			"step", from.StepKey,
			"target", route.StepKey,
			"source", route.Source,
			"error", failure)

		res.Messages = append(res.Messages, s.emit(SenderBot, msgs.BrokenLink, MessageTypeMessage, nil))
		s.setCurrent(nil)
		res.Outcome = OutcomeTerminal
		res.CurrentStep = ""
		res.Failure = failure
		return res
	}

	s.setCurrent(&next)
	res.Messages = append(res.Messages, s.emitPrompt(next))
	res.Outcome = OutcomeAdvanced
	res.CurrentStep = next.StepKey

	l.InfoContext(ctx, "Step entered",
		"session", s.chat.SessionToken,
		"from", from.StepKey,
		"step", next.StepKey,
		"source", route.Source)
	return res
}

func (s *Session) finish(res Result) Result {
	s.engine.metrics.observeOutcome(res.Outcome)
	return res
}

func rejectionText(m Messages, step ChatStep, resp GatewayResponse) string {
	if resp.ErrorMessage != "" {
		return resp.ErrorMessage
	}
	if step.ValidationRules != nil && step.ValidationRules.ErrorMessage != "" {
		return step.ValidationRules.ErrorMessage
	}
	return m.InvalidInput
}

func inputMessageType(step ChatStep) MessageType {
	if step.StepType == StepTypeOptions {
		return MessageTypeOption
	}
	return MessageTypeInput
}
