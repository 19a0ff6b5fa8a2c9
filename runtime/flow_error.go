package runtime

import (
	"errors"
	"fmt"
)

// FlowErrorType classifies how a failure is surfaced to the session.
type FlowErrorType string

const (
	// ErrorTypeConfiguration covers flows that cannot be walked as authored.
	ErrorTypeConfiguration FlowErrorType = "configuration"
	// ErrorTypeTransport covers side-effect calls that failed or timed out.
	ErrorTypeTransport FlowErrorType = "transport"
	// ErrorTypeValidation covers side-effect responses that rejected the user's input.
	ErrorTypeValidation FlowErrorType = "validation"
	// ErrorTypeAudit covers transcript sink failures.
	ErrorTypeAudit FlowErrorType = "audit"
)

type FlowErrorCode string

const (
	ErrorCodeNoSteps         FlowErrorCode = "NO_STEPS"
	ErrorCodeNoInitialStep   FlowErrorCode = "NO_INITIAL_STEP"
	ErrorCodeDuplicateStep   FlowErrorCode = "DUPLICATE_STEP"
	ErrorCodeMultipleInitial FlowErrorCode = "MULTIPLE_INITIAL"
	ErrorCodeDanglingTarget  FlowErrorCode = "DANGLING_TARGET"
	ErrorCodeInvalidShape    FlowErrorCode = "INVALID_SHAPE"
	ErrorCodeGatewayFailed   FlowErrorCode = "GATEWAY_FAILED"
	ErrorCodeGatewayRejected FlowErrorCode = "GATEWAY_REJECTED"
	ErrorCodeSinkFailed      FlowErrorCode = "SINK_FAILED"
)

// FlowError is the canonical error type for chat flow failures. The runtime never
// returns it from Load or Submit; it is logged and reported through FlowReport.
type FlowError struct {
	Type    FlowErrorType `json:"type"`
	Code    FlowErrorCode `json:"code"`
	Message string        `json:"message"`
	Step    string        `json:"step,omitempty"`
	Cause   error         `json:"-"`
}

func (e *FlowError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("[%s/%s] %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s/%s] %s (step: %s)", e.Type, e.Code, e.Message, e.Step)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

func newFlowError(typ FlowErrorType, code FlowErrorCode, step, format string, args ...any) *FlowError {
	return &FlowError{
		Type:    typ,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Step:    step,
	}
}

// HasCode reports whether err, or any error it wraps or joins, is a FlowError carrying code.
func HasCode(err error, code FlowErrorCode) bool {
	switch e := err.(type) {
	case nil:
		return false
	case *FlowError:
		return e.Code == code || HasCode(e.Cause, code)
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if HasCode(inner, code) {
				return true
			}
		}
		return false
	}
	return HasCode(errors.Unwrap(err), code)
}
