package runtime

import "context"

// FlowRepository supplies chat flows. Flows are owned by the backend; the runtime only reads them.
type FlowRepository interface {
	Active(ctx context.Context) (*ChatFlow, error)
	Get(ctx context.Context, id string) (*ChatFlow, error)
}

// SessionStarter issues the session token/id pair for a newly opened widget.
type SessionStarter interface {
	StartSession(ctx context.Context) (ChatSession, error)
}

// SideEffectGateway calls an arbitrary step endpoint and returns the raw JSON body.
// Implementations must return an error for transport failures and non-2xx responses.
type SideEffectGateway interface {
	Call(ctx context.Context, endpoint, method string, payload any) ([]byte, error)
}

// TranscriptSink persists one transcript entry. Delivery is at-most-once.
type TranscriptSink interface {
	Record(ctx context.Context, record Record) error
}

// ConditionEvaluator decides whether a next_step_logic condition matches the user data.
type ConditionEvaluator interface {
	Match(cond Condition, data map[string]string) (bool, error)
}

// FlowLoader loads flow definitions from files.
type FlowLoader interface {
	Extensions() []string
	Load(filePath string) (ChatFlow, error)
}
