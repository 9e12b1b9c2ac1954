package rules

import "fmt"

// ActionKind enumerates what stored policy code may ask the host to do.
type ActionKind string

const (
	// ActionEmitSpan appends a derived span through the idempotent path.
	ActionEmitSpan ActionKind = "emit_span"
)

// Action is the closed result variant of a policy evaluation. Exactly one
// payload field is set, determined by Kind.
type Action struct {
	Kind     ActionKind
	EmitSpan map[string]any
}

// decodeAction converts one element of a policy result list into an Action.
func decodeAction(v any) (Action, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Action{}, fmt.Errorf("action must be a map, got %T", v)
	}
	if len(m) != 1 {
		return Action{}, fmt.Errorf("action must have exactly one key, got %d", len(m))
	}
	for key, payload := range m {
		switch ActionKind(key) {
		case ActionEmitSpan:
			bag, ok := payload.(map[string]any)
			if !ok {
				return Action{}, fmt.Errorf("emit_span payload must be a map, got %T", payload)
			}
			return Action{Kind: ActionEmitSpan, EmitSpan: bag}, nil
		default:
			return Action{}, fmt.Errorf("unsupported action kind %q", key)
		}
	}
	return Action{}, fmt.Errorf("empty action")
}
