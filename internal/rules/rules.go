package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

var (
	functionEnvOnce sync.Once
	functionEnv     *cel.Env
	functionEnvErr  error

	policyEnvOnce sync.Once
	policyEnv     *cel.Env
	policyEnvErr  error

	functionPrograms sync.Map // expr string -> cel.Program
	policyPrograms   sync.Map // expr string -> cel.Program
)

func getFunctionEnv() (*cel.Env, error) {
	functionEnvOnce.Do(func() {
		functionEnv, functionEnvErr = cel.NewEnv(
			cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
			cel.Variable("env", cel.MapType(cel.StringType, cel.StringType)),
		)
	})
	return functionEnv, functionEnvErr
}

func getPolicyEnv() (*cel.Env, error) {
	policyEnvOnce.Do(func() {
		policyEnv, policyEnvErr = cel.NewEnv(
			cel.Variable("span", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return policyEnv, policyEnvErr
}

func loadOrCompile(env *cel.Env, cache *sync.Map, expr string) (cel.Program, error) {
	if cached, ok := cache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := env.Program(ast, cel.InterruptCheckFrequency(100))
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	cache.Store(expr, prg)
	return prg, nil
}

// EvaluateFunction runs a function span's stored expression over input and
// the string environment. Non-map results are wrapped as {"value": result}.
func EvaluateFunction(ctx context.Context, code string, input map[string]any, env map[string]string) (map[string]any, error) {
	celEnv, err := getFunctionEnv()
	if err != nil {
		return nil, err
	}
	prg, err := loadOrCompile(celEnv, &functionPrograms, code)
	if err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}
	if env == nil {
		env = map[string]string{}
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{
		"input": celValues(input),
		"env":   env,
	})
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	native, err := nativeValue(out)
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	if m, ok := native.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"value": native}, nil
}

// EvaluatePolicy runs a policy span's stored expression over a candidate
// span, decoded as a map. The result must be a list of actions.
func EvaluatePolicy(ctx context.Context, code string, candidate map[string]any) ([]Action, error) {
	celEnv, err := getPolicyEnv()
	if err != nil {
		return nil, err
	}
	prg, err := loadOrCompile(celEnv, &policyPrograms, code)
	if err != nil {
		return nil, err
	}
	out, _, err := prg.ContextEval(ctx, map[string]any{
		"span": celValues(candidate),
	})
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	native, err := nativeValue(out)
	if err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	raw, ok := native.([]any)
	if !ok {
		return nil, fmt.Errorf("result must be a list of actions, got %T", native)
	}
	actions := make([]Action, 0, len(raw))
	for i, el := range raw {
		action, err := decodeAction(el)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, action)
	}
	return actions, nil
}

// celValues rewrites json.Number values, which the CEL type adapter does
// not understand, into int64 before an evaluation.
func celValues(bag map[string]any) map[string]any {
	out := make(map[string]any, len(bag))
	for k, v := range bag {
		out[k] = celValue(v)
	}
	return out
}

func celValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		return val.String()
	case map[string]any:
		return celValues(val)
	case []any:
		out := make([]any, len(val))
		for i, el := range val {
			out[i] = celValue(el)
		}
		return out
	default:
		return v
	}
}

// nativeValue walks a CEL result into plain Go values. Results feed span
// bags, so the shapes mirror what the canonical encoder accepts: floats
// are rejected rather than silently truncated.
func nativeValue(v ref.Val) (any, error) {
	switch val := v.(type) {
	case types.Bool:
		return bool(val), nil
	case types.Int:
		return int64(val), nil
	case types.Uint:
		return int64(val), nil
	case types.Double:
		return nil, fmt.Errorf("floats are forbidden in results: %v", val)
	case types.String:
		return string(val), nil
	case types.Null:
		return nil, nil
	}
	switch val := v.(type) {
	case traits.Lister:
		var out []any
		for it := val.Iterator(); it.HasNext() == types.True; {
			elem, err := nativeValue(it.Next())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		if out == nil {
			out = []any{}
		}
		return out, nil
	case traits.Mapper:
		out := map[string]any{}
		for it := val.Iterator(); it.HasNext() == types.True; {
			key := it.Next()
			keyStr, ok := key.(types.String)
			if !ok {
				return nil, fmt.Errorf("map keys must be strings, got %s", key.Type())
			}
			elem, err := nativeValue(val.Get(key))
			if err != nil {
				return nil, err
			}
			out[string(keyStr)] = elem
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported result type %s", v.Type())
}
