// Package expr evaluates the visibility, required and workflow-trigger
// conditions used throughout a form: a deterministic, side-effect-free
// expression language over a single "answers" map (C2).
package expr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/rs/zerolog/log"
)

// ErrInvalidCondition is returned when an expression contains anything
// outside the whitelisted grammar, or does not evaluate to a boolean.
// Callers must reject the form/workflow create or update that carried it
// rather than store it (spec: fail at create time, not at eval time).
var ErrInvalidCondition = errors.New("invalid condition expression")

// Condition is a compiled expression ready for repeated evaluation against
// different answer maps.
type Condition struct {
	source  string
	program cel.Program
}

// String returns the original expression text.
func (c *Condition) String() string { return c.source }

// Evaluate runs the condition against answers (a map of question id to the
// submitted value). Runtime type errors are not propagated: per §4.2 they
// are logged and the condition is treated as false.
func (c *Condition) Evaluate(answers map[string]any) bool {
	if answers == nil {
		answers = map[string]any{}
	}

	out, _, err := c.program.Eval(map[string]any{"answers": answers})
	if err != nil {
		log.Warn().Err(err).Str("expression", c.source).Msg("condition evaluation failed, treating as false")
		return false
	}

	b, ok := out.Value().(bool)
	if !ok {
		log.Warn().Str("expression", c.source).Msg("condition did not evaluate to a boolean, treating as false")
		return false
	}
	return b
}

// Evaluator compiles and caches conditions by source text so repeated
// evaluation of the same expression across many responses skips
// recompilation.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*Condition
}

// NewEvaluator creates an Evaluator with a fresh compile cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*Condition)}
}

// Compile validates expr against the whitelisted grammar and returns the
// reusable compiled Condition. Compile failures are ErrInvalidCondition and
// must surface as a create/update-time rejection, not stored.
func (e *Evaluator) Compile(exprStr string) (*Condition, error) {
	e.mu.RLock()
	cached, ok := e.cache[exprStr]
	e.mu.RUnlock()
	if ok {
		return cached, nil
	}

	cond, err := Compile(exprStr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[exprStr] = cond
	e.mu.Unlock()

	return cond, nil
}

// Compile validates and compiles a single expression without caching.
func Compile(exprStr string) (*Condition, error) {
	env, err := sharedEnv()
	if err != nil {
		return nil, fmt.Errorf("building evaluator environment: %w", err)
	}

	ast, issues := env.Compile(exprStr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCondition, issues.Err())
	}

	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("%w: expression must evaluate to a boolean, got %s", ErrInvalidCondition, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCondition, err)
	}

	return &Condition{source: exprStr, program: program}, nil
}

// ValueExpr is a compiled expression used for calculated-field values,
// where (unlike Condition) the result isn't constrained to a boolean.
type ValueExpr struct {
	source  string
	program cel.Program
}

// Evaluate runs the expression against answers and returns its native Go
// value. A runtime error returns nil, matching Evaluate's "treat as false"
// policy but for values instead of booleans.
func (v *ValueExpr) Evaluate(answers map[string]any) any {
	if answers == nil {
		answers = map[string]any{}
	}
	out, _, err := v.program.Eval(map[string]any{"answers": answers})
	if err != nil {
		log.Warn().Err(err).Str("expression", v.source).Msg("calculated value evaluation failed")
		return nil
	}
	return out.Value()
}

// CompileValue compiles exprStr without constraining its output type, for
// calculated-field values rather than conditions.
func CompileValue(exprStr string) (*ValueExpr, error) {
	env, err := sharedEnv()
	if err != nil {
		return nil, fmt.Errorf("building evaluator environment: %w", err)
	}

	ast, issues := env.Compile(exprStr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCondition, issues.Err())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCondition, err)
	}

	return &ValueExpr{source: exprStr, program: program}, nil
}

var (
	celEnv     *cel.Env
	celEnvOnce sync.Once
	celEnvErr  error
)

// sharedEnv builds the single CEL environment every condition compiles
// against. CEL's own grammar already restricts expressions to the declared
// variables and functions below, with no attribute access, imports, or
// function definitions — the whitelisted-AST requirement of §4.2/§9 is met
// by construction rather than by writing a bespoke parser.
func sharedEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("answers", cel.MapType(cel.StringType, cel.DynType)),
			cel.Function("get",
				cel.MemberOverload("answers_get_key",
					[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
					cel.DynType,
					cel.BinaryBinding(mapGet),
				),
				cel.MemberOverload("answers_get_key_default",
					[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType, cel.DynType},
					cel.DynType,
					cel.FunctionBinding(mapGetDefault),
				),
			),
			cel.Function("float",
				cel.Overload("float_dyn", []*cel.Type{cel.DynType}, cel.DoubleType,
					cel.UnaryBinding(func(v ref.Val) ref.Val { return v.ConvertToType(types.DoubleType) }),
				),
			),
			cel.Function("str",
				cel.Overload("str_dyn", []*cel.Type{cel.DynType}, cel.StringType,
					cel.UnaryBinding(func(v ref.Val) ref.Val { return v.ConvertToType(types.StringType) }),
				),
			),
			cel.Function("len",
				cel.Overload("len_dyn", []*cel.Type{cel.DynType}, cel.IntType,
					cel.UnaryBinding(sizeOf),
				),
			),
		)
	})
	return celEnv, celEnvErr
}

func mapGet(lhs, key ref.Val) ref.Val {
	m, ok := lhs.(traits.Mapper)
	if !ok {
		return types.NewErr("get: receiver is not a map")
	}
	if v, found := m.Find(key); found {
		return v
	}
	return types.NullValue
}

func mapGetDefault(args ...ref.Val) ref.Val {
	if len(args) != 3 {
		return types.NewErr("get: expected 3 arguments, got %d", len(args))
	}
	m, ok := args[0].(traits.Mapper)
	if !ok {
		return types.NewErr("get: receiver is not a map")
	}
	if v, found := m.Find(args[1]); found {
		return v
	}
	return args[2]
}

func sizeOf(v ref.Val) ref.Val {
	if sizer, ok := v.(traits.Sizer); ok {
		return sizer.Size()
	}
	return types.NewErr("len: unsupported type %s", v.Type())
}
