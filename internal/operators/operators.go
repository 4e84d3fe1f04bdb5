// Package operators is the closed table of node implementations: one
// struct per operator name, each declaring its shape contract and
// writes-effect and implementing either RunSync or RunAsync (never
// both). The table is built once in init() and never mutated after,
// a tagged dispatch over a closed set keyed by a fixed string name
// instead of a runtime plugin registry.
package operators

import (
	"context"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/expr"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/plan"
	"github.com/smilemakc/dagengine/internal/pred"
)

// Shape identifies one of the five output-shape contracts the
// scheduler validates against after an operator runs.
type Shape int

const (
	SourceFanoutDense Shape = iota
	UnaryPreserveView
	UnarySubsetView
	PrefixOfInput
	BinaryConcatDense
)

func (s Shape) String() string {
	switch s {
	case SourceFanoutDense:
		return "source-fanout-dense"
	case UnaryPreserveView:
		return "unary-preserve-view"
	case UnarySubsetView:
		return "unary-subset-view"
	case PrefixOfInput:
		return "prefix-of-input"
	case BinaryConcatDense:
		return "binary-concat-dense"
	default:
		return "unknown"
	}
}

// EvalEnv bundles the pieces an operator's sync evaluation needs to
// interpret expression and predicate params: the parameter environment
// and the regex match cache.
type EvalEnv struct {
	Params expr.Env
	Regex  pred.Matcher
}

// Operator is one entry of the closed operator table. An operator is
// either sync or async, never both: the unused Run method returns a
// KindEvaluation error and is never called by a correctly driven
// scheduler, which dispatches on IsAsync.
type Operator interface {
	Name() string
	Shape() Shape
	IsAsync() bool

	// WritesEffect returns the static writes-effect IR for this
	// operator's node params (nil for operators that never write a
	// column, e.g. filter/take/sort/concat).
	WritesEffect(params map[string]any) *plan.Effect

	RunSync(ctx context.Context, in []column.RowView, params map[string]any, env EvalEnv) (column.RowView, error)
	RunAsync(ctx context.Context, io *ioclient.Cache, in []column.RowView, params map[string]any) (column.RowView, error)
}

// Table maps operator name to implementation, populated once in
// init() and read-only thereafter.
var Table = map[string]Operator{}

func register(op Operator) {
	Table[op.Name()] = op
}

func init() {
	register(sourceFetchOp{})
	register(fanoutSourceOp{})
	register(vmOp{})
	register(filterOp{})
	register(takeOp{})
	register(sortOp{})
	register(concatOp{})
	register(sleepOp{})
}

// errWrongMode is returned by the Run method an operator does not
// implement (sync-only operators error from RunAsync and vice versa).
func errWrongMode(name string, wantAsync bool) error {
	if wantAsync {
		return apperr.New(apperr.KindEvaluation, "operator %q is sync-only", name)
	}
	return apperr.New(apperr.KindEvaluation, "operator %q is async-only", name)
}

// ValidateShape checks out against the contract Shape declares, given
// the operator's inputs and bound params. It is the scheduler's
// "validated at output time" check, factored out so every operator is
// held to the same rule rather than trusting each implementation.
func ValidateShape(shape Shape, in []column.RowView, out column.RowView, params map[string]any) error {
	switch shape {
	case SourceFanoutDense:
		fanout, err := paramInt(params, "fanout")
		if err != nil {
			return err
		}
		if out.Selection != nil || out.Permutation != nil {
			return apperr.New(apperr.KindEvaluation, "source-fanout-dense output must be dense")
		}
		if out.Bundle.N != fanout {
			return apperr.New(apperr.KindEvaluation, "source-fanout-dense expected %d rows, got %d", fanout, out.Bundle.N)
		}
		return nil
	case UnaryPreserveView:
		if len(in) != 1 {
			return apperr.New(apperr.KindEvaluation, "unary-preserve-view requires exactly one input")
		}
		if out.LogicalSize() != in[0].LogicalSize() {
			return apperr.New(apperr.KindEvaluation, "unary-preserve-view must preserve row count")
		}
		return nil
	case UnarySubsetView:
		if len(in) != 1 {
			return apperr.New(apperr.KindEvaluation, "unary-subset-view requires exactly one input")
		}
		if !out.IsSubsequenceOf(in[0]) {
			return apperr.New(apperr.KindEvaluation, "unary-subset-view active sequence must be a subsequence of its input")
		}
		return nil
	case PrefixOfInput:
		if len(in) != 1 {
			return apperr.New(apperr.KindEvaluation, "prefix-of-input requires exactly one input")
		}
		count, err := paramInt(params, "count")
		if err != nil {
			return err
		}
		want := count
		if in[0].LogicalSize() < want {
			want = in[0].LogicalSize()
		}
		if out.LogicalSize() != want {
			return apperr.New(apperr.KindEvaluation, "prefix-of-input expected %d rows, got %d", want, out.LogicalSize())
		}
		return nil
	case BinaryConcatDense:
		if len(in) != 2 {
			return apperr.New(apperr.KindEvaluation, "binary-concat-dense requires exactly two inputs")
		}
		want := in[0].LogicalSize() + in[1].LogicalSize()
		if out.Selection != nil || out.Permutation != nil {
			return apperr.New(apperr.KindEvaluation, "binary-concat-dense output must be dense")
		}
		if out.Bundle.N != want {
			return apperr.New(apperr.KindEvaluation, "binary-concat-dense expected %d rows, got %d", want, out.Bundle.N)
		}
		return nil
	default:
		return apperr.New(apperr.KindEvaluation, "unknown shape contract")
	}
}
