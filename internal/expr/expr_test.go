package expr

import (
	"math"
	"testing"

	"github.com/smilemakc/dagengine/internal/column"
)

func bundleWithScore(ids []int64, scores []float64, valid []bool) *column.Bundle {
	b := column.NewBundle(ids)
	return b.WithFloatColumn(1000, &column.FloatColumn{Values: scores, Valid: valid})
}

func TestEval_S2_CoalesceWithNullParam(t *testing.T) {
	b := column.NewBundle([]int64{1, 2, 3, 4})
	node := &Node{
		Kind: Mul,
		A:    &Node{Kind: KeyRef, Key: 1},
		B:    &Node{Kind: Coalesce, A: &Node{Kind: ParamRef, Param: "w"}, B: &Node{Kind: ConstNumber, Value: 0.2}},
	}

	want := []float64{0.2, 0.4, 0.6, 0.8}
	for i, id := range b.IDs {
		v, ok, err := Eval(node, Row{Bundle: b, Index: i}, Env{})
		if err != nil || !ok {
			t.Fatalf("row %d: eval failed ok=%v err=%v", i, ok, err)
		}
		if math.Abs(v-want[i]) > 1e-9 {
			t.Fatalf("id=%d: got %v want %v", id, v, want[i])
		}
	}
}

func TestEval_NullPropagation(t *testing.T) {
	b := bundleWithScore([]int64{1, 2}, []float64{5, 0}, []bool{true, false})
	node := &Node{Kind: Add, A: &Node{Kind: KeyRef, Key: 1000}, B: &Node{Kind: ConstNumber, Value: 1}}

	_, ok, err := Eval(node, Row{Bundle: b, Index: 0}, Env{})
	if err != nil || !ok {
		t.Fatalf("row 0 should be valid, got ok=%v err=%v", ok, err)
	}

	_, ok, err = Eval(node, Row{Bundle: b, Index: 1}, Env{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected null operand to propagate to null result")
	}
}

func TestEval_NonFiniteIsFatal(t *testing.T) {
	huge := &Node{Kind: ConstNumber, Value: math.MaxFloat64}
	node := &Node{Kind: Mul, A: huge, B: huge}

	b := column.NewBundle([]int64{1})
	_, _, err := Eval(node, Row{Bundle: b, Index: 0}, Env{})
	if err == nil {
		t.Fatal("expected non-finite result to be a fatal evaluation error")
	}
}

func TestEval_CoalesceDoesNotEvaluateBWhenAValid(t *testing.T) {
	// B overflows to a non-finite value, which Eval reports as a fatal
	// error — so a nil error proves coalesce short-circuits and never
	// evaluates B.
	huge := &Node{Kind: ConstNumber, Value: math.MaxFloat64}
	node := &Node{
		Kind: Coalesce,
		A:    &Node{Kind: ConstNumber, Value: 42},
		B:    &Node{Kind: Mul, A: huge, B: huge},
	}
	b := column.NewBundle([]int64{1})
	v, ok, err := Eval(node, Row{Bundle: b, Index: 0}, Env{})
	if err != nil || !ok || v != 42 {
		t.Fatalf("expected coalesce to short-circuit to A=42, got v=%v ok=%v err=%v", v, ok, err)
	}
}
