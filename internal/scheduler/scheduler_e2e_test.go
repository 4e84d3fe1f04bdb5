package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/eventloop"
	"github.com/smilemakc/dagengine/internal/expr"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/operators"
	"github.com/smilemakc/dagengine/internal/plan"
	"github.com/smilemakc/dagengine/internal/pred"
	"github.com/smilemakc/dagengine/internal/workerpool"
)

// testSourceOp is a synthetic, test-only source: it materializes a
// bundle directly from literal params instead of fetching from a
// store, so scenario tests can pin exact ids/values without a redis
// fixture. Registered under a name no production plan uses.
type testSourceOp struct{}

func (testSourceOp) Name() string           { return "test_source" }
func (testSourceOp) Shape() operators.Shape { return operators.SourceFanoutDense }
func (testSourceOp) IsAsync() bool          { return false }

func (testSourceOp) WritesEffect(params map[string]any) *plan.Effect { return nil }

func (testSourceOp) RunSync(ctx context.Context, in []column.RowView, params map[string]any, env operators.EvalEnv) (column.RowView, error) {
	rawIDs, _ := params["ids"].([]any)
	ids := make([]int64, len(rawIDs))
	for i, v := range rawIDs {
		ids[i] = int64(v.(float64))
	}
	b := column.NewBundle(ids)

	if rawValues, ok := params["values"].([]any); ok {
		key := column.KeyID(params["key"].(float64))
		values := make([]float64, len(rawValues))
		valid := make([]bool, len(rawValues))
		for i, v := range rawValues {
			if v == nil {
				continue
			}
			values[i], valid[i] = v.(float64), true
		}
		b = b.WithFloatColumn(key, &column.FloatColumn{Values: values, Valid: valid})
	}

	if rawCodes, ok := params["codes"].([]any); ok {
		key := column.KeyID(params["string_key"].(float64))
		rawDict := params["dict"].([]any)
		dict := &column.Dictionary{Entries: make([]string, len(rawDict))}
		for i, s := range rawDict {
			dict.Entries[i] = s.(string)
		}
		codes := make([]int32, len(rawCodes))
		for i, c := range rawCodes {
			codes[i] = int32(c.(float64))
		}
		b = b.WithStringColumn(key, &column.StringColumn{Dict: dict, Codes: codes})
	}

	return column.NewRowView(b), nil
}

func (testSourceOp) RunAsync(ctx context.Context, io *ioclient.Cache, in []column.RowView, params map[string]any) (column.RowView, error) {
	return column.RowView{}, apperr.New(apperr.KindEvaluation, "test_source is sync-only")
}

func init() {
	operators.Table["test_source"] = testSourceOp{}
}

func newHarness(t *testing.T) (*eventloop.Loop, *workerpool.Pool, func()) {
	t.Helper()
	loop := eventloop.New(32)
	require.True(t, loop.Start())
	pool := workerpool.New(4)
	return loop, pool, func() {
		loop.Stop()
		pool.Close()
	}
}

func validatedPlan(t *testing.T, p *plan.Plan) *plan.Validated {
	t.Helper()
	order, err := plan.TopoOrder(p)
	require.NoError(t, err)
	return &plan.Validated{Plan: p, TopoOrder: order}
}

func floatsToAny(vs []float64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func TestScenario_S1_IdentityFanoutAndTake(t *testing.T) {
	loop, pool, cleanup := newHarness(t)
	defer cleanup()

	p := &plan.Plan{
		SchemaVersion: 1,
		Nodes: []plan.Node{
			{ID: "src", Op: "test_source", Params: map[string]any{"ids": floatsToAny([]float64{0, 1, 2, 3, 4}), "fanout": 5.0}},
			{ID: "take", Op: "take", Inputs: []string{"src"}, Params: map[string]any{"count": 3.0}},
		},
		ExprTable: map[string]*expr.Node{},
		PredTable: map[string]*pred.Node{},
	}
	sched := New(validatedPlan(t, p), nil, nil, loop, pool, nil, pred.NewCache(), time.Time{}, 0)

	out, err := sched.Run(context.Background())
	require.NoError(t, err)

	res := out.Results["take"]
	require.Equal(t, []int{0, 1, 2}, res.Active())
	require.Equal(t, []int64{0, 1, 2, 3, 4}, res.Bundle.IDs)
}

func TestScenario_S2_ArithmeticWithCoalesceAndNullParam(t *testing.T) {
	loop, pool, cleanup := newHarness(t)
	defer cleanup()

	exprNode := &expr.Node{
		Kind: expr.Mul,
		A:    &expr.Node{Kind: expr.KeyRef, Key: 1},
		B: &expr.Node{
			Kind: expr.Coalesce,
			A:    &expr.Node{Kind: expr.ParamRef, Param: "w"},
			B:    &expr.Node{Kind: expr.ConstNumber, Value: 0.2},
		},
	}

	p := &plan.Plan{
		SchemaVersion: 1,
		Nodes: []plan.Node{
			{ID: "src", Op: "test_source", Params: map[string]any{"ids": floatsToAny([]float64{1, 2, 3, 4}), "fanout": 4.0}},
			{ID: "vm", Op: "vm", Inputs: []string{"src"}, Params: map[string]any{"out_key": 50.0, "expr_ref": "e1"}},
		},
		ExprTable: map[string]*expr.Node{"e1": exprNode},
		PredTable: map[string]*pred.Node{},
	}
	sched := New(validatedPlan(t, p), nil, map[string]any{}, loop, pool, nil, pred.NewCache(), time.Time{}, 0)

	out, err := sched.Run(context.Background())
	require.NoError(t, err)

	res := out.Results["vm"]
	want := []float64{0.2, 0.4, 0.6, 0.8}
	for i, w := range want {
		v, ok := res.Bundle.Floats[50].Get(i)
		require.True(t, ok)
		require.InDelta(t, w, v, 1e-9)
	}
	require.Equal(t, []int{0, 1, 2, 3}, res.Active())
}

func TestScenario_S3_FilterLiteralNullComparisonPassesAll(t *testing.T) {
	loop, pool, cleanup := newHarness(t)
	defer cleanup()

	predNode := &pred.Node{
		Kind:             pred.Cmp,
		Op:               pred.Eq,
		LHS:              &expr.Node{Kind: expr.KeyRef, Key: 99},
		RHS:              &expr.Node{Kind: expr.ConstNull},
		RHSIsLiteralNull: true,
	}

	p := &plan.Plan{
		SchemaVersion: 1,
		Nodes: []plan.Node{
			{ID: "src", Op: "test_source", Params: map[string]any{"ids": floatsToAny([]float64{0, 1, 2}), "fanout": 3.0}},
			{ID: "filter", Op: "filter", Inputs: []string{"src"}, Params: map[string]any{"pred_ref": "p1"}},
		},
		ExprTable: map[string]*expr.Node{},
		PredTable: map[string]*pred.Node{"p1": predNode},
	}
	sched := New(validatedPlan(t, p), nil, nil, loop, pool, nil, pred.NewCache(), time.Time{}, 0)

	out, err := sched.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, out.Results["filter"].Active())
}

func TestScenario_S4_FilterRuntimeNullComparisonExcludesAll(t *testing.T) {
	loop, pool, cleanup := newHarness(t)
	defer cleanup()

	predNode := &pred.Node{
		Kind: pred.Cmp,
		Op:   pred.Ge,
		LHS:  &expr.Node{Kind: expr.KeyRef, Key: 99},
		RHS:  &expr.Node{Kind: expr.ConstNumber, Value: 0.5},
	}

	p := &plan.Plan{
		SchemaVersion: 1,
		Nodes: []plan.Node{
			{ID: "src", Op: "test_source", Params: map[string]any{"ids": floatsToAny([]float64{0, 1, 2}), "fanout": 3.0}},
			{ID: "filter", Op: "filter", Inputs: []string{"src"}, Params: map[string]any{"pred_ref": "p1"}},
		},
		ExprTable: map[string]*expr.Node{},
		PredTable: map[string]*pred.Node{"p1": predNode},
	}
	sched := New(validatedPlan(t, p), nil, nil, loop, pool, nil, pred.NewCache(), time.Time{}, 0)

	out, err := sched.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, out.Results["filter"].Active())
}

func TestScenario_S5_RegexDictScanCorrectnessAndCachedOnce(t *testing.T) {
	loop, pool, cleanup := newHarness(t)
	defer cleanup()

	predNode := &pred.Node{
		Kind:     pred.Regex,
		RegexKey: 77,
		Pattern:  "^alp",
	}

	rawCodes := []float64{0, 1, 2, 3, 0, 3}
	p := &plan.Plan{
		SchemaVersion: 1,
		Nodes: []plan.Node{
			{ID: "src", Op: "test_source", Params: map[string]any{
				"ids": floatsToAny([]float64{0, 1, 2, 3, 4, 5}), "fanout": 6.0,
				"string_key": 77.0,
				"dict":       []any{"alpha", "beta", "gamma", "alphabet"},
				"codes":      floatsToAny(rawCodes),
			}},
			{ID: "filter", Op: "filter", Inputs: []string{"src"}, Params: map[string]any{"pred_ref": "p1"}},
		},
		ExprTable: map[string]*expr.Node{},
		PredTable: map[string]*pred.Node{"p1": predNode},
	}
	cache := pred.NewCache()
	sched := New(validatedPlan(t, p), nil, nil, loop, pool, nil, cache, time.Time{}, 0)

	out, err := sched.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{0, 3, 4, 5}, out.Results["filter"].Active())
	require.Equal(t, 1, cache.Len())
}

func TestScenario_S5b_RegexCacheResetPerNodeEvictsUnrelatedEntries(t *testing.T) {
	loop, pool, cleanup := newHarness(t)
	defer cleanup()

	predNode := &pred.Node{
		Kind:     pred.Regex,
		RegexKey: 77,
		Pattern:  "^alp",
	}

	rawCodes := []float64{0, 1, 2, 3, 0, 3}
	p := &plan.Plan{
		SchemaVersion: 1,
		Nodes: []plan.Node{
			{ID: "src", Op: "test_source", Params: map[string]any{
				"ids": floatsToAny([]float64{0, 1, 2, 3, 4, 5}), "fanout": 6.0,
				"string_key": 77.0,
				"dict":       []any{"alpha", "beta", "gamma", "alphabet"},
				"codes":      floatsToAny(rawCodes),
			}},
			{ID: "filter", Op: "filter", Inputs: []string{"src"}, Params: map[string]any{"pred_ref": "p1"}},
		},
		ExprTable: map[string]*expr.Node{},
		PredTable: map[string]*pred.Node{"p1": predNode},
	}
	cache := pred.NewCache()

	// Populate an entry unrelated to this plan's own scan, standing in for
	// a leftover from a prior request sharing the process-wide cache. If
	// the scheduler did not reset the cache before running the node, this
	// entry would still be present after Run and cache.Len() would read 2.
	_, err := cache.Match(&column.Dictionary{Entries: []string{"zzz"}}, "^z", "")
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	sched := New(validatedPlan(t, p), nil, nil, loop, pool, nil, cache, time.Time{}, 0)

	out, err := sched.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{0, 3, 4, 5}, out.Results["filter"].Active())
	require.Equal(t, 1, cache.Len())
}

func TestScenario_S6_DeadlineExceededFailsFastBeforeDownstreamSpawns(t *testing.T) {
	loop, pool, cleanup := newHarness(t)
	defer cleanup()

	p := &plan.Plan{
		SchemaVersion: 1,
		Nodes: []plan.Node{
			{ID: "a", Op: "test_source", Params: map[string]any{"ids": floatsToAny([]float64{0}), "fanout": 1.0}},
			{ID: "b", Op: "sleep", Inputs: []string{"a"}, Params: map[string]any{"duration_ms": 50.0}},
			{ID: "c", Op: "take", Inputs: []string{"b"}, Params: map[string]any{"count": 1.0}},
		},
		ExprTable: map[string]*expr.Node{},
		PredTable: map[string]*pred.Node{},
	}
	deadline := time.Now().Add(10 * time.Millisecond)
	sched := New(validatedPlan(t, p), nil, nil, loop, pool, nil, pred.NewCache(), deadline, 0)

	_, err := sched.Run(context.Background())
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindTimeout, appErr.Kind)

	_, ok = sched.results["c"]
	require.False(t, ok)
}

func TestScenario_S7_ParallelIndependentBranchesRunConcurrently(t *testing.T) {
	loop, pool, cleanup := newHarness(t)
	defer cleanup()

	p := &plan.Plan{
		SchemaVersion: 1,
		Nodes: []plan.Node{
			{ID: "s", Op: "test_source", Params: map[string]any{"ids": floatsToAny([]float64{0}), "fanout": 1.0}},
			{ID: "a", Op: "sleep", Inputs: []string{"s"}, Params: map[string]any{"duration_ms": 20.0}},
			{ID: "b", Op: "sleep", Inputs: []string{"s"}, Params: map[string]any{"duration_ms": 20.0}},
		},
		ExprTable: map[string]*expr.Node{},
		PredTable: map[string]*pred.Node{},
	}
	sched := New(validatedPlan(t, p), nil, nil, loop, pool, nil, pred.NewCache(), time.Time{}, 0)

	start := time.Now()
	out, err := sched.Run(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Contains(t, out.Results, "a")
	require.Contains(t, out.Results, "b")
	require.Less(t, elapsed, 35*time.Millisecond)
}
