package operators

import (
	"context"
	"time"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/plan"
)

// sleepOp yields for duration_ms before passing its input through
// unchanged, used to exercise scheduling and deadline behavior in
// tests. Async, unary-preserve-view.
type sleepOp struct{}

func (sleepOp) Name() string  { return "sleep" }
func (sleepOp) Shape() Shape  { return UnaryPreserveView }
func (sleepOp) IsAsync() bool { return true }

func (sleepOp) WritesEffect(params map[string]any) *plan.Effect {
	return nil
}

func (sleepOp) RunSync(ctx context.Context, in []column.RowView, params map[string]any, env EvalEnv) (column.RowView, error) {
	return column.RowView{}, errWrongMode("sleep", false)
}

func (sleepOp) RunAsync(ctx context.Context, io *ioclient.Cache, in []column.RowView, params map[string]any) (column.RowView, error) {
	if len(in) != 1 {
		return column.RowView{}, errWrongMode("sleep", true)
	}
	durationMs, err := paramInt(params, "duration_ms")
	if err != nil {
		return column.RowView{}, err
	}

	if durationMs > 0 {
		timer := time.NewTimer(time.Duration(durationMs) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return column.RowView{}, apperr.Wrap(apperr.KindTimeout, ctx.Err(), "sleep interrupted before duration elapsed")
		}
	}
	return in[0], nil
}
