// Package scheduler is the DAG scheduler: the core's core. All of its
// state is mutated only on the event loop goroutine, by construction —
// spawning and completion both run as posted callbacks, never directly
// from a worker or I/O goroutine.
package scheduler

import (
	"context"
	"time"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/eventloop"
	"github.com/smilemakc/dagengine/internal/expr"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/operators"
	"github.com/smilemakc/dagengine/internal/plan"
	"github.com/smilemakc/dagengine/internal/pred"
	"github.com/smilemakc/dagengine/internal/registry"
	"github.com/smilemakc/dagengine/internal/task"
	"github.com/smilemakc/dagengine/internal/workerpool"
)

// Outcome is a completed execution's result set: every node's output
// view, plus the schema deltas in deterministic topological order.
type Outcome struct {
	Results      map[string]column.RowView
	SchemaDeltas []SchemaDelta
}

type inFlight struct {
	ins    []column.RowView
	params map[string]any
	op     operators.Operator
	cancel context.CancelFunc
}

// Scheduler runs one plan execution to completion or first failure.
// A Scheduler is single-use: construct one per request via New, call
// Run once.
type Scheduler struct {
	validated  *plan.Validated
	reg        *registry.Set
	loop       *eventloop.Loop
	pool       *workerpool.Pool
	io         *ioclient.Cache
	regexCache *pred.Cache
	env        expr.Env

	requestDeadline time.Time
	nodeTimeout     time.Duration

	successors map[string][]string

	depsRemaining map[string]int
	results       map[string]column.RowView
	readyQueue    []string
	inflight      int
	firstErr      error
	deltas        map[string]SchemaDelta
	inFlightByID  map[string]*inFlight

	finished chan struct{}
}

// New builds a Scheduler for one execution of validated over reg's
// registries. paramOverrides is the request's param environment (used
// for expr/pred ParamRef lookups, distinct from a node's own static
// params). requestDeadline is the zero Time for "no request deadline";
// nodeTimeout <= 0 means "no per-node timeout".
func New(
	validated *plan.Validated,
	reg *registry.Set,
	paramOverrides map[string]any,
	loop *eventloop.Loop,
	pool *workerpool.Pool,
	io *ioclient.Cache,
	regexCache *pred.Cache,
	requestDeadline time.Time,
	nodeTimeout time.Duration,
) *Scheduler {
	successors := make(map[string][]string, len(validated.Plan.Nodes))
	depsRemaining := make(map[string]int, len(validated.Plan.Nodes))
	for _, n := range validated.Plan.Nodes {
		depsRemaining[n.ID] = len(n.Inputs)
		for _, in := range n.Inputs {
			successors[in] = append(successors[in], n.ID)
		}
	}

	return &Scheduler{
		validated:       validated,
		reg:             reg,
		loop:            loop,
		pool:            pool,
		io:              io,
		regexCache:      regexCache,
		env:             expr.Env(paramOverrides),
		requestDeadline: requestDeadline,
		nodeTimeout:     nodeTimeout,
		successors:      successors,
		depsRemaining:   depsRemaining,
		results:         make(map[string]column.RowView, len(validated.Plan.Nodes)),
		deltas:          make(map[string]SchemaDelta, len(validated.Plan.Nodes)),
		inFlightByID:    make(map[string]*inFlight),
		finished:        make(chan struct{}),
	}
}

// Run drives the plan to completion, blocking the caller until every
// node has either produced a result or the scheduler has failed fast.
// ctx bounds every node's individual execution context; the request
// and node deadlines bound effective per-node timeouts independently
// of ctx.
func (s *Scheduler) Run(ctx context.Context) (*Outcome, error) {
	if !s.loop.Post(func() { s.start(ctx) }) {
		return nil, apperr.New(apperr.KindShutdown, "event loop is not running")
	}
	<-s.finished

	if s.firstErr != nil {
		return nil, s.firstErr
	}
	return s.buildOutcome(), nil
}

func (s *Scheduler) start(ctx context.Context) {
	for _, n := range s.validated.Plan.Nodes {
		if s.depsRemaining[n.ID] == 0 {
			s.readyQueue = append(s.readyQueue, n.ID)
		}
	}
	s.spawnReady(ctx)
	s.maybeFinish()
}

// spawnReady drains the ready queue in FIFO order while no error has
// been recorded, spawning each node's task.
func (s *Scheduler) spawnReady(ctx context.Context) {
	for len(s.readyQueue) > 0 && s.firstErr == nil {
		nodeID := s.readyQueue[0]
		s.readyQueue = s.readyQueue[1:]

		if !s.requestDeadline.IsZero() && time.Now().After(s.requestDeadline) {
			s.firstErr = apperr.New(apperr.KindTimeout, "request deadline exceeded before node could start").WithNode(nodeID)
			return
		}

		node := s.validated.Plan.NodeByID(nodeID)
		op, ok := operators.Table[node.Op]
		if !ok {
			s.firstErr = apperr.New(apperr.KindValidation, "unknown operator %q", node.Op).WithNode(nodeID)
			return
		}
		params, err := resolveNodeParams(node, s.validated.Plan)
		if err != nil {
			s.firstErr = err
			return
		}

		ins := make([]column.RowView, len(node.Inputs))
		for i, in := range node.Inputs {
			ins[i] = s.results[in]
		}

		deadline := effectiveDeadline(s.requestDeadline, s.nodeTimeout)
		nodeCtx, cancel := context.WithDeadline(ctx, deadline)

		s.inflight++
		s.inFlightByID[nodeID] = &inFlight{ins: ins, params: params, op: op, cancel: cancel}

		var out <-chan task.Result[column.RowView]
		if op.IsAsync() {
			inner := make(chan task.Result[column.RowView], 1)
			go func() {
				v, err := op.RunAsync(nodeCtx, s.io, ins, params)
				inner <- task.Result[column.RowView]{Value: v, Err: err}
			}()
			out = task.AsyncTimeout(s.loop, deadline, inner)
		} else {
			out = task.OffloadTimeout(s.pool, s.loop, deadline, func() (column.RowView, error) {
				// Clear the regex match-table cache before the node runs:
				// the cache is shared process-wide rather than per-worker
				// thread, so this is the node boundary that stands in for
				// thread-local teardown.
				s.regexCache.Reset()
				return op.RunSync(nodeCtx, ins, params, operators.EvalEnv{Params: s.env, Regex: s.regexCache})
			})
		}

		id := nodeID
		go func() {
			r := <-out
			s.loop.Post(func() { s.completeNode(ctx, id, r) })
		}()
	}
}

func (s *Scheduler) completeNode(ctx context.Context, nodeID string, r task.Result[column.RowView]) {
	info := s.inFlightByID[nodeID]
	delete(s.inFlightByID, nodeID)
	info.cancel()
	s.inflight--

	if r.Err != nil {
		if s.firstErr == nil {
			s.firstErr = r.Err
		}
	} else if err := operators.ValidateShape(info.op.Shape(), info.ins, r.Value, info.params); err != nil {
		if s.firstErr == nil {
			s.firstErr = err
		}
	} else {
		s.results[nodeID] = r.Value
		s.deltas[nodeID] = computeSchemaDelta(nodeID, info.ins, r.Value)
		for _, succ := range s.successors[nodeID] {
			s.depsRemaining[succ]--
			if s.depsRemaining[succ] == 0 {
				s.readyQueue = append(s.readyQueue, succ)
			}
		}
	}

	if s.firstErr == nil {
		s.spawnReady(ctx)
	}
	s.maybeFinish()
}

// maybeFinish signals Run's caller once every in-flight node has
// completed, posted rather than invoked inline so the current
// completion callback finishes unwinding before the scheduler's state
// is read by the waiting goroutine.
func (s *Scheduler) maybeFinish() {
	if s.inflight != 0 {
		return
	}
	select {
	case <-s.finished:
		return // already signaled
	default:
	}
	s.loop.Post(func() { close(s.finished) })
}

func (s *Scheduler) buildOutcome() *Outcome {
	deltas := make([]SchemaDelta, 0, len(s.deltas))
	for _, id := range s.validated.TopoOrder {
		if d, ok := s.deltas[id]; ok {
			deltas = append(deltas, d)
		}
	}
	return &Outcome{Results: s.results, SchemaDeltas: deltas}
}

func effectiveDeadline(requestDeadline time.Time, nodeTimeout time.Duration) time.Time {
	now := time.Now()
	var eff time.Time
	if !requestDeadline.IsZero() {
		eff = requestDeadline
	}
	if nodeTimeout > 0 {
		nd := now.Add(nodeTimeout)
		if eff.IsZero() || nd.Before(eff) {
			eff = nd
		}
	}
	if eff.IsZero() {
		eff = now.Add(24 * time.Hour)
	}
	return eff
}
