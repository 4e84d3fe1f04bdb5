// Package engine is the facade binding the registry, plan store,
// scheduler, and operator table into a single Execute call: one entry
// point taking a request and returning a result, with lifecycle events
// fanned out to observers rather than threaded through return values.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/eventloop"
	"github.com/smilemakc/dagengine/internal/ioclient"
	"github.com/smilemakc/dagengine/internal/logging"
	"github.com/smilemakc/dagengine/internal/plan"
	"github.com/smilemakc/dagengine/internal/pred"
	"github.com/smilemakc/dagengine/internal/registry"
	"github.com/smilemakc/dagengine/internal/scheduler"
	"github.com/smilemakc/dagengine/internal/workerpool"
	"github.com/smilemakc/dagengine/pkg/models"
)

// Options configures an Engine's process-lifetime resources.
type Options struct {
	CPUThreads         int
	EventLoopQueueSize int
	Log                *logging.Logger
}

// Engine owns the process-lifetime resources a request's execution
// needs (event loop, worker pool, I/O adapter cache, regex cache) and
// builds one Scheduler per request. An Engine is safe for concurrent
// Execute calls: every call builds its own Scheduler, and the shared
// resources below are themselves safe for concurrent use.
type Engine struct {
	store    *plan.Store
	registry *registry.Set
	loop     *eventloop.Loop
	pool     *workerpool.Pool
	io       *ioclient.Cache
	regex    *pred.Cache
	log      *logging.Logger
	obs      ObserverManager
}

// New builds an Engine over reg and store, starting its event loop and
// worker pool immediately. Close must be called to release them.
func New(reg *registry.Set, store *plan.Store, opts Options) (*Engine, error) {
	if opts.CPUThreads <= 0 {
		opts.CPUThreads = 8
	}
	if opts.EventLoopQueueSize <= 0 {
		opts.EventLoopQueueSize = 1024
	}
	log := opts.Log
	if log == nil {
		log = logging.New(logging.Config{})
	}

	loop := eventloop.New(opts.EventLoopQueueSize)
	if !loop.Start() {
		return nil, apperr.New(apperr.KindShutdown, "event loop failed to start")
	}

	obs := NewManager(log)
	_ = obs.Register(NewLoggerObserver(log))

	return &Engine{
		store:    store,
		registry: reg,
		loop:     loop,
		pool:     workerpool.New(opts.CPUThreads),
		io:       ioclient.NewCache(reg),
		regex:    pred.NewCache(),
		log:      log,
		obs:      obs,
	}, nil
}

// Observers exposes the Engine's ObserverManager so callers can
// register additional observers before the first Execute.
func (e *Engine) Observers() ObserverManager { return e.obs }

// Close stops the Engine's event loop, drains its worker pool, and
// closes every cached I/O adapter.
func (e *Engine) Close() error {
	e.loop.Stop()
	e.pool.Close()
	return e.io.Close()
}

// Execute validates req, resolves its plan, runs it to completion, and
// projects the designated output node's rows into a Response. It never
// panics: every failure surfaces as a non-nil error or an ErrorInfo
// response, never both.
func (e *Engine) Execute(ctx context.Context, req *models.Request) (*models.Response, error) {
	resp, _, err := e.ExecuteTrace(ctx, req)
	return resp, err
}

// ExecuteTrace behaves exactly like Execute but also returns the
// execution's per-node schema deltas in topological order, for callers
// that need a run trace (the CLI's --dump-run-trace) without re-running
// the plan.
func (e *Engine) ExecuteTrace(ctx context.Context, req *models.Request) (*models.Response, []scheduler.SchemaDelta, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, apperr.Wrap(apperr.KindValidation, err, "invalid request")
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	e.obs.Notify(ctx, &Event{Type: EventTypeExecutionStarted, RequestID: requestID})

	resp, deltas, err := e.execute(ctx, requestID, req)
	if err != nil {
		appErr, _ := apperr.As(err)
		e.obs.Notify(ctx, &Event{Type: EventTypeExecutionFailed, RequestID: requestID, Error: err.Error()})
		if appErr != nil {
			return models.NewErrorResponse(requestID, string(appErr.Kind), appErr.Error()), nil, nil
		}
		return models.NewErrorResponse(requestID, string(apperr.KindEvaluation), err.Error()), nil, nil
	}

	e.obs.Notify(ctx, &Event{Type: EventTypeExecutionCompleted, RequestID: requestID})
	return resp, deltas, nil
}

func (e *Engine) execute(ctx context.Context, requestID string, req *models.Request) (*models.Response, []scheduler.SchemaDelta, error) {
	planName := req.PlanName
	if planName == "" {
		planName = req.Plan
	}
	p, err := e.store.Load(planName)
	if err != nil {
		return nil, nil, err
	}

	validated, effectiveWrites, err := plan.Validate(p, e.registry, req.ParamOverrides)
	if err != nil {
		return nil, nil, err
	}

	var deadline time.Time
	if req.DeadlineMs > 0 {
		deadline = time.Now().Add(time.Duration(req.DeadlineMs) * time.Millisecond)
	}
	nodeTimeout := time.Duration(req.NodeTimeoutMs) * time.Millisecond

	sched := scheduler.New(validated, e.registry, req.ParamOverrides, e.loop, e.pool, e.io, e.regex, deadline, nodeTimeout)

	outcome, err := sched.Run(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := e.checkSchemaDrift(ctx, requestID, p, effectiveWrites, outcome.SchemaDeltas); err != nil {
		return nil, nil, err
	}

	if len(p.Outputs) == 0 {
		return nil, nil, apperr.New(apperr.KindValidation, "plan %q declares no outputs", p.Name)
	}
	out, ok := outcome.Results[p.Outputs[len(p.Outputs)-1]]
	if !ok {
		return nil, nil, apperr.New(apperr.KindValidation, "output node %q produced no result", p.Outputs[len(p.Outputs)-1])
	}

	candidates, err := e.projectCandidates(out, req.OutputKeys)
	if err != nil {
		return nil, nil, err
	}
	return models.NewSuccessResponse(requestID, candidates), outcome.SchemaDeltas, nil
}

// checkSchemaDrift cross-checks each node's actual schema delta against
// its statically evaluated writes-effect. A node whose output adds a key
// the static evaluation didn't expect is drift: always reported to
// observers as an audit trail, but only fatal when the plan declares
// the strict_schema capability — an unimplemented-but-known capability
// would otherwise silently accept and do nothing, the exact drift the
// capability exists to catch.
func (e *Engine) checkSchemaDrift(ctx context.Context, requestID string, p *plan.Plan, writes plan.EffectiveWrites, deltas []scheduler.SchemaDelta) error {
	strict := hasCapability(p.CapabilitiesRequired, "strict_schema")

	for _, d := range deltas {
		expected, ok := writes[d.NodeID]
		if !ok || expected.Kind == plan.Unknown {
			continue
		}
		expectedSet := make(map[column.KeyID]struct{}, len(expected.Keys))
		for _, k := range expected.Keys {
			expectedSet[k] = struct{}{}
		}
		var unexpected []column.KeyID
		for _, k := range d.Added {
			if _, ok := expectedSet[k]; !ok {
				unexpected = append(unexpected, k)
			}
		}
		if len(unexpected) == 0 {
			continue
		}

		e.obs.Notify(ctx, &Event{
			Type:      EventTypeSchemaDrift,
			RequestID: requestID,
			PlanName:  p.Name,
			NodeID:    d.NodeID,
			Metadata:  map[string]any{"unexpected_keys": unexpected, "strict": strict},
		})

		if strict {
			return apperr.New(apperr.KindValidation, "schema drift on node %q: wrote unexpected keys %v under strict_schema", d.NodeID, unexpected).WithNode(d.NodeID)
		}
	}
	return nil
}

func hasCapability(required []string, id string) bool {
	for _, c := range required {
		if c == id {
			return true
		}
	}
	return false
}

// projectCandidates reads out's active rows into wire Candidates,
// restricted to requestedKeys (all bound keys if empty).
func (e *Engine) projectCandidates(out column.RowView, requestedKeys []string) ([]models.Candidate, error) {
	keys := requestedKeys
	if len(keys) == 0 {
		for _, k := range out.Bundle.Keys() {
			def, ok := e.registry.Keys[k]
			if !ok {
				continue
			}
			keys = append(keys, def.Name)
		}
	}

	resolved := make(map[string]column.KeyID, len(keys))
	for _, name := range keys {
		def, ok := e.registry.KeyByName(name)
		if !ok {
			return nil, apperr.New(apperr.KindValidation, "unknown output key %q", name).WithKey(name)
		}
		resolved[name] = def.ID
	}

	active := out.Active()
	candidates := make([]models.Candidate, 0, len(active))
	for _, i := range active {
		values := make(map[string]any, len(resolved))
		for name, keyID := range resolved {
			if col, ok := out.Bundle.Floats[keyID]; ok {
				if v, valid := col.Get(i); valid {
					values[name] = v
				} else {
					values[name] = nil
				}
				continue
			}
			if col, ok := out.Bundle.Strings[keyID]; ok {
				if v, valid := col.Get(i); valid {
					values[name] = v
				} else {
					values[name] = nil
				}
				continue
			}
			values[name] = nil
		}
		candidates = append(candidates, models.Candidate{ID: out.Bundle.IDs[i], Values: values})
	}
	return candidates, nil
}
