// Command dagengine runs one DAG-plan execution against a request read
// from stdin (or built from flags) and prints the resulting response as
// JSON, the way sdk/cmd/modelgen drove a single pass of code generation
// from stdlib flag parsing rather than a CLI framework.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/itchyny/gojq"
	"golang.org/x/term"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/column"
	"github.com/smilemakc/dagengine/internal/config"
	"github.com/smilemakc/dagengine/internal/logging"
	"github.com/smilemakc/dagengine/internal/plan"
	"github.com/smilemakc/dagengine/internal/registry"
	"github.com/smilemakc/dagengine/internal/scheduler"
	"github.com/smilemakc/dagengine/pkg/engine"
	"github.com/smilemakc/dagengine/pkg/models"
)

// Exit codes per the CLI's documented contract.
const (
	exitOK               = 0
	exitInvalidRequest   = 1
	exitInvalidPlanOrReg = 2
	exitExecutionFailure = 3
	exitTimeout          = 4
)

type cliFlags struct {
	planPath      string
	planName      string
	planDir       string
	listPlans     bool
	deadlineMs    int64
	nodeTimeoutMs int64
	asyncSched    bool
	withinReqPar  bool
	cpuThreads    int
	env           string
	artifactsDir  string
	printRegistry bool
	dumpRunTrace  bool
	jqFilter      string
}

func parseFlags(args []string) *cliFlags {
	fs := flag.NewFlagSet("dagengine", flag.ExitOnError)
	f := &cliFlags{}
	fs.StringVar(&f.planPath, "plan", "", "path to a standalone plan artifact JSON file")
	fs.StringVar(&f.planName, "plan_name", "", "name of a plan registered in --plan_dir's index.json")
	fs.StringVar(&f.planDir, "plan_dir", "", "directory containing index.json plus per-plan artifacts (defaults to <artifacts_dir>/<env>/plans)")
	fs.BoolVar(&f.listPlans, "list-plans", false, "enumerate the plans registered in --plan_dir and exit")
	fs.Int64Var(&f.deadlineMs, "deadline_ms", 0, "request-level deadline in milliseconds (0 disables it)")
	fs.Int64Var(&f.nodeTimeoutMs, "node_timeout_ms", 0, "per-node timeout in milliseconds (0 disables it)")
	fs.BoolVar(&f.asyncSched, "async_scheduler", true, "run the scheduler's coroutine/event-loop execution path")
	fs.BoolVar(&f.withinReqPar, "within_request_parallelism", true, "allow independent branches of one request to run concurrently")
	fs.IntVar(&f.cpuThreads, "cpu_threads", 0, "worker-pool size (0 defaults to DAGENGINE_CPU_THREADS or 8)")
	fs.StringVar(&f.env, "env", "", "dev, test, or prod (0-value defaults to DAGENGINE_ENV or dev)")
	fs.StringVar(&f.artifactsDir, "artifacts_dir", "", "root directory holding <env>/registry.json and <env>/plans/ (0-value defaults to DAGENGINE_ARTIFACTS_DIR)")
	fs.BoolVar(&f.printRegistry, "print-registry", false, "print the task-manifest and capability-registry digests and exit")
	fs.BoolVar(&f.dumpRunTrace, "dump-run-trace", false, "emit per-node schema deltas alongside the response")
	fs.StringVar(&f.jqFilter, "jq", "", "optional jq filter applied to the response before printing (requires --dump-run-trace or plain execution)")
	_ = fs.Parse(args)
	return f
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin *os.File, stdout, stderr *os.File) int {
	f := parseFlags(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidPlanOrReg
	}
	if f.env != "" {
		cfg.Engine.Env = f.env
	}
	if f.artifactsDir != "" {
		cfg.Engine.ArtifactsDir = f.artifactsDir
	}
	if f.cpuThreads > 0 {
		cfg.Engine.CPUThreads = f.cpuThreads
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidPlanOrReg
	}

	log := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	envDir := filepath.Join(cfg.Engine.ArtifactsDir, cfg.Engine.Env)
	regPath := filepath.Join(envDir, "registry.json")
	regData, err := os.ReadFile(regPath)
	if err != nil {
		fmt.Fprintf(stderr, "read registry %s: %v\n", regPath, err)
		return exitInvalidPlanOrReg
	}
	reg, err := registry.Load(regData)
	if err != nil {
		fmt.Fprintf(stderr, "load registry: %v\n", err)
		return exitInvalidPlanOrReg
	}

	if f.printRegistry {
		digests, err := plan.ComputeDigests(reg)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitInvalidPlanOrReg
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(digests)
		return exitOK
	}

	var store *plan.Store
	switch {
	case f.planPath != "":
		store, err = plan.OpenSingle(f.planPath)
	default:
		planDir := f.planDir
		if planDir == "" {
			planDir = filepath.Join(envDir, "plans")
		}
		store, err = plan.OpenStore(planDir)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidPlanOrReg
	}

	if f.listPlans {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(store.List())
		return exitOK
	}

	if !f.asyncSched {
		log.Warn("synchronous scheduling is not implemented; running on the event-loop/worker-pool path regardless")
	}
	cpuThreads := cfg.Engine.CPUThreads
	if !f.withinReqPar {
		cpuThreads = 1
	}

	eng, err := engine.New(reg, store, engine.Options{CPUThreads: cpuThreads, Log: log})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidPlanOrReg
	}
	defer eng.Close()

	req, err := readRequest(stdin, f)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidRequest
	}
	if err := req.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidRequest
	}

	ctx := context.Background()
	var cancel context.CancelFunc
	if f.deadlineMs > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(f.deadlineMs)*time.Millisecond)
		defer cancel()
	}

	// ExecuteTrace's raw error return is reserved for request-validation
	// failure (the one check it repeats internally); every other failure
	// mode (bad plan, scheduler timeout, resource/evaluation error) comes
	// back as resp.Error below.
	resp, deltas, err := eng.ExecuteTrace(ctx, req)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidRequest
	}

	if resp.Error != nil {
		exitCode := exitExecutionFailure
		switch resp.Error.Kind {
		case string(apperr.KindValidation):
			exitCode = exitInvalidPlanOrReg
		case string(apperr.KindTimeout):
			exitCode = exitTimeout
		}
		if err := printResult(stdout, resp, deltas, f); err != nil {
			fmt.Fprintln(stderr, err)
		}
		return exitCode
	}

	if err := printResult(stdout, resp, deltas, f); err != nil {
		fmt.Fprintln(stderr, err)
		return exitExecutionFailure
	}
	return exitOK
}

// readRequest reads a models.Request as JSON from stdin. A closed or
// empty stdin (no piped input) is treated as an invalid request rather
// than blocking.
func readRequest(stdin *os.File, f *cliFlags) (*models.Request, error) {
	var req models.Request
	dec := json.NewDecoder(stdin)
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("decode request from stdin: %w", err)
	}
	if f.planName != "" && req.PlanName == "" {
		req.PlanName = f.planName
	}
	if f.deadlineMs > 0 && req.DeadlineMs == 0 {
		req.DeadlineMs = f.deadlineMs
	}
	if f.nodeTimeoutMs > 0 && req.NodeTimeoutMs == 0 {
		req.NodeTimeoutMs = f.nodeTimeoutMs
	}
	return &req, nil
}

type traceEnvelope struct {
	Response *models.Response `json:"response"`
	Trace    []traceEntry     `json:"run_trace,omitempty"`
}

type traceEntry struct {
	NodeID  string         `json:"node_id"`
	Added   []column.KeyID `json:"added"`
	Removed []column.KeyID `json:"removed"`
}

func toTraceEntries(deltas []scheduler.SchemaDelta) []traceEntry {
	entries := make([]traceEntry, len(deltas))
	for i, d := range deltas {
		entries[i] = traceEntry{NodeID: d.NodeID, Added: d.Added, Removed: d.Removed}
	}
	return entries
}

func printResult(stdout *os.File, resp *models.Response, deltas []scheduler.SchemaDelta, f *cliFlags) error {
	var out any = resp
	if f.dumpRunTrace {
		out = traceEnvelope{Response: resp, Trace: toTraceEntries(deltas)}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	if f.jqFilter != "" {
		filtered, err := applyJQ(f.jqFilter, raw)
		if err != nil {
			return err
		}
		raw = filtered
	}

	width := 0
	if term.IsTerminal(int(stdout.Fd())) {
		w, _, err := term.GetSize(int(stdout.Fd()))
		if err == nil {
			width = w
		}
	}

	enc := json.NewEncoder(stdout)
	if width == 0 || width >= 80 {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(json.RawMessage(raw))
}

func applyJQ(filter string, raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("jq input: %w", err)
	}
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("parse jq filter: %w", err)
	}
	iter := query.Run(v)
	var results []any
	for {
		result, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := result.(error); ok {
			return nil, fmt.Errorf("run jq filter: %w", err)
		}
		results = append(results, result)
	}
	if len(results) == 1 {
		return json.Marshal(results[0])
	}
	return json.Marshal(results)
}
