// Package testrunner implements the Test Runner (C5): it converts one
// Test Description into a DAG of test methods, drives it through
// internal/orchestrator and internal/pool, and collects results into the
// eight category buckets. Before/after-test configuration methods run on
// the calling goroutine outside the DAG (§4.5).
package testrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrel-run/kestrel/internal/graph"
	"github.com/kestrel-run/kestrel/internal/listener"
	"github.com/kestrel-run/kestrel/internal/methodrunner"
	"github.com/kestrel-run/kestrel/internal/orchestrator"
	"github.com/kestrel-run/kestrel/internal/pool"
	"github.com/kestrel-run/kestrel/pkg/model"
)

// DataProvider supplies parameter rows for one Test Method.
type DataProvider interface {
	Rows(method *model.TestMethod) []methodrunner.Row
}

// Deps bundles the Test Runner's external collaborators (§6).
type Deps struct {
	Invoker       model.TestInvoker
	ConfigInvoker model.ConfigInvoker
	Params        model.Parameters
	DataProvider  DataProvider
	Attributes    *model.Attributes
	Listeners      *listener.Registry
	Observer       orchestrator.GraphObserver
	ResultObserver ResultObserver
}

// ResultObserver taps each filed Test Result read-only; metrics.Recorder
// satisfies this.
type ResultObserver interface {
	ObserveResult(res *model.TestResult)
}

// Runner drives one Test Description to completion.
type Runner struct {
	test    *model.TestDescription
	suite   *model.SuiteDescription
	deps    Deps
	Result  model.TestRunResult
}

// New builds a Test Runner for test within suite.
func New(test *model.TestDescription, suite *model.SuiteDescription, deps Deps) *Runner {
	return &Runner{test: test, suite: suite, deps: deps}
}

// Run executes the full Test Runner lifecycle: before-test configuration
// on the calling goroutine, the method DAG via the orchestrator, then
// after-test configuration — guaranteed even if the orchestrator returns
// an error (§4.5).
func (r *Runner) Run(ctx context.Context) error {
	before, after, nodeMethods := r.partitionMethods()

	if len(before) > 0 {
		_ = r.deps.ConfigInvoker.InvokeConfigurations(ctx, before, r.mergedParams())
	}

	defer func() {
		if len(after) > 0 {
			_ = r.deps.ConfigInvoker.InvokeConfigurations(context.Background(), after, r.mergedParams())
		}
	}()

	g, err := r.buildGraph(nodeMethods)
	if err != nil {
		return err
	}
	if g.NodeCount() == 0 {
		return nil
	}

	threadCount := r.test.ThreadCount
	if threadCount < 1 {
		threadCount = 1
	}
	if r.test.Parallel == model.ParallelNone {
		// Sequential: the DAG still encodes dependency order, but
		// siblings without dependencies must not interleave either
		// (testable property 8).
		threadCount = 1
	}
	p, err := pool.New(threadCount)
	if err != nil {
		return err
	}

	timeout := r.test.TimeOut
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	orc := orchestrator.New(orchestrator.Options{
		Graph:         g,
		Pool:          p,
		WorkerFactory:   r.workerFactory(g),
		Comparator:      priorityComparator,
		EnforceAffinity: r.suite.Behavior.EnforceThreadAffinity,
		Observer:        r.deps.Observer,
	})

	return orc.Run(runCtx)
}

// mergedParams combines suite-level and test-level parameter maps, test
// taking precedence (§4.6 describes the inverse merge for after-suite;
// here it is simply "this test's effective parameters").
func (r *Runner) mergedParams() map[string]string {
	out := make(map[string]string, len(r.suite.Parameters)+len(r.test.Parameters))
	for k, v := range r.suite.Parameters {
		out[k] = v
	}
	for k, v := range r.test.Parameters {
		out[k] = v
	}
	return out
}

// partitionMethods splits the test's methods into before-test, after-test
// (run outside the DAG), and everything else (run inside the DAG).
func (r *Runner) partitionMethods() (before, after, rest []*model.TestMethod) {
	for _, m := range r.test.Methods {
		switch m.Kind {
		case model.KindBeforeTest:
			before = append(before, m)
		case model.KindAfterTest:
			after = append(after, m)
		default:
			rest = append(rest, m)
		}
	}
	return
}

// buildGraph constructs the DAG of test-method nodes, wiring edges for
// declared method dependencies and group dependencies (a dependency on a
// group fans out to an edge against every method currently tagged with
// that group, per SPEC_FULL §3).
func (r *Runner) buildGraph(methods []*model.TestMethod) (*graph.Graph, error) {
	g := graph.New()
	nodes := make(map[*model.TestMethod]*graph.Node, len(methods))
	for _, m := range methods {
		nodes[m] = g.AddNode(m)
	}

	groupMembers := make(map[string][]*graph.Node)
	for _, m := range methods {
		n := nodes[m]
		for _, grp := range m.Groups {
			groupMembers[grp] = append(groupMembers[grp], n)
		}
	}

	for _, m := range methods {
		n := nodes[m]
		for _, dep := range m.DependsOnMethods {
			depNode, ok := g.NodeFor(dep)
			if !ok {
				continue
			}
			if err := g.AddEdge(n, depNode); err != nil {
				return nil, fmt.Errorf("testrunner: %s depends on %s: %w", m.Identity.Method, dep.Method, err)
			}
		}
		for _, grp := range m.DependsOnGroups {
			for _, depNode := range groupMembers[grp] {
				if depNode == n {
					continue
				}
				if err := g.AddEdge(n, depNode); err != nil {
					return nil, fmt.Errorf("testrunner: %s depends on group %s: %w", m.Identity.Method, grp, err)
				}
			}
		}
	}
	return g, nil
}

// priorityComparator orders free nodes by ascending TestMethod.Priority,
// the concrete tie-break field SPEC_FULL §3 adds so §4.2's "external
// comparator" has something principled to sort on.
func priorityComparator(a, b *graph.Node) bool {
	return a.Method.Priority < b.Method.Priority
}

// workerFactory builds one orchestrator.Worker per free node, each
// delegating to the Method Runner for that node's method.
func (r *Runner) workerFactory(g *graph.Graph) orchestrator.WorkerFactory {
	return func(nodes []*graph.Node) []*orchestrator.Worker {
		workers := make([]*orchestrator.Worker, 0, len(nodes))
		for _, n := range nodes {
			n := n
			workers = append(workers, &orchestrator.Worker{
				Nodes: []*graph.Node{n},
				Run: func(ctx context.Context, threadID int) error {
					r.runNode(ctx, n)
					return nil
				},
				Completed: func() bool { return true },
			})
		}
		return workers
	}
}

// runNode expands n's method into invocations via the Method Runner and
// files the resulting Test Results into the right category bucket.
func (r *Runner) runNode(ctx context.Context, n *graph.Node) {
	m := n.Method
	rows := r.deps.DataProvider.Rows(m)

	skipFailed := r.suite.SkipFailedInvocations
	if r.test.SkipFailedInvocations != nil {
		skipFailed = *r.test.SkipFailedInvocations
	}

	parallelMethod := r.test.Parallel == model.ParallelMethods && len(rows) > 1

	results := methodrunner.Run(ctx, methodrunner.Options{
		Method:     m,
		Suite:      r.suite,
		Invoker:    r.deps.Invoker,
		Params:     r.deps.Params,
		Attributes: r.deps.Attributes,
		Rows:       rows,
		SkipFailed: skipFailed,
		Parallel:   parallelMethod,
		PoolFactory: func(n int) (*pool.Pool, bool, error) {
			size := r.test.DataProviderThreadCount
			if size < 1 {
				size = n
			}
			p, err := pool.New(size)
			return p, true, err
		},
	})

	isConfig := m.Kind != model.KindTest
	for _, res := range results {
		if r.deps.ResultObserver != nil {
			r.deps.ResultObserver.ObserveResult(res)
		}
		res.Start = orDefault(res.Start)
		res.End = orDefault(res.End)
		switch {
		case isConfig && res.Status == model.StatusSuccess:
			r.Result.PassedConfigurations.Add(res)
		case isConfig && res.Status == model.StatusSkipped:
			r.Result.SkippedConfigurations.Add(res)
		case isConfig && res.Status == model.StatusSuccessWithinPercent:
			r.Result.FailedWithinPercentConfigurations.Add(res)
		case isConfig:
			r.Result.FailedConfigurations.Add(res)
		case res.Status == model.StatusSuccess:
			r.Result.PassedTests.Add(res)
		case res.Status == model.StatusSkipped:
			r.Result.SkippedTests.Add(res)
		case res.Status == model.StatusSuccessWithinPercent:
			r.Result.FailedWithinPercentTests.Add(res)
		default:
			r.Result.FailedTests.Add(res)
		}
	}
}

func orDefault(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
