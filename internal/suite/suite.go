// Package suite implements the Suite Runner (C6): before/after-suite
// lifecycle, sequential or parallel dispatch of Test Runners, and
// aggregation into a Suite Result. Guarded execution ensures after-suite
// notification always fires, even if private-run panics (§4.6, §7).
// Adapted from the teacher's cli.go/controller.go guarded-lifecycle
// pattern ("the run loop always reaches its after-suite notification").
package suite

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/kestrel-run/kestrel/internal/listener"
	"github.com/kestrel-run/kestrel/internal/orchestrator"
	"github.com/kestrel-run/kestrel/internal/testrunner"
	"github.com/kestrel-run/kestrel/pkg/model"
)

var log = slog.Default()

// SuiteListener observes suite lifecycle boundaries (§6).
type SuiteListener interface {
	OnStart(suite *model.SuiteDescription)
	OnFinish(suite *model.SuiteDescription, result *model.SuiteResult)
}

// ListenerComparator orders registered suite listeners for onStart
// dispatch (§4.6: "sorted by listener comparator (external, stable)").
// nil means registration order.
type ListenerComparator func(a, b SuiteListener) bool

// Deps bundles the Suite Runner's external collaborators, shared across
// every Test Runner it spawns.
type Deps struct {
	Invoker       model.TestInvoker
	ConfigInvoker model.ConfigInvoker
	Params        model.Parameters
	DataProvider  testrunner.DataProvider
	Listeners     *listener.Registry
	ListenerOrder  ListenerComparator
	Observer       orchestrator.GraphObserver
	ResultObserver testrunner.ResultObserver
}

// Runner drives one Suite Description to completion.
type Runner struct {
	desc *model.SuiteDescription
	deps Deps

	ran   bool
	runMu sync.Mutex

	testRunners []*testrunner.Runner
	result      *model.SuiteResult
}

// New builds a Suite Runner for desc.
func New(desc *model.SuiteDescription, deps Deps) *Runner {
	return &Runner{desc: desc, deps: deps}
}

// Run executes the full suite lifecycle (§4.6 operation run()):
// 1. onStart listeners in configured order,
// 2. a guarded private-run(),
// 3. onFinish listeners in reverse of the order onStart actually used.
//
// Run may only be called once; a second call returns a LifecycleError
// (§7: "double run()").
func (r *Runner) Run(ctx context.Context) (*model.SuiteResult, error) {
	r.runMu.Lock()
	if r.ran {
		r.runMu.Unlock()
		return nil, &model.LifecycleError{Msg: "suite: Run called more than once"}
	}
	r.ran = true
	r.runMu.Unlock()

	r.result = model.NewSuiteResult()

	listeners := r.orderedListeners()
	for _, l := range listeners {
		l.OnStart(r.desc)
	}

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("suite: private-run panicked", slog.Any("recover", rec), slog.String("suite", r.desc.Name))
			}
		}()
		if err := r.privateRun(ctx); err != nil {
			log.Error("suite: private-run failed", slog.Any("err", err), slog.String("suite", r.desc.Name))
		}
	}()

	reversed := make([]SuiteListener, len(listeners))
	for i, l := range listeners {
		reversed[len(listeners)-1-i] = l
	}
	for _, l := range reversed {
		l.OnFinish(r.desc, r.result)
	}

	return r.result, nil
}

// orderedListeners returns registered suite listeners sorted by
// ListenerOrder (stable), or registration order if none is supplied.
func (r *Runner) orderedListeners() []SuiteListener {
	if r.deps.Listeners == nil {
		return nil
	}
	raw := r.deps.Listeners.Snapshot(listener.KindSuite)
	out := make([]SuiteListener, 0, len(raw))
	for _, l := range raw {
		if sl, ok := l.(SuiteListener); ok {
			out = append(out, sl)
		}
	}
	if r.deps.ListenerOrder != nil {
		sort.SliceStable(out, func(i, j int) bool { return r.deps.ListenerOrder(out[i], out[j]) })
	}
	return out
}

// privateRun implements §4.6's private-run(): collect + invoke
// before-suite methods, dispatch Test Runners, invoke after-suite
// methods with the merged parameter map, and aggregate results.
func (r *Runner) privateRun(ctx context.Context) error {
	before, after := r.collectSuiteConfigMethods()

	r.testRunners = make([]*testrunner.Runner, len(r.desc.Tests))
	attrs := model.NewAttributes()
	for i, t := range r.desc.Tests {
		r.testRunners[i] = testrunner.New(t, r.desc, testrunner.Deps{
			Invoker:       r.deps.Invoker,
			ConfigInvoker: r.deps.ConfigInvoker,
			Params:        r.deps.Params,
			DataProvider:  r.deps.DataProvider,
			Attributes:    attrs,
			Listeners:      r.deps.Listeners,
			Observer:       r.deps.Observer,
			ResultObserver: r.deps.ResultObserver,
		})
	}

	if len(r.testRunners) > 0 && len(before) > 0 {
		if err := r.deps.ConfigInvoker.InvokeConfigurations(ctx, before, r.desc.Parameters); err != nil {
			log.Warn("suite: before-suite configuration failed", slog.Any("err", err))
		}
	}

	parallel := r.desc.Parallel == model.ParallelTests ||
		(r.desc.Behavior.StrictParallelism && r.desc.Parallel != model.ParallelNone)

	if parallel {
		r.dispatchParallel(ctx)
	} else {
		r.dispatchSequential(ctx)
	}

	if len(r.testRunners) > 0 && len(after) > 0 {
		_ = r.deps.ConfigInvoker.InvokeConfigurations(context.Background(), after, r.mergedAfterSuiteParams())
	}

	for i, t := range r.desc.Tests {
		r.result.Put(t.Name, &r.testRunners[i].Result)
	}
	return nil
}

// collectSuiteConfigMethods gathers distinct before-suite/after-suite
// methods across all contained Test Runners, de-duplicated by method
// identity, insertion order preserved (§4.6 step 1).
func (r *Runner) collectSuiteConfigMethods() (before, after []*model.TestMethod) {
	seenBefore := make(map[model.MethodIdentity]bool)
	seenAfter := make(map[model.MethodIdentity]bool)
	for _, t := range r.desc.Tests {
		for _, m := range t.Methods {
			switch m.Kind {
			case model.KindBeforeSuite:
				if !seenBefore[m.Identity] {
					seenBefore[m.Identity] = true
					before = append(before, m)
				}
			case model.KindAfterSuite:
				if !seenAfter[m.Identity] {
					seenAfter[m.Identity] = true
					after = append(after, m)
				}
			}
		}
	}
	return
}

// mergedAfterSuiteParams merges the suite's parameter map with every
// test's parameter map, per §4.6 step 4.
func (r *Runner) mergedAfterSuiteParams() map[string]string {
	out := make(map[string]string, len(r.desc.Parameters))
	for k, v := range r.desc.Parameters {
		out[k] = v
	}
	for _, t := range r.desc.Tests {
		for k, v := range t.Parameters {
			out[k] = v
		}
	}
	return out
}

// dispatchSequential runs each Test Runner in declared order on the
// calling goroutine.
func (r *Runner) dispatchSequential(ctx context.Context) {
	for _, tr := range r.testRunners {
		if err := tr.Run(ctx); err != nil {
			log.Warn("suite: test runner failed", slog.Any("err", err))
		}
	}
}

// dispatchParallel submits each Test Runner to a fresh pool sized by the
// suite's thread count and awaits them with the suite's timeout.
// Submission order equals declared order; completion order is
// unspecified (§5).
func (r *Runner) dispatchParallel(ctx context.Context) {
	n := r.desc.ThreadCount
	if n < 1 {
		n = 1
	}
	if n > len(r.testRunners) {
		n = len(r.testRunners)
	}
	if n < 1 {
		return
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.desc.TimeOut > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.desc.TimeOut)
		defer cancel()
	}

	sem := make(chan struct{}, n)
	var wg sync.WaitGroup
	for _, tr := range r.testRunners {
		tr := tr
		wg.Add(1)
		select {
		case sem <- struct{}{}:
		case <-runCtx.Done():
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := tr.Run(runCtx); err != nil {
				log.Warn("suite: test runner failed", slog.Any("err", err))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-runCtx.Done():
		// Timeout: leave whatever test runners have produced so far;
		// the suite never blocks past its own deadline (§4.6 S2).
	}
}

// Results returns the Suite Result of Run, or nil if Run has not been
// called; while Run is in progress it holds the results filed so far. The returned map is stable — callers
// must not mutate the ResultBucket slices they read from it (§8
// property 5: "unmodifiable view after run() returns").
func (r *Runner) Results() *model.SuiteResult {
	return r.result
}

// AllMethods returns every Test Method across every contained Test
// Description, in declared order (§6 Suite.all-methods()).
func (r *Runner) AllMethods() []*model.TestMethod {
	var out []*model.TestMethod
	for _, t := range r.desc.Tests {
		out = append(out, t.Methods...)
	}
	return out
}
