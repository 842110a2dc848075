// Package orchestrator implements the DAG Orchestrator (C3): it drains a
// graph.Graph by repeatedly selecting free nodes, wrapping them in
// Workers, and submitting them to a pool.Pool, with optional
// thread-affinity pinning. Adapted from the teacher's
// internal/controller.Controller single-re-entrant-lock loop design,
// collapsed from four concurrent loops (dispatch/result/timeout/snapshot)
// to the one loop this spec needs — persistence is out of scope (§6).
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/kestrel-run/kestrel/internal/graph"
	"github.com/kestrel-run/kestrel/internal/pool"
)

var errStuckGraph = errors.New("orchestrator: no free nodes but graph is not finished")

// Worker is a scheduling unit wrapping one or more Work Nodes (typically
// one, per §3). Run executes the worker's payload; CurrentThreadID returns
// the (faked) OS-thread-id actually used, once Run has been invoked.
type Worker struct {
	Nodes []*graph.Node

	// ThreadHint, when non-zero, asks the orchestrator to run this
	// worker on the same simulated thread id as ThreadHint (§4.3).
	ThreadHint int

	// Run performs the worker's actual work. Returning an error marks
	// all of the worker's nodes Finished with that error recorded by
	// the caller-supplied AfterExecute hook; Run must itself never
	// panic (user-code errors are the caller's responsibility to turn
	// into results before returning here, per §7).
	Run func(ctx context.Context, threadID int) error

	// Completed reports whether the worker finished all its nodes on
	// this invocation. false only occurs under enforced thread
	// affinity when the worker voluntarily yielded (§3: Worker
	// "completed() flag").
	Completed func() bool

	currentThreadID int
}

// CurrentThreadID returns the simulated thread id this worker last ran
// on. Valid after Run returns.
func (w *Worker) CurrentThreadID() int { return w.currentThreadID }

// WorkerFactory builds one Worker per free node handed to it in a
// scheduling round. Implemented by internal/testrunner.
type WorkerFactory func(nodes []*graph.Node) []*Worker

// Comparator orders free nodes before scheduling (external priority,
// §4.2's "tie-break"). nil means insertion order.
type Comparator func(a, b *graph.Node) bool

// AfterExecute is invoked once per worker after its Run completes (or
// errors). err is Run's return value.
type AfterExecute func(w *Worker, err error)

// GraphObserver taps scheduling events read-only; metrics.Recorder
// satisfies this so Prometheus counters/gauges stay current without the
// orchestrator depending on the metrics package directly.
type GraphObserver interface {
	NodeScheduled()
	GraphGauges(ready, running int)
}

// Options configures one Orchestrator run.
type Options struct {
	Graph           *graph.Graph
	Pool            *pool.Pool
	WorkerFactory   WorkerFactory
	Comparator      Comparator
	AfterExecute    AfterExecute
	EnforceAffinity bool
	Observer        GraphObserver
}

// Orchestrator drains a graph over a bounded worker pool.
type Orchestrator struct {
	opts Options
	mu   sync.Mutex // the single re-entrant-equivalent lock guarding the graph and affinity maps (§4.3, §5)

	// nodeWorker remembers which worker most recently produced work for
	// a node, so its simulated thread id can be reused by a dependent.
	nodeWorker map[*graph.Node]*Worker
	// threadSeq hands out increasing simulated thread ids to workers
	// that have no affinity hint.
	threadSeq int
}

// New constructs an orchestrator from opts. opts.Comparator may be nil.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		opts:       opts,
		nodeWorker: make(map[*graph.Node]*Worker),
	}
}

// Run drains the graph, submitting ready nodes to the pool until every
// node is Finished or ctx is cancelled. On timeout the graph is left in
// its partial state — nodes still Running stay Running — and Run
// returns ctx.Err() (§4.3 cancellation semantics).
func (o *Orchestrator) Run(ctx context.Context) error {
	o.opts.Pool.Start()

	for {
		round, err := o.scheduleRound()
		if err != nil {
			return err
		}
		o.mu.Lock()
		done := o.opts.Graph.NodeCount() == o.opts.Graph.NodeCountWithStatus(graph.Finished)
		o.mu.Unlock()
		if round == 0 && !done {
			// An acyclic, non-empty graph always has a free node
			// while it is incomplete; reaching this means the
			// graph or affinity bookkeeping is stuck.
			return errStuckGraph
		}
		if done {
			o.opts.Pool.Shutdown()
			return nil
		}

		if err := o.opts.Pool.AwaitAll(ctx); err != nil {
			// timeout or cancellation: leave partial state, never
			// block further (§4.3).
			return err
		}
	}
}

// scheduleRound performs step 1 of the main loop (§4.3): fetch free
// nodes, sort, compute worker assignments, mark Running, submit. Returns
// how many workers were submitted this round.
func (o *Orchestrator) scheduleRound() (int, error) {
	o.mu.Lock()
	free := o.opts.Graph.FreeNodes()
	if o.opts.Comparator != nil {
		sort.SliceStable(free, func(i, j int) bool { return o.opts.Comparator(free[i], free[j]) })
	}
	if len(free) == 0 {
		o.mu.Unlock()
		return 0, nil
	}

	workers := o.opts.WorkerFactory(free)
	for _, w := range workers {
		for _, n := range w.Nodes {
			_ = o.opts.Graph.SetStatus(n, graph.Running, false)
		}
		if o.opts.EnforceAffinity {
			o.assignAffinity(w)
		}
	}
	if o.opts.Observer != nil {
		o.opts.Observer.GraphGauges(o.opts.Graph.NodeCountWithStatus(graph.Ready), o.opts.Graph.NodeCountWithStatus(graph.Running))
	}
	o.mu.Unlock()

	if o.opts.Observer != nil {
		for range workers {
			o.opts.Observer.NodeScheduled()
		}
	}

	for _, w := range workers {
		w := w
		if err := o.opts.Pool.Submit(func(ctx context.Context) {
			threadID := w.ThreadHint
			if threadID == 0 {
				o.mu.Lock()
				o.threadSeq++
				threadID = o.threadSeq
				o.mu.Unlock()
			}
			w.currentThreadID = threadID
			runErr := w.Run(ctx, threadID)
			o.afterExecute(w, runErr)
		}); err != nil {
			return 0, err
		}
	}
	return len(workers), nil
}

// assignAffinity pins w to the thread id recorded for the upstream node
// that produced it, if any (§4.3's phoney-worker mechanism: rather than
// submitting a placeholder, the orchestrator simply looks up the
// recorded thread id directly — the phoney worker exists only as a
// lookup key in the teacher-style design this is adapted from, and is
// represented here by nodeWorker itself).
func (o *Orchestrator) assignAffinity(w *Worker) {
	if w.ThreadHint != 0 {
		return
	}
	for _, n := range w.Nodes {
		for _, dep := range o.opts.Graph.DependenciesOf(n) {
			if up, ok := o.nodeWorker[dep]; ok {
				w.ThreadHint = up.CurrentThreadID()
				return
			}
		}
	}
}

// afterExecute is step 2/3 of the main loop (§4.3): compute the worker's
// resulting status and apply it to all of its nodes, then notify the
// caller-supplied hook.
func (o *Orchestrator) afterExecute(w *Worker, runErr error) {
	o.mu.Lock()
	finished := true
	if o.opts.EnforceAffinity && w.Completed != nil && !w.Completed() {
		finished = false
	}
	for _, n := range w.Nodes {
		if finished {
			_ = o.opts.Graph.SetStatus(n, graph.Finished, false)
		} else {
			_ = o.opts.Graph.SetStatus(n, graph.Ready, true)
		}
		o.nodeWorker[n] = w
	}
	o.mu.Unlock()

	if o.opts.AfterExecute != nil {
		o.opts.AfterExecute(w, runErr)
	}
}
