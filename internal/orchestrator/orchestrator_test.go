package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kestrel-run/kestrel/internal/graph"
	"github.com/kestrel-run/kestrel/internal/pool"
	"github.com/kestrel-run/kestrel/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func method(name string) *model.TestMethod {
	return &model.TestMethod{Identity: model.MethodIdentity{Class: "T", Method: name}}
}

func recordingWorkerFactory(t *testing.T, order *[]string, mu *sync.Mutex) WorkerFactory {
	return func(nodes []*graph.Node) []*Worker {
		workers := make([]*Worker, 0, len(nodes))
		for _, n := range nodes {
			n := n
			workers = append(workers, &Worker{
				Nodes: []*graph.Node{n},
				Run: func(ctx context.Context, threadID int) error {
					mu.Lock()
					*order = append(*order, n.Method.Identity.Method)
					mu.Unlock()
					return nil
				},
				Completed: func() bool { return true },
			})
		}
		return workers
	}
}

func TestRunDrainsLinearChain(t *testing.T) {
	g := graph.New()
	a := g.AddNode(method("a"))
	b := g.AddNode(method("b"))
	require.NoError(t, g.AddEdge(b, a))

	p, err := pool.New(2)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	orc := New(Options{
		Graph:         g,
		Pool:          p,
		WorkerFactory: recordingWorkerFactory(t, &order, &mu),
	})

	require.NoError(t, orc.Run(context.Background()))
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, g.NodeCount(), g.NodeCountWithStatus(graph.Finished))
}

func TestRunHonoursComparator(t *testing.T) {
	g := graph.New()
	a := g.AddNode(method("a"))
	a.Method.Priority = 2
	b := g.AddNode(method("b"))
	b.Method.Priority = 1

	p, err := pool.New(1) // force serialization so order is observable
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	orc := New(Options{
		Graph:         g,
		Pool:          p,
		WorkerFactory: recordingWorkerFactory(t, &order, &mu),
		Comparator:    func(x, y *graph.Node) bool { return x.Method.Priority < y.Method.Priority },
	})

	require.NoError(t, orc.Run(context.Background()))
	assert.Equal(t, []string{"b", "a"}, order)
}

func TestRunPropagatesTimeoutError(t *testing.T) {
	g := graph.New()
	g.AddNode(method("slow"))

	p, err := pool.New(1)
	require.NoError(t, err)

	orc := New(Options{
		Graph: g,
		Pool:  p,
		WorkerFactory: func(nodes []*graph.Node) []*Worker {
			workers := make([]*Worker, 0, len(nodes))
			for _, n := range nodes {
				workers = append(workers, &Worker{
					Nodes: []*graph.Node{n},
					Run: func(ctx context.Context, threadID int) error {
						<-ctx.Done()
						return ctx.Err()
					},
					Completed: func() bool { return true },
				})
			}
			return workers
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = orc.Run(ctx)
	assert.Error(t, err)
}

func TestAssignAffinityReusesUpstreamThreadID(t *testing.T) {
	g := graph.New()
	a := g.AddNode(method("a"))
	b := g.AddNode(method("b"))
	require.NoError(t, g.AddEdge(b, a))

	p, err := pool.New(2)
	require.NoError(t, err)

	var mu sync.Mutex
	threadIDs := make(map[string]int)
	orc := New(Options{
		Graph: g,
		Pool:  p,
		WorkerFactory: func(nodes []*graph.Node) []*Worker {
			workers := make([]*Worker, 0, len(nodes))
			for _, n := range nodes {
				n := n
				workers = append(workers, &Worker{
					Nodes: []*graph.Node{n},
					Run: func(ctx context.Context, threadID int) error {
						mu.Lock()
						threadIDs[n.Method.Identity.Method] = threadID
						mu.Unlock()
						return nil
					},
					Completed: func() bool { return true },
				})
			}
			return workers
		},
		EnforceAffinity: true,
	})

	require.NoError(t, orc.Run(context.Background()))
	assert.Equal(t, threadIDs["a"], threadIDs["b"])
}
