// Package graph implements the Dynamic Graph (C2): a mutable DAG of work
// nodes with monotonic status transitions and cached free-node
// enumeration. Adapted from the teacher's internal/jobmanager status-map
// design (single source-of-truth map + secondary indexes keyed by
// status) — pending/in-flight/completed/dead becomes ready/running/finished,
// and the "queue" secondary index becomes a pending-count-based ready set.
package graph

import (
	"errors"
	"fmt"

	"github.com/kestrel-run/kestrel/pkg/model"
)

// Status is a work node's place in its ready -> running -> finished
// lifecycle. running -> ready is permitted only under thread-affinity
// voluntary yield (§3 invariants).
type Status int

const (
	Ready Status = iota
	Running
	Finished
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// ErrCycle is returned when add-edge would make the graph cyclic.
var ErrCycle = errors.New("graph: adding this edge would create a cycle")

// Node is one Work Node: a Test Method wrapped with scheduling status.
type Node struct {
	ID     int
	Method *model.TestMethod

	status       Status
	dependents   []*Node // edges pointing at nodes that depend on this one
	dependencies []*Node // immediate predecessors
	pending      int     // count of unfinished dependencies
}

// Status returns n's current status.
func (n *Node) Status() Status { return n.status }

// Graph is a mutable DAG of Work Nodes. All mutation must happen under
// the orchestrator's single lock (§5); Graph itself does no locking —
// it is not meant to be shared without an external lock, matching the
// "callers must hold the orchestrator's lock" contract in §4.2.
type Graph struct {
	nodes     []*Node
	byMethod  map[model.MethodIdentity]*Node
	readySet  map[*Node]struct{} // pending == 0 && status == Ready
	countByStatus [3]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		byMethod: make(map[model.MethodIdentity]*Node),
		readySet: make(map[*Node]struct{}),
	}
}

// AddNode adds a new Work Node wrapping method and returns it.
func (g *Graph) AddNode(method *model.TestMethod) *Node {
	n := &Node{ID: len(g.nodes), Method: method, status: Ready}
	g.nodes = append(g.nodes, n)
	g.byMethod[method.Identity] = n
	g.readySet[n] = struct{}{}
	g.countByStatus[Ready]++
	return n
}

// NodeFor looks up the node wrapping a given method identity, if any.
func (g *Graph) NodeFor(id model.MethodIdentity) (*Node, bool) {
	n, ok := g.byMethod[id]
	return n, ok
}

// AddEdge records that from depends on to (from must not start until to
// is finished). Rejects cycles per §3's "acyclic at all times" invariant.
func (g *Graph) AddEdge(from, to *Node) error {
	if from == to {
		return ErrCycle
	}
	if g.reaches(to, from) {
		return ErrCycle
	}
	from.dependencies = append(from.dependencies, to)
	to.dependents = append(to.dependents, from)
	if to.status != Finished {
		if from.pending == 0 {
			delete(g.readySet, from)
		}
		from.pending++
	}
	return nil
}

// reaches reports whether a node reachable from start (via dependencies)
// includes target — used to detect a cycle before the edge is committed.
func (g *Graph) reaches(start, target *Node) bool {
	if start == target {
		return true
	}
	seen := make(map[*Node]bool)
	var stack []*Node
	stack = append(stack, start.dependencies...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == target {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, n.dependencies...)
	}
	return false
}

// DependenciesOf returns n's immediate predecessors.
func (g *Graph) DependenciesOf(n *Node) []*Node {
	out := make([]*Node, len(n.dependencies))
	copy(out, n.dependencies)
	return out
}

// SetStatus performs a validated, monotonic status transition (§3):
// ready -> running -> finished always allowed; running -> ready allowed
// only when affinityYield is true (a voluntary yield under enforced
// thread affinity, §4.3).
func (g *Graph) SetStatus(n *Node, s Status, affinityYield bool) error {
	switch {
	case n.status == Ready && s == Running:
		if n.pending != 0 {
			return fmt.Errorf("graph: node %d has %d unfinished dependencies, cannot run", n.ID, n.pending)
		}
	case n.status == Running && s == Finished:
		// always allowed
	case n.status == Running && s == Ready:
		if !affinityYield {
			return fmt.Errorf("graph: running -> ready only allowed under thread-affinity yield")
		}
	case n.status == s:
		return nil
	default:
		return fmt.Errorf("graph: illegal transition %s -> %s", n.status, s)
	}

	g.countByStatus[n.status]--
	n.status = s
	g.countByStatus[s]++

	switch s {
	case Ready:
		if n.pending == 0 {
			g.readySet[n] = struct{}{}
		}
	case Running:
		delete(g.readySet, n)
	case Finished:
		delete(g.readySet, n)
		for _, dep := range n.dependents {
			if dep.pending > 0 {
				dep.pending--
				if dep.pending == 0 && dep.status == Ready {
					g.readySet[dep] = struct{}{}
				}
			}
		}
	}
	return nil
}

// FreeNodes returns a stable snapshot, in insertion order, of nodes with
// status Ready and zero unfinished dependencies (§3, §4.2).
func (g *Graph) FreeNodes() []*Node {
	out := make([]*Node, 0, len(g.readySet))
	for _, n := range g.nodes {
		if _, ok := g.readySet[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// NodeCount returns the total number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// NodeCountWithStatus returns how many nodes currently have status s.
func (g *Graph) NodeCountWithStatus(s Status) int { return g.countByStatus[s] }

// AllNodes returns every node in insertion order.
func (g *Graph) AllNodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}
