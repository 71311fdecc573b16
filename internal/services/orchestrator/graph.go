// Package orchestrator runs the annotation workflow: an ordered list of
// nodes over an AgentState with one branch between annotating and
// answering a question.
package orchestrator

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dashnote/internal/models"
)

// NodeFunc transforms the state of one invocation
type NodeFunc func(ctx context.Context, state models.AgentState) models.AgentState

// Node is a named step of the graph
type Node struct {
	Name string
	Run  NodeFunc
}

// Graph runs its nodes in order, then exactly one of the two terminal nodes
// chosen by the branch predicate. There are no cycles and no retries.
type Graph struct {
	nodes   []Node
	branch  func(models.AgentState) bool
	onTrue  Node
	onFalse Node
	logger  arbor.ILogger
}

// NewGraph creates a graph. branch selects onTrue or onFalse after nodes.
func NewGraph(nodes []Node, branch func(models.AgentState) bool, onTrue, onFalse Node, logger arbor.ILogger) *Graph {
	return &Graph{
		nodes:   nodes,
		branch:  branch,
		onTrue:  onTrue,
		onFalse: onFalse,
		logger:  logger,
	}
}

// Names lists the nodes in execution order, the terminal pair last
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.nodes)+2)
	for _, n := range g.nodes {
		names = append(names, n.Name)
	}
	return append(names, g.onTrue.Name, g.onFalse.Name)
}

// Invoke runs the graph. A node that records an input error, or a done
// context, stops the run before the next node.
func (g *Graph) Invoke(ctx context.Context, state models.AgentState) models.AgentState {
	for _, node := range g.nodes {
		if halted(ctx, state) {
			return state
		}
		state = g.step(ctx, node, state)
	}
	if halted(ctx, state) {
		return state
	}

	if g.branch(state) {
		return g.step(ctx, g.onTrue, state)
	}
	return g.step(ctx, g.onFalse, state)
}

func (g *Graph) step(ctx context.Context, node Node, state models.AgentState) models.AgentState {
	start := time.Now()
	state = node.Run(ctx, state)
	g.logger.Debug().
		Str("node", node.Name).
		Str("duration", time.Since(start).String()).
		Msg("Node complete")
	return state
}

func halted(ctx context.Context, state models.AgentState) bool {
	return state.Outcome == models.OutcomeInputError || ctx.Err() != nil
}
