package usecase

import "github.com/plantoncloud-inc/graph-fleet-sub000/internal/domain"

// Node names a graph node.
type Node string

const (
	NodeSelect  Node = "select"
	NodeExecute Node = "execute"
)

// Route picks the node that handles the turn in state.
//
// An expired binding routes to NodeExecute: the executor re-mints before it
// runs the planner, so a turn never observes expired credentials and never
// mints twice.
func Route(state *domain.AgentState) Node {
	text, ok := state.LastUserText()
	if !ok {
		return NodeExecute
	}
	if !state.Bound() {
		return NodeSelect
	}
	if domain.HasSwitchIntent(text) {
		return NodeSelect
	}
	return NodeExecute
}
