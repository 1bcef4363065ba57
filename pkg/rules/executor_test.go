package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphrule/pkg/graph"
)

func createNode(variable string, labels ...string) Action {
	return &CreateNodeAction{Variable: variable, Labels: labels, opts: testOpts()}
}

func createRel(from, to, relType string) Action {
	return &CreateRelAction{FromVar: from, ToVar: to, Type: relType, opts: testOpts()}
}

// ========================================
// Basic sequencing
// ========================================

func TestExecuteActions_AllSucceed(t *testing.T) {
	g := graph.New()
	actions := []Action{
		createNode("p", "Person"),
		createNode("t", "Task"),
		createRel("p", "t", "WORKS_ON"),
	}

	result := ExecuteActions(g, actions, NewBindings(), ExecOptions{})
	require.True(t, result.Success)
	require.Len(t, result.ActionResults, 3)
	for _, outcome := range result.ActionResults {
		assert.True(t, outcome.Success)
		assert.NotEmpty(t, outcome.Action)
	}

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())
}

func TestExecuteActions_StopsOnFirstFailureByDefault(t *testing.T) {
	g := graph.New()
	actions := []Action{
		createNode("p", "Person"),
		createRel("p", "missing", "REL"),
		createNode("t", "Task"), // never reached
	}

	result := ExecuteActions(g, actions, NewBindings(), ExecOptions{})
	assert.False(t, result.Success)
	require.Len(t, result.ActionResults, 2)
	assert.True(t, result.ActionResults[0].Success)
	assert.False(t, result.ActionResults[1].Success)

	// No rollback requested: the first node stays
	assert.Equal(t, 1, g.NodeCount())
}

// ========================================
// Validate-first
// ========================================

func TestExecuteActions_ValidateBeforeExecute(t *testing.T) {
	g := graph.New()
	actions := []Action{
		createNode("p", "Person"),
		createRel("p", "x", "REL"), // x never bound: validation fails
	}

	result := ExecuteActions(g, actions, NewBindings(), ExecOptions{ValidateBeforeExecute: true})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Validation failed")

	// No side effects at all
	assert.Equal(t, 0, g.NodeCount())
	assert.Empty(t, result.ActionResults)
}

// ========================================
// Continue on failure
// ========================================

func TestExecuteActions_ContinueOnFailure(t *testing.T) {
	g := graph.New()
	actions := []Action{
		createNode("p", "Person"),
		createNode("p", "Task"), // duplicate variable fails
		createNode("t", "Task"),
	}

	result := ExecuteActions(g, actions, NewBindings(), ExecOptions{ContinueOnFailure: true})
	assert.False(t, result.Success)
	require.Len(t, result.ActionResults, 3)
	assert.True(t, result.ActionResults[0].Success)
	assert.False(t, result.ActionResults[1].Success)
	assert.Contains(t, result.ActionResults[1].Error, "already bound")
	assert.True(t, result.ActionResults[2].Success)

	assert.Equal(t, 2, g.NodeCount())
}

// ========================================
// Rollback
// ========================================

func TestExecuteActions_RollbackRestoresGraph(t *testing.T) {
	g := graph.New()
	actions := []Action{
		createNode("p", "Person"),
		createNode("t", "Task"),
		createRel("p", "x", "WORKS_ON"), // x unbound: fails
	}

	result := ExecuteActions(g, actions, NewBindings(), ExecOptions{RollbackOnFailure: true})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not found in bindings")

	// Graph back to its pre-call state
	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
}

func TestExecuteActions_RollbackRestoresProperties(t *testing.T) {
	g := graph.New()
	node, _ := g.AddNode("p1", "Person", map[string]any{"status": "Old"})
	b := NewBindings()
	b.Set("p", node)

	actions := []Action{
		&SetPropertyAction{Target: "p", Key: "status", Value: &Literal{Value: "New"}, opts: testOpts()},
		&SetPropertyAction{Target: "p", Key: "level", Value: &Literal{Value: int64(3)}, opts: testOpts()},
		createRel("p", "ghost", "REL"), // fails
	}

	result := ExecuteActions(g, actions, b, ExecOptions{RollbackOnFailure: true})
	assert.False(t, result.Success)

	assert.Equal(t, "Old", node.Properties["status"])
	_, ok := node.Properties["level"]
	assert.False(t, ok)
}

func TestExecuteActions_RollbackBeatsContinue(t *testing.T) {
	g := graph.New()
	actions := []Action{
		createNode("p", "Person"),
		createRel("p", "x", "REL"), // fails
		createNode("t", "Task"),    // must NOT run: rollback wins
	}

	result := ExecuteActions(g, actions, NewBindings(), ExecOptions{
		ContinueOnFailure: true,
		RollbackOnFailure: true,
	})
	assert.False(t, result.Success)
	// create, failing create-rel; the trailing create never executed
	assert.Len(t, result.ActionResults, 2)
	assert.Equal(t, 0, g.NodeCount())
}

func TestExecuteActions_UndoFailureRecordedNotCascaded(t *testing.T) {
	g := graph.New()

	// An action whose undo always fails; the create-node undo before it
	// still succeeds.
	sabotage := &sabotageAction{}
	actions := []Action{
		createNode("p", "Person"),
		sabotage,
		createRel("p", "x", "REL"), // triggers rollback
	}

	result := ExecuteActions(g, actions, NewBindings(), ExecOptions{RollbackOnFailure: true})
	assert.False(t, result.Success)

	var undoFailures int
	for _, outcome := range result.ActionResults {
		if len(outcome.Action) >= 5 && outcome.Action[:5] == "undo:" {
			undoFailures++
		}
	}
	assert.Equal(t, 1, undoFailures)
}

// sabotageAction succeeds and installs an undo that always fails.
type sabotageAction struct{}

func (a *sabotageAction) Validate(g *graph.Graph, b *Bindings) error { return nil }
func (a *sabotageAction) Execute(g *graph.Graph, b *Bindings) ActionResult {
	return ActionResult{
		Success: true,
		Undo: func(g *graph.Graph) error {
			return assert.AnError
		},
	}
}
func (a *sabotageAction) Describe() string { return "sabotage" }
