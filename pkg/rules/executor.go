package rules

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/graphrule/pkg/graph"
)

// ExecOptions selects the failure policy for one action sequence.
type ExecOptions struct {
	// ValidateBeforeExecute runs Validate on every action up front; any
	// failure returns immediately with no side effects.
	ValidateBeforeExecute bool

	// ContinueOnFailure keeps executing subsequent actions after one
	// fails. Overall success is false iff at least one action failed.
	ContinueOnFailure bool

	// RollbackOnFailure unwinds the undo log of previously successful
	// actions when one fails, leaving the graph in its pre-call state.
	// When set together with ContinueOnFailure, rollback wins: execution
	// stops at the first failure.
	RollbackOnFailure bool
}

// ActionOutcome records one action's result within an ExecResult.
type ActionOutcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Action  string `json:"action"`
}

// ExecResult is the overall outcome of ExecuteActions.
type ExecResult struct {
	Success       bool            `json:"success"`
	Error         string          `json:"error,omitempty"`
	ActionResults []ActionOutcome `json:"actionResults"`
}

// ExecuteActions runs the action list against the binding context under the
// chosen failure policy. Actions execute strictly in order; each successful
// action may rebind variables that later actions resolve.
func ExecuteActions(g *graph.Graph, actions []Action, b *Bindings, opts ExecOptions) *ExecResult {
	result := &ExecResult{Success: true}

	if opts.ValidateBeforeExecute {
		for _, action := range actions {
			if err := action.Validate(g, b); err != nil {
				result.Success = false
				result.Error = fmt.Sprintf("Validation failed: %v", err)
				return result
			}
		}
	}

	log := logrus.WithField("component", "executor")
	var undoLog []UndoFunc

	for _, action := range actions {
		res := action.Execute(g, b)
		outcome := ActionOutcome{Success: res.Success, Action: action.Describe()}
		if res.Err != nil {
			outcome.Error = res.Err.Error()
		}
		result.ActionResults = append(result.ActionResults, outcome)

		if res.Success {
			if opts.RollbackOnFailure && res.Undo != nil {
				undoLog = append(undoLog, res.Undo)
			}
			continue
		}

		result.Success = false
		if result.Error == "" && res.Err != nil {
			result.Error = res.Err.Error()
		}

		if opts.RollbackOnFailure {
			// Unwind in reverse. An undo that itself fails is recorded but
			// does not trigger further rollback.
			log.WithField("failed_action", action.Describe()).Debug("rolling back")
			for i := len(undoLog) - 1; i >= 0; i-- {
				if err := undoLog[i](g); err != nil {
					result.ActionResults = append(result.ActionResults, ActionOutcome{
						Success: false,
						Error:   err.Error(),
						Action:  "undo: " + result.ActionResults[i].Action,
					})
				}
			}
			return result
		}

		if !opts.ContinueOnFailure {
			return result
		}
	}

	return result
}
