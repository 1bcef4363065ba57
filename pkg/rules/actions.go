package rules

import (
	"fmt"
	"strings"

	"github.com/orneryd/graphrule/pkg/graph"
)

// UndoFunc reverses a previously executed action. Undo funcs are retained
// by the executor only when rollback is enabled and live for the duration
// of one ExecuteActions call.
type UndoFunc func(g *graph.Graph) error

// ActionResult is the outcome of one action execution. On success Undo
// holds the inverse operation.
type ActionResult struct {
	Success bool
	Err     error
	Undo    UndoFunc
}

// Action is a single executable graph mutation. Execute resolves its
// parameters through the binding context and, on success, rebinds any newly
// produced entity so subsequent actions in the same sequence can see it.
type Action interface {
	Validate(g *graph.Graph, b *Bindings) error
	Execute(g *graph.Graph, b *Bindings) ActionResult
	Describe() string
}

// buildActions instantiates executable actions from parsed templates.
func buildActions(templates []ActionTemplate, opts Options) []Action {
	actions := make([]Action, 0, len(templates))
	for _, tmpl := range templates {
		switch t := tmpl.(type) {
		case *CreateNodeTemplate:
			actions = append(actions, &CreateNodeAction{
				Variable:   t.Variable,
				Labels:     t.Labels,
				Properties: t.Properties,
				opts:       opts,
			})
		case *CreateRelTemplate:
			actions = append(actions, &CreateRelAction{
				Variable:   t.Variable,
				FromVar:    t.FromVar,
				ToVar:      t.ToVar,
				Type:       t.Type,
				Properties: t.Properties,
				opts:       opts,
			})
		case *SetPropertyTemplate:
			actions = append(actions, &SetPropertyAction{
				Target: t.Target,
				Key:    t.Key,
				Value:  t.Value,
				opts:   opts,
			})
		}
	}
	return actions
}

// evalProperties resolves template property expressions under the current
// bindings.
func evalProperties(g *graph.Graph, b *Bindings, props map[string]Expr, opts Options) (map[string]any, error) {
	ev := &evaluator{g: g, b: b, opts: opts}
	values := make(map[string]any, len(props))
	for key, expr := range props {
		v, err := ev.eval(expr)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", key, err)
		}
		values[key] = v
	}
	return values, nil
}

// CreateNodeAction creates a node with a freshly allocated ID and binds it
// to Variable.
type CreateNodeAction struct {
	Variable   string
	Labels     []string
	Properties map[string]Expr
	opts       Options
}

func (a *CreateNodeAction) Validate(g *graph.Graph, b *Bindings) error {
	if len(a.Labels) == 0 {
		return fmt.Errorf("%w: CREATE node requires at least one label", ErrValidationFailed)
	}
	for _, label := range a.Labels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("%w: empty label", ErrValidationFailed)
		}
	}
	if a.Variable == "" {
		return fmt.Errorf("%w: CREATE node requires a variable", ErrValidationFailed)
	}
	if b.Has(a.Variable) {
		return fmt.Errorf("%w: variable %q is already bound", ErrValidationFailed, a.Variable)
	}
	return nil
}

func (a *CreateNodeAction) Execute(g *graph.Graph, b *Bindings) ActionResult {
	if err := a.Validate(g, b); err != nil {
		return ActionResult{Err: err}
	}

	props, err := evalProperties(g, b, a.Properties, a.opts)
	if err != nil {
		return ActionResult{Err: fmt.Errorf("%s: %w", a.Describe(), err)}
	}
	if len(a.Labels) > 1 {
		labels := make([]any, len(a.Labels))
		for i, l := range a.Labels {
			labels[i] = l
		}
		props["labels"] = labels
	}

	// The generator is free-running; skip IDs the graph already holds.
	var node *graph.Node
	for {
		id := a.opts.IDGenerator()
		if _, exists := g.GetNode(id); exists {
			continue
		}
		node, err = g.AddNode(id, a.Labels[0], props)
		if err != nil {
			return ActionResult{Err: fmt.Errorf("%s: %w", a.Describe(), err)}
		}
		break
	}

	b.Set(a.Variable, node)
	id := node.ID
	return ActionResult{
		Success: true,
		Undo: func(g *graph.Graph) error {
			if _, exists := g.GetNode(id); !exists {
				return fmt.Errorf("undo create node: %q: %w", id, graph.ErrUnknownNode)
			}
			g.RemoveNode(id)
			return nil
		},
	}
}

func (a *CreateNodeAction) Describe() string {
	return "CREATE (" + a.Variable + ":" + strings.Join(a.Labels, ":") + ")"
}

// CreateRelAction creates a relationship between two bound nodes. Creating
// over an existing (source, target, label) triple replaces its properties;
// undo restores the replaced edge.
type CreateRelAction struct {
	Variable   string
	FromVar    string
	ToVar      string
	Type       string
	Properties map[string]Expr
	opts       Options
}

func (a *CreateRelAction) Validate(g *graph.Graph, b *Bindings) error {
	if strings.TrimSpace(a.Type) == "" {
		return fmt.Errorf("%w: relationship type must be a non-empty string", ErrValidationFailed)
	}
	for _, name := range []string{a.FromVar, a.ToVar} {
		value, ok := b.Get(name)
		if !ok {
			return fmt.Errorf("%w: %q: %s", ErrValidationFailed, name, ErrUnboundVariable.Error())
		}
		if _, isNode := value.(*graph.Node); !isNode {
			return fmt.Errorf("%w: %q is not bound to a node", ErrValidationFailed, name)
		}
	}
	return nil
}

func (a *CreateRelAction) Execute(g *graph.Graph, b *Bindings) ActionResult {
	from, ok := b.Get(a.FromVar)
	if !ok {
		return ActionResult{Err: fmt.Errorf("%s: %q: %w", a.Describe(), a.FromVar, ErrUnboundVariable)}
	}
	to, ok := b.Get(a.ToVar)
	if !ok {
		return ActionResult{Err: fmt.Errorf("%s: %q: %w", a.Describe(), a.ToVar, ErrUnboundVariable)}
	}
	fromNode, ok := from.(*graph.Node)
	if !ok {
		return ActionResult{Err: fmt.Errorf("%s: %q is not a node: %w", a.Describe(), a.FromVar, ErrTypeMismatch)}
	}
	toNode, ok := to.(*graph.Node)
	if !ok {
		return ActionResult{Err: fmt.Errorf("%s: %q is not a node: %w", a.Describe(), a.ToVar, ErrTypeMismatch)}
	}

	props, err := evalProperties(g, b, a.Properties, a.opts)
	if err != nil {
		return ActionResult{Err: fmt.Errorf("%s: %w", a.Describe(), err)}
	}

	// Capture a replaced edge so undo can restore its property bag
	var replaced map[string]any
	wasReplaced := false
	if prev, exists := g.GetEdge(fromNode.ID, toNode.ID, a.Type); exists {
		wasReplaced = true
		replaced = make(map[string]any, len(prev.Properties))
		for k, v := range prev.Properties {
			replaced[k] = v
		}
	}

	edge, err := g.AddEdge(fromNode.ID, toNode.ID, a.Type, props)
	if err != nil {
		return ActionResult{Err: fmt.Errorf("%s: %w", a.Describe(), err)}
	}

	if a.Variable != "" {
		b.Set(a.Variable, edge)
	}

	src, tgt, label := fromNode.ID, toNode.ID, a.Type
	return ActionResult{
		Success: true,
		Undo: func(g *graph.Graph) error {
			if wasReplaced {
				_, err := g.AddEdge(src, tgt, label, replaced)
				return err
			}
			g.RemoveEdge(src, tgt, label)
			return nil
		},
	}
}

func (a *CreateRelAction) Describe() string {
	return "CREATE (" + a.FromVar + ")-[" + a.Variable + ":" + a.Type + "]->(" + a.ToVar + ")"
}

// SetPropertyAction evaluates its value expression under the current
// bindings and assigns it to a property of a bound node or relationship.
type SetPropertyAction struct {
	Target string
	Key    string
	Value  Expr
	opts   Options
}

func (a *SetPropertyAction) Validate(g *graph.Graph, b *Bindings) error {
	if strings.TrimSpace(a.Key) == "" {
		return fmt.Errorf("%w: property key must be non-empty", ErrValidationFailed)
	}
	value, ok := b.Get(a.Target)
	if !ok {
		return fmt.Errorf("%w: %q: %s", ErrValidationFailed, a.Target, ErrUnboundVariable.Error())
	}
	switch value.(type) {
	case *graph.Node, *graph.Edge:
		return nil
	}
	return fmt.Errorf("%w: %q is not bound to a node or relationship", ErrValidationFailed, a.Target)
}

func (a *SetPropertyAction) Execute(g *graph.Graph, b *Bindings) ActionResult {
	target, ok := b.Get(a.Target)
	if !ok {
		return ActionResult{Err: fmt.Errorf("%s: %q: %w", a.Describe(), a.Target, ErrUnboundVariable)}
	}

	var props map[string]any
	switch entity := target.(type) {
	case *graph.Node:
		props = entity.Properties
	case *graph.Edge:
		props = entity.Properties
	default:
		return ActionResult{Err: fmt.Errorf("%s: %q is not a node or relationship: %w", a.Describe(), a.Target, ErrTypeMismatch)}
	}

	ev := &evaluator{g: g, b: b, opts: a.opts}
	value, err := ev.eval(a.Value)
	if err != nil {
		return ActionResult{Err: fmt.Errorf("%s: %w", a.Describe(), err)}
	}

	prior, existed := props[a.Key]
	props[a.Key] = value
	g.Touch()

	key := a.Key
	return ActionResult{
		Success: true,
		Undo: func(g *graph.Graph) error {
			if existed {
				props[key] = prior
			} else {
				delete(props, key)
			}
			g.Touch()
			return nil
		},
	}
}

func (a *SetPropertyAction) Describe() string {
	return "SET " + a.Target + "." + a.Key
}
