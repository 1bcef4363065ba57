package rules

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/orneryd/graphrule/pkg/graph"
)

// RuleInfo carries a rule's Markdown header metadata into results.
type RuleInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// RuleResult is the outcome of executing one rule.
type RuleResult struct {
	Rule       RuleInfo    `json:"rule"`
	Success    bool        `json:"success"`
	MatchCount int         `json:"matchCount"`
	Actions    *ExecResult `json:"actions,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Engine glues the pipeline together: AST -> matches -> bindings ->
// actions -> results.
//
// The engine is single-threaded and not reentrant: actions may not invoke
// it recursively. Each binding tuple receives its own cloned context, so
// one tuple's created entities never leak into another's bindings.
type Engine struct {
	g       *graph.Graph
	opts    Options
	matcher *Matcher
	log     *logrus.Entry

	executing bool
}

// NewEngine creates an engine over the graph with the given options.
func NewEngine(g *graph.Graph, opts Options) *Engine {
	opts = opts.normalize()
	return &Engine{
		g:       g,
		opts:    opts,
		matcher: NewMatcher(g, opts),
		log:     logrus.WithField("component", "engine"),
	}
}

// Graph returns the engine's graph.
func (e *Engine) Graph() *graph.Graph {
	return e.g
}

// Matcher returns the engine's pattern matcher, mainly for cache control.
func (e *Engine) Matcher() *Matcher {
	return e.matcher
}

// ExecuteQuery parses and executes one rule. Errors never escape: any
// parse, match, or execution failure is reported on the RuleResult.
func (e *Engine) ExecuteQuery(ruleText string) *RuleResult {
	rule, err := ParseRule(ruleText)
	if err != nil {
		return &RuleResult{Success: false, Error: err.Error()}
	}
	return e.ExecuteRule(rule)
}

// ExecuteRule executes an already parsed rule.
func (e *Engine) ExecuteRule(rule *Rule) (result *RuleResult) {
	result = &RuleResult{
		Rule: RuleInfo{Name: rule.Name, Description: rule.Description, Priority: rule.Priority},
	}

	if e.executing {
		result.Error = ErrNotReentrant.Error()
		return result
	}
	e.executing = true
	defer func() { e.executing = false }()

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("rule execution panicked: %v", r)
		}
	}()

	tuples, err := e.matchTuples(rule)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	e.log.WithFields(logrus.Fields{
		"rule":    rule.Name,
		"matches": len(tuples),
	}).Debug("matched binding tuples")

	combined := &ExecResult{Success: true}
	for _, tuple := range tuples {
		actions := buildActions(rule.Actions, e.opts)
		execResult := ExecuteActions(e.g, actions, tuple.Clone(), e.opts.Exec)
		result.MatchCount++

		combined.ActionResults = append(combined.ActionResults, execResult.ActionResults...)
		if !execResult.Success {
			combined.Success = false
			if combined.Error == "" {
				combined.Error = execResult.Error
			}
		}
	}

	result.Actions = combined
	result.Success = combined.Success
	return result
}

// matchTuples produces the binding tuples a rule's actions run against:
// one empty context for a CREATE-only rule, otherwise the WHERE-filtered
// Cartesian product of the per-pattern match sets.
func (e *Engine) matchTuples(rule *Rule) ([]*Bindings, error) {
	if len(rule.Matches) == 0 {
		return []*Bindings{NewBindings()}, nil
	}

	sets := make([][]*Bindings, len(rule.Matches))
	for i, pattern := range rule.Matches {
		enriched := e.matcher.EnrichPattern(pattern, NewBindings())
		matched := e.matcher.findPaths(enriched)
		set := make([]*Bindings, 0, len(matched))
		for _, mp := range matched {
			set = append(set, bindPath(pattern, mp))
		}
		sets[i] = set
	}

	tuples := combineBindings(sets)
	if rule.Where == nil {
		return tuples, nil
	}

	filtered := make([]*Bindings, 0, len(tuples))
	for _, tuple := range tuples {
		ev := &evaluator{g: e.g, b: tuple, opts: e.opts}
		value, err := ev.eval(rule.Where)
		if err != nil {
			if errors.Is(err, errMalformedExpr) {
				return nil, err
			}
			// Ordinary evaluation errors reject the tuple
			continue
		}
		if admitted, ok := value.(bool); ok && admitted {
			filtered = append(filtered, tuple)
		}
	}
	return filtered, nil
}

// bindPath converts one matched path into a binding context for its
// pattern. Fixed-length relationship variables bind the single traversed
// edge; variable-length ones bind the slice of edges their segment
// consumed. Intermediate nodes of a variable-length segment stay unbound.
func bindPath(pp *PathPattern, mp matchedPath) *Bindings {
	b := NewBindings()
	if pp.Start.Variable != "" {
		b.Set(pp.Start.Variable, mp.path.Nodes[0])
	}

	offset := 0
	for i, seg := range pp.Segments {
		hops := 1
		if i < len(mp.segHops) {
			hops = mp.segHops[i]
		}
		if seg.Rel.Variable != "" {
			if seg.Rel.IsVariable() {
				edges := make([]any, hops)
				for j := 0; j < hops; j++ {
					edges[j] = mp.path.Edges[offset+j]
				}
				b.Set(seg.Rel.Variable, edges)
			} else {
				b.Set(seg.Rel.Variable, mp.path.Edges[offset])
			}
		}
		offset += hops
		if seg.Node.Variable != "" {
			b.Set(seg.Node.Variable, mp.path.Nodes[offset])
		}
	}
	return b
}

// ExecuteQueriesFromMarkdown extracts every graphrule fenced block from
// the document and executes them in descending priority order, ties broken
// by order of appearance. One result is returned per rule, parse failures
// included.
func (e *Engine) ExecuteQueriesFromMarkdown(markdown []byte) []*RuleResult {
	sources := ExtractRules(markdown)

	type pending struct {
		source RuleSource
		rule   *Rule
		err    error
	}
	items := make([]pending, len(sources))
	for i, src := range sources {
		rule, err := ParseRule(src.Body)
		if err == nil {
			rule.Name = src.Name
			rule.Description = src.Description
			rule.Priority = src.Priority
		}
		items[i] = pending{source: src, rule: rule, err: err}
	}

	// Higher priority runs first; SliceStable keeps document order on ties
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].source.Priority > items[j].source.Priority
	})

	results := make([]*RuleResult, 0, len(items))
	for _, item := range items {
		if item.err != nil {
			results = append(results, &RuleResult{
				Rule: RuleInfo{
					Name:        item.source.Name,
					Description: item.source.Description,
					Priority:    item.source.Priority,
				},
				Success: false,
				Error:   item.err.Error(),
			})
			continue
		}
		e.log.WithFields(logrus.Fields{
			"rule":     item.source.Name,
			"priority": item.source.Priority,
		}).Debug("executing rule")
		results = append(results, e.ExecuteRule(item.rule))
	}
	return results
}
