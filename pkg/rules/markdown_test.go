package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/graphrule/pkg/graph"
)

const sampleDoc = "# Team rules\n" +
	"\n" +
	"Some prose that should be ignored.\n" +
	"\n" +
	"```graphrule\n" +
	"name: assign-tasks\n" +
	"description: Connect every person to every task\n" +
	"priority: 5\n" +
	"\n" +
	"MATCH (p:Person), (t:Task)\n" +
	"CREATE (p)-[r:WORKS_ON]->(t)\n" +
	"```\n" +
	"\n" +
	"```go\n" +
	"// a plain code fence, not a rule\n" +
	"func main() {}\n" +
	"```\n" +
	"\n" +
	"```graphrule\n" +
	"name: seed-admin\n" +
	"priority: 10\n" +
	"\n" +
	"CREATE (a:Admin {name: \"root\"})\n" +
	"```\n"

// ========================================
// Extraction
// ========================================

func TestExtractRules(t *testing.T) {
	sources := ExtractRules([]byte(sampleDoc))
	require.Len(t, sources, 2)

	assert.Equal(t, "assign-tasks", sources[0].Name)
	assert.Equal(t, "Connect every person to every task", sources[0].Description)
	assert.Equal(t, 5, sources[0].Priority)
	assert.Contains(t, sources[0].Body, "MATCH (p:Person), (t:Task)")
	assert.NotContains(t, sources[0].Body, "name:")

	assert.Equal(t, "seed-admin", sources[1].Name)
	assert.Equal(t, 10, sources[1].Priority)
}

func TestExtractRules_NoHeaderIsAllBody(t *testing.T) {
	doc := "```graphrule\nCREATE (n:N)\n```\n"
	sources := ExtractRules([]byte(doc))
	require.Len(t, sources, 1)
	assert.Empty(t, sources[0].Name)
	assert.Equal(t, "CREATE (n:N)", sources[0].Body)
}

func TestExtractRules_InfoStringWithSuffix(t *testing.T) {
	doc := "```graphrule v1\nname: x\n\nCREATE (n:N)\n```\n"
	sources := ExtractRules([]byte(doc))
	require.Len(t, sources, 1)
	assert.Equal(t, "x", sources[0].Name)
}

func TestExtractRules_IgnoresOtherFences(t *testing.T) {
	doc := "```cypher\nMATCH (n) RETURN n\n```\n"
	assert.Empty(t, ExtractRules([]byte(doc)))
}

// ========================================
// Execution ordering
// ========================================

func TestExecuteQueriesFromMarkdown_DescendingPriority(t *testing.T) {
	g := graph.New()
	g.AddNode("t1", "Task", nil)

	e := newTestEngine(g)
	results := e.ExecuteQueriesFromMarkdown([]byte(sampleDoc))
	require.Len(t, results, 2)

	// seed-admin (priority 10) runs before assign-tasks (priority 5)
	assert.Equal(t, "seed-admin", results[0].Rule.Name)
	assert.Equal(t, "assign-tasks", results[1].Rule.Name)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)

	// No Person existed, so assign-tasks matched nothing
	assert.Equal(t, 0, results[1].MatchCount)
	_, ok := g.FindNodes(func(n *graph.Node) bool { return n.Label == "Admin" })[0].Properties["name"]
	assert.True(t, ok)
}

func TestExecuteQueriesFromMarkdown_TiesKeepDocumentOrder(t *testing.T) {
	doc := "```graphrule\nname: first\npriority: 1\n\nCREATE (a:A)\n```\n" +
		"```graphrule\nname: second\npriority: 1\n\nCREATE (b:B)\n```\n"

	e := newTestEngine(graph.New())
	results := e.ExecuteQueriesFromMarkdown([]byte(doc))
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].Rule.Name)
	assert.Equal(t, "second", results[1].Rule.Name)
}

func TestExecuteQueriesFromMarkdown_ParseFailureIsPerRule(t *testing.T) {
	doc := "```graphrule\nname: broken\n\nMATCH (\n```\n" +
		"```graphrule\nname: fine\n\nCREATE (n:N)\n```\n"

	g := graph.New()
	e := newTestEngine(g)
	results := e.ExecuteQueriesFromMarkdown([]byte(doc))
	require.Len(t, results, 2)

	byName := map[string]*RuleResult{}
	for _, r := range results {
		byName[r.Rule.Name] = r
	}
	assert.False(t, byName["broken"].Success)
	assert.NotEmpty(t, byName["broken"].Error)
	assert.True(t, byName["fine"].Success)
	assert.Equal(t, 1, g.NodeCount())
}
