package rules

import (
	"strconv"
	"strings"

	"github.com/russross/blackfriday/v2"
)

// fenceToken is the info-string prefix that marks a fenced code block as a
// rule.
const fenceToken = "graphrule"

// RuleSource is one extracted rule block: header metadata plus the rule
// body text.
type RuleSource struct {
	Name        string
	Description string
	Priority    int
	Body        string
}

// ExtractRules scans a Markdown document for fenced code blocks whose
// info-string begins with "graphrule" and splits each into header lines
// (name:, description:, priority:) and the rule body. All other document
// content is ignored.
func ExtractRules(markdown []byte) []RuleSource {
	parser := blackfriday.New(blackfriday.WithExtensions(blackfriday.FencedCode))
	root := parser.Parse(markdown)

	var sources []RuleSource
	root.Walk(func(node *blackfriday.Node, entering bool) blackfriday.WalkStatus {
		if !entering || node.Type != blackfriday.CodeBlock {
			return blackfriday.GoToNext
		}
		info := strings.TrimSpace(string(node.Info))
		if info != fenceToken && !strings.HasPrefix(info, fenceToken+" ") {
			return blackfriday.GoToNext
		}
		sources = append(sources, parseRuleBlock(string(node.Literal)))
		return blackfriday.GoToNext
	})
	return sources
}

// parseRuleBlock splits a fence's content into header key/value lines and
// the rule body. Headers end at the first blank line; content with no
// header section is all body.
func parseRuleBlock(content string) RuleSource {
	src := RuleSource{}
	lines := strings.Split(content, "\n")

	bodyStart := 0
	sawHeader := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if sawHeader {
				bodyStart = i + 1
			}
			break
		}
		key, value, ok := headerLine(trimmed)
		if !ok {
			// Not a header line; everything from here on is body
			if sawHeader {
				bodyStart = i
			}
			break
		}
		sawHeader = true
		switch key {
		case "name":
			src.Name = value
		case "description":
			src.Description = value
		case "priority":
			if n, err := strconv.Atoi(value); err == nil {
				src.Priority = n
			}
		}
	}

	src.Body = strings.TrimSpace(strings.Join(lines[bodyStart:], "\n"))
	return src
}

func headerLine(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:idx]))
	switch key {
	case "name", "description", "priority":
		return key, strings.TrimSpace(line[idx+1:]), true
	}
	return "", "", false
}
