// Package main provides the graphrule CLI entry point.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orneryd/graphrule/pkg/config"
	"github.com/orneryd/graphrule/pkg/graph"
	"github.com/orneryd/graphrule/pkg/rules"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var (
	flagConfig   string
	flagLogLevel string
	flagGraph    string
	flagJSON     bool
)

// seedGraph is the JSON shape `--graph` accepts.
type seedGraph struct {
	Nodes []seedNode `json:"nodes"`
	Edges []seedEdge `json:"edges"`
}

type seedNode struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

type seedEdge struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "graphrule",
		Short: "Execute graph rules authored in Markdown documents",
		Long: `graphrule runs Cypher-like rules embedded in Markdown fenced blocks
against an in-memory property graph.

Rules live in blocks whose info-string is "graphrule":

    ` + "```graphrule" + `
    name: connect-people
    priority: 10

    MATCH (p:Person), (t:Task)
    CREATE (p)-[r:WORKS_ON]->(t)
    ` + "```",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run FILE.md",
		Short: "Execute all rules in a Markdown document",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&flagGraph, "graph", "", "JSON file seeding the initial graph")
	runCmd.Flags().BoolVar(&flagJSON, "json", false, "emit results as JSON")
	rootCmd.AddCommand(runCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "eval FILE.md",
		Short: "Parse and list rules without executing them",
		Args:  cobra.ExactArgs(1),
		RunE:  runEval,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("graphrule %s (%s)\n", version, commit)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.LoadFromFile(flagConfig)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.Logging.Level)
	}
	logrus.SetLevel(level)
	if cfg.Logging.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	return cfg, nil
}

func loadSeedGraph(g *graph.Graph, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read graph file: %w", err)
	}
	var seed seedGraph
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse graph file: %w", err)
	}
	for _, n := range seed.Nodes {
		if _, err := g.AddNode(graph.NodeID(n.ID), n.Label, n.Properties); err != nil {
			return fmt.Errorf("seed node %q: %w", n.ID, err)
		}
	}
	for _, e := range seed.Edges {
		if _, err := g.AddEdge(graph.NodeID(e.Source), graph.NodeID(e.Target), e.Label, e.Properties); err != nil {
			return fmt.Errorf("seed edge %s-%s->%s: %w", e.Source, e.Label, e.Target, err)
		}
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	markdown, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}

	g := graph.New()
	if flagGraph != "" {
		if err := loadSeedGraph(g, flagGraph); err != nil {
			return err
		}
	}

	engine := rules.NewEngine(g, cfg.EngineOptions())
	results := engine.ExecuteQueriesFromMarkdown(markdown)

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	failures := 0
	for _, result := range results {
		status := "ok"
		if !result.Success {
			status = "FAILED"
			failures++
		}
		name := result.Rule.Name
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%-30s %-7s matches=%d", name, status, result.MatchCount)
		if result.Error != "" {
			fmt.Printf("  error: %s", result.Error)
		}
		fmt.Println()
	}
	fmt.Printf("\n%d rules, %d failed; graph: %d nodes, %d edges\n",
		len(results), failures, g.NodeCount(), g.EdgeCount())

	if failures > 0 {
		os.Exit(1)
	}
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}

	markdown, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}

	sources := rules.ExtractRules(markdown)
	if len(sources) == 0 {
		fmt.Println("no graphrule blocks found")
		return nil
	}

	for _, src := range sources {
		rule, err := rules.ParseRule(src.Body)
		name := src.Name
		if name == "" {
			name = "(unnamed)"
		}
		if err != nil {
			fmt.Printf("%-30s priority=%-4d PARSE ERROR: %v\n", name, src.Priority, err)
			continue
		}
		fmt.Printf("%-30s priority=%-4d patterns=%d actions=%d\n",
			name, src.Priority, len(rule.Matches), len(rule.Actions))
	}
	return nil
}
