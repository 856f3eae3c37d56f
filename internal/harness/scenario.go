package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/egx/internal/egraph"
)

// Scenario defines one extraction contract test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden files.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Graph is an inline e-graph. Exactly one of Graph and GraphFile is set.
	Graph *GraphSpec `yaml:"graph,omitempty"`

	// GraphFile is a serialized e-graph. Relative paths are resolved against
	// the scenario file's directory by LoadScenario.
	GraphFile string `yaml:"graph_file,omitempty"`

	// Roots overrides the graph's root classes when non-empty.
	Roots []egraph.ClassID `yaml:"roots,omitempty"`

	// Dedup removes redundant nodes before extracting.
	Dedup bool `yaml:"dedup,omitempty"`

	// Extractors lists registry names to run. Empty runs every entry.
	Extractors []string `yaml:"extractors,omitempty"`

	// Model snapshots the ILP model for this graph in RunWithGolden.
	Model bool `yaml:"model,omitempty"`

	// Assertions are evaluated against the outcomes.
	Assertions []Assertion `yaml:"assertions"`
}

// GraphSpec is an e-graph written out node by node.
type GraphSpec struct {
	Roots []egraph.ClassID `yaml:"roots"`
	Nodes []NodeSpec       `yaml:"nodes"`
}

// NodeSpec is one node of an inline graph. The class is the first part of
// the id. A missing cost defaults to egraph.DefaultCost.
type NodeSpec struct {
	ID       string           `yaml:"id"`
	Op       string           `yaml:"op"`
	Cost     *float64         `yaml:"cost,omitempty"`
	Children []egraph.ClassID `yaml:"children,omitempty"`
}

// Build constructs the e-graph gs describes.
func (gs *GraphSpec) Build() (*egraph.EGraph, error) {
	b := egraph.NewBuilder()
	for i, ns := range gs.Nodes {
		id, err := egraph.ParseNodeID(ns.ID)
		if err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
		cost := egraph.DefaultCost
		if ns.Cost != nil {
			cost = *ns.Cost
		}
		err = b.Add(egraph.Node{
			Op:       ns.Op,
			ID:       id,
			Children: ns.Children,
			EClass:   egraph.ClassID(id.Class),
			Cost:     cost,
		})
		if err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
	}
	for _, r := range gs.Roots {
		b.AddRoot(r)
	}
	return b.Build()
}

// Assertion checks one property of a scenario's outcomes.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Extractor names the run an assertion is about (tree_cost, dag_cost,
	// depth, choice, error).
	Extractor string `yaml:"extractor,omitempty"`

	// Extractors names several runs (valid, cost_order, same_cost).
	Extractors []string `yaml:"extractors,omitempty"`

	// Value is the exact expected cost or depth; Max an upper bound.
	Value *float64 `yaml:"value,omitempty"`
	Max   *float64 `yaml:"max,omitempty"`

	// Metric is tree, dag or depth (cost_order, same_cost). Default dag.
	Metric string `yaml:"metric,omitempty"`

	// Class and Node are the expected choice.
	Class *egraph.ClassID `yaml:"class,omitempty"`
	Node  string          `yaml:"node,omitempty"`

	// Code is the expected error code.
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertValid     = "valid"
	AssertTreeCost  = "tree_cost"
	AssertDAGCost   = "dag_cost"
	AssertDepth     = "depth"
	AssertChoice    = "choice"
	AssertError     = "error"
	AssertCostOrder = "cost_order"
	AssertSameCost  = "same_cost"
)

// Metric names.
const (
	MetricTree  = "tree"
	MetricDAG   = "dag"
	MetricDepth = "depth"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if s.GraphFile != "" && !filepath.IsAbs(s.GraphFile) {
		s.GraphFile = filepath.Join(filepath.Dir(path), s.GraphFile)
	}
	if s.GraphFile != "" {
		if _, err := os.Stat(s.GraphFile); err != nil {
			return nil, fmt.Errorf("invalid scenario: graph file not found: %s", s.GraphFile)
		}
	}
	return s, nil
}

// ParseScenario decodes scenario YAML without touching the filesystem.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch {
	case s.Graph == nil && s.GraphFile == "":
		return fmt.Errorf("one of graph or graph_file is required")
	case s.Graph != nil && s.GraphFile != "":
		return fmt.Errorf("graph and graph_file are mutually exclusive")
	case s.Graph != nil && len(s.Graph.Nodes) == 0:
		return fmt.Errorf("graph.nodes must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertValid:
	case AssertTreeCost, AssertDAGCost, AssertDepth:
		if a.Extractor == "" {
			return fmt.Errorf("assertions[%d]: extractor is required for %s", index, a.Type)
		}
		if (a.Value == nil) == (a.Max == nil) {
			return fmt.Errorf("assertions[%d]: exactly one of value or max is required for %s", index, a.Type)
		}
	case AssertChoice:
		if a.Extractor == "" || a.Class == nil || a.Node == "" {
			return fmt.Errorf("assertions[%d]: extractor, class and node are required for choice", index)
		}
		if _, err := egraph.ParseNodeID(a.Node); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertError:
		if a.Extractor == "" || a.Code == "" {
			return fmt.Errorf("assertions[%d]: extractor and code are required for error", index)
		}
	case AssertCostOrder, AssertSameCost:
		if len(a.Extractors) < 2 {
			return fmt.Errorf("assertions[%d]: at least two extractors are required for %s", index, a.Type)
		}
		switch a.Metric {
		case "", MetricTree, MetricDAG, MetricDepth:
		default:
			return fmt.Errorf("assertions[%d]: unknown metric %q", index, a.Metric)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
