package ilp

import (
	"fmt"
	"time"
)

// Config toggles the reduction passes and describes the solver.
//
// Every pass preserves the optimal DAG cost, so any combination of toggles
// yields the same optimum; disabling passes only makes the model larger.
type Config struct {
	// Rounds is how many times the full pass pipeline runs.
	Rounds int `yaml:"rounds" json:"rounds"`

	RemoveSelfLoops      bool `yaml:"remove_self_loops" json:"remove_self_loops"`
	RemoveHighCost       bool `yaml:"remove_high_cost" json:"remove_high_cost"`
	RemoveSubsumed       bool `yaml:"remove_subsumed" json:"remove_subsumed"`
	RemoveUnreachable    bool `yaml:"remove_unreachable" json:"remove_unreachable"`
	PullUpSingleParent   bool `yaml:"pull_up_single_parent" json:"pull_up_single_parent"`
	PullUpCosts          bool `yaml:"pull_up_costs" json:"pull_up_costs"`
	RemoveSingleZeroCost bool `yaml:"remove_single_zero_cost" json:"remove_single_zero_cost"`
	FindExtraRoots       bool `yaml:"find_extra_roots" json:"find_extra_roots"`
	RemoveEmptyClasses   bool `yaml:"remove_empty_classes" json:"remove_empty_classes"`

	// IntersectChildren hoists child classes shared by every candidate of a
	// class into one class-level implication.
	IntersectChildren bool `yaml:"intersect_children" json:"intersect_children"`

	// HoistMinCost moves each class's cheapest member cost onto the class
	// variable in the objective.
	HoistMinCost bool `yaml:"hoist_min_cost" json:"hoist_min_cost"`

	// ReturnImprovedOnTimeout keeps a solution the solver wrote before it
	// ran out of time, when it beats the heuristic.
	ReturnImprovedOnTimeout bool `yaml:"return_improved_on_timeout" json:"return_improved_on_timeout"`

	// Bound forces to zero every node whose cached heuristic cost exceeds
	// bound × the cheapest node of its class. Zero or less disables it.
	Bound float64 `yaml:"bound" json:"bound"`

	Solver SolverConfig `yaml:"solver" json:"solver"`
}

// SolverConfig describes the external solver process.
type SolverConfig struct {
	// Path is the solver executable.
	Path string `yaml:"path" json:"path"`

	// Args are passed before the file arguments.
	Args []string `yaml:"args" json:"args"`

	// TimeLimit is handed to the solver; the process is killed if it is
	// still running KillGrace later.
	TimeLimit time.Duration `yaml:"time_limit" json:"time_limit"`
	KillGrace time.Duration `yaml:"kill_grace" json:"kill_grace"`

	// WorkDir holds the model, warm start, solution and log files. Empty
	// uses a fresh temporary directory.
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// KeepFiles leaves the solver files in place after extraction.
	KeepFiles bool `yaml:"keep_files" json:"keep_files"`
}

// Default solver settings.
const (
	DefaultRounds    = 2
	DefaultTimeLimit = 60 * time.Second
	DefaultKillGrace = 10 * time.Second
	DefaultSolver    = "gurobi_solver"
)

// DefaultConfig enables every pass except HoistMinCost.
func DefaultConfig() Config {
	return Config{
		Rounds:                  DefaultRounds,
		RemoveSelfLoops:         true,
		RemoveHighCost:          true,
		RemoveSubsumed:          true,
		RemoveUnreachable:       true,
		PullUpSingleParent:      true,
		PullUpCosts:             true,
		RemoveSingleZeroCost:    true,
		FindExtraRoots:          true,
		RemoveEmptyClasses:      true,
		IntersectChildren:       true,
		HoistMinCost:            false,
		ReturnImprovedOnTimeout: true,
		Solver: SolverConfig{
			Path:      DefaultSolver,
			TimeLimit: DefaultTimeLimit,
			KillGrace: DefaultKillGrace,
		},
	}
}

// NoPasses returns DefaultConfig with every reduction pass disabled.
func NoPasses() Config {
	c := DefaultConfig()
	c.RemoveSelfLoops = false
	c.RemoveHighCost = false
	c.RemoveSubsumed = false
	c.RemoveUnreachable = false
	c.PullUpSingleParent = false
	c.PullUpCosts = false
	c.RemoveSingleZeroCost = false
	c.FindExtraRoots = false
	c.RemoveEmptyClasses = false
	c.IntersectChildren = false
	return c
}

// Validate checks the numeric fields.
func (c Config) Validate() error {
	if c.Rounds < 0 {
		return fmt.Errorf("rounds must be >= 0, got %d", c.Rounds)
	}
	if c.Bound > 0 && c.Bound < 1 {
		return fmt.Errorf("bound must be >= 1 or disabled, got %g", c.Bound)
	}
	if c.Solver.TimeLimit < 0 {
		return fmt.Errorf("solver time limit must be >= 0, got %s", c.Solver.TimeLimit)
	}
	if c.Solver.KillGrace < 0 {
		return fmt.Errorf("solver kill grace must be >= 0, got %s", c.Solver.KillGrace)
	}
	return nil
}
