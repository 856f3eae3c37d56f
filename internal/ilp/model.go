package ilp

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/egx/internal/egraph"
)

// zeroTolerance is the smallest objective coefficient written to a model.
const zeroTolerance = 1e-9

// Term is coef × variable.
type Term struct {
	Coef float64
	Var  string
}

// Sense is the relation of a constraint.
type Sense string

const (
	SenseEQ Sense = "="
	SenseLE Sense = "<="
	SenseGE Sense = ">="
)

// Constraint is a named linear row. Comment, when set, is written on the
// line above.
type Constraint struct {
	Name    string
	Terms   []Term
	Sense   Sense
	RHS     float64
	Comment string
}

// Bound fixes the range of one variable.
type Bound struct {
	Var          string
	Lower, Upper float64
}

// Model is a mixed-integer program in the shape of an LP file.
type Model struct {
	Objective   []Term
	Constraints []Constraint
	Bounds      []Bound
	Binaries    []string
	Generals    []string

	// Nodes maps each N_ variable back to its node.
	Nodes map[string]egraph.NodeID
}

// ClassVar names the variable that is 1 when class is active.
func ClassVar(class egraph.ClassID) string { return fmt.Sprintf("A_%d", class) }

// NodeVar names the variable that is 1 when node is chosen.
func NodeVar(nid egraph.NodeID) string { return fmt.Sprintf("N_%d_%d", nid.Class, nid.Index) }

// OppVar names the complement of NodeVar.
func OppVar(nid egraph.NodeID) string { return fmt.Sprintf("Opp_%d_%d", nid.Class, nid.Index) }

// LevelVar names the topological level of class.
func LevelVar(class egraph.ClassID) string { return fmt.Sprintf("L_%d", class) }

// BuildModel encodes p as a minimum DAG-cost selection.
//
// For every class c with candidates n:
//
//	C_ACT_c:         Σ N_c_n - A_c = 0
//	C_INT_c_d:       A_c - A_d <= 0              d needed by every candidate
//	C_CHILD_c_n_d:   N_c_n - A_d <= 0            d needed by candidate n only
//	OPP_c_n:         N_c_n + Opp_c_n = 1
//	SELF_LOOP_c_n:   N_c_n = 0                   n references c
//	LEVEL_c_n_d:     L_d - L_c + M Opp_c_n >= 1  M = classes + 1
//
// A chosen candidate forces each child's level above its class's level, so
// chosen candidates cannot form a cycle. Nodes in forceZero are pinned to 0
// with WARM_START rows. Roots are bounded to 1.
func BuildModel(p *Problem, cfg Config, forceZero []egraph.NodeID) *Model {
	m := &Model{Nodes: make(map[string]egraph.NodeID)}
	ids := slices.Clone(p.order)
	slices.Sort(ids)
	bigM := float64(len(ids) + 1)

	for _, id := range ids {
		cv := p.classes[id]
		active := ClassVar(id)
		m.Binaries = append(m.Binaries, active)
		m.Generals = append(m.Generals, LevelVar(id))

		hoisted := 0.0
		if cfg.HoistMinCost && len(cv.candidates) > 0 {
			hoisted = cv.minCost()
			if math.Abs(hoisted) > zeroTolerance {
				m.Objective = append(m.Objective, Term{Coef: hoisted, Var: active})
			}
		}
		for _, cand := range cv.candidates {
			if d := cand.cost - hoisted; math.Abs(d) > zeroTolerance {
				m.Objective = append(m.Objective, Term{Coef: d, Var: NodeVar(cand.node)})
			}
		}

		if len(cv.candidates) == 0 {
			if p.isRoot(id) {
				m.Constraints = append(m.Constraints, Constraint{
					Name:    fmt.Sprintf("INFEASIBLE_%d", id),
					Terms:   []Term{{1, active}},
					Sense:   SenseEQ,
					RHS:     0,
					Comment: fmt.Sprintf("root %d has no candidates", id),
				})
			} else {
				m.Constraints = append(m.Constraints, Constraint{
					Name:  fmt.Sprintf("BND_%d", id),
					Terms: []Term{{1, active}},
					Sense: SenseEQ,
				})
			}
			continue
		}

		act := make([]Term, 0, len(cv.candidates)+1)
		for _, cand := range cv.candidates {
			v := NodeVar(cand.node)
			m.Nodes[v] = cand.node
			act = append(act, Term{1, v})
		}
		act = append(act, Term{-1, active})
		m.Constraints = append(m.Constraints, Constraint{
			Name:  fmt.Sprintf("C_ACT_%d", id),
			Terms: act,
			Sense: SenseEQ,
		})

		var shared []egraph.ClassID
		if cfg.IntersectChildren {
			shared = slices.Clone(cv.candidates[0].children)
			for _, cand := range cv.candidates[1:] {
				shared = slices.DeleteFunc(shared, func(c egraph.ClassID) bool { return !cand.references(c) })
			}
			for _, child := range shared {
				m.Constraints = append(m.Constraints, Constraint{
					Name:  fmt.Sprintf("C_INT_%d_%d", id, child),
					Terms: []Term{{1, active}, {-1, ClassVar(child)}},
					Sense: SenseLE,
				})
			}
		}

		for _, cand := range cv.candidates {
			for _, child := range cand.children {
				if slices.Contains(shared, child) {
					continue
				}
				m.Constraints = append(m.Constraints, Constraint{
					Name:  fmt.Sprintf("C_CHILD_%d_%d_%d", id, cand.node.Index, child),
					Terms: []Term{{1, NodeVar(cand.node)}, {-1, ClassVar(child)}},
					Sense: SenseLE,
				})
			}
		}

		for _, cand := range cv.candidates {
			m.Constraints = append(m.Constraints, Constraint{
				Name:  fmt.Sprintf("OPP_%d_%d", id, cand.node.Index),
				Terms: []Term{{1, NodeVar(cand.node)}, {1, OppVar(cand.node)}},
				Sense: SenseEQ,
				RHS:   1,
			})
		}

		for _, cand := range cv.candidates {
			if cand.references(id) {
				m.Constraints = append(m.Constraints, Constraint{
					Name:  fmt.Sprintf("SELF_LOOP_%d_%d", id, cand.node.Index),
					Terms: []Term{{1, NodeVar(cand.node)}},
					Sense: SenseEQ,
				})
			}
		}

		for _, cand := range cv.candidates {
			for _, child := range cand.children {
				if child == id {
					continue
				}
				m.Constraints = append(m.Constraints, Constraint{
					Name: fmt.Sprintf("LEVEL_%d_%d_%d", id, cand.node.Index, child),
					Terms: []Term{
						{1, LevelVar(child)},
						{-1, LevelVar(id)},
						{bigM, OppVar(cand.node)},
					},
					Sense: SenseGE,
					RHS:   1,
				})
			}
		}
	}

	for _, nid := range sortedNodes(forceZero) {
		if !p.HasCandidate(nid) {
			continue
		}
		m.Constraints = append(m.Constraints, Constraint{
			Name:  fmt.Sprintf("WARM_START_%d_%d", nid.Class, nid.Index),
			Terms: []Term{{1, NodeVar(nid)}},
			Sense: SenseEQ,
		})
	}

	for _, r := range p.roots {
		if _, ok := p.classes[r]; ok {
			m.Bounds = append(m.Bounds, Bound{Var: ClassVar(r), Lower: 1, Upper: 1})
		}
	}
	for _, id := range ids {
		m.Bounds = append(m.Bounds, Bound{Var: LevelVar(id), Lower: 0, Upper: float64(len(ids))})
	}

	for _, id := range ids {
		for _, cand := range p.classes[id].candidates {
			m.Binaries = append(m.Binaries, NodeVar(cand.node), OppVar(cand.node))
		}
	}
	return m
}

func sortedNodes(nodes []egraph.NodeID) []egraph.NodeID {
	out := slices.Clone(nodes)
	slices.SortFunc(out, egraph.NodeID.Compare)
	return slices.Compact(out)
}
