package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/egx/internal/egraph"
)

// costTolerance absorbs float summation order differences between
// extractors.
const costTolerance = 1e-6

// AssertionError is returned when an assertion fails.
// It includes every outcome to help debug the failure.
type AssertionError struct {
	Type     string    // Assertion type for categorization
	Expected string    // Human-readable expected outcome
	Actual   string    // Human-readable actual outcome
	Outcomes []Outcome // All runs for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nOutcomes:\n")
	for _, o := range e.Outcomes {
		if !o.OK {
			fmt.Fprintf(&buf, "  %s: %s\n", o.Extractor, o.ErrorCode)
			continue
		}
		fmt.Fprintf(&buf, "  %s: tree=%g dag=%g depth=%d\n", o.Extractor, *o.TreeCost, *o.DAGCost, *o.Depth)
	}

	return buf.String()
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertValid:
			err = assertValid(result, a)
		case AssertTreeCost, AssertDAGCost, AssertDepth:
			err = assertMetric(result, a)
		case AssertChoice:
			err = assertChoice(result, a)
		case AssertError:
			err = assertError(result, a)
		case AssertCostOrder:
			err = assertCostOrder(result, a)
		case AssertSameCost:
			err = assertSameCost(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func fail(result *Result, typ, expected, actual string) error {
	return &AssertionError{Type: typ, Expected: expected, Actual: actual, Outcomes: result.Outcomes}
}

// lookup returns the named successful run, or an assertion error.
func lookup(result *Result, typ, name string) (Outcome, error) {
	o, ok := result.Outcome(name)
	if !ok {
		return o, fail(result, typ, fmt.Sprintf("a run of %s", name), "extractor was not run")
	}
	if !o.OK {
		return o, fail(result, typ, fmt.Sprintf("%s to succeed", name), fmt.Sprintf("failed with %s", o.ErrorCode))
	}
	return o, nil
}

func metricOf(o Outcome, metric string) float64 {
	switch metric {
	case MetricTree:
		return *o.TreeCost
	case MetricDepth:
		return float64(*o.Depth)
	default:
		return *o.DAGCost
	}
}

func metricFor(typ string) string {
	switch typ {
	case AssertTreeCost:
		return MetricTree
	case AssertDepth:
		return MetricDepth
	default:
		return MetricDAG
	}
}

func assertValid(result *Result, a Assertion) error {
	names := a.Extractors
	if len(names) == 0 {
		for _, o := range result.Outcomes {
			names = append(names, o.Extractor)
		}
	}
	for _, name := range names {
		if _, err := lookup(result, AssertValid, name); err != nil {
			return err
		}
	}
	return nil
}

func assertMetric(result *Result, a Assertion) error {
	o, err := lookup(result, a.Type, a.Extractor)
	if err != nil {
		return err
	}
	got := metricOf(o, metricFor(a.Type))
	if a.Value != nil && math.Abs(got-*a.Value) > costTolerance {
		return fail(result, a.Type, fmt.Sprintf("%s %s = %g", a.Extractor, a.Type, *a.Value), fmt.Sprintf("%g", got))
	}
	if a.Max != nil && got > *a.Max+costTolerance {
		return fail(result, a.Type, fmt.Sprintf("%s %s <= %g", a.Extractor, a.Type, *a.Max), fmt.Sprintf("%g", got))
	}
	return nil
}

func assertChoice(result *Result, a Assertion) error {
	o, err := lookup(result, AssertChoice, a.Extractor)
	if err != nil {
		return err
	}
	want, err := egraph.ParseNodeID(a.Node)
	if err != nil {
		return err
	}
	got, ok := o.Choices[a.Class.String()]
	if !ok {
		return fail(result, AssertChoice,
			fmt.Sprintf("%s chooses %s for class %s", a.Extractor, want, a.Class),
			"class is not reachable from the roots")
	}
	if got != want.String() {
		return fail(result, AssertChoice,
			fmt.Sprintf("%s chooses %s for class %s", a.Extractor, want, a.Class),
			fmt.Sprintf("chose %s", got))
	}
	return nil
}

func assertError(result *Result, a Assertion) error {
	o, ok := result.Outcome(a.Extractor)
	if !ok {
		return fail(result, AssertError, fmt.Sprintf("a run of %s", a.Extractor), "extractor was not run")
	}
	if o.OK {
		return fail(result, AssertError, fmt.Sprintf("%s fails with %s", a.Extractor, a.Code), "run succeeded")
	}
	if o.ErrorCode != a.Code {
		return fail(result, AssertError,
			fmt.Sprintf("%s fails with %s", a.Extractor, a.Code),
			fmt.Sprintf("failed with %q: %s", o.ErrorCode, o.Error))
	}
	return nil
}

func assertCostOrder(result *Result, a Assertion) error {
	metric := a.Metric
	if metric == "" {
		metric = MetricDAG
	}
	prev, err := lookup(result, AssertCostOrder, a.Extractors[0])
	if err != nil {
		return err
	}
	for _, name := range a.Extractors[1:] {
		curr, err := lookup(result, AssertCostOrder, name)
		if err != nil {
			return err
		}
		if metricOf(prev, metric) > metricOf(curr, metric)+costTolerance {
			return fail(result, AssertCostOrder,
				fmt.Sprintf("%s %s <= %s %s", prev.Extractor, metric, curr.Extractor, metric),
				fmt.Sprintf("%g > %g", metricOf(prev, metric), metricOf(curr, metric)))
		}
		prev = curr
	}
	return nil
}

func assertSameCost(result *Result, a Assertion) error {
	metric := a.Metric
	if metric == "" {
		metric = MetricDAG
	}
	first, err := lookup(result, AssertSameCost, a.Extractors[0])
	if err != nil {
		return err
	}
	for _, name := range a.Extractors[1:] {
		o, err := lookup(result, AssertSameCost, name)
		if err != nil {
			return err
		}
		if math.Abs(metricOf(first, metric)-metricOf(o, metric)) > costTolerance {
			return fail(result, AssertSameCost,
				fmt.Sprintf("%s and %s reach the same %s", first.Extractor, o.Extractor, metric),
				fmt.Sprintf("%g vs %g", metricOf(first, metric), metricOf(o, metric)))
		}
	}
	return nil
}
