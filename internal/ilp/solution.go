package ilp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/egx/internal/egraph"
	"github.com/roach88/egx/internal/extract"
)

// ParseSolution reads "<variable> <value>" lines written by the solver and
// returns the chosen node per class. Blank lines and lines starting with '#'
// are skipped. Only N_ variables rounding to 1 are choices; choosing two
// nodes of one class is an error.
func ParseSolution(r io.Reader) (map[egraph.ClassID]egraph.NodeID, error) {
	choices := make(map[egraph.ClassID]egraph.NodeID)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, badSolution(lineNo, "expected \"<variable> <value>\", got %q", line)
		}
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, badSolution(lineNo, "value of %s: %v", fields[0], err)
		}
		if !strings.HasPrefix(fields[0], "N_") || math.Round(value) != 1 {
			continue
		}
		nid, err := parseNodeVar(fields[0])
		if err != nil {
			return nil, badSolution(lineNo, "%v", err)
		}
		class := egraph.ClassID(nid.Class)
		if prev, dup := choices[class]; dup {
			return nil, badSolution(lineNo, "class %s chose both %s and %s", class, prev, nid)
		}
		choices[class] = nid
	}
	if err := sc.Err(); err != nil {
		return nil, &extract.Error{Code: extract.ErrCodeBadSolution, Message: "reading solution", Err: err}
	}
	return choices, nil
}

// parseNodeVar inverts NodeVar.
func parseNodeVar(v string) (egraph.NodeID, error) {
	rest, ok := strings.CutPrefix(v, "N_")
	if !ok {
		return egraph.NodeID{}, fmt.Errorf("%q is not a node variable", v)
	}
	cs, ns, ok := strings.Cut(rest, "_")
	if !ok {
		return egraph.NodeID{}, fmt.Errorf("malformed node variable %q", v)
	}
	class, err := strconv.ParseUint(cs, 10, 32)
	if err != nil {
		return egraph.NodeID{}, fmt.Errorf("malformed node variable %q: %w", v, err)
	}
	index, err := strconv.ParseUint(ns, 10, 32)
	if err != nil {
		return egraph.NodeID{}, fmt.Errorf("malformed node variable %q: %w", v, err)
	}
	return egraph.NodeID{Class: uint32(class), Index: uint32(index)}, nil
}

func badSolution(line int, format string, args ...any) *extract.Error {
	return &extract.Error{
		Code:    extract.ErrCodeBadSolution,
		Message: fmt.Sprintf("line %d: ", line) + fmt.Sprintf(format, args...),
	}
}
