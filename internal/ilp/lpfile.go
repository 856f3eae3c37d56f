package ilp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// maxLineLen is where long expressions wrap. LP readers cap line length.
const maxLineLen = 200

// WriteLP writes m in CPLEX LP format.
func WriteLP(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)

	bw.WriteString("Minimize\n")
	if len(m.Objective) == 0 {
		// Readers reject an empty objective; any variable with a zero
		// coefficient will do.
		fmt.Fprintf(bw, " obj: 0 %s\n", firstVar(m))
	} else {
		writeExpr(bw, " obj: ", m.Objective)
		bw.WriteByte('\n')
	}

	bw.WriteString("Subject To\n")
	for _, c := range m.Constraints {
		if c.Comment != "" {
			fmt.Fprintf(bw, "\\* %s *\\\n", c.Comment)
		}
		writeExpr(bw, " "+c.Name+": ", c.Terms)
		fmt.Fprintf(bw, " %s %s\n", c.Sense, formatNumber(c.RHS))
	}

	bw.WriteString("Bounds\n")
	for _, b := range m.Bounds {
		if b.Lower == b.Upper {
			fmt.Fprintf(bw, " %s = %s\n", b.Var, formatNumber(b.Lower))
			continue
		}
		fmt.Fprintf(bw, " %s <= %s <= %s\n", formatNumber(b.Lower), b.Var, formatNumber(b.Upper))
	}

	writeList(bw, "Binaries", m.Binaries)
	writeList(bw, "Generals", m.Generals)
	bw.WriteString("End\n")
	return bw.Flush()
}

func firstVar(m *Model) string {
	if len(m.Binaries) > 0 {
		return m.Binaries[0]
	}
	return "A_0"
}

// writeExpr writes prefix followed by the terms, wrapping long lines. A
// coefficient of 1 is omitted and -1 becomes a bare minus.
func writeExpr(bw *bufio.Writer, prefix string, terms []Term) {
	line := len(prefix)
	bw.WriteString(prefix)
	for i, t := range terms {
		var sb strings.Builder
		coef := t.Coef
		switch {
		case i == 0 && coef < 0:
			sb.WriteString("- ")
			coef = -coef
		case i > 0 && coef < 0:
			sb.WriteString(" - ")
			coef = -coef
		case i > 0:
			sb.WriteString(" + ")
		}
		if coef != 1 {
			sb.WriteString(formatNumber(coef))
			sb.WriteByte(' ')
		}
		sb.WriteString(t.Var)

		if line+sb.Len() > maxLineLen && i > 0 {
			bw.WriteString("\n  ")
			line = 2
		}
		bw.WriteString(sb.String())
		line += sb.Len()
	}
}

func writeList(bw *bufio.Writer, section string, vars []string) {
	if len(vars) == 0 {
		return
	}
	bw.WriteString(section)
	bw.WriteByte('\n')
	for _, v := range vars {
		bw.WriteByte(' ')
		bw.WriteString(v)
		bw.WriteByte('\n')
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
