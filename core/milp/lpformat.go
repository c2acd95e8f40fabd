package milp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

const termsPerLine = 8

// WriteLP writes p in CPLEX LP text format. Variable and row names are used
// verbatim, so they must be LP-safe. A constant objective offset is dropped.
func WriteLP(w io.Writer, p *Problem) error {
	if len(p.Vars) == 0 {
		return errors.New("milp: problem has no variables")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if p.Name != "" {
		fmt.Fprintf(bw, "\\ Problem: %s\n", p.Name)
	}
	if p.Sense == Maximize {
		bw.WriteString("Maximize\n")
	} else {
		bw.WriteString("Minimize\n")
	}
	bw.WriteString(" obj:")
	writeTerms(bw, p, p.Objective.Terms)
	bw.WriteString("\nSubject To\n")
	for i, c := range p.Constraints {
		name := c.Name
		if name == "" {
			name = "c" + strconv.Itoa(i)
		}
		fmt.Fprintf(bw, " %s:", name)
		writeTerms(bw, p, c.Expr.Terms)
		fmt.Fprintf(bw, " %s %s\n", c.Sense, formatNum(c.RHS-c.Expr.Const))
	}

	bw.WriteString("Bounds\n")
	var binaries, generals []string
	for _, v := range p.Vars {
		switch {
		case math.IsInf(v.Lower, -1) && math.IsInf(v.Upper, 1):
			fmt.Fprintf(bw, " %s free\n", v.Name)
		case math.IsInf(v.Upper, 1):
			if v.Lower != 0 {
				fmt.Fprintf(bw, " %s >= %s\n", v.Name, formatNum(v.Lower))
			}
		case math.IsInf(v.Lower, -1):
			fmt.Fprintf(bw, " -inf <= %s <= %s\n", v.Name, formatNum(v.Upper))
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", formatNum(v.Lower), v.Name, formatNum(v.Upper))
		}
		if v.Integer {
			if v.Lower == 0 && v.Upper == 1 {
				binaries = append(binaries, v.Name)
			} else {
				generals = append(generals, v.Name)
			}
		}
	}
	writeSection(bw, "Binaries", binaries)
	writeSection(bw, "Generals", generals)
	bw.WriteString("End\n")
	return bw.Flush()
}

func writeTerms(bw *bufio.Writer, p *Problem, terms []Term) {
	if len(terms) == 0 {
		bw.WriteString(" 0 " + p.Vars[0].Name)
		return
	}
	for i, t := range terms {
		if i > 0 && i%termsPerLine == 0 {
			bw.WriteString("\n  ")
		}
		sign := "+"
		coef := t.Coef
		if coef < 0 {
			sign = "-"
			coef = -coef
		}
		fmt.Fprintf(bw, " %s %s %s", sign, formatNum(coef), p.Vars[t.Var].Name)
	}
}

func writeSection(bw *bufio.Writer, title string, names []string) {
	if len(names) == 0 {
		return
	}
	bw.WriteString(title + "\n")
	for _, n := range names {
		bw.WriteString(" " + n + "\n")
	}
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
