package dice

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Expression is a parsed dice expression ready to be rolled.
//
// A constant expression ("25") has Count == 0 and only a Modifier.
type Expression struct {
	Raw         string // original input string
	Count       int    // number of dice
	Sides       int    // faces per die
	Modifier    int    // flat modifier (may be negative)
	KeepHighest int    // if > 0, keep only the N highest dice (e.g. 4d6kh3)
}

var exprPattern = regexp.MustCompile(`^(\d*)d(\d+)(?:kh(\d+))?([+-]\d+)?$`)

// Parse parses "d20", "2d6", "2d6+3", "4d8-2", "4d6kh3" or a bare integer.
//
// Postcondition: Returns an Expression with Count >= 1 and Sides >= 2, a
// constant Expression, or a descriptive error.
func Parse(expr string) (Expression, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return Expression{}, fmt.Errorf("dice: empty expression")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return Expression{Raw: expr, Modifier: n}, nil
	}

	m := exprPattern.FindStringSubmatch(s)
	if m == nil {
		return Expression{}, fmt.Errorf("dice: malformed expression %q", expr)
	}

	e := Expression{Raw: expr, Count: 1}
	if m[1] != "" {
		e.Count, _ = strconv.Atoi(m[1])
		if e.Count <= 0 {
			return Expression{}, fmt.Errorf("dice: invalid die count in %q: must be >= 1", expr)
		}
	}
	e.Sides, _ = strconv.Atoi(m[2])
	if e.Sides < 2 {
		return Expression{}, fmt.Errorf("dice: invalid die sides in %q: must be >= 2", expr)
	}
	if m[3] != "" {
		e.KeepHighest, _ = strconv.Atoi(m[3])
		if e.KeepHighest <= 0 || e.KeepHighest >= e.Count {
			return Expression{}, fmt.Errorf("dice: kh value %d must be > 0 and < count %d in %q", e.KeepHighest, e.Count, expr)
		}
	}
	if m[4] != "" {
		e.Modifier, _ = strconv.Atoi(m[4])
	}
	return e, nil
}

// MustParse parses expr and panics on error. Useful for package-level values.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic("dice: MustParse failed for expression " + expr + ": " + err.Error())
	}
	return e
}

// Mean returns the exact expected Total of the expression.
func (e Expression) Mean() float64 {
	if e.Count == 0 {
		return float64(e.Modifier)
	}
	if e.KeepHighest == 0 {
		return float64(e.Count)*float64(e.Sides+1)/2 + float64(e.Modifier)
	}
	// Sum of the expected top-k order statistics of Count iid uniform dice.
	total := 0.0
	for j := e.Count - e.KeepHighest + 1; j <= e.Count; j++ {
		total += orderStatMean(e.Count, e.Sides, j)
	}
	return total + float64(e.Modifier)
}

// orderStatMean returns E[X_(j)], the j-th smallest of n dice with s sides,
// as sum over x of P(X_(j) >= x).
func orderStatMean(n, s, j int) float64 {
	mean := 0.0
	for x := 1; x <= s; x++ {
		p := float64(s-x+1) / float64(s)
		// X_(j) >= x iff at least n-j+1 dice show >= x.
		for m := n - j + 1; m <= n; m++ {
			mean += binomial(n, m) * pow(p, m) * pow(1-p, n-m)
		}
	}
	return mean
}

func binomial(n, k int) float64 {
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return r
}

func pow(b float64, e int) float64 {
	r := 1.0
	for i := 0; i < e; i++ {
		r *= b
	}
	return r
}
