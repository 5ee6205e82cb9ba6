package problog

import (
	"fmt"
	"strconv"
	"strings"
)

// Term is a structured logic value: a variable reference, a numeric
// constant, or a compound term (functor plus ordered arguments). Atoms are
// zero-argument compounds. A nil Term acts as an anonymous unbound value
// during evaluation.
type Term interface {
	isTerm()
	String() string
}

// Var is a variable reference. The index points into the evaluation context
// of the clause frame the variable belongs to.
type Var int

func (Var) isTerm() {}

func (v Var) String() string {
	return "V" + strconv.Itoa(int(v))
}

// Float is a numeric constant. Probabilities and integer constants are both
// represented as floats.
type Float float64

func (Float) isTerm() {}

func (f Float) String() string {
	return strconv.FormatFloat(float64(f), 'g', -1, 64)
}

// Compound is a functor with ordered arguments, an optional probability
// sub-term and a source location. Compounds are immutable once constructed.
type Compound struct {
	Functor     string
	Args        []Term
	Probability Term // nil when the term carries no probability annotation
	Location    int  // rune offset in the source unit, -1 when unknown
}

func (*Compound) isTerm() {}

// Atom returns a zero-argument compound.
func Atom(functor string) *Compound {
	return &Compound{Functor: functor, Location: -1}
}

// NewTerm returns a compound with the given functor and arguments.
func NewTerm(functor string, args ...Term) *Compound {
	return &Compound{Functor: functor, Args: args, Location: -1}
}

// WithProbability returns a copy of c carrying probability p.
func (c *Compound) WithProbability(p Term) *Compound {
	d := *c
	d.Probability = p
	return &d
}

func (c *Compound) String() string {
	var b strings.Builder
	if c.Probability != nil {
		b.WriteString(c.Probability.String())
		b.WriteString("::")
	}
	b.WriteString(c.Functor)
	if len(c.Args) > 0 {
		b.WriteByte('(')
		for i, a := range c.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			if a == nil {
				b.WriteByte('_')
			} else {
				b.WriteString(a.String())
			}
		}
		b.WriteByte(')')
	}
	return b.String()
}

type signature struct {
	functor string
	arity   int
}

func (s signature) String() string {
	return fmt.Sprintf("%s/%d", s.functor, s.arity)
}

func (c *Compound) signature() signature {
	return signature{c.Functor, len(c.Args)}
}

func termsString(ts []Term) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		if t == nil {
			parts[i] = "_"
		} else {
			parts[i] = t.String()
		}
	}
	return strings.Join(parts, ", ")
}

// termShape reports the (functor, arity) pair used by the clause index.
// Constants index as zero-arity functors.
func termShape(t Term) (string, int) {
	switch t := t.(type) {
	case Float:
		return t.String(), 0
	case *Compound:
		return t.Functor, len(t.Args)
	default:
		panic(fmt.Sprintf("no shape for term %v", t))
	}
}

func isVarTerm(t Term) bool {
	if t == nil {
		return true
	}
	_, ok := t.(Var)
	return ok
}

// collectVars walks t and records every variable index. Variables seen only
// under a negation are tracked separately so clause compilation can mark
// them local.
func collectVars(t Term, inNeg bool, all map[int]bool, pos map[int]bool) {
	switch t := t.(type) {
	case Var:
		all[int(t)] = true
		if !inNeg {
			pos[int(t)] = true
		}
	case *Compound:
		neg := inNeg || (len(t.Args) == 1 && (t.Functor == `\+` || t.Functor == "not"))
		for _, a := range t.Args {
			collectVars(a, neg, all, pos)
		}
		if t.Probability != nil {
			collectVars(t.Probability, inNeg, all, pos)
		}
	}
}

func varCount(all map[int]bool) int {
	max := -1
	for v := range all {
		if v > max {
			max = v
		}
	}
	return max + 1
}
