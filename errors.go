package problog

import (
	"errors"
	"fmt"
)

// errUnify signals an ordinary unification failure. It never escapes the
// engine; the nearest clause or call boundary recovers it as zero results.
var errUnify = errors.New("unification failure")

// errUnknownDefinition is returned when evaluation reaches an empty
// definition placeholder. The call node that routed there converts it into
// an UnknownPredicateError carrying the signature and location.
var errUnknownDefinition = errors.New("empty definition node")

// UnknownPredicateError reports a call to a predicate with no definition and
// no matching builtin.
type UnknownPredicateError struct {
	Signature string
	Location  int
}

func (e *UnknownPredicateError) Error() string {
	return fmt.Sprintf("no clauses found for %s", e.Signature)
}

// NonGroundError reports a probabilistic choice whose instantiated arguments
// are not fully ground. An unground choice cannot be assigned a single
// ground atom.
type NonGroundError struct {
	Location int
}

func (e *NonGroundError) Error() string {
	return "non-ground probabilistic clause"
}

// VariableUnificationError reports a clause head variable occurring more
// than once that received a non-ground binding from the body.
type VariableUnificationError struct {
	Location int
}

func (e *VariableUnificationError) Error() string {
	return "unification of multiply-occurring head variable with non-ground term"
}

// CallStackError reports that the evaluator exceeded its recursion ceiling.
type CallStackError struct {
	Depth int
}

func (e *CallStackError) Error() string {
	return fmt.Sprintf("grounding exceeded the maximal recursion depth (%d)", e.Depth)
}

// AccessError reports an attempt to redefine a reserved name or a builtin.
type AccessError struct {
	Name string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("cannot redefine '%s'", e.Name)
}

// ConsultError reports a source unit that could not be loaded.
type ConsultError struct {
	Filename string
	Err      error
}

func (e *ConsultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("consult: cannot load '%s': %v", e.Filename, e.Err)
	}
	return fmt.Sprintf("consult: file not found '%s'", e.Filename)
}

func (e *ConsultError) Unwrap() error {
	return e.Err
}
