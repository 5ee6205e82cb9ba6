package problog

import (
	"fmt"
	"strings"
)

// GroundRef identifies a node of a ground formula. Zero is the constant
// true, negative the constant false; positive references are sink-assigned.
type GroundRef int

const (
	GroundTrue  GroundRef = 0
	GroundFalse GroundRef = -1
)

// GroundSink receives the ground formula produced by a grounding run.
// Or-nodes created non-finalized stay open for AddDisjunct; the engine never
// mutates a finalized or-node.
type GroundSink interface {
	// AddAtom introduces a probabilistic atom. A nil probability yields the
	// true constant. Atoms in the same nonempty group are mutually
	// exclusive alternatives of one annotated disjunction instance.
	AddAtom(identifier string, probability Term, group string) GroundRef
	AddAnd(refs ...GroundRef) GroundRef
	AddOr(refs []GroundRef, finalized bool) GroundRef
	AddDisjunct(or, extra GroundRef)
	AddNot(ref GroundRef) GroundRef
}

type formulaKind int

const (
	formulaAtom formulaKind = iota
	formulaAnd
	formulaOr
	formulaNot
)

type formulaNode struct {
	kind        formulaKind
	children    []GroundRef
	open        bool
	identifier  string
	probability Term
	group       string
}

// Formula is the in-memory GroundSink. It stores an append-only node array
// with atoms deduplicated by identifier and applies the boolean
// short-circuit algebra on construction.
type Formula struct {
	nodes []formulaNode
	atoms map[string]GroundRef
}

func NewFormula() *Formula {
	return &Formula{atoms: map[string]GroundRef{}}
}

// Len reports the number of stored nodes.
func (f *Formula) Len() int {
	return len(f.nodes)
}

func (f *Formula) add(n formulaNode) GroundRef {
	f.nodes = append(f.nodes, n)
	return GroundRef(len(f.nodes))
}

func (f *Formula) node(ref GroundRef) *formulaNode {
	return &f.nodes[ref-1]
}

func (f *Formula) AddAtom(identifier string, probability Term, group string) GroundRef {
	if probability == nil {
		return GroundTrue
	}
	if ref, ok := f.atoms[identifier]; ok {
		return ref
	}
	ref := f.add(formulaNode{
		kind:        formulaAtom,
		identifier:  identifier,
		probability: probability,
		group:       group,
	})
	f.atoms[identifier] = ref
	return ref
}

func (f *Formula) AddAnd(refs ...GroundRef) GroundRef {
	children := make([]GroundRef, 0, len(refs))
	for _, r := range refs {
		if r == GroundTrue {
			continue
		}
		if r <= GroundFalse {
			return GroundFalse
		}
		children = append(children, r)
	}
	switch len(children) {
	case 0:
		return GroundTrue
	case 1:
		return children[0]
	}
	return f.add(formulaNode{kind: formulaAnd, children: children})
}

func (f *Formula) AddOr(refs []GroundRef, finalized bool) GroundRef {
	children := make([]GroundRef, 0, len(refs))
	for _, r := range refs {
		if r <= GroundFalse {
			continue
		}
		if r == GroundTrue {
			if finalized {
				return GroundTrue
			}
		}
		children = append(children, r)
	}
	if finalized {
		switch len(children) {
		case 0:
			return GroundFalse
		case 1:
			return children[0]
		}
	}
	return f.add(formulaNode{kind: formulaOr, children: children, open: !finalized})
}

// AddDisjunct grows an open or-node. The target must be an or-node created
// non-finalized.
func (f *Formula) AddDisjunct(or, extra GroundRef) {
	if or <= GroundTrue {
		panic(fmt.Sprintf("cannot extend constant %d", or))
	}
	n := f.node(or)
	if n.kind != formulaOr || !n.open {
		panic(fmt.Sprintf("cannot extend finalized node %d", or))
	}
	if extra <= GroundFalse {
		return
	}
	n.children = append(n.children, extra)
}

func (f *Formula) AddNot(ref GroundRef) GroundRef {
	if ref == GroundTrue {
		return GroundFalse
	}
	if ref <= GroundFalse {
		return GroundTrue
	}
	return f.add(formulaNode{kind: formulaNot, children: []GroundRef{ref}})
}

// String renders the formula one node per line, mainly for tests and
// debugging.
func (f *Formula) String() string {
	var b strings.Builder
	for i, n := range f.nodes {
		fmt.Fprintf(&b, "%d: ", i+1)
		switch n.kind {
		case formulaAtom:
			fmt.Fprintf(&b, "atom %s p=%v", n.identifier, n.probability)
			if n.group != "" {
				fmt.Fprintf(&b, " group=%s", n.group)
			}
		case formulaAnd:
			fmt.Fprintf(&b, "and %v", n.children)
		case formulaOr:
			fmt.Fprintf(&b, "or %v", n.children)
			if n.open {
				b.WriteString(" open")
			}
		case formulaNot:
			fmt.Fprintf(&b, "not %v", n.children)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
