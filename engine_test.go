package problog

import (
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func loadProgram(t *testing.T, prog string) *ClauseDB {
	t.Helper()
	db := NewClauseDB(nil)
	stmts, err := ParseString(prog)
	require.NoError(t, err)
	for _, s := range stmts {
		require.NoError(t, db.AddStatement(s))
	}
	return db
}

func groundProgram(t *testing.T, prog string, query string) []string {
	t.Helper()
	db := loadProgram(t, prog)
	qs, err := ParseString(query)
	require.NoError(t, err)
	q := qs[0].(*Compound)
	results, err := NewEngine(db).Query(q, NewFormula())
	require.NoError(t, err)
	out := make([]string, 0, len(results))
	for _, r := range results {
		c := &Compound{Functor: q.Functor, Args: r.Args}
		out = append(out, c.String())
	}
	sort.Strings(out)
	return out
}

type pCase struct {
	name     string
	prog     string
	query    string
	expected []string
}

var programCases = []pCase{
	{
		name: "foobar",
		prog: `
		foo(1).
		foo(2).
		foo(3).
		baz(1, 3).
		baz(1, 4).
		bar(A, B) :-
			foo(A),
			foo(B),
			baz(A, B).
`,
		query:    `bar(X, Y).`,
		expected: []string{"bar(1, 3)"},
	},
	{
		name: "pq-chenwarren",
		prog: `% p q test from Chen & Warren
		q(X) :- p(X).
		q(a).
		p(X) :- q(X).
		`,
		query:    `q(X).`,
		expected: []string{"q(a)"},
	},
	{
		name: "ancestor",
		prog: `ancestor(A, B) :- parent(A, B).
			ancestor(A, B) :- parent(A, C), ancestor(C, B).
			parent(john, douglas).
			parent(bob, john).
			parent(ebbon, bob).`,
		query: `ancestor(A, B).`,
		expected: []string{
			"ancestor(bob, douglas)",
			"ancestor(bob, john)",
			"ancestor(ebbon, bob)",
			"ancestor(ebbon, douglas)",
			"ancestor(ebbon, john)",
			"ancestor(john, douglas)",
		},
	},
	{
		name: "path",
		prog: `% path test from Chen & Warren
		edge(a, b). edge(b, c). edge(c, d). edge(d, a).
		path(X, Y) :- edge(X, Y).
		path(X, Y) :- edge(X, Z), path(Z, Y).
		path(X, Y) :- path(X, Z), edge(Z, Y).
		`,
		query: `path(X, Y).`,
		expected: []string{
			"path(a, a)", "path(a, b)", "path(a, c)", "path(a, d)",
			"path(b, a)", "path(b, b)", "path(b, c)", "path(b, d)",
			"path(c, a)", "path(c, b)", "path(c, c)", "path(c, d)",
			"path(d, a)", "path(d, b)", "path(d, c)", "path(d, d)",
		},
	},
	{
		name: "disjunction",
		prog: `q(1). r(2).
			p(X) :- q(X) ; r(X).`,
		query:    `p(X).`,
		expected: []string{"p(1)", "p(2)"},
	},
	{
		name: "negation",
		prog: `p(1). p(2).
			q(1).
			r(X) :- p(X), \+ q(X).`,
		query:    `r(X).`,
		expected: []string{"r(2)"},
	},
	{
		name:     "self-recursion terminates",
		prog:     `p(X) :- p(X).`,
		query:    `p(X).`,
		expected: []string{},
	},
	{
		name: "bound query argument",
		prog: `edge(a, b). edge(b, c).
			path(X, Y) :- edge(X, Y).
			path(X, Y) :- edge(X, Z), path(Z, Y).`,
		query:    `path(a, Y).`,
		expected: []string{"path(a, b)", "path(a, c)"},
	},
	{
		name: "nested terms",
		prog: `age(person(ann), 31).
			age(person(bob), 32).
			adult(P) :- age(P, A).`,
		query:    `adult(person(bob)).`,
		expected: []string{"adult(person(bob))"},
	},
}

func TestGroundPrograms(t *testing.T) {
	for _, c := range programCases {
		t.Run(c.name, func(t *testing.T) {
			got := groundProgram(t, c.prog, c.query)
			if diff := cmp.Diff(c.expected, got); diff != "" {
				t.Errorf("unexpected results (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnknownPredicate(t *testing.T) {
	db := loadProgram(t, `p :- q.`)
	eng := NewEngine(db)

	_, err := eng.Query(Atom("p"), NewFormula())
	var unknown *UnknownPredicateError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "q/0", unknown.Signature)

	_, err = eng.Query(Atom("missing"), NewFormula())
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "missing/0", unknown.Signature)
}

func TestNonGroundChoice(t *testing.T) {
	db := loadProgram(t, `0.5::p(X).`)
	eng := NewEngine(db)

	_, err := eng.Query(NewTerm("p", Var(0)), NewFormula())
	var nonGround *NonGroundError
	require.ErrorAs(t, err, &nonGround)

	results, err := eng.Query(NewTerm("p", Float(1)), NewFormula())
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestCallStackCeiling(t *testing.T) {
	db := loadProgram(t, `p(X) :- p(s(X)).`)
	eng := NewEngine(db, WithMaxDepth(64))

	_, err := eng.Query(NewTerm("p", Atom("a")), NewFormula())
	var stack *CallStackError
	require.ErrorAs(t, err, &stack)
	require.Equal(t, 64, stack.Depth)
}

func TestEqualsBuiltin(t *testing.T) {
	db := NewClauseDB(nil)
	require.NoError(t, db.AddClause(Clause{
		Head: NewTerm("p", Var(0)),
		Body: NewTerm("=", Var(0), Float(1)),
	}))

	results, err := NewEngine(db).Query(NewTerm("p", Var(0)), NewFormula())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []Term{Float(1)}, results[0].Args)
}

// countingSink counts AddAtom calls per identifier on top of a real sink.
type countingSink struct {
	GroundSink
	atomCalls map[string]int
}

func (c *countingSink) AddAtom(identifier string, probability Term, group string) GroundRef {
	c.atomCalls[identifier]++
	return c.GroundSink.AddAtom(identifier, probability, group)
}

func TestAnnotatedDisjunctionSharedBody(t *testing.T) {
	db := loadProgram(t, `
		0.5::r(1).
		0.3::p(X) ; 0.7::q(X) :- r(X).
	`)
	f := NewFormula()
	sink := &countingSink{GroundSink: f, atomCalls: map[string]int{}}

	results, err := NewEngine(db).GroundAll([]*Compound{
		NewTerm("p", Var(0)),
		NewTerm("q", Var(0)),
	}, sink)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, results[0], 1)
	require.Len(t, results[1], 1)
	require.Equal(t, []Term{Float(1)}, results[0][0].Args)
	require.Equal(t, []Term{Float(1)}, results[1][0].Args)

	// The shared body grounds once even across the two queries.
	for id, n := range sink.atomCalls {
		require.Equal(t, 1, n, "atom %s added %d times", id, n)
	}

	// Both choice atoms belong to the same exclusivity group.
	var groups []string
	for _, n := range f.nodes {
		if n.kind == formulaAtom && n.group != "" {
			groups = append(groups, n.group)
		}
	}
	require.Len(t, groups, 2)
	require.Equal(t, groups[0], groups[1])
}

func TestProbabilisticFactAtom(t *testing.T) {
	db := loadProgram(t, `0.5::burglary.`)
	f := NewFormula()

	results, err := NewEngine(db).Query(Atom("burglary"), f)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotEqual(t, GroundTrue, results[0].Ground)
	n := f.node(results[0].Ground)
	require.Equal(t, formulaAtom, n.kind)
	require.Equal(t, Float(0.5), n.probability)
}

func TestMultipleProofsDisjoin(t *testing.T) {
	db := loadProgram(t, `
		0.5::q.
		0.6::r.
		p :- q.
		p :- r.
	`)
	f := NewFormula()

	results, err := NewEngine(db).Query(Atom("p"), f)
	require.NoError(t, err)
	require.Len(t, results, 1)
	n := f.node(results[0].Ground)
	require.Equal(t, formulaOr, n.kind)
	require.Len(t, n.children, 2)
	require.False(t, n.open)
}

func TestNegatedProbabilisticGoal(t *testing.T) {
	db := loadProgram(t, `
		0.3::q.
		p :- \+ q.
	`)
	f := NewFormula()

	results, err := NewEngine(db).Query(Atom("p"), f)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Greater(t, results[0].Ground, GroundTrue)
	require.Equal(t, formulaNot, f.node(results[0].Ground).kind)
}

func TestDeterministicResultsAreTrue(t *testing.T) {
	db := loadProgram(t, `
		q.
		p :- q.
	`)
	results, err := NewEngine(db).Query(Atom("p"), NewFormula())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, GroundTrue, results[0].Ground)
}

func TestExternPredicate(t *testing.T) {
	db := NewClauseDB(nil)
	require.NoError(t, db.AddExtern("double", 2, func(args []Term) ([][]Term, error) {
		in, ok := args[0].(Float)
		if !ok {
			return nil, fmt.Errorf("double needs a bound first argument")
		}
		return [][]Term{{in, in * 2}}, nil
	}))
	for _, s := range mustParse(t, `p(Y) :- double(3, Y).`) {
		require.NoError(t, db.AddStatement(s))
	}

	results, err := NewEngine(db).Query(NewTerm("p", Var(0)), NewFormula())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []Term{Float(6)}, results[0].Args)
}

func mustParse(t *testing.T, prog string) []Statement {
	t.Helper()
	stmts, err := ParseString(prog)
	require.NoError(t, err)
	return stmts
}
