package problog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

var ignoreLocations = cmpopts.IgnoreFields(Compound{}, "Location")

func parseOne(t *testing.T, src string) Statement {
	t.Helper()
	stmts, err := ParseString(src)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	return stmts[0]
}

func TestParseStatements(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want Statement
	}{
		{
			name: "atom fact",
			src:  `burglary.`,
			want: Atom("burglary"),
		},
		{
			name: "compound fact",
			src:  `parent(ann, bob).`,
			want: NewTerm("parent", Atom("ann"), Atom("bob")),
		},
		{
			name: "probabilistic fact",
			src:  `0.5::heads.`,
			want: Atom("heads").WithProbability(Float(0.5)),
		},
		{
			name: "integer and decimal constants",
			src:  `w(2, 0.25).`,
			want: NewTerm("w", Float(2), Float(0.25)),
		},
		{
			name: "nested terms",
			src:  `age(person(ann), 31).`,
			want: NewTerm("age", NewTerm("person", Atom("ann")), Float(31)),
		},
		{
			name: "clause",
			src:  `alarm :- burglary, earthquake.`,
			want: Clause{
				Head: Atom("alarm"),
				Body: NewTerm(",", Atom("burglary"), Atom("earthquake")),
			},
		},
		{
			name: "variables numbered by first appearance",
			src:  `grandparent(A, C) :- parent(A, B), parent(B, C).`,
			want: Clause{
				Head: NewTerm("grandparent", Var(0), Var(1)),
				Body: NewTerm(",",
					NewTerm("parent", Var(0), Var(2)),
					NewTerm("parent", Var(2), Var(1))),
			},
		},
		{
			name: "repeated variable",
			src:  `diag(X, X).`,
			want: NewTerm("diag", Var(0), Var(0)),
		},
		{
			name: "anonymous variables are fresh",
			src:  `p(_, _).`,
			want: NewTerm("p", Var(0), Var(1)),
		},
		{
			name: "negation",
			src:  `safe(X) :- house(X), \+ burgled(X).`,
			want: Clause{
				Head: NewTerm("safe", Var(0)),
				Body: NewTerm(",",
					NewTerm("house", Var(0)),
					NewTerm(`\+`, NewTerm("burgled", Var(0)))),
			},
		},
		{
			name: "disjunctive body binds looser than conjunction",
			src:  `p :- a, b ; c.`,
			want: Clause{
				Head: Atom("p"),
				Body: NewTerm(";", NewTerm(",", Atom("a"), Atom("b")), Atom("c")),
			},
		},
		{
			name: "parenthesized body",
			src:  `p :- a, (b ; c).`,
			want: Clause{
				Head: Atom("p"),
				Body: NewTerm(",", Atom("a"), NewTerm(";", Atom("b"), Atom("c"))),
			},
		},
		{
			name: "annotated disjunction",
			src:  `0.3::rain ; 0.7::dry :- season(X).`,
			want: AnnotatedDisjunction{
				Heads: []*Compound{
					Atom("rain").WithProbability(Float(0.3)),
					Atom("dry").WithProbability(Float(0.7)),
				},
				Body: NewTerm("season", Var(0)),
			},
		},
		{
			name: "annotated disjunction without body",
			src:  `0.2::a ; 0.8::b.`,
			want: AnnotatedDisjunction{
				Heads: []*Compound{
					Atom("a").WithProbability(Float(0.2)),
					Atom("b").WithProbability(Float(0.8)),
				},
				Body: Atom("true"),
			},
		},
		{
			name: "variable probability",
			src:  `P::flip(C) :- weight(C, P).`,
			want: Clause{
				Head: NewTerm("flip", Var(1)).WithProbability(Var(0)),
				Body: NewTerm("weight", Var(1), Var(0)),
			},
		},
		{
			name: "comments",
			src: `% leading comment
				p(1). % trailing comment`,
			want: NewTerm("p", Float(1)),
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := parseOne(t, c.src)
			if diff := cmp.Diff(c.want, got, ignoreLocations); diff != "" {
				t.Errorf("unexpected parse (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseMultipleStatements(t *testing.T) {
	stmts, err := ParseString(`
		edge(a, b). edge(b, c).
		path(X, Y) :- edge(X, Y).
	`)
	require.NoError(t, err)
	require.Len(t, stmts, 3)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"missing terminator", `p`},
		{"dangling argument list", `p( .`},
		{"bad probability separator", `0.5:p.`},
		{"empty body goal", `p :- .`},
		{"empty argument", `p(,).`},
		{"body after disjunctive head then semicolon", `a :- b ; c ; d :- e.`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := ParseString(c.src)
			require.Error(t, err)
		})
	}
}

func TestParseLocationsAdvance(t *testing.T) {
	stmts, err := ParseString("p(a).\nq(b).")
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	first := stmts[0].(*Compound)
	second := stmts[1].(*Compound)
	require.Equal(t, 0, first.Location)
	require.Greater(t, second.Location, first.Location)
}
