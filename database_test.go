package problog

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func TestStatementsRoundTrip(t *testing.T) {
	prog := `
		coin.
		0.5::heads.
		0.3::rain(london).
		alarm :- burglary.
		burglary.
		ancestor(A, B) :- parent(A, B).
		ancestor(A, B) :- parent(A, C), ancestor(C, B).
		parent(ann, bob).
		0.6::p(X) ; 0.4::q(X) :- parent(X, Y).
	`
	want := mustParse(t, prog)
	db := NewClauseDB(nil)
	for _, s := range want {
		require.NoError(t, db.AddStatement(s))
	}

	got := db.Statements()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("statements do not round-trip (-want +got):\n%s", diff)
	}
}

func TestExtendOverride(t *testing.T) {
	parent := loadProgram(t, `p(1).`)
	child := parent.Extend()
	require.NoError(t, child.AddFact(NewTerm("p", Float(2))))

	childResults, err := NewEngine(child).Query(NewTerm("p", Var(0)), NewFormula())
	require.NoError(t, err)
	var got []Term
	for _, r := range childResults {
		got = append(got, r.Args[0])
	}
	sort.Slice(got, func(i, j int) bool { return got[i].(Float) < got[j].(Float) })
	require.Equal(t, []Term{Float(1), Float(2)}, got)

	parentResults, err := NewEngine(parent).Query(NewTerm("p", Var(0)), NewFormula())
	require.NoError(t, err)
	require.Len(t, parentResults, 1)
	require.Equal(t, []Term{Float(1)}, parentResults[0].Args)
}

func TestExtendSeesParentDefinitions(t *testing.T) {
	parent := loadProgram(t, `
		q(1).
		p(X) :- q(X).
	`)
	child := parent.Extend()
	for _, s := range mustParse(t, `r(X) :- p(X).`) {
		require.NoError(t, child.AddStatement(s))
	}

	results, err := NewEngine(child).Query(NewTerm("r", Var(0)), NewFormula())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []Term{Float(1)}, results[0].Args)
}

func TestReservedAndBuiltinRedefinition(t *testing.T) {
	db := NewClauseDB(nil)
	var access *AccessError

	err := db.AddFact(Atom("true"))
	require.ErrorAs(t, err, &access)
	require.Equal(t, "true/0", access.Name)

	err = db.AddClause(Clause{Head: NewTerm("choice", Var(0)), Body: Atom("true")})
	require.ErrorAs(t, err, &access)

	err = db.AddExtern("=", 2, func(args []Term) ([][]Term, error) { return nil, nil })
	require.ErrorAs(t, err, &access)
}

func TestFind(t *testing.T) {
	db := loadProgram(t, `p(1). q :- r.`)

	_, ok := db.Find(NewTerm("p", Var(0)))
	require.True(t, ok)

	// r is only referenced, never defined.
	_, ok = db.Find(Atom("r"))
	require.False(t, ok)

	_, ok = db.Find(Atom("missing"))
	require.False(t, ok)

	i, ok := db.Find(Atom("true"))
	require.True(t, ok)
	require.Negative(t, i)
}

func TestConsult(t *testing.T) {
	db := NewClauseDB(nil)
	require.NoError(t, db.Consult("testdata/family"))
	// A second consult of the same file is a no-op.
	require.NoError(t, db.Consult("testdata/family.pl"))

	got, err := NewEngine(db).Query(NewTerm("ancestor", Atom("ann"), Var(0)), NewFormula())
	require.NoError(t, err)
	var names []string
	for _, r := range got {
		names = append(names, r.Args[1].String())
	}
	sort.Strings(names)
	require.Equal(t, []string{"bob", "carol"}, names)
}

func TestConsultMissingFile(t *testing.T) {
	db := NewClauseDB(nil)
	err := db.Consult("testdata/no_such_program")
	var consult *ConsultError
	require.ErrorAs(t, err, &consult)
	require.Equal(t, "testdata/no_such_program", consult.Filename)
}

func TestUseModuleScoping(t *testing.T) {
	db := NewClauseDB(nil)
	require.NoError(t, db.UseModule("testdata/lib", "lib"))

	_, ok := db.Find(NewTerm("pair", Var(0), Var(1)))
	require.False(t, ok)

	results, err := NewEngine(db).Query(NewTerm("_lib_pair", Var(0), Var(1)), NewFormula())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, []Term{Float(7), Float(7)}, results[0].Args)
}

func TestRoundTripIgnoresHiddenNodes(t *testing.T) {
	db := loadProgram(t, `0.2::a ; 0.8::b.`)
	got := db.Statements()
	require.Len(t, got, 1)
	ad, ok := got[0].(AnnotatedDisjunction)
	require.True(t, ok)
	require.Len(t, ad.Heads, 2)
	if diff := cmp.Diff(Atom("true"), ad.Body, cmpopts.IgnoreFields(Compound{}, "Location")); diff != "" {
		t.Errorf("unexpected body (-want +got):\n%s", diff)
	}
}
