package problog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// The clause database is a flat, append-only array of typed nodes. Source
// statements compile into small node graphs: a fact is one node, a clause is
// a head node over a tree of conjunction, disjunction, negation and call
// nodes, an annotated disjunction expands into a shared body definition plus
// one choice node per head. A head table maps predicate signatures to define
// nodes, each of which owns a clause index over its candidates.
type node interface {
	isNode()
}

type factNode struct {
	functor     string
	args        []Term
	probability Term
	location    int
}

type clauseNode struct {
	functor     string
	args        []Term
	probability Term
	child       int
	varCount    int
	locVars     []int
	group       int // -1 for plain clauses
	adBody      bool
	location    int
}

type choiceNode struct {
	functor     string
	args        []Term
	probability Term
	locVars     []int
	group       int
	choice      int
	location    int
}

type callNode struct {
	functor  string
	args     []Term
	defNode  int // negative values index the builtin table
	location int
}

type conjNode struct {
	child1 int
	child2 int
}

type disjNode struct {
	child1 int
	child2 int
}

type negNode struct {
	child int
}

type defineNode struct {
	functor  string
	arity    int
	index    *clauseIndex
	location int
}

type externNode struct {
	functor string
	arity   int
	fn      ExternFunc
}

func (*factNode) isNode()   {}
func (*clauseNode) isNode() {}
func (*choiceNode) isNode() {}
func (*callNode) isNode()   {}
func (*conjNode) isNode()   {}
func (*disjNode) isNode()   {}
func (*negNode) isNode()    {}
func (*defineNode) isNode() {}
func (*externNode) isNode() {}

// reservedNames may not be defined by user programs. The compiler itself
// emits choice calls for annotated disjunctions.
var reservedNames = map[string]bool{
	"choice": true,
	"body":   true,
}

// ClauseDB holds a compiled program. Databases layer: Extend returns a
// derived database that shares the parent's nodes by offset and records its
// own additions locally. Defining a predicate that already exists in a parent
// installs a local copy of its candidate set and a redirection from the old
// define node, so parent programs stay untouched.
type ClauseDB struct {
	nodes       []node
	heads       map[signature]int
	redirect    map[int]int
	builtins    *Builtins
	parent      *ClauseDB
	offset      int
	sourceFiles []string
}

// NewClauseDB returns an empty database using the given builtin table. A nil
// table gets the defaults.
func NewClauseDB(builtins *Builtins) *ClauseDB {
	if builtins == nil {
		builtins = DefaultBuiltins()
	}
	return &ClauseDB{
		heads:    map[signature]int{},
		redirect: map[int]int{},
		builtins: builtins,
	}
}

// Extend returns a derived database layered over db. The parent must not be
// modified afterwards.
func (db *ClauseDB) Extend() *ClauseDB {
	return &ClauseDB{
		heads:    map[signature]int{},
		redirect: map[int]int{},
		builtins: db.builtins,
		parent:   db,
		offset:   db.Len(),
	}
}

// Len reports the total node count, parents included.
func (db *ClauseDB) Len() int {
	return db.offset + len(db.nodes)
}

// getNode resolves a node index, applying at most one local redirection and
// delegating below the offset to the parent layer.
func (db *ClauseDB) getNode(i int) node {
	if r, ok := db.redirect[i]; ok {
		i = r
	}
	if i < db.offset {
		return db.parent.getNode(i)
	}
	return db.nodes[i-db.offset]
}

func (db *ClauseDB) setNode(i int, n node) {
	db.nodes[i-db.offset] = n
}

func (db *ClauseDB) appendNode(n node) int {
	db.nodes = append(db.nodes, n)
	return db.Len() - 1
}

func (db *ClauseDB) findHead(sig signature) (int, bool) {
	if i, ok := db.heads[sig]; ok {
		return i, true
	}
	if db.parent != nil {
		return db.parent.findHead(sig)
	}
	return 0, false
}

// addHead resolves the define node for a predicate signature, creating one
// when create is set. Builtin signatures resolve to negative indices and may
// never be created. A reference to an unseen predicate installs a nil
// placeholder that a later definition fills in. Creating over a parent's
// definition copies its surviving candidates into a fresh local define and
// redirects the old node.
func (db *ClauseDB) addHead(head *Compound, create bool) (int, error) {
	if reservedNames[head.Functor] {
		return 0, &AccessError{Name: head.signature().String()}
	}
	sig := head.signature()
	if bi, ok := db.builtins.find(sig); ok {
		if create {
			return 0, &AccessError{Name: sig.String()}
		}
		return -(bi + 1), nil
	}
	i, found := db.findHead(sig)
	if !found {
		var n node
		if create {
			def := &defineNode{functor: sig.functor, arity: sig.arity, location: head.Location}
			def.index = newClauseIndex(db, sig.arity)
			n = def
		}
		i = db.appendNode(n)
		db.heads[sig] = i
		return i, nil
	}
	if i >= db.offset || !create {
		return i, nil
	}
	// Local override of a parent definition.
	def := &defineNode{functor: sig.functor, arity: sig.arity, location: head.Location}
	def.index = newClauseIndex(db, sig.arity)
	if old, ok := db.getNode(i).(*defineNode); ok {
		for _, item := range old.index.items {
			if !old.index.erased[item] {
				def.index.append(item)
			}
		}
	}
	ni := db.appendNode(def)
	db.heads[sig] = ni
	db.redirect[i] = ni
	return ni, nil
}

// addDefineNode registers child as a candidate of head's definition, filling
// a placeholder define when the predicate was only referenced so far.
func (db *ClauseDB) addDefineNode(head *Compound, child int) error {
	i, err := db.addHead(head, true)
	if err != nil {
		return err
	}
	def, ok := db.getNode(i).(*defineNode)
	if !ok {
		if db.getNode(i) != nil {
			return &AccessError{Name: head.signature().String()}
		}
		def = &defineNode{functor: head.Functor, arity: len(head.Args), location: head.Location}
		def.index = newClauseIndex(db, len(head.Args))
		if i < db.offset {
			ni := db.appendNode(def)
			db.heads[head.signature()] = ni
			db.redirect[i] = ni
		} else {
			db.setNode(i, def)
		}
	}
	def.index.append(child)
	return nil
}

// AddFact adds a fact. Facts containing variables compile as clauses with a
// true body; ground facts keep their probability annotation on the fact node.
func (db *ClauseDB) AddFact(fact *Compound) error {
	if hasVars(fact) {
		return db.AddClause(Clause{Head: fact, Body: Atom("true")})
	}
	fi := db.appendNode(&factNode{
		functor:     fact.Functor,
		args:        fact.Args,
		probability: fact.Probability,
		location:    fact.Location,
	})
	return db.addDefineNode(fact, fi)
}

// AddClause adds a clause. A probabilistic head compiles as a single-head
// annotated disjunction so the engine sees a choice node.
func (db *ClauseDB) AddClause(c Clause) error {
	if c.Head.Probability != nil {
		return db.compileAD(AnnotatedDisjunction{Heads: []*Compound{c.Head}, Body: c.Body})
	}
	all, pos := map[int]bool{}, map[int]bool{}
	collectVars(c.Head, false, all, pos)
	collectVars(c.Body, false, all, pos)
	bi, err := db.compileBody(c.Body)
	if err != nil {
		return err
	}
	return db.addClauseNode(c.Head, bi, varCount(all), localVars(all, pos), -1, false)
}

// AddStatement dispatches a parsed statement.
func (db *ClauseDB) AddStatement(s Statement) error {
	switch s := s.(type) {
	case *Compound:
		return db.AddFact(s)
	case Clause:
		return db.AddClause(s)
	case AnnotatedDisjunction:
		return db.compileAD(s)
	}
	return fmt.Errorf("cannot add statement %v", s)
}

// AddExtern registers a foreign predicate. It may fill a placeholder, join an
// existing definition as an extra candidate, or define the predicate anew.
func (db *ClauseDB) AddExtern(functor string, arity int, fn ExternFunc) error {
	sig := signature{functor, arity}
	if reservedNames[functor] {
		return &AccessError{Name: sig.String()}
	}
	if _, ok := db.builtins.find(sig); ok {
		return &AccessError{Name: sig.String()}
	}
	ext := &externNode{functor: functor, arity: arity, fn: fn}
	i, found := db.findHead(sig)
	if !found {
		ei := db.appendNode(ext)
		db.heads[sig] = ei
		return nil
	}
	switch n := db.getNode(i).(type) {
	case nil:
		if i < db.offset {
			ei := db.appendNode(ext)
			db.heads[sig] = ei
			db.redirect[i] = ei
			return nil
		}
		db.setNode(i, ext)
		return nil
	case *defineNode:
		ei := db.appendNode(ext)
		n.index.append(ei)
		return nil
	default:
		return &AccessError{Name: sig.String()}
	}
}

// Find resolves the node evaluating queries against the given head. The
// second return is false for predicates that were never defined.
func (db *ClauseDB) Find(head *Compound) (int, bool) {
	sig := head.signature()
	if bi, ok := db.builtins.find(sig); ok {
		return -(bi + 1), true
	}
	i, ok := db.findHead(sig)
	if !ok || db.getNode(i) == nil {
		return 0, false
	}
	return i, true
}

// addClauseNode appends a clause head node and registers it with the
// definition of its head predicate.
func (db *ClauseDB) addClauseNode(head *Compound, child, vc int, locVars []int, group int, adBody bool) error {
	ci := db.appendNode(&clauseNode{
		functor:     head.Functor,
		args:        head.Args,
		probability: head.Probability,
		child:       child,
		varCount:    vc,
		locVars:     locVars,
		group:       group,
		adBody:      adBody,
		location:    head.Location,
	})
	return db.addDefineNode(head, ci)
}

// compileBody compiles a body term into the node graph, returning the root
// node index. Calls to unseen predicates leave placeholders behind.
func (db *ClauseDB) compileBody(t Term) (int, error) {
	c, ok := t.(*Compound)
	if !ok {
		return 0, fmt.Errorf("cannot compile goal %v", t)
	}
	switch {
	case c.Functor == "," && len(c.Args) == 2:
		c1, err := db.compileBody(c.Args[0])
		if err != nil {
			return 0, err
		}
		c2, err := db.compileBody(c.Args[1])
		if err != nil {
			return 0, err
		}
		return db.appendNode(&conjNode{c1, c2}), nil
	case c.Functor == ";" && len(c.Args) == 2:
		c1, err := db.compileBody(c.Args[0])
		if err != nil {
			return 0, err
		}
		c2, err := db.compileBody(c.Args[1])
		if err != nil {
			return 0, err
		}
		return db.appendNode(&disjNode{c1, c2}), nil
	case (c.Functor == `\+` || c.Functor == "not") && len(c.Args) == 1:
		ch, err := db.compileBody(c.Args[0])
		if err != nil {
			return 0, err
		}
		return db.appendNode(&negNode{ch}), nil
	default:
		def, err := db.addHead(c, false)
		if err != nil {
			return 0, err
		}
		return db.appendNode(&callNode{
			functor:  c.Functor,
			args:     c.Args,
			defNode:  def,
			location: c.Location,
		}), nil
	}
}

// compileAD expands an annotated disjunction. The body compiles once into a
// hidden body_<n> definition shared by every head; each head clause conjoins
// a call to that body with a choice call tagged with the disjunction's group
// and the head's position in it.
func (db *ClauseDB) compileAD(ad AnnotatedDisjunction) error {
	all, pos := map[int]bool{}, map[int]bool{}
	for _, h := range ad.Heads {
		collectVars(h, false, all, pos)
	}
	collectVars(ad.Body, false, all, pos)
	vc := varCount(all)
	loc := localVars(all, pos)

	group := db.Len()
	bodyIdx, err := db.compileBody(ad.Body)
	if err != nil {
		return err
	}
	vars := make([]Term, vc)
	for i := range vars {
		vars[i] = Var(i)
	}
	bodyHead := &Compound{
		Functor:  "body_" + strconv.Itoa(db.Len()),
		Args:     append([]Term{Float(group)}, vars...),
		Location: ad.Heads[0].Location,
	}
	if err := db.addClauseNode(bodyHead, bodyIdx, vc, loc, group, true); err != nil {
		return err
	}
	bodyDef, err := db.addHead(bodyHead, true)
	if err != nil {
		return err
	}
	for i, head := range ad.Heads {
		choiceIdx := db.appendNode(&choiceNode{
			functor:     head.Functor,
			args:        vars,
			probability: head.Probability,
			locVars:     loc,
			group:       group,
			choice:      i,
			location:    head.Location,
		})
		choiceCall := db.appendNode(&callNode{
			functor:  "choice",
			args:     vars,
			defNode:  choiceIdx,
			location: head.Location,
		})
		bodyCall := db.appendNode(&callNode{
			functor:  bodyHead.Functor,
			args:     bodyHead.Args,
			defNode:  bodyDef,
			location: head.Location,
		})
		and := db.appendNode(&conjNode{bodyCall, choiceCall})
		if err := db.addClauseNode(head, and, vc, loc, group, false); err != nil {
			return err
		}
	}
	return nil
}

// Consult loads a program file into the database. The name resolves as-is or
// with a .pl suffix; a file already consulted into this database is skipped.
func (db *ClauseDB) Consult(filename string) error {
	path, err := resolveSource(filename)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for _, seen := range db.sourceFiles {
		if seen == abs {
			return nil
		}
	}
	db.sourceFiles = append(db.sourceFiles, abs)
	stmts, err := parseFile(path)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if err := db.AddStatement(s); err != nil {
			return err
		}
	}
	return nil
}

// UseModule loads a program file with every defined predicate, and every call
// to a predicate defined in the same file, renamed under a scope prefix.
// Builtins and control constructs keep their names.
func (db *ClauseDB) UseModule(filename, scope string) error {
	path, err := resolveSource(filename)
	if err != nil {
		return err
	}
	stmts, err := parseFile(path)
	if err != nil {
		return err
	}
	defined := map[signature]bool{}
	for _, s := range stmts {
		for _, h := range statementHeads(s) {
			defined[h.signature()] = true
		}
	}
	for _, s := range stmts {
		var err error
		switch s := s.(type) {
		case *Compound:
			err = db.AddFact(scopeTerm(s, scope, defined))
		case Clause:
			err = db.AddClause(Clause{
				Head: scopeTerm(s.Head, scope, defined),
				Body: scopeBody(s.Body, scope, defined),
			})
		case AnnotatedDisjunction:
			heads := make([]*Compound, len(s.Heads))
			for i, h := range s.Heads {
				heads[i] = scopeTerm(h, scope, defined)
			}
			err = db.compileAD(AnnotatedDisjunction{
				Heads: heads,
				Body:  scopeBody(s.Body, scope, defined),
			})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func scopeTerm(c *Compound, scope string, defined map[signature]bool) *Compound {
	if !defined[c.signature()] {
		return c
	}
	d := *c
	d.Functor = "_" + scope + "_" + c.Functor
	return &d
}

func scopeBody(t Term, scope string, defined map[signature]bool) Term {
	c, ok := t.(*Compound)
	if !ok {
		return t
	}
	switch {
	case (c.Functor == "," || c.Functor == ";") && len(c.Args) == 2:
		return NewTerm(c.Functor, scopeBody(c.Args[0], scope, defined), scopeBody(c.Args[1], scope, defined))
	case (c.Functor == `\+` || c.Functor == "not") && len(c.Args) == 1:
		return NewTerm(c.Functor, scopeBody(c.Args[0], scope, defined))
	default:
		return scopeTerm(c, scope, defined)
	}
}

func statementHeads(s Statement) []*Compound {
	switch s := s.(type) {
	case *Compound:
		return []*Compound{s}
	case Clause:
		return []*Compound{s.Head}
	case AnnotatedDisjunction:
		return s.Heads
	}
	return nil
}

func resolveSource(filename string) (string, error) {
	for _, candidate := range []string{filename, filename + ".pl"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", &ConsultError{Filename: filename}
}

func parseFile(path string) ([]Statement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConsultError{Filename: path, Err: err}
	}
	stmts, err := Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, &ConsultError{Filename: path, Err: err}
	}
	return stmts, nil
}

// Statements rebuilds a source-level program logically equivalent to the
// database contents. Annotated disjunctions come back as one statement per
// group, ordered by the group's first head clause.
func (db *ClauseDB) Statements() []Statement {
	var out []Statement
	emitted := map[int]bool{}
	for i := 0; i < db.Len(); i++ {
		switch n := db.getNode(i).(type) {
		case *factNode:
			out = append(out, &Compound{
				Functor:     n.functor,
				Args:        n.args,
				Probability: n.probability,
				Location:    n.location,
			})
		case *clauseNode:
			if n.adBody {
				continue
			}
			if n.group < 0 {
				out = append(out, Clause{
					Head: headTerm(n),
					Body: db.extract(n.child),
				})
				continue
			}
			if emitted[n.group] {
				continue
			}
			emitted[n.group] = true
			out = append(out, db.extractAD(n.group))
		}
	}
	return out
}

func headTerm(n *clauseNode) *Compound {
	return &Compound{
		Functor:     n.functor,
		Args:        n.args,
		Probability: n.probability,
		Location:    n.location,
	}
}

// extract rebuilds a body term from a compiled node graph.
func (db *ClauseDB) extract(i int) Term {
	switch n := db.getNode(i).(type) {
	case *conjNode:
		return NewTerm(",", db.extract(n.child1), db.extract(n.child2))
	case *disjNode:
		return NewTerm(";", db.extract(n.child1), db.extract(n.child2))
	case *negNode:
		return NewTerm(`\+`, db.extract(n.child))
	case *callNode:
		return &Compound{Functor: n.functor, Args: n.args, Location: n.location}
	default:
		panic(fmt.Sprintf("cannot extract node %d", i))
	}
}

// extractAD rebuilds an annotated disjunction from its group of head
// clauses. The shared body sits behind the hidden body clause of the group.
func (db *ClauseDB) extractAD(group int) AnnotatedDisjunction {
	var heads []*Compound
	body := Term(Atom("true"))
	for i := 0; i < db.Len(); i++ {
		n, ok := db.getNode(i).(*clauseNode)
		if !ok || n.group != group {
			continue
		}
		if n.adBody {
			body = db.extract(n.child)
			continue
		}
		heads = append(heads, headTerm(n))
	}
	return AnnotatedDisjunction{Heads: heads, Body: body}
}

func hasVars(t Term) bool {
	all, pos := map[int]bool{}, map[int]bool{}
	collectVars(t, false, all, pos)
	return len(all) > 0
}

func localVars(all, pos map[int]bool) []int {
	var loc []int
	for v := range all {
		if !pos[v] {
			loc = append(loc, v)
		}
	}
	sort.Ints(loc)
	return loc
}
