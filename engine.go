package problog

import (
	"errors"
	"fmt"
	"strconv"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultMaxDepth = 8192

// Engine grounds queries against a clause database. Evaluation is
// single-threaded, depth-first and left-to-right; events flow through
// listeners, each evaluation delivering zero or more results followed by
// exactly one complete. Definition calls are cached per grounding run under
// a structural key of their arguments, and recursion through a cached
// definition is resolved by cycle detection over the ancestor graph.
type Engine struct {
	db       *ClauseDB
	maxDepth int
	logger   *zap.Logger
}

type Option func(*Engine)

// WithMaxDepth sets the evaluation recursion ceiling.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

// WithLogger sets the trace logger. Evaluation events log at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfig applies loaded engine settings.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.MaxDepth > 0 {
			e.maxDepth = cfg.MaxDepth
		}
	}
}

func NewEngine(db *ClauseDB, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		maxDepth: defaultMaxDepth,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Result is one answer to a query: the instantiated query term's arguments
// and the ground-formula node its truth depends on.
type Result struct {
	Args   []Term
	Ground GroundRef
}

// Query grounds a single query term into sink.
func (e *Engine) Query(q *Compound, sink GroundSink) ([]Result, error) {
	all, err := e.GroundAll([]*Compound{q}, sink)
	if err != nil {
		return nil, err
	}
	return all[0], nil
}

// GroundAll grounds several queries into one sink, sharing the evaluation
// cache between them. The cache lives exactly as long as this call.
func (e *Engine) GroundAll(queries []*Compound, sink GroundSink) ([][]Result, error) {
	r := &run{
		engine: e,
		db:     e.db,
		sink:   sink,
		defs:   map[uuid.UUID]*procDefine{},
		trace:  e.logger.Core().Enabled(zapcore.DebugLevel),
	}
	out := make([][]Result, len(queries))
	for i, q := range queries {
		res, err := r.query(q)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return out, nil
}

// run is the state of one grounding run: the sink receiving the formula and
// the definition cache shared by every query of the run.
type run struct {
	engine *Engine
	db     *ClauseDB
	sink   GroundSink
	defs   map[uuid.UUID]*procDefine
	depth  int
	trace  bool
}

// frame is the evaluation context of one node: the variable bindings in
// scope and the definition being evaluated, for ancestor tracking.
type frame struct {
	vars   []Term
	define *procDefine
}

// listener receives the events of one evaluation.
type listener interface {
	result(args []Term, ground GroundRef) error
	complete() error
}

func (r *run) query(q *Compound) ([]Result, error) {
	ni, ok := r.db.Find(q)
	if !ok {
		return nil, &UnknownPredicateError{Signature: q.signature().String(), Location: q.Location}
	}
	all, pos := map[int]bool{}, map[int]bool{}
	collectVars(q, false, all, pos)
	callerVars := make([]Term, varCount(all))
	callArgs := instantiateAll(q.Args, callerVars)
	col := &collector{query: q}
	cr := &procCallReturn{pattern: q.Args, callerVars: callerVars, parent: col}
	if ni < 0 {
		if err := r.evalBuiltin(ni, callArgs, cr); err != nil {
			return nil, err
		}
		return col.results, nil
	}
	err := r.eval(ni, frame{vars: callArgs}, cr)
	if errors.Is(err, errUnknownDefinition) {
		err = &UnknownPredicateError{Signature: q.signature().String(), Location: q.Location}
	}
	if err != nil {
		return nil, err
	}
	return col.results, nil
}

// eval evaluates one node, reporting to parent.
func (r *run) eval(nodeID int, fr frame, parent listener) error {
	r.depth++
	defer func() { r.depth-- }()
	if r.depth > r.engine.maxDepth {
		return &CallStackError{Depth: r.engine.maxDepth}
	}
	n := r.db.getNode(nodeID)
	if r.trace {
		r.engine.logger.Debug("eval",
			zap.Int("node", nodeID),
			zap.String("kind", fmt.Sprintf("%T", n)),
			zap.Int("depth", r.depth))
	}
	switch n := n.(type) {
	case nil:
		return errUnknownDefinition
	case *factNode:
		return r.evalFact(nodeID, n, fr, parent)
	case *choiceNode:
		return r.evalChoice(n, fr, parent)
	case *callNode:
		return r.evalCall(n, fr, parent)
	case *clauseNode:
		return r.evalClause(n, fr, parent)
	case *conjNode:
		link := &procLink{run: r, next: n.child2, define: fr.define, required: 1, parent: parent}
		return r.eval(n.child1, fr, link)
	case *disjNode:
		or := &procOr{parent: parent, pending: 2}
		if err := r.eval(n.child1, fr, or); err != nil {
			return err
		}
		return r.eval(n.child2, fr, or)
	case *negNode:
		not := &procNot{run: r, vars: fr.vars, parent: parent}
		return r.eval(n.child, fr, not)
	case *defineNode:
		return r.evalDefine(nodeID, n, fr, parent)
	case *externNode:
		return r.evalTuples(n.fn, fr.vars, parent)
	}
	return fmt.Errorf("cannot evaluate node %d", nodeID)
}

func (r *run) evalFact(nodeID int, n *factNode, fr frame, parent listener) error {
	for i, arg := range n.args {
		if err := match(fr.vars[i], arg); err != nil {
			if errors.Is(err, errUnify) {
				return parent.complete()
			}
			return err
		}
	}
	ground := GroundTrue
	if n.probability != nil {
		ground = r.sink.AddAtom("f"+strconv.Itoa(nodeID), n.probability, "")
	}
	if err := parent.result(n.args, ground); err != nil {
		return err
	}
	return parent.complete()
}

// evalChoice grounds one alternative of an annotated disjunction instance.
// The call arguments must be ground: every instance of the disjunction gets
// its own atom group, keyed by the instantiated arguments.
func (r *run) evalChoice(n *choiceNode, fr frame, parent listener) error {
	if !allGround(fr.vars) {
		return &NonGroundError{Location: n.location}
	}
	prob := instantiate(n.probability, fr.vars)
	argsStr := termsString(fr.vars)
	atomID := fmt.Sprintf("choice(%d,%d,%s)", n.group, n.choice, argsStr)
	groupID := fmt.Sprintf("%d:%s", n.group, argsStr)
	ground := r.sink.AddAtom(atomID, prob, groupID)
	if err := parent.result(fr.vars, ground); err != nil {
		return err
	}
	return parent.complete()
}

func (r *run) evalCall(n *callNode, fr frame, parent listener) error {
	callArgs := instantiateAll(n.args, fr.vars)
	cr := &procCallReturn{pattern: n.args, callerVars: fr.vars, parent: parent}
	if n.defNode < 0 {
		return r.evalBuiltin(n.defNode, callArgs, cr)
	}
	err := r.eval(n.defNode, frame{vars: callArgs, define: fr.define}, cr)
	if errors.Is(err, errUnknownDefinition) {
		return &UnknownPredicateError{
			Signature: signature{n.functor, len(n.args)}.String(),
			Location:  n.location,
		}
	}
	return err
}

func (r *run) evalBuiltin(defNode int, callArgs []Term, parent listener) error {
	fn := r.db.builtins.fn(-defNode - 1)
	return r.evalTuples(fn, callArgs, parent)
}

// evalTuples reports the tuples of a builtin or foreign predicate as
// deterministic ground results.
func (r *run) evalTuples(fn ExternFunc, callArgs []Term, parent listener) error {
	tuples, err := fn(callArgs)
	if err != nil {
		return err
	}
	for _, t := range tuples {
		if err := parent.result(t, GroundTrue); err != nil {
			return err
		}
	}
	return parent.complete()
}

// evalClause resolves a call against one clause: head unification opens a
// fresh context sized to the clause's variable count, the body runs in it,
// and each body result instantiates the head arguments back to the caller.
func (r *run) evalClause(n *clauseNode, fr frame, parent listener) error {
	inner := make([]Term, n.varCount)
	for i, arg := range n.args {
		if err := unify(fr.vars[i], arg, inner); err != nil {
			if errors.Is(err, errUnify) {
				return parent.complete()
			}
			return err
		}
	}
	br := &procBodyReturn{
		headArgs: n.args,
		counts:   varOccurrences(n.args),
		location: n.location,
		parent:   parent,
	}
	return r.eval(n.child, frame{vars: inner, define: fr.define}, br)
}

// evalDefine routes a call through the run's definition cache. A repeated
// call from inside the entry's own evaluation is a cycle; any other
// repeated call replays the recorded results.
func (r *run) evalDefine(nodeID int, def *defineNode, fr frame, parent listener) error {
	key := defKey(nodeID, fr.vars)
	if p, ok := r.defs[key]; ok {
		if fr.define != nil && fr.define.hasAncestor(p) {
			if r.trace {
				r.engine.logger.Debug("cycle",
					zap.String("predicate", signature{def.functor, def.arity}.String()))
			}
			return newProcCycle(p, fr.define, parent)
		}
		if fr.define != nil {
			p.parents[fr.define] = struct{}{}
		}
		return p.addListener(parent)
	}
	p := &procDefine{
		run:      r,
		nodeID:   nodeID,
		def:      def,
		args:     fr.vars,
		parents:  map[*procDefine]struct{}{},
		resultIx: map[uuid.UUID]int{},
		bufferIx: map[uuid.UUID]int{},
	}
	if fr.define != nil {
		p.parents[fr.define] = struct{}{}
	}
	r.defs[key] = p
	if err := p.addListener(parent); err != nil {
		return err
	}
	return p.execute()
}

// collector gathers the answers to one query.
type collector struct {
	query   *Compound
	results []Result
}

func (c *collector) result(vars []Term, ground GroundRef) error {
	c.results = append(c.results, Result{
		Args:   instantiateAll(c.query.Args, vars),
		Ground: ground,
	})
	return nil
}

func (c *collector) complete() error {
	return nil
}

// procCallReturn translates the results of a called definition back into the
// caller's context by unifying each tuple against the call pattern. Tuples
// that fail to unify are dropped silently.
type procCallReturn struct {
	pattern    []Term
	callerVars []Term
	parent     listener
}

func (p *procCallReturn) result(args []Term, ground GroundRef) error {
	vars := append([]Term(nil), p.callerVars...)
	for i, pat := range p.pattern {
		if err := unify(args[i], pat, vars); err != nil {
			if errors.Is(err, errUnify) {
				return nil
			}
			return err
		}
	}
	return p.parent.result(vars, ground)
}

func (p *procCallReturn) complete() error {
	return p.parent.complete()
}

// procBodyReturn instantiates clause head arguments from each body result.
type procBodyReturn struct {
	headArgs []Term
	counts   map[int]int
	location int
	parent   listener
}

func (p *procBodyReturn) result(bodyVars []Term, ground GroundRef) error {
	for v, c := range p.counts {
		if c > 1 && !isGround(bodyVars[v]) {
			return &VariableUnificationError{Location: p.location}
		}
	}
	return p.parent.result(instantiateAll(p.headArgs, bodyVars), ground)
}

func (p *procBodyReturn) complete() error {
	return p.parent.complete()
}

// varOccurrences counts how often each variable occurs across the head
// arguments. Variables occurring more than once must bind ground.
func varOccurrences(args []Term) map[int]int {
	counts := map[int]int{}
	var walk func(t Term)
	walk = func(t Term) {
		switch t := t.(type) {
		case Var:
			counts[int(t)]++
		case *Compound:
			for _, a := range t.Args {
				walk(a)
			}
		}
	}
	for _, a := range args {
		walk(a)
	}
	for v, c := range counts {
		if c <= 1 {
			delete(counts, v)
		}
	}
	return counts
}

// procLink sequences a conjunction: every result of the first conjunct
// spawns an evaluation of the second, and the conjunction completes when the
// first conjunct and all spawned evaluations have completed.
type procLink struct {
	run      *run
	next     int
	define   *procDefine
	required int
	parent   listener
	done     bool
}

func (l *procLink) result(args []Term, ground GroundRef) error {
	l.required++
	and := &procAnd{first: ground, link: l}
	return l.run.eval(l.next, frame{vars: args, define: l.define}, and)
}

func (l *procLink) complete() error {
	l.required--
	if l.required <= 0 && !l.done {
		l.done = true
		return l.parent.complete()
	}
	return nil
}

// procAnd joins one result of the first conjunct with the results of the
// second.
type procAnd struct {
	first GroundRef
	link  *procLink
}

func (a *procAnd) result(args []Term, ground GroundRef) error {
	return a.link.parent.result(args, a.link.run.sink.AddAnd(a.first, ground))
}

func (a *procAnd) complete() error {
	return a.link.complete()
}

// procOr merges several alternatives: results pass through, completion waits
// for every branch.
type procOr struct {
	parent  listener
	pending int
	done    bool
}

func (o *procOr) result(args []Term, ground GroundRef) error {
	return o.parent.result(args, ground)
}

func (o *procOr) complete() error {
	o.pending--
	if o.pending <= 0 && !o.done {
		o.done = true
		return o.parent.complete()
	}
	return nil
}

// procNot implements negation as failure over the ground formula: the
// negated goal's result refs are collected, and on completion their negated
// disjunction becomes the single result, or the negation fails when that
// collapses to false. A goal with no results negates to true.
type procNot struct {
	run    *run
	vars   []Term
	parent listener
	buffer []GroundRef
}

func (p *procNot) result(args []Term, ground GroundRef) error {
	if ground != GroundFalse {
		p.buffer = append(p.buffer, ground)
	}
	return nil
}

func (p *procNot) complete() error {
	if len(p.buffer) == 0 {
		if err := p.parent.result(p.vars, GroundTrue); err != nil {
			return err
		}
	} else {
		ref := p.run.sink.AddNot(p.run.sink.AddOr(p.buffer, true))
		if ref != GroundFalse {
			if err := p.parent.result(p.vars, ref); err != nil {
				return err
			}
		}
	}
	return p.parent.complete()
}
