package problog

import (
	uuid "github.com/satori/go.uuid"
)

// procDefine is one definition-cache entry: the evaluation of one predicate
// definition for one structural argument key. It fans results out to every
// listener that called into it during the run.
//
// Results are deduplicated by binding: before a cycle is detected the entry
// buffers them and flushes at completion, merging equal bindings into one
// finalized or-node. Once the entry turns cyclic, buffering stops; each new
// binding gets an open or-node emitted immediately, and later proofs of an
// already-seen binding grow that node in place through AddDisjunct.
type procDefine struct {
	run    *run
	nodeID int
	def    *defineNode
	args   []Term

	// parents are the cache entries this one was called from. The cycle
	// check walks this graph.
	parents map[*procDefine]struct{}

	subs []listener
	done bool

	cyclic   bool
	results  []defResult
	resultIx map[uuid.UUID]int
	buffer   []bufEntry
	bufferIx map[uuid.UUID]int

	cycleChildren []*procCycle
}

type defResult struct {
	key    uuid.UUID
	args   []Term
	ground GroundRef
}

type bufEntry struct {
	key     uuid.UUID
	args    []Term
	grounds []GroundRef
}

// addListener attaches l, replaying every recorded result and the completion
// if the entry already finished.
func (p *procDefine) addListener(l listener) error {
	p.subs = append(p.subs, l)
	for _, res := range p.results {
		if err := l.result(res.args, res.ground); err != nil {
			return err
		}
	}
	if p.done {
		return l.complete()
	}
	return nil
}

// hasAncestor reports whether q is p itself or a transitive caller of p.
func (p *procDefine) hasAncestor(q *procDefine) bool {
	seen := map[*procDefine]bool{p: true}
	stack := []*procDefine{p}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == q {
			return true
		}
		for next := range cur.parents {
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// execute evaluates every matching candidate. When the candidate walk
// returns with cycles open, every pending derivation has propagated its
// bindings, so the cycles are closed by force-completing their listeners;
// the resulting cascade unwinds the held-up completions.
func (p *procDefine) execute() error {
	children := p.def.index.find(p.args)
	if len(children) == 0 {
		return p.complete()
	}
	or := &procOr{parent: p, pending: len(children)}
	for _, c := range children {
		if err := p.run.eval(c, frame{vars: p.args, define: p}, or); err != nil {
			return err
		}
	}
	for i := 0; i < len(p.cycleChildren); i++ {
		if err := p.cycleChildren[i].complete(); err != nil {
			return err
		}
	}
	return nil
}

func (p *procDefine) result(args []Term, ground GroundRef) error {
	key := resultKey(args)
	if p.cyclic {
		if ix, ok := p.resultIx[key]; ok {
			p.run.sink.AddDisjunct(p.results[ix].ground, ground)
			return nil
		}
		ref := p.run.sink.AddOr([]GroundRef{ground}, false)
		p.record(key, args, ref)
		return p.emitResult(args, ref)
	}
	if ix, ok := p.bufferIx[key]; ok {
		p.buffer[ix].grounds = append(p.buffer[ix].grounds, ground)
		return nil
	}
	p.bufferIx[key] = len(p.buffer)
	p.buffer = append(p.buffer, bufEntry{key: key, args: args, grounds: []GroundRef{ground}})
	return nil
}

func (p *procDefine) complete() error {
	if p.done {
		return nil
	}
	if err := p.flushBuffer(false); err != nil {
		return err
	}
	p.done = true
	for _, l := range p.subs {
		if err := l.complete(); err != nil {
			return err
		}
	}
	return nil
}

func (p *procDefine) record(key uuid.UUID, args []Term, ground GroundRef) {
	p.resultIx[key] = len(p.results)
	p.results = append(p.results, defResult{key: key, args: args, ground: ground})
}

func (p *procDefine) emitResult(args []Term, ground GroundRef) error {
	for _, l := range p.subs {
		if err := l.result(args, ground); err != nil {
			return err
		}
	}
	return nil
}

// flushBuffer turns the buffered bindings into recorded results, in arrival
// order. On the cycle transition every binding gets an open or-node so later
// proofs can still attach; at ordinary completion only bindings with several
// proofs need an or-node, and it is finalized.
func (p *procDefine) flushBuffer(cycle bool) error {
	buffered := p.buffer
	p.buffer = nil
	p.bufferIx = map[uuid.UUID]int{}
	for _, e := range buffered {
		var ref GroundRef
		if len(e.grounds) > 1 || cycle {
			ref = p.run.sink.AddOr(e.grounds, !cycle)
		} else {
			ref = e.grounds[0]
		}
		p.record(e.key, e.args, ref)
		if err := p.emitResult(e.args, ref); err != nil {
			return err
		}
	}
	return nil
}

// markCyclic switches the entry to cyclic result handling. The flag is
// monotonic for the rest of the run.
func (p *procDefine) markCyclic() error {
	if p.cyclic {
		return nil
	}
	p.cyclic = true
	return p.flushBuffer(true)
}

// propagateCyclic marks every entry on the caller chain between p and root
// cyclic, so buffered results along the cycle become extensible.
func (p *procDefine) propagateCyclic(root *procDefine, seen map[*procDefine]bool) error {
	if p == root || seen[p] {
		return nil
	}
	seen[p] = true
	if err := p.markCyclic(); err != nil {
		return err
	}
	for q := range p.parents {
		if err := q.propagateCyclic(root, seen); err != nil {
			return err
		}
	}
	return nil
}

// procCycle stands in for a recursive call to an entry that is still
// executing. It forwards the owner's results as they appear; completion
// comes either from the owner finishing or from the owner's cycle close.
type procCycle struct {
	parent listener
	done   bool
}

func newProcCycle(owner, caller *procDefine, parent listener) error {
	if err := caller.propagateCyclic(owner, map[*procDefine]bool{}); err != nil {
		return err
	}
	c := &procCycle{parent: parent}
	if err := owner.addListener(c); err != nil {
		return err
	}
	if err := owner.markCyclic(); err != nil {
		return err
	}
	owner.cycleChildren = append(owner.cycleChildren, c)
	return nil
}

func (c *procCycle) result(args []Term, ground GroundRef) error {
	return c.parent.result(args, ground)
}

func (c *procCycle) complete() error {
	if c.done {
		return nil
	}
	c.done = true
	return c.parent.complete()
}
