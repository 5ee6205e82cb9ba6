package problog

import "sort"

// clauseIndex is the candidate index owned by one define node. It is a
// prefix tree over flattened head-argument shapes: every level consumes one
// subterm, constants and compounds edge on their (functor, arity) pair, and
// a distinguished variable child absorbs a whole subterm. Nodes live in an
// arena; sibling lists are kept sorted and binary-searched. Erasure marks
// entries dead in a side set without restructuring the tree, so the
// relative order of surviving matches never changes.
type clauseIndex struct {
	db     *ClauseDB
	arity  int
	arena  []trieNode
	items  []int // appended clause-node indices, in insertion order
	next   int   // insertion counter, tags items for result ordering
	erased map[int]bool
}

type trieNode struct {
	functor  string
	arity    int
	children []int32 // arena ids, sorted by (arity, functor)
	varChild int32   // -1 when absent
	items    []trieItem
}

type trieItem struct {
	clause int
	order  int
}

func newClauseIndex(db *ClauseDB, arity int) *clauseIndex {
	return &clauseIndex{
		db:     db,
		arity:  arity,
		arena:  []trieNode{{varChild: -1}},
		erased: map[int]bool{},
	}
}

// headArgs extracts the argument shapes a candidate node is indexed under.
// Extern candidates have no argument structure and index as all-variable.
func (ci *clauseIndex) headArgs(item int) []Term {
	switch n := ci.db.getNode(item).(type) {
	case *factNode:
		return n.args
	case *clauseNode:
		return n.args
	case *choiceNode:
		return n.args
	default:
		return make([]Term, ci.arity)
	}
}

func (ci *clauseIndex) append(item int) {
	ci.items = append(ci.items, item)
	ci.next++
	args := ci.headArgs(item)
	// Arguments are consumed from the top of the stack, so push reversed.
	stack := make([]Term, 0, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		stack = append(stack, args[i])
	}
	ci.insert(0, stack, trieItem{item, ci.next})
}

func (ci *clauseIndex) insert(n int32, stack []Term, item trieItem) {
	if len(stack) == 0 {
		ci.arena[n].items = append(ci.arena[n].items, item)
		return
	}
	arg := stack[len(stack)-1]
	rest := stack[:len(stack)-1]
	if isVarTerm(arg) {
		child := ci.arena[n].varChild
		if child < 0 {
			child = ci.newNode("", 0)
			ci.arena[n].varChild = child
		}
		ci.insert(child, rest, item)
		return
	}
	functor, arity := termShape(arg)
	pos, found := ci.searchChildren(n, functor, arity)
	var child int32
	if found {
		child = ci.arena[n].children[pos]
	} else {
		child = ci.newNode(functor, arity)
		siblings := ci.arena[n].children
		siblings = append(siblings, 0)
		copy(siblings[pos+1:], siblings[pos:])
		siblings[pos] = child
		ci.arena[n].children = siblings
	}
	ci.insert(child, pushArgs(rest, arg), item)
}

func (ci *clauseIndex) newNode(functor string, arity int) int32 {
	ci.arena = append(ci.arena, trieNode{functor: functor, arity: arity, varChild: -1})
	return int32(len(ci.arena) - 1)
}

// searchChildren binary-searches the sorted sibling list of n for the given
// (functor, arity) edge, ordered by arity first.
func (ci *clauseIndex) searchChildren(n int32, functor string, arity int) (int, bool) {
	children := ci.arena[n].children
	pos := sort.Search(len(children), func(i int) bool {
		c := &ci.arena[children[i]]
		if c.arity != arity {
			return c.arity >= arity
		}
		return c.functor >= functor
	})
	if pos < len(children) {
		c := &ci.arena[children[pos]]
		if c.arity == arity && c.functor == functor {
			return pos, true
		}
	}
	return pos, false
}

// find returns the candidate clause-node indices compatible with the given
// call arguments, in original insertion order minus erased entries. An
// unbound call argument matches everything at its position; a bound one
// matches an equal shape or a candidate variable.
func (ci *clauseIndex) find(args []Term) []int {
	stack := make([]Term, 0, len(args))
	for i := len(args) - 1; i >= 0; i-- {
		stack = append(stack, args[i])
	}
	var hits []trieItem
	ci.findRec(0, stack, 0, &hits)
	sort.Slice(hits, func(i, j int) bool { return hits[i].order < hits[j].order })
	result := make([]int, 0, len(hits))
	last := -1
	for _, h := range hits {
		if h.order == last || ci.erased[h.clause] {
			continue
		}
		last = h.order
		result = append(result, h.clause)
	}
	return result
}

// findRec walks the trie. skip counts candidate-side subterms still to be
// consumed for a call argument that was a variable: the variable matched a
// whole candidate subterm, whose edges must be crossed without consuming
// further call arguments.
func (ci *clauseIndex) findRec(n int32, stack []Term, skip int, out *[]trieItem) {
	node := &ci.arena[n]
	if skip > 0 {
		skip--
		for _, c := range node.children {
			ci.findRec(c, stack, skip+ci.arena[c].arity, out)
		}
		if node.varChild >= 0 {
			ci.findRec(node.varChild, stack, skip, out)
		}
		return
	}
	if len(stack) == 0 {
		*out = append(*out, node.items...)
		return
	}
	arg := stack[len(stack)-1]
	rest := stack[:len(stack)-1]
	if node.varChild >= 0 {
		// A candidate variable absorbs the whole call argument.
		ci.findRec(node.varChild, rest, 0, out)
	}
	if isVarTerm(arg) {
		for _, c := range node.children {
			ci.findRec(c, rest, ci.arena[c].arity, out)
		}
		return
	}
	functor, arity := termShape(arg)
	if pos, found := ci.searchChildren(n, functor, arity); found {
		ci.findRec(node.children[pos], pushArgs(rest, arg), 0, out)
	}
}

// erase marks candidates dead. Entries stay in the tree and in the appended
// list; lookups subtract them.
func (ci *clauseIndex) erase(items []int) {
	for _, item := range items {
		ci.erased[item] = true
	}
}

// pushArgs pushes the arguments of a consumed compound, reversed, onto a
// fresh copy of the stack. The copy keeps sibling branches independent.
func pushArgs(stack []Term, arg Term) []Term {
	c, ok := arg.(*Compound)
	if !ok || len(c.Args) == 0 {
		out := make([]Term, len(stack))
		copy(out, stack)
		return out
	}
	out := make([]Term, len(stack), len(stack)+len(c.Args))
	copy(out, stack)
	for i := len(c.Args) - 1; i >= 0; i-- {
		out = append(out, c.Args[i])
	}
	return out
}
