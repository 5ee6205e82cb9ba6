package problog

// ExternFunc evaluates a foreign predicate. It receives the instantiated call
// arguments, unbound positions as nil, and returns every matching argument
// tuple. Tuples are treated as deterministic ground results.
type ExternFunc func(args []Term) ([][]Term, error)

// Builtins maps predicate signatures to evaluation functions. Call nodes
// reference builtins through negative indices, so the table must not change
// once a database has compiled against it.
type Builtins struct {
	sigs  map[signature]int
	funcs []ExternFunc
}

func NewBuiltins() *Builtins {
	return &Builtins{sigs: map[signature]int{}}
}

// Register adds a builtin, replacing any previous registration for the same
// signature.
func (b *Builtins) Register(functor string, arity int, fn ExternFunc) {
	sig := signature{functor, arity}
	if i, ok := b.sigs[sig]; ok {
		b.funcs[i] = fn
		return
	}
	b.sigs[sig] = len(b.funcs)
	b.funcs = append(b.funcs, fn)
}

func (b *Builtins) find(sig signature) (int, bool) {
	i, ok := b.sigs[sig]
	return i, ok
}

func (b *Builtins) fn(i int) ExternFunc {
	return b.funcs[i]
}

// DefaultBuiltins returns the standard table: true/0, fail/0 and =/2.
func DefaultBuiltins() *Builtins {
	b := NewBuiltins()
	b.Register("true", 0, func(args []Term) ([][]Term, error) {
		return [][]Term{{}}, nil
	})
	b.Register("fail", 0, func(args []Term) ([][]Term, error) {
		return nil, nil
	})
	b.Register("=", 2, func(args []Term) ([][]Term, error) {
		m, err := mergeTerms(args[0], args[1])
		if err != nil {
			return nil, nil
		}
		return [][]Term{{m, m}}, nil
	})
	return b
}
