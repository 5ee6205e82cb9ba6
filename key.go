package problog

import (
	"encoding/binary"

	uuid "github.com/satori/go.uuid"
	"github.com/spaolacci/murmur3"
)

func idFromInts(a uint64, b uint64) uuid.UUID {
	abytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(abytes, a)
	bbytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(bbytes, b)

	var u uuid.UUID
	// ignore error.
	u.UnmarshalBinary(append(abytes, bbytes...))
	return u
}

// structTagger hashes terms with variables renumbered by first occurrence,
// so two argument tuples get the same tag exactly when a variable renaming
// makes them identical. Anonymous unbound slots always count as fresh.
type structTagger struct {
	hasher murmur3.Hash128
	vars   map[int]int64
	next   int64
}

func newStructTagger() *structTagger {
	return &structTagger{hasher: murmur3.New128(), vars: map[int]int64{}}
}

func (s *structTagger) writeTerm(t Term) {
	switch t := t.(type) {
	case nil:
		s.hasher.Write([]byte{0})
		binary.Write(s.hasher, binary.LittleEndian, s.next)
		s.next++
	case Var:
		s.hasher.Write([]byte{1})
		id, ok := s.vars[int(t)]
		if !ok {
			id = s.next
			s.next++
			s.vars[int(t)] = id
		}
		binary.Write(s.hasher, binary.LittleEndian, id)
	case Float:
		s.hasher.Write([]byte{2})
		binary.Write(s.hasher, binary.LittleEndian, float64(t))
	case *Compound:
		s.hasher.Write([]byte{3})
		s.hasher.Write([]byte(t.Functor))
		binary.Write(s.hasher, binary.LittleEndian, int64(len(t.Args)))
		for _, a := range t.Args {
			s.writeTerm(a)
		}
	}
}

// defKey tags one definition call for the evaluation cache. Calls to the
// same define node with structurally equal arguments share an entry.
func defKey(nodeID int, args []Term) uuid.UUID {
	s := newStructTagger()
	binary.Write(s.hasher, binary.LittleEndian, int64(nodeID))
	for _, a := range args {
		s.writeTerm(a)
	}
	return idFromInts(s.hasher.Sum128())
}

// resultKey tags one result tuple for binding deduplication.
func resultKey(args []Term) uuid.UUID {
	s := newStructTagger()
	for _, a := range args {
		s.writeTerm(a)
	}
	return idFromInts(s.hasher.Sum128())
}
