package problog

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Statement is one parsed program statement: a fact (*Compound), a Clause or
// an AnnotatedDisjunction.
type Statement interface {
	isStatement()
}

func (*Compound) isStatement() {}

// Clause is a rule with a single head.
type Clause struct {
	Head *Compound
	Body Term
}

func (Clause) isStatement() {}

// AnnotatedDisjunction is a rule whose head is a probabilistic choice among
// several alternatives.
type AnnotatedDisjunction struct {
	Heads []*Compound
	Body  Term
}

func (AnnotatedDisjunction) isStatement() {}

// Parse reads a program: statements terminated by '.', with '%' line
// comments. Variables are numbered per statement in order of first
// appearance; '_' is always a fresh variable.
func Parse(input io.Reader) ([]Statement, error) {
	s := &scanner{r: bufio.NewReader(input)}
	var out []Statement
	for {
		stmt, done, err := s.scanStatement()
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
		out = append(out, stmt)
	}
}

func ParseString(program string) ([]Statement, error) {
	return Parse(strings.NewReader(program))
}

type scanner struct {
	r    *bufio.Reader
	pos  int // rune offset, recorded as term location
	vars map[string]int
	next int
}

var eof = rune(0)

func isWhitespace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isLowerCase(ch rune) bool {
	return ch >= 'a' && ch <= 'z'
}

func isUpperCase(ch rune) bool {
	return ch >= 'A' && ch <= 'Z'
}

func isNumber(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isLetter(ch rune) bool {
	return isLowerCase(ch) || isUpperCase(ch)
}

func isNameRune(ch rune) bool {
	return isLetter(ch) || isNumber(ch) || ch == '_'
}

func (s *scanner) read() rune {
	ch, _, err := s.r.ReadRune()
	if err != nil {
		return eof
	}
	s.pos++
	return ch
}

func (s *scanner) unread() {
	if s.r.UnreadRune() == nil {
		s.pos--
	}
}

func (s *scanner) peek() rune {
	ch := s.read()
	if ch != eof {
		s.unread()
	}
	return ch
}

func (s *scanner) mustConsume(r rune) error {
	ch := s.read()
	if ch != r {
		return s.errorf("expected %q, but got %q", r, ch)
	}
	return nil
}

func (s *scanner) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("offset %d: %s", s.pos, fmt.Sprintf(format, args...))
}

func (s *scanner) consumeRestOfLine() {
	for {
		ch := s.read()
		if ch == eof || ch == '\n' {
			return
		}
	}
}

func (s *scanner) consumeWhitespace() {
	for {
		ch := s.read()
		if ch == '%' {
			s.consumeRestOfLine()
			continue
		}
		if ch == eof {
			return
		}
		if !isWhitespace(ch) {
			s.unread()
			return
		}
	}
}

func (s *scanner) scanName() (string, error) {
	var b strings.Builder
	ch := s.read()
	if !isLetter(ch) && ch != '_' {
		return "", s.errorf("expected a name, but got %q", ch)
	}
	b.WriteRune(ch)
	for {
		ch = s.read()
		if !isNameRune(ch) {
			if ch != eof {
				s.unread()
			}
			return b.String(), nil
		}
		b.WriteRune(ch)
	}
}

// scanNumber reads an integer or decimal constant. A '.' only joins the
// number when a digit follows, otherwise it terminates the statement.
func (s *scanner) scanNumber() (Term, error) {
	var b strings.Builder
	for {
		ch := s.read()
		if !isNumber(ch) {
			if ch != eof {
				s.unread()
			}
			break
		}
		b.WriteRune(ch)
	}
	if next, err := s.r.Peek(2); err == nil && next[0] == '.' && next[1] >= '0' && next[1] <= '9' {
		b.WriteRune(s.read())
		for {
			ch := s.read()
			if !isNumber(ch) {
				if ch != eof {
					s.unread()
				}
				break
			}
			b.WriteRune(ch)
		}
	}
	f, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return nil, s.errorf("bad number %q", b.String())
	}
	return Float(f), nil
}

func (s *scanner) variable(name string) Term {
	if name == "_" {
		v := Var(s.next)
		s.next++
		return v
	}
	if i, ok := s.vars[name]; ok {
		return Var(i)
	}
	s.vars[name] = s.next
	s.next++
	return Var(s.vars[name])
}

// scanTerm reads a variable, number, atom or compound term.
func (s *scanner) scanTerm() (Term, error) {
	s.consumeWhitespace()
	loc := s.pos
	ch := s.peek()
	switch {
	case ch == eof:
		return nil, s.errorf("unexpected end of input")
	case isNumber(ch):
		return s.scanNumber()
	case isUpperCase(ch) || ch == '_':
		name, err := s.scanName()
		if err != nil {
			return nil, err
		}
		return s.variable(name), nil
	case isLowerCase(ch):
		name, err := s.scanName()
		if err != nil {
			return nil, err
		}
		return s.scanCompound(name, loc)
	default:
		return nil, s.errorf("expected a term, but got %q", ch)
	}
}

func (s *scanner) scanCompound(functor string, loc int) (*Compound, error) {
	c := &Compound{Functor: functor, Location: loc}
	if s.peek() != '(' {
		return c, nil
	}
	s.read()
	for {
		arg, err := s.scanTerm()
		if err != nil {
			return nil, err
		}
		c.Args = append(c.Args, arg)
		s.consumeWhitespace()
		ch := s.read()
		if ch == ')' {
			return c, nil
		}
		if ch != ',' {
			return nil, s.errorf("expected ',' or ')', but got %q", ch)
		}
	}
}

// scanHead reads one rule head with an optional probability annotation. The
// probability is a number or a variable followed by '::'.
func (s *scanner) scanHead() (*Compound, error) {
	s.consumeWhitespace()
	ch := s.peek()
	if !isNumber(ch) && !isUpperCase(ch) && ch != '_' {
		t, err := s.scanTerm()
		if err != nil {
			return nil, err
		}
		c, ok := t.(*Compound)
		if !ok {
			return nil, s.errorf("head must be an atom or compound, got %v", t)
		}
		return c, nil
	}
	p, err := s.scanTerm()
	if err != nil {
		return nil, err
	}
	s.consumeWhitespace()
	if err := s.mustConsume(':'); err != nil {
		return nil, err
	}
	if err := s.mustConsume(':'); err != nil {
		return nil, err
	}
	s.consumeWhitespace()
	loc := s.pos
	name, err := s.scanName()
	if err != nil {
		return nil, err
	}
	if !isLowerCase(rune(name[0])) {
		return nil, s.errorf("head must be an atom or compound, got %q", name)
	}
	c, err := s.scanCompound(name, loc)
	if err != nil {
		return nil, err
	}
	c.Probability = p
	return c, nil
}

// scanBody reads a body expression. ';' binds looser than ','.
func (s *scanner) scanBody() (Term, error) {
	left, err := s.scanConj()
	if err != nil {
		return nil, err
	}
	s.consumeWhitespace()
	if s.peek() != ';' {
		return left, nil
	}
	s.read()
	right, err := s.scanBody()
	if err != nil {
		return nil, err
	}
	return NewTerm(";", left, right), nil
}

func (s *scanner) scanConj() (Term, error) {
	left, err := s.scanGoal()
	if err != nil {
		return nil, err
	}
	s.consumeWhitespace()
	if s.peek() != ',' {
		return left, nil
	}
	s.read()
	right, err := s.scanConj()
	if err != nil {
		return nil, err
	}
	return NewTerm(",", left, right), nil
}

func (s *scanner) scanGoal() (Term, error) {
	s.consumeWhitespace()
	switch s.peek() {
	case '\\':
		s.read()
		if err := s.mustConsume('+'); err != nil {
			return nil, err
		}
		g, err := s.scanGoal()
		if err != nil {
			return nil, err
		}
		return NewTerm(`\+`, g), nil
	case '(':
		s.read()
		b, err := s.scanBody()
		if err != nil {
			return nil, err
		}
		s.consumeWhitespace()
		if err := s.mustConsume(')'); err != nil {
			return nil, err
		}
		return b, nil
	default:
		return s.scanTerm()
	}
}

// scanStatement reads one statement. The boolean return reports a clean end
// of input.
func (s *scanner) scanStatement() (Statement, bool, error) {
	s.vars = map[string]int{}
	s.next = 0
	s.consumeWhitespace()
	if s.peek() == eof {
		return nil, true, nil
	}
	head, err := s.scanHead()
	if err != nil {
		return nil, false, err
	}
	heads := []*Compound{head}
	var body Term
	for {
		s.consumeWhitespace()
		ch := s.read()
		switch ch {
		case '.':
			return makeStatement(heads, body), false, nil
		case ';':
			if body != nil {
				return nil, false, s.errorf("unexpected ';' after rule body")
			}
			h, err := s.scanHead()
			if err != nil {
				return nil, false, err
			}
			heads = append(heads, h)
		case ':':
			if err := s.mustConsume('-'); err != nil {
				return nil, false, err
			}
			body, err = s.scanBody()
			if err != nil {
				return nil, false, err
			}
			s.consumeWhitespace()
			if err := s.mustConsume('.'); err != nil {
				return nil, false, err
			}
			return makeStatement(heads, body), false, nil
		default:
			return nil, false, s.errorf("expected '.', ';' or ':-', but got %q", ch)
		}
	}
}

func makeStatement(heads []*Compound, body Term) Statement {
	if len(heads) > 1 {
		if body == nil {
			body = Atom("true")
		}
		return AnnotatedDisjunction{Heads: heads, Body: body}
	}
	if body == nil {
		return heads[0]
	}
	return Clause{Head: heads[0], Body: body}
}
