package formula

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Node is one node of the parsed expression tree.
type Node interface{ node() }

// Literal is a numeric constant.
type Literal struct {
	Value float64
}

// Variable is a reference into the evaluation scope.
type Variable struct {
	Name string
}

// Unary is a prefix + or - application.
type Unary struct {
	Op      string
	Operand Node
}

// Binary is a binary operator application.
type Binary struct {
	Op    string
	Left  Node
	Right Node
}

// Call is an invocation of one of the whitelisted functions.
type Call struct {
	Func string
	Args []Node
}

func (*Literal) node()  {}
func (*Variable) node() {}
func (*Unary) node()    {}
func (*Binary) node()   {}
func (*Call) node()     {}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// Parse tokenizes and parses expr into an expression tree, rejecting any
// construct outside the whitelist with ErrDisallowed. A successfully parsed
// tree contains only literal, variable, unary, binary and whitelisted-call
// nodes; no other construct survives parsing.
func Parse(expr string) (Node, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrDisallowed)
	}
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrDisallowed, p.peek().text, p.peek().pos)
	}
	return root, nil
}

func lex(expr string) ([]token, error) {
	var toks []token
	runes := []rune(expr)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case unicode.IsDigit(r) || r == '.':
			start := i
			seenDot := false
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				if runes[i] == '.' {
					if seenDot {
						return nil, fmt.Errorf("%w: malformed number at position %d", ErrDisallowed, start)
					}
					seenDot = true
				}
				i++
			}
			// Exponent suffix such as 1e-3.
			if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
				j := i + 1
				if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
					j++
				}
				if j < len(runes) && unicode.IsDigit(runes[j]) {
					for j < len(runes) && unicode.IsDigit(runes[j]) {
						j++
					}
					i = j
				}
			}
			toks = append(toks, token{tokNumber, string(runes[start:i]), start})

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			toks = append(toks, token{tokIdent, string(runes[start:i]), start})

		case r == '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				toks = append(toks, token{tokOp, "**", i})
				i += 2
			} else {
				toks = append(toks, token{tokOp, "*", i})
				i++
			}

		case r == '+' || r == '-' || r == '/' || r == '%':
			toks = append(toks, token{tokOp, string(r), i})
			i++

		case r == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++

		case r == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++

		case r == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++

		case r == '\'' || r == '"':
			// Quoted literals are only accepted when they parse as numbers.
			quote := r
			i++
			start := i
			for i < len(runes) && runes[i] != quote {
				i++
			}
			if i >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated string at position %d", ErrDisallowed, start-1)
			}
			text := string(runes[start:i])
			i++
			if _, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err != nil {
				return nil, fmt.Errorf("%w: string literal %q is not numeric", ErrDisallowed, text)
			}
			toks = append(toks, token{tokNumber, strings.TrimSpace(text), start})

		default:
			// Comparison, boolean, subscript, attribute access and anything
			// else land here.
			return nil, fmt.Errorf("%w: character %q at position %d", ErrDisallowed, string(r), i)
		}
	}
	toks = append(toks, token{tokEOF, "", len(runes)})
	return toks, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// parseExpr handles + and - (lowest precedence).
func (p *parser) parseExpr() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

// parseTerm handles * / and %.
func (p *parser) parseTerm() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "*" || p.peek().text == "/" || p.peek().text == "%") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

// parseUnary handles prefix + and -. Exponentiation binds tighter than a
// leading unary minus, so -2**2 parses as -(2**2).
func (p *parser) parseUnary() (Node, error) {
	if p.peek().kind == tokOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := p.next().text
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, Operand: operand}, nil
	}
	return p.parsePower()
}

// parsePower handles ** (right associative).
func (p *parser) parsePower() (Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokOp && p.peek().text == "**" {
		p.next()
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Binary{Op: "**", Left: base, Right: exp}, nil
	}
	return base, nil
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed number %q", ErrDisallowed, t.text)
		}
		return &Literal{Value: v}, nil

	case tokIdent:
		p.next()
		if p.peek().kind == tokLParen {
			if !allowedFuncs[t.text] {
				return nil, fmt.Errorf("%w: only min/max/abs/round may be called, got %q", ErrDisallowed, t.text)
			}
			return p.parseCall(t.text)
		}
		return &Variable{Name: t.text}, nil

	case tokLParen:
		p.next()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrDisallowed)
		}
		p.next()
		return inner, nil

	default:
		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrDisallowed, t.text, t.pos)
	}
}

func (p *parser) parseCall(name string) (Node, error) {
	p.next() // consume (
	var args []Node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind == tokComma {
				p.next()
				continue
			}
			break
		}
	}
	if p.peek().kind != tokRParen {
		return nil, fmt.Errorf("%w: missing closing parenthesis in %s(...)", ErrDisallowed, name)
	}
	p.next()
	return &Call{Func: name, Args: args}, nil
}
