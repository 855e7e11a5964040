package rules

import (
	"fmt"
	"strconv"
	"unicode"
)

// Parse compiles a condition string into an expression tree.
// Grammar, loosest binding first:
//
//	expr       = and { "||" and }
//	and        = unary { "&&" unary }
//	unary      = "!" unary | "(" expr ")" | comparison
//	comparison = IDENT op literal
//	op         = "<" | "<=" | ">" | ">=" | "==" | "!="
//	literal    = NUMBER | "true" | "false"
func Parse(input string) (Expr, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, fmt.Errorf("trailing input %q", p.peek().text)
	}
	return expr, nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokBool
	tokOp     // < <= > >= == !=
	tokAnd    // &&
	tokOr     // ||
	tokNot    // !
	tokLParen // (
	tokRParen // )
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++

		case c == '&':
			if i+1 >= len(input) || input[i+1] != '&' {
				return nil, fmt.Errorf("offset %d: single & (use &&)", i)
			}
			toks = append(toks, token{tokAnd, "&&", i})
			i += 2
		case c == '|':
			if i+1 >= len(input) || input[i+1] != '|' {
				return nil, fmt.Errorf("offset %d: single | (use ||)", i)
			}
			toks = append(toks, token{tokOr, "||", i})
			i += 2

		case c == '<' || c == '>':
			op := string(c)
			if i+1 < len(input) && input[i+1] == '=' {
				op += "="
				i++
			}
			toks = append(toks, token{tokOp, op, i})
			i++
		case c == '=':
			if i+1 >= len(input) || input[i+1] != '=' {
				return nil, fmt.Errorf("offset %d: single = (use ==)", i)
			}
			toks = append(toks, token{tokOp, "==", i})
			i += 2
		case c == '!':
			if i+1 < len(input) && input[i+1] == '=' {
				toks = append(toks, token{tokOp, "!=", i})
				i += 2
			} else {
				toks = append(toks, token{tokNot, "!", i})
				i++
			}

		case c == '-' || c >= '0' && c <= '9':
			start := i
			i++
			for i < len(input) && (input[i] >= '0' && input[i] <= '9' || input[i] == '.') {
				i++
			}
			text := input[start:i]
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("offset %d: bad number %q", start, text)
			}
			toks = append(toks, token{tokNumber, text, start})

		case unicode.IsLetter(rune(c)) || c == '_':
			start := i
			for i < len(input) && (unicode.IsLetter(rune(input[i])) || unicode.IsDigit(rune(input[i])) || input[i] == '_') {
				i++
			}
			text := input[start:i]
			if text == "true" || text == "false" {
				toks = append(toks, token{tokBool, text, start})
			} else {
				toks = append(toks, token{tokIdent, text, start})
			}

		default:
			return nil, fmt.Errorf("offset %d: unexpected character %q", i, string(c))
		}
	}
	toks = append(toks, token{tokEOF, "", len(input)})
	return toks, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) atEOF() bool { return p.peek().kind == tokEOF }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch p.peek().kind {
	case tokNot:
		p.next()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Expr: child}, nil

	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("offset %d: expected ) before %q", p.peek().pos, p.peek().text)
		}
		p.next()
		return inner, nil

	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (Expr, error) {
	ident := p.peek()
	if ident.kind != tokIdent {
		return nil, fmt.Errorf("offset %d: expected metric name, got %q", ident.pos, ident.text)
	}
	p.next()

	op := p.peek()
	if op.kind != tokOp {
		return nil, fmt.Errorf("offset %d: expected comparison operator after %q", op.pos, ident.text)
	}
	p.next()

	lit := p.next()
	switch lit.kind {
	case tokNumber:
		num, _ := strconv.ParseFloat(lit.text, 64)
		return &Compare{Metric: ident.text, Op: Op(op.text), Num: num}, nil
	case tokBool:
		flag := lit.text == "true"
		if op.text != "==" && op.text != "!=" {
			return nil, fmt.Errorf("offset %d: operator %s not valid for boolean literal", op.pos, op.text)
		}
		return &Compare{Metric: ident.text, Op: Op(op.text), Flag: flag, IsFlag: true}, nil
	default:
		return nil, fmt.Errorf("offset %d: expected number or true/false, got %q", lit.pos, lit.text)
	}
}

// MetricNames returns the distinct metric keys referenced by an
// expression, in first-appearance order. Used for static validation.
func MetricNames(e Expr) []string {
	var names []string
	seen := make(map[string]bool)
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *Compare:
			if !seen[n.Metric] {
				seen[n.Metric] = true
				names = append(names, n.Metric)
			}
		case *And:
			walk(n.Left)
			walk(n.Right)
		case *Or:
			walk(n.Left)
			walk(n.Right)
		case *Not:
			walk(n.Expr)
		}
	}
	walk(e)
	return names
}
