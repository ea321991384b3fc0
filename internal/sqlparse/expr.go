package sqlparse

import (
	"github.com/roach88/seiql/internal/queryir"
)

// parseExpr parses a full expression. Precedence from loosest to tightest:
//
//	OR, AND, NOT, comparison and IS [NOT] NULL, + -, * / %, ||, unary.
func (p *Parser) parseExpr() (queryir.Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (queryir.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &queryir.Binary{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (queryir.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &queryir.Binary{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (queryir.Expr, error) {
	if p.accept("NOT") {
		if p.cur().Is("EXISTS") {
			return nil, p.errf("subqueries are not supported")
		}
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &queryir.Unary{Op: "NOT", Operand: inner}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]string{
	"=": "=", "==": "=", "!=": "!=", "<>": "!=",
	"<": "<", "<=": "<=", ">": ">", ">=": ">=",
}

func (p *Parser) parseComparison() (queryir.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.cur()
		if tok.Typ == TokSymbol {
			if op, ok := comparisonOps[tok.Val]; ok {
				p.next()
				right, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				left = &queryir.Binary{Op: op, Left: left, Right: right}
				continue
			}
		}
		if tok.Is("IS") {
			p.next()
			not := p.accept("NOT")
			if err := p.expect("NULL"); err != nil {
				return nil, err
			}
			left = &queryir.IsNull{Operand: left, Not: not}
			continue
		}
		switch tok.Upper {
		case "IN", "LIKE", "GLOB", "BETWEEN", "REGEXP", "MATCH", "ISNULL", "NOTNULL":
			if tok.Typ == TokWord {
				return nil, p.errf("operator %s is not supported", tok.Upper)
			}
		case "NOT":
			if next := p.peekTok(1); next.Is("IN") || next.Is("LIKE") || next.Is("BETWEEN") {
				return nil, p.errf("operator NOT %s is not supported", next.Upper)
			}
		}
		return left, nil
	}
}

func (p *Parser) parseAdditive() (queryir.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur().IsSymbol("+") || p.cur().IsSymbol("-") {
		op := p.cur().Val
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &queryir.Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (queryir.Expr, error) {
	left, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	for p.cur().IsSymbol("*") || p.cur().IsSymbol("/") || p.cur().IsSymbol("%") {
		op := p.cur().Val
		p.next()
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		left = &queryir.Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseConcat() (queryir.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.acceptSymbol("||") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &queryir.Binary{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (queryir.Expr, error) {
	if p.cur().IsSymbol("-") || p.cur().IsSymbol("+") {
		op := p.cur().Val
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &queryir.Unary{Op: op, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (queryir.Expr, error) {
	tok := p.cur()
	switch tok.Typ {
	case TokNumber:
		p.next()
		return &queryir.Literal{Kind: queryir.LitNumber, Text: tok.Val}, nil

	case TokString, TokDQString:
		p.next()
		return &queryir.Literal{Kind: queryir.LitString, Text: tok.Val}, nil

	case TokQuotedIdent:
		return p.parseColumnRef()

	case TokSymbol:
		if tok.Val != "(" {
			break
		}
		p.next()
		if p.cur().Is("SELECT") {
			return nil, p.errf("subqueries are not supported")
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return &queryir.Paren{Inner: inner}, nil

	case TokWord:
		switch tok.Upper {
		case "NULL":
			p.next()
			return &queryir.Literal{Kind: queryir.LitNull, Text: "NULL"}, nil
		case "TRUE", "FALSE":
			p.next()
			return &queryir.Literal{Kind: queryir.LitBool, Text: tok.Upper}, nil
		case "CASE", "EXISTS", "CAST", "SELECT":
			return nil, p.errf("%s expressions are not supported", tok.Upper)
		}
		if p.peekTok(1).IsSymbol("(") {
			return p.parseFuncCall()
		}
		return p.parseColumnRef()
	}
	if tok.Typ == TokEOF {
		return nil, p.errf("expected an expression")
	}
	return nil, p.errf("unexpected %q in expression", tok.Val)
}

func (p *Parser) parseColumnRef() (queryir.Expr, error) {
	first, err := p.parseIdent("column")
	if err != nil {
		return nil, err
	}
	if p.acceptSymbol(".") {
		second, err := p.parseIdent("column")
		if err != nil {
			return nil, err
		}
		return &queryir.ColumnRef{Table: first, Name: second}, nil
	}
	return &queryir.ColumnRef{Name: first}, nil
}

func (p *Parser) parseFuncCall() (queryir.Expr, error) {
	name := p.cur().Val
	p.next()
	p.next() // (
	call := &queryir.FuncCall{Name: name}
	if p.cur().Is("DISTINCT") {
		return nil, p.errf("DISTINCT aggregates are not supported")
	}
	if p.acceptSymbol("*") {
		call.Star = true
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return call, nil
	}
	if p.acceptSymbol(")") {
		return call, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.acceptSymbol(",") {
			continue
		}
		break
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return call, nil
}
