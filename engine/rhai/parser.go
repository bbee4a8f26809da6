package rhai

import (
	"github.com/isdmx/scriptbox/scripterr"
)

// maxNesting bounds how deeply blocks and expressions may nest.
const maxNesting = 128

var binaryPrec = map[string]int{
	"||": 1,
	"&&": 2,
	"|":  3,
	"^":  4,
	"&":  5,
	"==": 6, "!=": 6,
	"<": 7, "<=": 7, ">": 7, ">=": 7,
	"..": 8, "..=": 8,
	"<<": 9, ">>": 9,
	"+": 10, "-": 10,
	"*": 11, "/": 11, "%": 11,
	"**": 12,
}

var assignOps = map[string]string{
	"=":   "",
	"+=":  "+",
	"-=":  "-",
	"*=":  "*",
	"/=":  "/",
	"%=":  "%",
	"**=": "**",
	"&=":  "&",
	"|=":  "|",
	"^=":  "^",
	"<<=": "<<",
	">>=": ">>",
}

type parser struct {
	toks  []token
	i     int
	depth int
	fns   map[string]map[int]*fnDecl
}

func parse(src string) (*program, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, fns: make(map[string]map[int]*fnDecl)}
	stmts, err := p.statements(true)
	if err != nil {
		return nil, err
	}
	return &program{
		src:  src,
		body: &block{p: pos{1, 1}, stmts: stmts},
		fns:  p.fns,
	}, nil
}

func (p *parser) tok() token { return p.toks[p.i] }

func (p *parser) advance() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) isPunct(text string) bool {
	t := p.tok()
	return t.kind == tokPunct && t.text == text
}

func (p *parser) isKeyword(text string) bool {
	t := p.tok()
	return t.kind == tokKeyword && t.text == text
}

func (p *parser) errorf(at pos, format string, args ...any) error {
	return scripterr.CompileErrorf(format, args...).At(at.line, at.col)
}

func (p *parser) unexpected() error {
	t := p.tok()
	if t.kind == tokEOF {
		return p.errorf(t.pos, "unexpected end of script")
	}
	if t.kind == tokString {
		return p.errorf(t.pos, "unexpected string %q", t.text)
	}
	return p.errorf(t.pos, "unexpected '%s'", t.text)
}

func (p *parser) expectPunct(text string) (token, error) {
	if !p.isPunct(text) {
		t := p.tok()
		if t.kind == tokEOF {
			return t, p.errorf(t.pos, "expected '%s' but script ended", text)
		}
		return t, p.errorf(t.pos, "expected '%s' but found '%s'", text, t.text)
	}
	return p.advance(), nil
}

func (p *parser) expectIdent() (token, error) {
	t := p.tok()
	if t.kind != tokIdent {
		if t.kind == tokKeyword {
			return t, p.errorf(t.pos, "'%s' is a reserved keyword", t.text)
		}
		return t, p.errorf(t.pos, "expected an identifier")
	}
	return p.advance(), nil
}

func (p *parser) enter(at pos) error {
	p.depth++
	if p.depth > maxNesting {
		return p.errorf(at, "script nested deeper than %d levels", maxNesting)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

// statements parses until EOF (top level) or a closing brace.
func (p *parser) statements(top bool) ([]node, error) {
	var stmts []node
	for {
		if p.tok().kind == tokEOF {
			if !top {
				return nil, p.errorf(p.tok().pos, "expected '}' but script ended")
			}
			return stmts, nil
		}
		if !top && p.isPunct("}") {
			return stmts, nil
		}
		if p.isPunct(";") {
			p.advance()
			continue
		}
		if p.isKeyword("fn") {
			if !top {
				return nil, p.errorf(p.tok().pos, "functions can only be defined at global level")
			}
			if err := p.function(); err != nil {
				return nil, err
			}
			continue
		}

		stmt, blockLike, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)

		switch {
		case p.isPunct(";"):
			p.advance()
		case blockLike, p.tok().kind == tokEOF, p.isPunct("}"):
		default:
			return nil, p.errorf(p.tok().pos, "expected ';' but found '%s'", p.tok().text)
		}
	}
}

func (p *parser) function() error {
	start := p.advance().pos
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if _, err := p.expectPunct("("); err != nil {
		return err
	}
	var params []string
	seen := map[string]bool{}
	for !p.isPunct(")") {
		param, err := p.expectIdent()
		if err != nil {
			return err
		}
		if seen[param.text] {
			return p.errorf(param.pos, "duplicate parameter '%s'", param.text)
		}
		seen[param.text] = true
		params = append(params, param.text)
		if !p.isPunct(",") {
			break
		}
		p.advance()
	}
	if _, err := p.expectPunct(")"); err != nil {
		return err
	}
	body, err := p.block()
	if err != nil {
		return err
	}

	overloads := p.fns[name.text]
	if overloads == nil {
		overloads = make(map[int]*fnDecl)
		p.fns[name.text] = overloads
	}
	if _, exists := overloads[len(params)]; exists {
		return p.errorf(start, "function '%s' with %d parameters is already defined", name.text, len(params))
	}
	overloads[len(params)] = &fnDecl{p: start, name: name.text, params: params, body: body}
	return nil
}

// statement returns the parsed statement and whether it ends in a block,
// in which case the trailing semicolon is optional.
func (p *parser) statement() (node, bool, error) {
	t := p.tok()
	if t.kind == tokKeyword {
		switch t.text {
		case "let", "const":
			s, err := p.let()
			return s, false, err
		case "return", "throw", "break":
			p.advance()
			var x node
			if !p.endOfStatement() {
				var err error
				if x, err = p.expr(); err != nil {
					return nil, false, err
				}
			}
			switch t.text {
			case "return":
				return &returnStmt{p: t.pos, x: x}, false, nil
			case "throw":
				return &throwStmt{p: t.pos, x: x}, false, nil
			default:
				return &breakStmt{p: t.pos, x: x}, false, nil
			}
		case "continue":
			p.advance()
			return &continueStmt{p: t.pos}, false, nil
		case "import", "export":
			return nil, false, scripterr.DisabledErrorf("'%s' is disabled", t.text).At(t.pos.line, t.pos.col)
		}
	}

	x, err := p.expr()
	if err != nil {
		return nil, false, err
	}
	if op := p.tok(); op.kind == tokPunct {
		if _, ok := assignOps[op.text]; ok {
			switch x.(type) {
			case *identExpr, *indexExpr, *propExpr:
			default:
				return nil, false, p.errorf(op.pos, "cannot assign to this expression")
			}
			p.advance()
			val, err := p.expr()
			if err != nil {
				return nil, false, err
			}
			return &exprStmt{p: t.pos, x: &assignExpr{p: op.pos, op: op.text, target: x, value: val}}, false, nil
		}
	}

	switch x.(type) {
	case *ifExpr, *whileExpr, *loopExpr, *forExpr, *tryExpr, *block:
		return &exprStmt{p: t.pos, x: x}, true, nil
	}
	return &exprStmt{p: t.pos, x: x}, false, nil
}

func (p *parser) endOfStatement() bool {
	return p.isPunct(";") || p.isPunct("}") || p.tok().kind == tokEOF
}

func (p *parser) let() (node, error) {
	kw := p.advance()
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	s := &letStmt{p: kw.pos, name: name.text, isConst: kw.text == "const"}
	if p.isPunct("=") {
		p.advance()
		if s.value, err = p.expr(); err != nil {
			return nil, err
		}
	} else if s.isConst {
		return nil, p.errorf(name.pos, "constant '%s' must be initialized", name.text)
	}
	return s, nil
}

func (p *parser) block() (*block, error) {
	open, err := p.expectPunct("{")
	if err != nil {
		return nil, err
	}
	if err := p.enter(open.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	stmts, err := p.statements(false)
	if err != nil {
		return nil, err
	}
	p.advance()
	return &block{p: open.pos, stmts: stmts}, nil
}

func (p *parser) expr() (node, error) {
	return p.binary(1)
}

func (p *parser) binary(minPrec int) (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.tok()
		prec, ok := binaryPrec[op.text]
		if op.kind != tokPunct || !ok || prec < minPrec {
			return left, nil
		}
		p.advance()

		var right node
		if op.text == "**" {
			if err := p.enter(op.pos); err != nil {
				return nil, err
			}
			right, err = p.binary(prec)
			p.leave()
		} else {
			right, err = p.binary(prec + 1)
		}
		if err != nil {
			return nil, err
		}

		if op.text == ".." || op.text == "..=" {
			left = &rangeExpr{p: op.pos, from: left, to: right, inclusive: op.text == "..="}
			continue
		}
		left = &binaryExpr{p: op.pos, op: op.text, l: left, r: right}
	}
}

func (p *parser) unary() (node, error) {
	t := p.tok()
	if err := p.enter(t.pos); err != nil {
		return nil, err
	}
	defer p.leave()

	if t.kind == tokPunct && (t.text == "-" || t.text == "+" || t.text == "!") {
		p.advance()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{p: t.pos, op: t.text, x: x}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (node, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.tok()
		switch {
		case p.isPunct("("):
			ident, ok := x.(*identExpr)
			if !ok {
				return nil, p.errorf(t.pos, "only named functions can be called")
			}
			args, err := p.args()
			if err != nil {
				return nil, err
			}
			x = &callExpr{p: ident.p, name: ident.name, args: args}
		case p.isPunct("["):
			p.advance()
			idx, err := p.expr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct("]"); err != nil {
				return nil, err
			}
			x = &indexExpr{p: t.pos, x: x, idx: idx}
		case p.isPunct("."):
			p.advance()
			name, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			if p.isPunct("(") {
				args, err := p.args()
				if err != nil {
					return nil, err
				}
				x = &methodExpr{p: name.pos, recv: x, name: name.text, args: args}
			} else {
				x = &propExpr{p: name.pos, x: x, name: name.text}
			}
		default:
			return x, nil
		}
	}
}

func (p *parser) args() ([]node, error) {
	p.advance()
	var args []node
	for !p.isPunct(")") {
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.isPunct(",") {
			break
		}
		p.advance()
	}
	if _, err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) primary() (node, error) {
	t := p.tok()
	switch t.kind {
	case tokInt:
		p.advance()
		return &litExpr{p: t.pos, v: t.ival}, nil
	case tokFloat:
		p.advance()
		return &litExpr{p: t.pos, v: t.fval}, nil
	case tokString:
		p.advance()
		return &litExpr{p: t.pos, v: t.text}, nil
	case tokIdent:
		p.advance()
		return &identExpr{p: t.pos, name: t.text}, nil
	case tokKeyword:
		switch t.text {
		case "true", "false":
			p.advance()
			return &litExpr{p: t.pos, v: t.text == "true"}, nil
		case "if":
			return p.ifExpr()
		case "while":
			p.advance()
			cond, err := p.expr()
			if err != nil {
				return nil, err
			}
			body, err := p.block()
			if err != nil {
				return nil, err
			}
			return &whileExpr{p: t.pos, cond: cond, body: body}, nil
		case "loop":
			p.advance()
			body, err := p.block()
			if err != nil {
				return nil, err
			}
			return &loopExpr{p: t.pos, body: body}, nil
		case "for":
			return p.forExpr()
		case "try":
			return p.tryExpr()
		case "fn":
			return nil, p.errorf(t.pos, "functions can only be defined at global level")
		case "import", "export":
			return nil, scripterr.DisabledErrorf("'%s' is disabled", t.text).At(t.pos.line, t.pos.col)
		}
	case tokPunct:
		switch t.text {
		case "(":
			p.advance()
			if p.isPunct(")") {
				p.advance()
				return &litExpr{p: t.pos}, nil
			}
			x, err := p.expr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			return p.arrayLit()
		case "#{":
			return p.mapLit()
		case "{":
			return p.block()
		}
	}
	return nil, p.unexpected()
}

func (p *parser) arrayLit() (node, error) {
	open := p.advance()
	arr := &arrayExpr{p: open.pos}
	for !p.isPunct("]") {
		elem, err := p.expr()
		if err != nil {
			return nil, err
		}
		arr.elems = append(arr.elems, elem)
		if !p.isPunct(",") {
			break
		}
		p.advance()
	}
	if _, err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return arr, nil
}

func (p *parser) mapLit() (node, error) {
	open := p.advance()
	m := &mapExpr{p: open.pos}
	for !p.isPunct("}") {
		key := p.tok()
		if key.kind != tokIdent && key.kind != tokString && key.kind != tokKeyword {
			return nil, p.errorf(key.pos, "expected a property name")
		}
		p.advance()
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		val, err := p.expr()
		if err != nil {
			return nil, err
		}
		m.keys = append(m.keys, key.text)
		m.vals = append(m.vals, val)
		if !p.isPunct(",") {
			break
		}
		p.advance()
	}
	if _, err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *parser) ifExpr() (node, error) {
	kw := p.advance()
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	then, err := p.block()
	if err != nil {
		return nil, err
	}
	x := &ifExpr{p: kw.pos, cond: cond, then: then}
	if p.isKeyword("else") {
		p.advance()
		if p.isKeyword("if") {
			if err := p.enter(kw.pos); err != nil {
				return nil, err
			}
			x.els, err = p.ifExpr()
			p.leave()
		} else {
			x.els, err = p.block()
		}
		if err != nil {
			return nil, err
		}
	}
	return x, nil
}

func (p *parser) forExpr() (node, error) {
	kw := p.advance()
	x := &forExpr{p: kw.pos, indexSlot: -1}

	if p.isPunct("(") {
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(","); err != nil {
			return nil, err
		}
		index, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		x.name, x.index = name.text, index.text
	} else {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		x.name = name.text
	}

	if !p.isKeyword("in") {
		return nil, p.errorf(p.tok().pos, "expected 'in' after loop variable")
	}
	p.advance()

	var err error
	if x.iter, err = p.expr(); err != nil {
		return nil, err
	}
	if x.body, err = p.block(); err != nil {
		return nil, err
	}
	return x, nil
}

func (p *parser) tryExpr() (node, error) {
	kw := p.advance()
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("catch") {
		return nil, p.errorf(p.tok().pos, "expected 'catch' after try block")
	}
	p.advance()

	x := &tryExpr{p: kw.pos, body: body, catchSlot: -1}
	if p.isPunct("(") {
		p.advance()
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		x.catchVar = name.text
	}
	if x.handler, err = p.block(); err != nil {
		return nil, err
	}
	return x, nil
}
