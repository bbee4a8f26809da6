package rhai

// node is any statement or expression. The parser guarantees placement;
// the resolver fills in slots.
type node interface {
	position() pos
}

type (
	litExpr struct {
		p pos
		v any
	}

	identExpr struct {
		p    pos
		name string
		slot int
	}

	arrayExpr struct {
		p     pos
		elems []node
	}

	mapExpr struct {
		p    pos
		keys []string
		vals []node
	}

	unaryExpr struct {
		p  pos
		op string
		x  node
	}

	binaryExpr struct {
		p    pos
		op   string
		l, r node
	}

	rangeExpr struct {
		p         pos
		from, to  node
		inclusive bool
	}

	callExpr struct {
		p    pos
		name string
		args []node
	}

	// methodExpr is x.name(args), dispatched as name(x, args...).
	methodExpr struct {
		p    pos
		recv node
		name string
		args []node
	}

	indexExpr struct {
		p      pos
		x, idx node
	}

	propExpr struct {
		p    pos
		x    node
		name string
	}

	assignExpr struct {
		p      pos
		op     string
		target node
		value  node
	}

	ifExpr struct {
		p    pos
		cond node
		then *block
		els  node
	}

	whileExpr struct {
		p    pos
		cond node
		body *block
	}

	loopExpr struct {
		p    pos
		body *block
	}

	forExpr struct {
		p         pos
		name      string
		index     string
		slot      int
		indexSlot int
		iter      node
		body      *block
	}

	tryExpr struct {
		p         pos
		body      *block
		catchVar  string
		catchSlot int
		handler   *block
	}

	block struct {
		p        pos
		stmts    []node
		declared []int
	}
)

type (
	letStmt struct {
		p       pos
		name    string
		isConst bool
		value   node
		slot    int
	}

	exprStmt struct {
		p pos
		x node
	}

	returnStmt struct {
		p pos
		x node
	}

	throwStmt struct {
		p pos
		x node
	}

	breakStmt struct {
		p pos
		x node
	}

	continueStmt struct {
		p pos
	}
)

type fnDecl struct {
	p      pos
	name   string
	params []string
	body   *block
	slots  int
}

func (e *litExpr) position() pos      { return e.p }
func (e *identExpr) position() pos    { return e.p }
func (e *arrayExpr) position() pos    { return e.p }
func (e *mapExpr) position() pos      { return e.p }
func (e *unaryExpr) position() pos    { return e.p }
func (e *binaryExpr) position() pos   { return e.p }
func (e *rangeExpr) position() pos    { return e.p }
func (e *callExpr) position() pos     { return e.p }
func (e *methodExpr) position() pos   { return e.p }
func (e *indexExpr) position() pos    { return e.p }
func (e *propExpr) position() pos     { return e.p }
func (e *assignExpr) position() pos   { return e.p }
func (e *ifExpr) position() pos       { return e.p }
func (e *whileExpr) position() pos    { return e.p }
func (e *loopExpr) position() pos     { return e.p }
func (e *forExpr) position() pos      { return e.p }
func (e *tryExpr) position() pos      { return e.p }
func (b *block) position() pos        { return b.p }
func (s *letStmt) position() pos      { return s.p }
func (s *exprStmt) position() pos     { return s.p }
func (s *returnStmt) position() pos   { return s.p }
func (s *throwStmt) position() pos    { return s.p }
func (s *breakStmt) position() pos    { return s.p }
func (s *continueStmt) position() pos { return s.p }

// program is a compiled script. It is never mutated after compilation, so
// one program may run in many sessions at once.
type program struct {
	src   string
	body  *block
	slots int
	fns   map[string]map[int]*fnDecl
}

func (p *program) Source() string { return p.src }

func (p *program) lookup(name string, arity int) *fnDecl {
	return p.fns[name][arity]
}
