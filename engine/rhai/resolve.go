package rhai

import (
	"github.com/isdmx/scriptbox/scripterr"
)

type binding struct {
	slot    int
	isConst bool
}

// resolver binds every variable reference to a frame slot and rejects
// unknown or disabled names before anything runs.
type resolver struct {
	prog     *program
	disabled map[string]bool
	external func(name string) bool

	scopes []map[string]binding
	blocks []*block
	next   int
	slots  int
	loops  int
}

func resolve(prog *program, disabled map[string]bool, external func(string) bool) error {
	r := &resolver{prog: prog, disabled: disabled, external: external}

	for _, overloads := range prog.fns {
		for _, fn := range overloads {
			if err := r.function(fn); err != nil {
				return err
			}
		}
	}

	r.reset()
	if err := r.block(prog.body, nil); err != nil {
		return err
	}
	prog.slots = r.slots
	return nil
}

func (r *resolver) reset() {
	r.scopes, r.blocks = nil, nil
	r.next, r.slots, r.loops = 0, 0, 0
}

func (r *resolver) function(fn *fnDecl) error {
	if err := r.checkName(fn.name, fn.p); err != nil {
		return err
	}
	r.reset()
	for _, name := range fn.params {
		if err := r.checkName(name, fn.p); err != nil {
			return err
		}
	}
	// Parameters occupy the first slots of the frame.
	if err := r.block(fn.body, fn.params); err != nil {
		return err
	}
	fn.slots = r.slots
	return nil
}

func (r *resolver) checkName(name string, at pos) error {
	if r.disabled[name] {
		return scripterr.DisabledErrorf("'%s' is disabled", name).At(at.line, at.col)
	}
	return nil
}

func (r *resolver) declare(name string, isConst bool) int {
	slot := r.next
	r.next++
	if r.next > r.slots {
		r.slots = r.next
	}
	r.scopes[len(r.scopes)-1][name] = binding{slot: slot, isConst: isConst}
	b := r.blocks[len(r.blocks)-1]
	b.declared = append(b.declared, slot)
	return slot
}

func (r *resolver) lookup(name string) (binding, bool) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if b, ok := r.scopes[i][name]; ok {
			return b, true
		}
	}
	return binding{}, false
}

func (r *resolver) functionExists(name string) bool {
	if _, ok := r.prog.fns[name]; ok {
		return true
	}
	if _, ok := builtins[name]; ok {
		return true
	}
	return r.external != nil && r.external(name)
}

// block resolves b in a new scope. pre names are declared first.
func (r *resolver) block(b *block, pre []string) error {
	b.declared = nil
	r.scopes = append(r.scopes, make(map[string]binding))
	r.blocks = append(r.blocks, b)
	for _, name := range pre {
		r.declare(name, false)
	}
	defer func() {
		r.scopes = r.scopes[:len(r.scopes)-1]
		r.blocks = r.blocks[:len(r.blocks)-1]
	}()

	for _, stmt := range b.stmts {
		if err := r.node(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) loopBody(b *block, pre []string) error {
	r.loops++
	defer func() { r.loops-- }()
	return r.block(b, pre)
}

func (r *resolver) nodes(ns []node) error {
	for _, n := range ns {
		if err := r.node(n); err != nil {
			return err
		}
	}
	return nil
}

func (r *resolver) optional(n node) error {
	if n == nil {
		return nil
	}
	return r.node(n)
}

func (r *resolver) node(n node) error {
	switch n := n.(type) {
	case *litExpr:
		return nil

	case *identExpr:
		if err := r.checkName(n.name, n.p); err != nil {
			return err
		}
		b, ok := r.lookup(n.name)
		if !ok {
			return scripterr.CompileErrorf("variable '%s' not found", n.name).At(n.p.line, n.p.col)
		}
		n.slot = b.slot
		return nil

	case *arrayExpr:
		return r.nodes(n.elems)

	case *mapExpr:
		return r.nodes(n.vals)

	case *unaryExpr:
		return r.node(n.x)

	case *binaryExpr:
		if err := r.node(n.l); err != nil {
			return err
		}
		return r.node(n.r)

	case *rangeExpr:
		if err := r.node(n.from); err != nil {
			return err
		}
		return r.node(n.to)

	case *callExpr:
		if err := r.checkName(n.name, n.p); err != nil {
			return err
		}
		if !r.functionExists(n.name) {
			return scripterr.CompileErrorf("function '%s' not found", n.name).At(n.p.line, n.p.col)
		}
		return r.nodes(n.args)

	case *methodExpr:
		if err := r.checkName(n.name, n.p); err != nil {
			return err
		}
		if !r.functionExists(n.name) {
			return scripterr.CompileErrorf("function '%s' not found", n.name).At(n.p.line, n.p.col)
		}
		if err := r.node(n.recv); err != nil {
			return err
		}
		return r.nodes(n.args)

	case *indexExpr:
		if err := r.node(n.x); err != nil {
			return err
		}
		return r.node(n.idx)

	case *propExpr:
		return r.node(n.x)

	case *assignExpr:
		if err := r.node(n.value); err != nil {
			return err
		}
		if ident, ok := n.target.(*identExpr); ok {
			if b, found := r.lookup(ident.name); found && b.isConst {
				return scripterr.CompileErrorf("cannot assign to constant '%s'", ident.name).At(n.p.line, n.p.col)
			}
		}
		return r.node(n.target)

	case *ifExpr:
		if err := r.node(n.cond); err != nil {
			return err
		}
		if err := r.block(n.then, nil); err != nil {
			return err
		}
		return r.optional(n.els)

	case *whileExpr:
		if err := r.node(n.cond); err != nil {
			return err
		}
		return r.loopBody(n.body, nil)

	case *loopExpr:
		return r.loopBody(n.body, nil)

	case *forExpr:
		if err := r.node(n.iter); err != nil {
			return err
		}
		if err := r.checkName(n.name, n.p); err != nil {
			return err
		}
		pre := []string{n.name}
		if n.index != "" {
			if err := r.checkName(n.index, n.p); err != nil {
				return err
			}
			pre = append(pre, n.index)
		}
		if err := r.loopBody(n.body, pre); err != nil {
			return err
		}
		n.slot = n.body.declared[0]
		if n.index != "" {
			n.indexSlot = n.body.declared[1]
		}
		return nil

	case *tryExpr:
		if err := r.block(n.body, nil); err != nil {
			return err
		}
		var pre []string
		if n.catchVar != "" {
			if err := r.checkName(n.catchVar, n.p); err != nil {
				return err
			}
			pre = []string{n.catchVar}
		}
		if err := r.block(n.handler, pre); err != nil {
			return err
		}
		if n.catchVar != "" {
			n.catchSlot = n.handler.declared[0]
		}
		return nil

	case *block:
		return r.block(n, nil)

	case *letStmt:
		if err := r.optional(n.value); err != nil {
			return err
		}
		if err := r.checkName(n.name, n.p); err != nil {
			return err
		}
		n.slot = r.declare(n.name, n.isConst)
		return nil

	case *exprStmt:
		return r.node(n.x)

	case *returnStmt:
		return r.optional(n.x)

	case *throwStmt:
		return r.optional(n.x)

	case *breakStmt:
		if r.loops == 0 {
			return scripterr.CompileErrorf("'break' outside of a loop").At(n.p.line, n.p.col)
		}
		return r.optional(n.x)

	case *continueStmt:
		if r.loops == 0 {
			return scripterr.CompileErrorf("'continue' outside of a loop").At(n.p.line, n.p.col)
		}
		return nil
	}
	return scripterr.CompileErrorf("unsupported syntax")
}
