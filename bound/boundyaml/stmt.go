package boundyaml

import (
	"strconv"

	"github.com/stealthrocket/lower/bound"
	"gopkg.in/yaml.v3"
)

func (d *decoder) body(m *bound.Method) {
	n := d.bodies[m]
	d.method = m
	d.this = d.prog.This[m]
	d.typeParams = map[string]*bound.Type{}
	for _, t := range m.TypeParams {
		d.typeParams[t.Name] = t
	}
	d.labels = map[string]*bound.Label{}
	d.loops = nil
	d.receivers = nil

	params := &scope{names: map[string]*bound.Local{}}
	for _, p := range m.Params {
		params.names[p.Name] = p
	}
	d.scopes = []*scope{params}

	if n == nil {
		m.Body = &bound.Block{Pos: m.Pos}
	} else {
		m.Body = d.block(n)
	}
	d.scopes = nil
	d.typeParams = nil
}

func (d *decoder) pushScope() *scope {
	s := &scope{names: map[string]*bound.Local{}}
	d.scopes = append(d.scopes, s)
	return s
}

func (d *decoder) popScope() { d.scopes = d.scopes[:len(d.scopes)-1] }

func (d *decoder) declare(n *yaml.Node, l *bound.Local) {
	s := d.scopes[len(d.scopes)-1]
	if _, ok := s.names[l.Name]; ok {
		d.fail(n, "%s redeclared in this block", l.Name)
	}
	s.names[l.Name] = l
	s.locals = append(s.locals, l)
}

func (d *decoder) local(n *yaml.Node, name string) *bound.Local {
	for i := len(d.scopes) - 1; i >= 0; i-- {
		if l, ok := d.scopes[i].names[name]; ok {
			return l
		}
	}
	d.fail(n, "undefined: %s", name)
	return nil
}

func (d *decoder) label(name string) *bound.Label {
	l, ok := d.labels[name]
	if !ok {
		l = &bound.Label{Name: name}
		d.labels[name] = l
	}
	return l
}

// block decodes a sequence of statements. A nil node is an empty block.
func (d *decoder) block(n *yaml.Node) *bound.Block {
	if n == nil {
		return &bound.Block{}
	}
	s := d.pushScope()
	defer d.popScope()

	b := &bound.Block{Pos: pos(n)}
	for _, sn := range d.seq(n) {
		if st := d.stmt(sn); st != nil {
			b.Stmts = append(b.Stmts, st)
		}
	}
	b.Locals = s.locals
	return b
}

func (d *decoder) stmt(n *yaml.Node) bound.Stmt {
	p := pos(n)
	if n.Kind == yaml.ScalarNode {
		switch n.Value {
		case "return":
			return &bound.Return{Pos: p}
		case "throw":
			return &bound.Throw{Pos: p}
		case "break", "continue":
			if len(d.loops) == 0 {
				d.fail(n, "%s outside of a loop", n.Value)
			}
			lp := d.loops[len(d.loops)-1]
			if n.Value == "break" {
				return &bound.Goto{Pos: p, Label: lp.brk}
			}
			return &bound.Goto{Pos: p, Label: lp.cont}
		case "nop":
			return &bound.NoOp{Pos: p}
		}
		d.fail(n, "unknown statement %q", n.Value)
	}

	key, v := d.single(n)
	switch key {
	case "var":
		return d.varDecl(p, v)

	case "block":
		return d.block(v)

	case "expr":
		return &bound.ExprStmt{Pos: p, X: d.expr(v)}

	case "if":
		f := d.fields(v, "cond", "then", "else")
		s := &bound.If{Pos: p, Cond: d.expr(f["cond"]), Then: d.block(f["then"])}
		if f["else"] != nil {
			s.Else = d.block(f["else"])
		}
		return s

	case "goto":
		return &bound.Goto{Pos: p, Label: d.label(d.scalar(v))}

	case "label":
		return &bound.LabelStmt{Pos: p, Label: d.label(d.scalar(v))}

	case "condgoto":
		f := d.fields(v, "cond", "label", "ifTrue")
		jump := true
		if f["ifTrue"] != nil {
			jump = d.bool(f["ifTrue"])
		}
		return &bound.CondGoto{Pos: p, Cond: d.expr(f["cond"]), JumpIfTrue: jump, Label: d.label(d.scalar(f["label"]))}

	case "return":
		return &bound.Return{Pos: p, Result: d.expr(v)}

	case "throw":
		return &bound.Throw{Pos: p, X: d.expr(v)}

	case "switch":
		f := d.fields(v, "on", "cases")
		s := &bound.Switch{Pos: p, X: d.expr(f["on"])}
		for _, cn := range d.seq(f["cases"]) {
			cf := d.fields(cn, "case", "body")
			s.Cases = append(s.Cases, &bound.SwitchCase{Value: d.int(cf["case"]), Body: d.block(cf["body"])})
		}
		return s

	case "try":
		return d.try(p, v)

	case "while":
		f := d.fields(v, "cond", "body")
		s := &bound.While{Pos: p, Cond: d.expr(f["cond"])}
		s.Break, s.Continue = d.loopLabels()
		d.loops = append(d.loops, loop{s.Break, s.Continue})
		s.Body = d.block(f["body"])
		d.loops = d.loops[:len(d.loops)-1]
		return s

	case "for":
		return d.forLoop(p, v)

	case "lock":
		f := d.fields(v, "on", "body")
		return &bound.Lock{Pos: p, X: d.expr(f["on"]), Body: d.block(f["body"])}
	}
	return &bound.ExprStmt{Pos: p, X: d.exprKey(n, key, v)}
}

// varDecl declares a local in the enclosing block, returning the statement
// initializing it if any. The declaration is either "name type" or a
// mapping with a name and either a type, an initializer or both. A "ref"
// initializer declares a by-reference local aliasing a variable.
func (d *decoder) varDecl(p bound.Pos, n *yaml.Node) bound.Stmt {
	if n.Kind == yaml.ScalarNode {
		l := d.param(n, 0)
		l.Kind = bound.UserLocal
		d.declare(n, l)
		return nil
	}
	f := d.fields(n, "name", "type", "init", "ref")
	if f["name"] == nil {
		d.fail(n, "variable without a name")
	}
	l := &bound.Local{Name: d.scalar(f["name"])}

	// The initializer is decoded before the local is in scope.
	var init bound.Expr
	switch {
	case f["init"] != nil:
		init = d.expr(f["init"])
	case f["ref"] != nil:
		init = d.expr(f["ref"])
		l.RefKind = bound.ByRef
	}
	switch {
	case f["type"] != nil:
		l.Type = d.typ(f["type"])
	case init != nil:
		l.Type = init.Type()
	default:
		d.fail(n, "variable %s without a type", l.Name)
	}
	d.declare(n, l)

	if init == nil {
		return nil
	}
	ref := &bound.LocalRef{Pos: p, Local: l}
	return &bound.ExprStmt{Pos: p, X: &bound.Assign{Pos: p, Left: ref, Right: init, IsRef: l.RefKind == bound.ByRef}}
}

func (d *decoder) try(p bound.Pos, n *yaml.Node) bound.Stmt {
	f := d.fields(n, "body", "catch", "finally")
	s := &bound.Try{Pos: p, Body: d.block(f["body"])}
	for _, cn := range d.seq(f["catch"]) {
		cf := d.fields(cn, "type", "var", "when", "body")
		c := &bound.Catch{Pos: pos(cn)}
		if cf["type"] != nil {
			c.Type = d.typ(cf["type"])
		}
		d.pushScope()
		if cf["var"] != nil {
			c.Local = &bound.Local{Name: d.scalar(cf["var"]), Type: c.CatchType()}
			d.declare(cf["var"], c.Local)
		}
		if cf["when"] != nil {
			c.Filter = d.expr(cf["when"])
		}
		c.Body = d.block(cf["body"])
		d.popScope()
		s.Catches = append(s.Catches, c)
	}
	if f["finally"] != nil {
		s.Finally = d.block(f["finally"])
	}
	if len(s.Catches) == 0 && s.Finally == nil {
		d.fail(n, "try without catch or finally")
	}
	return s
}

// forLoop decodes a loop declaring vars for all of its iterations:
//
//	for: {vars: [{name: i, init: 0}], cond: {lt: [i, 3]}, step: [{compound: [add, i, 1]}], body: [...]}
func (d *decoder) forLoop(p bound.Pos, n *yaml.Node) bound.Stmt {
	f := d.fields(n, "vars", "cond", "step", "body")
	s := &bound.For{Pos: p}
	sc := d.pushScope()
	defer d.popScope()

	for _, vn := range d.seq(f["vars"]) {
		if init := d.varDecl(pos(vn), vn); init != nil {
			s.Init = append(s.Init, init)
		}
	}
	s.Locals = sc.locals
	if f["cond"] != nil {
		s.Cond = d.expr(f["cond"])
	}
	for _, sn := range d.seq(f["step"]) {
		s.Increment = append(s.Increment, d.stmt(sn))
	}
	s.Break, s.Continue = d.loopLabels()
	d.loops = append(d.loops, loop{s.Break, s.Continue})
	s.Body = d.block(f["body"])
	d.loops = d.loops[:len(d.loops)-1]
	return s
}

func (d *decoder) loopLabels() (brk, cont *bound.Label) {
	n := strconv.Itoa(len(d.labels))
	brk = d.label("break" + n)
	cont = d.label("continue" + n)
	return brk, cont
}
