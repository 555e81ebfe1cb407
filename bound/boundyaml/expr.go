package boundyaml

import (
	"strings"

	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/wellknown"
	"gopkg.in/yaml.v3"
)

var binaryOps = map[string]bound.BinaryOp{
	"add":     bound.Add,
	"sub":     bound.Sub,
	"mul":     bound.Mul,
	"div":     bound.Div,
	"rem":     bound.Rem,
	"eq":      bound.Eq,
	"ne":      bound.Ne,
	"lt":      bound.Lt,
	"le":      bound.Le,
	"gt":      bound.Gt,
	"ge":      bound.Ge,
	"and":     bound.And,
	"or":      bound.Or,
	"andalso": bound.AndAlso,
	"orelse":  bound.OrElse,
}

func (d *decoder) expr(n *yaml.Node) bound.Expr {
	if n == nil {
		panic(&Error{Msg: "missing expression"})
	}
	p := pos(n)
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
			return &bound.Literal{Pos: p, Value: n.Value, Typ: bound.String}
		}
		switch n.ShortTag() {
		case "!!null":
			return &bound.Literal{Pos: p, Typ: bound.Object}
		case "!!bool":
			return &bound.Literal{Pos: p, Value: d.bool(n), Typ: bound.Bool}
		case "!!int":
			return &bound.Literal{Pos: p, Value: d.int(n), Typ: bound.Int}
		}
		switch n.Value {
		case "this":
			if d.this == nil {
				d.fail(n, "this used in a static method")
			}
			return &bound.ThisRef{Pos: p, Typ: d.this}
		case "$":
			if len(d.receivers) == 0 {
				d.fail(n, "$ outside of a conditional access")
			}
			r := *d.receivers[len(d.receivers)-1]
			r.Pos = p
			return &r
		}
		return &bound.LocalRef{Pos: p, Local: d.local(n, n.Value)}

	case yaml.MappingNode:
		key, v := d.single(n)
		return d.exprKey(n, key, v)
	}
	d.fail(n, "expected an expression")
	return nil
}

func (d *decoder) exprs(list []*yaml.Node) []bound.Expr {
	if len(list) == 0 {
		return nil
	}
	exprs := make([]bound.Expr, len(list))
	for i, n := range list {
		exprs[i] = d.expr(n)
	}
	return exprs
}

// operands decodes a sequence of exactly count expressions.
func (d *decoder) operands(n *yaml.Node, count int) []bound.Expr {
	list := d.seq(n)
	if len(list) != count {
		d.fail(n, "expected %d operands, got %d", count, len(list))
	}
	return d.exprs(list)
}

func (d *decoder) exprKey(n *yaml.Node, key string, v *yaml.Node) bound.Expr {
	p := pos(n)
	if op, ok := binaryOps[key]; ok {
		x := d.operands(v, 2)
		return &bound.Binary{Pos: p, Op: op, Left: x[0], Right: x[1], Typ: binaryType(op, x[0].Type(), x[1].Type())}
	}

	switch key {
	case "field":
		return d.fieldAccess(v)

	case "index":
		x := d.operands(v, 2)
		return &bound.ArrayAccess{Pos: p, Array: x[0], Index: x[1]}

	case "call":
		return d.call(v)

	case "new":
		list := d.seq(v)
		if len(list) == 0 {
			d.fail(v, "new without a type")
		}
		return &bound.New{Pos: p, Typ: d.typ(list[0]), Args: d.exprs(list[1:])}

	case "array":
		list := d.seq(v)
		if len(list) == 0 {
			d.fail(v, "array without an element type")
		}
		return &bound.ArrayCreation{Pos: p, Typ: bound.ArrayOf(d.typ(list[0])), Elems: d.exprs(list[1:])}

	case "not":
		return &bound.Unary{Pos: p, Op: bound.Not, Operand: d.expr(v), Typ: bound.Bool}

	case "neg":
		x := d.expr(v)
		return &bound.Unary{Pos: p, Op: bound.Neg, Operand: x, Typ: x.Type()}

	case "hasvalue":
		return &bound.Unary{Pos: p, Op: bound.HasValue, Operand: d.expr(v), Typ: bound.Bool}

	case "unwrap":
		x := d.expr(v)
		t := x.Type()
		if t.IsNullable() {
			t = t.Elem
		}
		return &bound.Unary{Pos: p, Op: bound.GetValueOrDefault, Operand: x, Typ: t}

	case "coalesce":
		x := d.operands(v, 2)
		t := x[0].Type()
		if t.IsNullable() && !x[1].Type().IsNullable() {
			t = x[1].Type()
		}
		return &bound.Coalesce{Pos: p, Left: x[0], Right: x[1], Typ: t}

	case "cond", "refcond":
		x := d.operands(v, 3)
		return &bound.Conditional{Pos: p, Cond: x[0], Consequence: x[1], Alternative: x[2], IsRef: key == "refcond", Typ: x[1].Type()}

	case "assign", "refassign":
		x := d.operands(v, 2)
		return &bound.Assign{Pos: p, Left: x[0], Right: x[1], IsRef: key == "refassign"}

	case "compound":
		list := d.seq(v)
		if len(list) != 3 {
			d.fail(v, "expected an operator and 2 operands")
		}
		op, ok := binaryOps[d.scalar(list[0])]
		if !ok || op.IsComparison() || op.IsShortCircuit() {
			d.fail(list[0], "invalid compound assignment operator %q", list[0].Value)
		}
		return &bound.CompoundAssign{Pos: p, Op: op, Left: d.expr(list[1]), Right: d.expr(list[2])}

	case "convert":
		list := d.seq(v)
		if len(list) != 2 {
			d.fail(v, "expected a type and an operand")
		}
		return &bound.Conversion{Pos: p, Typ: d.typ(list[0]), Operand: d.expr(list[1])}

	case "is":
		list := d.seq(v)
		if len(list) != 2 {
			d.fail(v, "expected an operand and a type")
		}
		return &bound.IsType{Pos: p, Operand: d.expr(list[0]), Target: d.typ(list[1])}

	case "await":
		x := d.expr(v)
		return &bound.Await{Pos: p, Operand: x, Typ: x.Type()}

	case "lambda":
		return d.lambda(v)

	case "invoke":
		list := d.seq(v)
		if len(list) == 0 {
			d.fail(v, "invoke without a function")
		}
		return &bound.Invoke{Pos: p, Func: d.expr(list[0]), Args: d.exprs(list[1:])}

	case "access":
		return d.access(v)

	case "format":
		return d.interpolation(v)

	case "default":
		return &bound.DefaultValue{Pos: p, Typ: d.typ(v)}
	}
	d.fail(n, "unknown expression %q", key)
	return nil
}

// binaryType returns the result type of a binary operator. Arithmetic on a
// nullable operand is lifted.
func binaryType(op bound.BinaryOp, l, r *bound.Type) *bound.Type {
	switch {
	case op.IsComparison(), op.IsShortCircuit():
		return bound.Bool
	case op == bound.Add && (l.Kind == bound.StringType || r.Kind == bound.StringType):
		return bound.String
	case l.Kind == bound.BoolType:
		return bound.Bool
	case l.IsNullable():
		return l
	case r.IsNullable():
		return r
	}
	return l
}

// fieldAccess decodes [receiver, name] or "Type.name" for static fields.
func (d *decoder) fieldAccess(n *yaml.Node) bound.Expr {
	p := pos(n)
	if n.Kind == yaml.ScalarNode {
		i := strings.LastIndexByte(n.Value, '.')
		if i < 0 {
			d.fail(n, "expected Type.field")
		}
		t := d.parseType(n, n.Value[:i])
		f := t.Field(n.Value[i+1:])
		if f == nil || !f.Static {
			d.fail(n, "%s has no static field %s", t, n.Value[i+1:])
		}
		return &bound.FieldAccess{Pos: p, Field: f}
	}
	list := d.seq(n)
	if len(list) != 2 {
		d.fail(n, "expected a receiver and a field name")
	}
	recv := d.expr(list[0])
	name := d.scalar(list[1])
	t := recv.Type()
	if t.IsNullable() {
		t = t.Elem
	}
	f := t.Field(name)
	if f == nil || f.Static {
		d.fail(list[1], "%s has no field %s", t, name)
	}
	return &bound.FieldAccess{Pos: p, Receiver: recv, Field: f}
}

// call decodes [method, args...] for static calls or a mapping with the
// method, the receiver and the arguments. An argument {ref: x} passes x by
// reference.
func (d *decoder) call(n *yaml.Node) bound.Expr {
	c := &bound.Call{Pos: pos(n)}
	var args []*yaml.Node
	var name *yaml.Node
	if n.Kind == yaml.SequenceNode {
		if len(n.Content) == 0 {
			d.fail(n, "call without a method")
		}
		name, args = n.Content[0], n.Content[1:]
	} else {
		f := d.fields(n, "method", "recv", "args")
		if f["method"] == nil {
			d.fail(n, "call without a method")
		}
		name, args = f["method"], d.seq(f["args"])
		if f["recv"] != nil {
			c.Receiver = d.expr(f["recv"])
		}
	}
	c.Method = d.resolveMethod(name)

	hasRef := false
	for _, a := range args {
		if a.Kind == yaml.MappingNode && len(a.Content) == 2 && a.Content[0].Value == "ref" {
			hasRef = true
		}
	}
	for _, a := range args {
		kind := bound.ByValue
		if a.Kind == yaml.MappingNode && len(a.Content) == 2 && a.Content[0].Value == "ref" {
			kind, a = bound.ByRef, a.Content[1]
		}
		c.Args = append(c.Args, d.expr(a))
		if hasRef {
			c.RefKinds = append(c.RefKinds, kind)
		}
	}
	if len(c.Args) != len(c.Method.Params) {
		d.fail(n, "%s expects %d arguments, got %d", c.Method, len(c.Method.Params), len(c.Args))
	}
	return c
}

func (d *decoder) resolveMethod(n *yaml.Node) *bound.Method {
	name := d.scalar(n)
	if id, ok := wellknown.ParseID(name); ok {
		return wellknown.Method(id)
	}
	if m := d.prog.Method(name); m != nil {
		return m
	}
	if m, ok := d.prog.Externs[name]; ok {
		return m
	}
	d.fail(n, "undefined method %s", name)
	return nil
}

// lambda decodes {params, result, async, body}. Lambdas see the locals of
// the enclosing scopes.
func (d *decoder) lambda(n *yaml.Node) bound.Expr {
	f := d.fields(n, "params", "result", "async", "body")
	l := &bound.Lambda{Pos: pos(n), Result: bound.Void, Async: d.bool(f["async"])}
	if f["result"] != nil {
		l.Result = d.typ(f["result"])
	}
	params := d.pushScope()
	for i, pn := range d.seq(f["params"]) {
		p := d.param(pn, i)
		l.Params = append(l.Params, p)
		params.names[p.Name] = p
	}
	loops := d.loops
	d.loops = nil
	l.Body = d.block(f["body"])
	d.loops = loops
	d.popScope()
	return l
}

// access decodes [receiver, access], where "$" in access stands for the
// receiver. Value results are lifted to their nullable form.
func (d *decoder) access(n *yaml.Node) bound.Expr {
	list := d.seq(n)
	if len(list) != 2 {
		d.fail(n, "expected a receiver and an access")
	}
	d.receiverID++
	id := d.receiverID
	recv := d.expr(list[0])
	rt := recv.Type()
	if rt.IsNullable() {
		rt = rt.Elem
	}
	placeholder := &bound.ConditionalReceiver{Pos: pos(n), ID: id, Typ: rt}

	d.receivers = append(d.receivers, placeholder)
	access := d.expr(list[1])
	d.receivers = d.receivers[:len(d.receivers)-1]

	t := access.Type()
	if t.IsValueType() && !t.IsNullable() {
		t = bound.NullableOf(t)
	}
	return &bound.ConditionalAccess{Pos: pos(n), ID: placeholder.ID, Receiver: recv, Access: access, Typ: t}
}

// interpolation decodes a list of parts: quoted strings are literal text,
// {value: x, align: n, format: f} mappings are formatted values with
// options, and any other expression is a value formatted by default.
func (d *decoder) interpolation(n *yaml.Node) bound.Expr {
	e := &bound.Interpolation{Pos: pos(n)}
	for _, pn := range d.seq(n) {
		var part bound.InterpolationPart
		switch {
		case pn.Kind == yaml.ScalarNode && pn.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0:
			part.Text = pn.Value
		case pn.Kind == yaml.MappingNode && len(pn.Content) > 0 && pn.Content[0].Value == "value":
			f := d.fields(pn, "value", "align", "format")
			part.Value = d.expr(f["value"])
			if f["align"] != nil {
				part.Alignment = int(d.int(f["align"]))
			}
			if f["format"] != nil {
				part.Format = d.scalar(f["format"])
			}
		default:
			part.Value = d.expr(pn)
		}
		e.Parts = append(e.Parts, part)
	}
	return e
}
