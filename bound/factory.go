package bound

import "strconv"

// Factory creates synthesized symbols and nodes. Every node it builds is
// attributed to Pos, which passes update as they move through the tree.
//
// A Factory numbers temporaries and labels sequentially, so the names it
// produces are unique within the method it is used for and deterministic
// from one compilation to the next.
type Factory struct {
	Pos Pos

	vars      int
	labels    int
	receivers int
}

// Temp declares a new synthesized local.
func (f *Factory) Temp(t *Type, kind SynthesizedKind) *Local {
	name := "_v" + strconv.Itoa(f.vars)
	f.vars++
	return &Local{Name: name, Type: t, Kind: Synthesized, Synth: kind}
}

// RefTemp declares a new synthesized by-reference local.
func (f *Factory) RefTemp(t *Type, kind SynthesizedKind) *Local {
	l := f.Temp(t, kind)
	l.RefKind = ByRef
	return l
}

// NewLabel declares a new synthesized label.
func (f *Factory) NewLabel() *Label {
	name := "_l" + strconv.Itoa(f.labels)
	f.labels++
	return &Label{Name: name}
}

// ReceiverID allocates the identifier tying a ConditionalAccess to its
// ConditionalReceiver placeholders.
func (f *Factory) ReceiverID() int {
	f.receivers++
	return f.receivers
}

func (f *Factory) Local(l *Local) *LocalRef { return &LocalRef{Pos: f.Pos, Local: l} }

func (f *Factory) Int(v int64) *Literal { return &Literal{Pos: f.Pos, Value: v, Typ: Int} }

func (f *Factory) Bool(v bool) *Literal { return &Literal{Pos: f.Pos, Value: v, Typ: Bool} }

func (f *Factory) String(v string) *Literal { return &Literal{Pos: f.Pos, Value: v, Typ: String} }

func (f *Factory) Null(t *Type) *Literal {
	if t == nil {
		t = Object
	}
	return &Literal{Pos: f.Pos, Typ: t}
}

func (f *Factory) Default(t *Type) *DefaultValue { return &DefaultValue{Pos: f.Pos, Typ: t} }

func (f *Factory) Assign(left, right Expr) *Assign {
	return &Assign{Pos: f.Pos, Left: left, Right: right}
}

// AssignRef rebinds the by-reference local l to the variable designated by
// target.
func (f *Factory) AssignRef(l *Local, target Expr) *Assign {
	return &Assign{Pos: f.Pos, Left: f.Local(l), Right: target, IsRef: true}
}

// Store is the statement l = x.
func (f *Factory) Store(l *Local, x Expr) *ExprStmt {
	return f.ExprStmt(f.Assign(f.Local(l), x))
}

func (f *Factory) ExprStmt(x Expr) *ExprStmt { return &ExprStmt{Pos: f.Pos, X: x} }

func (f *Factory) Block(locals []*Local, stmts ...Stmt) *Block {
	return &Block{Pos: f.Pos, Locals: locals, Stmts: stmts}
}

// If builds a conditional statement; els may be nil.
func (f *Factory) If(cond Expr, then Stmt, els Stmt) *If {
	return &If{Pos: f.Pos, Cond: cond, Then: then, Else: els}
}

func (f *Factory) Goto(l *Label) *Goto { return &Goto{Pos: f.Pos, Label: l} }

func (f *Factory) CondGoto(cond Expr, jumpIfTrue bool, l *Label) *CondGoto {
	return &CondGoto{Pos: f.Pos, Cond: cond, JumpIfTrue: jumpIfTrue, Label: l}
}

func (f *Factory) Label(l *Label) *LabelStmt { return &LabelStmt{Pos: f.Pos, Label: l} }

func (f *Factory) Return(x Expr) *Return { return &Return{Pos: f.Pos, Result: x} }

func (f *Factory) Throw(x Expr) *Throw { return &Throw{Pos: f.Pos, X: x} }

func (f *Factory) Switch(x Expr, cases ...*SwitchCase) *Switch {
	return &Switch{Pos: f.Pos, X: x, Cases: cases}
}

func (f *Factory) Binary(op BinaryOp, left, right Expr) *Binary {
	t := left.Type()
	if op.IsComparison() || op.IsShortCircuit() {
		t = Bool
	}
	return &Binary{Pos: f.Pos, Op: op, Left: left, Right: right, Typ: t}
}

func (f *Factory) Eq(left, right Expr) *Binary { return f.Binary(Eq, left, right) }

func (f *Factory) Ne(left, right Expr) *Binary { return f.Binary(Ne, left, right) }

func (f *Factory) Not(x Expr) *Unary { return &Unary{Pos: f.Pos, Op: Not, Operand: x, Typ: Bool} }

func (f *Factory) HasValue(x Expr) *Unary {
	return &Unary{Pos: f.Pos, Op: HasValue, Operand: x, Typ: Bool}
}

func (f *Factory) GetValueOrDefault(x Expr) *Unary {
	return &Unary{Pos: f.Pos, Op: GetValueOrDefault, Operand: x, Typ: x.Type().Elem}
}

// IsNotNull tests x against null, boxing type parameters so that value type
// instantiations always test true.
func (f *Factory) IsNotNull(x Expr) Expr {
	t := x.Type()
	switch {
	case t.IsNullable():
		return f.HasValue(x)
	case t.IsTypeParam():
		return f.Ne(f.Convert(x, Object), f.Null(Object))
	default:
		return f.Ne(x, f.Null(t))
	}
}

// Convert converts x to t, returning x unchanged when it already has type t.
func (f *Factory) Convert(x Expr, t *Type) Expr {
	if Identical(x.Type(), t) {
		return x
	}
	return &Conversion{Pos: f.Pos, Operand: x, Typ: t}
}

func (f *Factory) IsType(x Expr, t *Type) *IsType {
	return &IsType{Pos: f.Pos, Operand: x, Target: t}
}

func (f *Factory) Call(recv Expr, m *Method, args ...Expr) *Call {
	return &Call{Pos: f.Pos, Receiver: recv, Method: m, Args: args}
}

func (f *Factory) Sequence(locals []*Local, sideEffects []Expr, value Expr) *Sequence {
	return &Sequence{Pos: f.Pos, Locals: locals, SideEffects: sideEffects, Value: value}
}

func (f *Factory) Conditional(cond, cons, alt Expr, t *Type) *Conditional {
	return &Conditional{Pos: f.Pos, Cond: cond, Consequence: cons, Alternative: alt, Typ: t}
}

func (f *Factory) FieldAccess(recv Expr, field *Field) *FieldAccess {
	return &FieldAccess{Pos: f.Pos, Receiver: recv, Field: field}
}

func (f *Factory) ArrayAccess(arr, index Expr) *ArrayAccess {
	return &ArrayAccess{Pos: f.Pos, Array: arr, Index: index}
}
