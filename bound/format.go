package bound

import (
	"fmt"
	"strconv"
	"strings"
)

// Format renders a bound tree as indented pseudo-source. The output is
// meant for humans and golden files; it cannot be parsed back.
func Format(n Node) string {
	var p printer
	switch n := n.(type) {
	case Stmt:
		p.stmt(n)
	case Expr:
		p.expr(n)
	case *Catch:
		p.catch(n)
	case nil:
	default:
		panic("bound: unexpected node " + typeName(n))
	}
	return p.String()
}

// FormatMethod renders a method declaration and its body.
func FormatMethod(m *Method) string {
	var p printer
	if m.Async {
		p.WriteString("async ")
	}
	p.WriteString("func ")
	p.WriteString(m.Name)
	if len(m.TypeParams) > 0 {
		p.WriteByte('[')
		for i, t := range m.TypeParams {
			if i > 0 {
				p.WriteString(", ")
			}
			p.WriteString(t.Name)
		}
		p.WriteByte(']')
	}
	p.params(m.Params)
	if !m.Result.IsVoid() {
		p.WriteByte(' ')
		p.WriteString(m.Result.Name)
	}
	if m.Body != nil {
		p.WriteByte(' ')
		p.stmt(m.Body)
	}
	return p.String()
}

func typeName(n Node) string { return fmt.Sprintf("%T", n) }

type printer struct {
	strings.Builder
	indent int
}

func (p *printer) newline() {
	p.WriteByte('\n')
	for i := 0; i < p.indent; i++ {
		p.WriteByte('\t')
	}
}

func (p *printer) params(params []*Local) {
	p.WriteByte('(')
	for i, l := range params {
		if i > 0 {
			p.WriteString(", ")
		}
		p.local(l)
	}
	p.WriteByte(')')
}

func (p *printer) local(l *Local) {
	if l.RefKind == ByRef {
		p.WriteString("ref ")
	}
	p.WriteString(l.Name)
	p.WriteByte(' ')
	p.WriteString(l.Type.String())
}

func (p *printer) locals(locals []*Local) {
	p.WriteString("var ")
	for i, l := range locals {
		if i > 0 {
			p.WriteString(", ")
		}
		p.local(l)
	}
}

// body prints s as a braced block.
func (p *printer) body(s Stmt) {
	if b, ok := s.(*Block); ok {
		p.stmt(b)
		return
	}
	p.WriteByte('{')
	p.indent++
	p.newline()
	p.stmt(s)
	p.indent--
	p.newline()
	p.WriteByte('}')
}

func (p *printer) stmt(s Stmt) {
	switch s := s.(type) {
	case *Block:
		p.WriteByte('{')
		p.indent++
		if len(s.Locals) > 0 {
			p.newline()
			p.locals(s.Locals)
		}
		for _, stmt := range s.Stmts {
			if l, ok := stmt.(*LabelStmt); ok {
				p.indent--
				p.newline()
				p.WriteString(l.Label.Name)
				p.WriteByte(':')
				p.indent++
				continue
			}
			p.newline()
			p.stmt(stmt)
		}
		p.indent--
		p.newline()
		p.WriteByte('}')
	case *ExprStmt:
		p.expr(s.X)
	case *If:
		p.WriteString("if ")
		p.expr(s.Cond)
		p.WriteByte(' ')
		p.body(s.Then)
		if s.Else != nil {
			p.WriteString(" else ")
			if elif, ok := s.Else.(*If); ok {
				p.stmt(elif)
			} else {
				p.body(s.Else)
			}
		}
	case *Goto:
		p.WriteString("goto ")
		p.WriteString(s.Label.Name)
	case *CondGoto:
		p.WriteString("if ")
		if !s.JumpIfTrue {
			p.WriteString("!(")
			p.expr(s.Cond)
			p.WriteByte(')')
		} else {
			p.expr(s.Cond)
		}
		p.WriteString(" goto ")
		p.WriteString(s.Label.Name)
	case *LabelStmt:
		p.WriteString(s.Label.Name)
		p.WriteByte(':')
	case *Return:
		p.WriteString("return")
		if s.Result != nil {
			p.WriteByte(' ')
			p.expr(s.Result)
		}
	case *Throw:
		p.WriteString("throw")
		if s.X != nil {
			p.WriteByte(' ')
			p.expr(s.X)
		}
	case *Switch:
		p.WriteString("switch ")
		p.expr(s.X)
		p.WriteString(" {")
		for _, c := range s.Cases {
			p.newline()
			p.WriteString("case ")
			p.WriteString(strconv.FormatInt(c.Value, 10))
			p.WriteByte(':')
			p.indent++
			p.newline()
			p.stmt(c.Body)
			p.indent--
		}
		p.newline()
		p.WriteByte('}')
	case *Try:
		p.WriteString("try ")
		p.stmt(s.Body)
		for _, c := range s.Catches {
			p.WriteByte(' ')
			p.catch(c)
		}
		if s.Finally != nil {
			p.WriteString(" finally ")
			p.stmt(s.Finally)
		}
	case *While:
		if len(s.Locals) > 0 {
			p.WriteByte('[')
			p.locals(s.Locals)
			p.WriteString("] ")
		}
		p.WriteString("while ")
		p.expr(s.Cond)
		p.WriteByte(' ')
		p.body(s.Body)
	case *For:
		if len(s.Locals) > 0 {
			p.WriteByte('[')
			p.locals(s.Locals)
			p.WriteString("] ")
		}
		p.WriteString("for ")
		p.inline(s.Init)
		p.WriteString("; ")
		if s.Cond != nil {
			p.expr(s.Cond)
		}
		p.WriteString("; ")
		p.inline(s.Increment)
		p.WriteByte(' ')
		p.body(s.Body)
	case *Lock:
		p.WriteString("lock ")
		p.expr(s.X)
		p.WriteByte(' ')
		p.body(s.Body)
	case *NoOp:
		p.WriteByte(';')
	default:
		panic("bound: unexpected statement " + typeName(s))
	}
}

func (p *printer) inline(stmts []Stmt) {
	for i, s := range stmts {
		if i > 0 {
			p.WriteString(", ")
		}
		p.stmt(s)
	}
}

func (p *printer) catch(c *Catch) {
	p.WriteString("catch ")
	if c.Local != nil || c.Type != nil {
		p.WriteByte('(')
		p.WriteString(c.CatchType().Name)
		if c.Local != nil {
			p.WriteByte(' ')
			p.WriteString(c.Local.Name)
		}
		p.WriteString(") ")
	}
	if c.Filter != nil {
		p.WriteString("when ")
		p.expr(c.Filter)
		p.WriteByte(' ')
	}
	p.stmt(c.Body)
}

func compound(e Expr) bool {
	switch e.(type) {
	case *Binary, *Coalesce, *Conditional, *Assign, *CompoundAssign, *IsType, *Await, *Conversion:
		return true
	}
	return false
}

// operand prints e, parenthesized when it is not a primary expression.
func (p *printer) operand(e Expr) {
	if compound(e) {
		p.WriteByte('(')
		p.expr(e)
		p.WriteByte(')')
		return
	}
	p.expr(e)
}

func (p *printer) args(args []Expr, refs func(int) RefKind) {
	p.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			p.WriteString(", ")
		}
		if refs != nil && refs(i) == ByRef {
			p.WriteString("ref ")
		}
		p.expr(a)
	}
	p.WriteByte(')')
}

func (p *printer) expr(e Expr) {
	switch e := e.(type) {
	case *Literal:
		switch v := e.Value.(type) {
		case nil:
			p.WriteString("null")
		case string:
			p.WriteString(strconv.Quote(v))
		default:
			fmt.Fprint(p, v)
		}
	case *DefaultValue:
		fmt.Fprintf(p, "default(%s)", e.Typ)
	case *LocalRef:
		p.WriteString(e.Local.Name)
	case *ThisRef:
		p.WriteString("this")
	case *FieldAccess:
		if e.Receiver != nil {
			p.operand(e.Receiver)
		} else {
			p.WriteString(e.Field.Owner.Name)
		}
		p.WriteByte('.')
		p.WriteString(e.Field.Name)
	case *ArrayAccess:
		p.operand(e.Array)
		p.WriteByte('[')
		p.expr(e.Index)
		p.WriteByte(']')
	case *Call:
		if e.Receiver != nil {
			p.operand(e.Receiver)
			p.WriteByte('.')
		}
		p.WriteString(e.Method.Name)
		p.args(e.Args, e.RefKind)
	case *New:
		p.WriteString("new ")
		p.WriteString(e.Typ.Name)
		p.args(e.Args, nil)
	case *ArrayCreation:
		p.WriteString("new ")
		p.WriteString(e.Typ.Name)
		p.WriteByte('{')
		for i, x := range e.Elems {
			if i > 0 {
				p.WriteString(", ")
			}
			p.expr(x)
		}
		p.WriteByte('}')
	case *Binary:
		p.operand(e.Left)
		p.WriteByte(' ')
		p.WriteString(e.Op.String())
		p.WriteByte(' ')
		p.operand(e.Right)
	case *Unary:
		switch e.Op {
		case HasValue:
			p.operand(e.Operand)
			p.WriteString(".HasValue")
		case GetValueOrDefault:
			p.operand(e.Operand)
			p.WriteString(".GetValueOrDefault()")
		default:
			p.WriteString(e.Op.String())
			p.operand(e.Operand)
		}
	case *Coalesce:
		p.operand(e.Left)
		p.WriteString(" ?? ")
		p.operand(e.Right)
	case *Conditional:
		if e.IsRef {
			p.WriteString("ref ")
		}
		p.operand(e.Cond)
		p.WriteString(" ? ")
		p.operand(e.Consequence)
		p.WriteString(" : ")
		p.operand(e.Alternative)
	case *Assign:
		p.expr(e.Left)
		if e.IsRef {
			p.WriteString(" = ref ")
		} else {
			p.WriteString(" = ")
		}
		p.expr(e.Right)
	case *CompoundAssign:
		p.expr(e.Left)
		fmt.Fprintf(p, " %s= ", e.Op)
		p.expr(e.Right)
	case *Conversion:
		fmt.Fprintf(p, "(%s)", e.Typ)
		p.operand(e.Operand)
	case *IsType:
		p.operand(e.Operand)
		fmt.Fprintf(p, " is %s", e.Target)
	case *Sequence:
		p.WriteByte('(')
		if len(e.Locals) > 0 {
			p.locals(e.Locals)
			p.WriteString("; ")
		}
		for _, x := range e.SideEffects {
			p.expr(x)
			p.WriteString("; ")
		}
		p.expr(e.Value)
		p.WriteByte(')')
	case *Await:
		p.WriteString("await ")
		p.operand(e.Operand)
	case *Lambda:
		if e.Async {
			p.WriteString("async ")
		}
		p.WriteString("func")
		p.params(e.Params)
		if !e.Result.IsVoid() {
			p.WriteByte(' ')
			p.WriteString(e.Result.Name)
		}
		p.WriteByte(' ')
		p.stmt(e.Body)
	case *Invoke:
		p.operand(e.Func)
		p.args(e.Args, nil)
	case *ConditionalAccess:
		p.operand(e.Receiver)
		fmt.Fprintf(p, "?#%d{", e.ID)
		p.expr(e.Access)
		p.WriteByte('}')
	case *ConditionalReceiver:
		fmt.Fprintf(p, "#%d", e.ID)
	case *LoweredConditionalAccess:
		p.operand(e.Receiver)
		fmt.Fprintf(p, "?#%d{", e.ID)
		p.expr(e.WhenNotNull)
		if e.WhenNull != nil {
			p.WriteString(" : ")
			p.expr(e.WhenNull)
		}
		p.WriteByte('}')
	case *Interpolation:
		p.WriteString(`$"`)
		for _, part := range e.Parts {
			if part.Value == nil {
				p.WriteString(part.Text)
				continue
			}
			p.WriteByte('{')
			p.expr(part.Value)
			if part.Alignment != 0 {
				fmt.Fprintf(p, ",%d", part.Alignment)
			}
			if part.Format != "" {
				p.WriteByte(':')
				p.WriteString(part.Format)
			}
			p.WriteByte('}')
		}
		p.WriteByte('"')
	case *BadExpr:
		p.WriteString("bad")
		p.args(e.Children, nil)
	default:
		panic("bound: unexpected expression " + typeName(e))
	}
}
