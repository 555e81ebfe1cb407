package bound

// Inspect traverses a bound tree in depth-first order. It starts by calling
// f(n); if f returns true, Inspect invokes f recursively for each of the
// non-nil children of n, followed by a call of f(nil).
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	eachChild(n, func(c Node) { Inspect(c, f) })
	f(nil)
}

func eachChild(n Node, fn func(Node)) {
	expr := func(e Expr) {
		if e != nil {
			fn(e)
		}
	}
	exprs := func(list []Expr) {
		for _, e := range list {
			expr(e)
		}
	}
	stmt := func(s Stmt) {
		if s != nil {
			fn(s)
		}
	}
	stmts := func(list []Stmt) {
		for _, s := range list {
			stmt(s)
		}
	}
	block := func(b *Block) {
		if b != nil {
			fn(b)
		}
	}

	switch n := n.(type) {
	case *Literal, *DefaultValue, *LocalRef, *ThisRef, *ConditionalReceiver,
		*Goto, *LabelStmt, *NoOp:
	case *FieldAccess:
		expr(n.Receiver)
	case *ArrayAccess:
		expr(n.Array)
		expr(n.Index)
	case *Call:
		expr(n.Receiver)
		exprs(n.Args)
	case *New:
		exprs(n.Args)
	case *ArrayCreation:
		exprs(n.Elems)
	case *Binary:
		expr(n.Left)
		expr(n.Right)
	case *Unary:
		expr(n.Operand)
	case *Coalesce:
		expr(n.Left)
		expr(n.Right)
	case *Conditional:
		expr(n.Cond)
		expr(n.Consequence)
		expr(n.Alternative)
	case *Assign:
		expr(n.Left)
		expr(n.Right)
	case *CompoundAssign:
		expr(n.Left)
		expr(n.Right)
	case *Conversion:
		expr(n.Operand)
	case *IsType:
		expr(n.Operand)
	case *Sequence:
		exprs(n.SideEffects)
		expr(n.Value)
	case *Await:
		expr(n.Operand)
	case *Lambda:
		block(n.Body)
	case *Invoke:
		expr(n.Func)
		exprs(n.Args)
	case *ConditionalAccess:
		expr(n.Receiver)
		expr(n.Access)
	case *LoweredConditionalAccess:
		expr(n.Receiver)
		expr(n.WhenNotNull)
		expr(n.WhenNull)
	case *Interpolation:
		for _, p := range n.Parts {
			expr(p.Value)
		}
	case *BadExpr:
		exprs(n.Children)
	case *Block:
		stmts(n.Stmts)
	case *ExprStmt:
		expr(n.X)
	case *If:
		expr(n.Cond)
		stmt(n.Then)
		stmt(n.Else)
	case *CondGoto:
		expr(n.Cond)
	case *Return:
		expr(n.Result)
	case *Throw:
		expr(n.X)
	case *Switch:
		expr(n.X)
		for _, c := range n.Cases {
			stmt(c.Body)
		}
	case *Try:
		block(n.Body)
		for _, c := range n.Catches {
			fn(c)
		}
		block(n.Finally)
	case *Catch:
		expr(n.Filter)
		block(n.Body)
	case *While:
		expr(n.Cond)
		stmt(n.Body)
	case *For:
		stmts(n.Init)
		expr(n.Cond)
		stmts(n.Increment)
		stmt(n.Body)
	case *Lock:
		expr(n.X)
		stmt(n.Body)
	default:
		panic("bound: unexpected node " + typeName(n))
	}
}

// Apply rewrites a bound tree bottom-up.
//
// For every node, pre is called first; when it returns false the children
// of the node are left untouched. The children are rewritten next, and the
// node is rebuilt if any of them changed. post is then called with the
// (possibly rebuilt) node and its result replaces the node in the parent.
// Either function may be nil.
//
// A Block must be replaced by a Block and a Catch by a Catch.
func Apply(n Node, pre func(Node) bool, post func(Node) Node) Node {
	if n == nil {
		return nil
	}
	a := &applier{pre: pre, post: post}
	return a.node(n)
}

// ApplyExpr is Apply for expressions.
func ApplyExpr(e Expr, pre func(Node) bool, post func(Node) Node) Expr {
	a := &applier{pre: pre, post: post}
	return a.expr(e)
}

// ApplyStmt is Apply for statements.
func ApplyStmt(s Stmt, pre func(Node) bool, post func(Node) Node) Stmt {
	a := &applier{pre: pre, post: post}
	return a.stmt(s)
}

// ApplyBlock is Apply for blocks.
func ApplyBlock(b *Block, pre func(Node) bool, post func(Node) Node) *Block {
	a := &applier{pre: pre, post: post}
	return a.block(b)
}

type applier struct {
	pre  func(Node) bool
	post func(Node) Node
}

func (a *applier) node(n Node) Node {
	if a.pre == nil || a.pre(n) {
		n = a.children(n)
	}
	if a.post != nil {
		n = a.post(n)
	}
	return n
}

func (a *applier) expr(e Expr) Expr {
	if e == nil {
		return nil
	}
	return a.node(e).(Expr)
}

func (a *applier) stmt(s Stmt) Stmt {
	if s == nil {
		return nil
	}
	return a.node(s).(Stmt)
}

func (a *applier) block(b *Block) *Block {
	if b == nil {
		return nil
	}
	return a.node(b).(*Block)
}

func (a *applier) exprs(list []Expr) []Expr {
	var out []Expr
	for i, e := range list {
		r := a.expr(e)
		if r != e && out == nil {
			out = make([]Expr, len(list))
			copy(out, list[:i])
		}
		if out != nil {
			out[i] = r
		}
	}
	if out == nil {
		return list
	}
	return out
}

func (a *applier) stmts(list []Stmt) []Stmt {
	var out []Stmt
	for i, s := range list {
		r := a.stmt(s)
		if r != s && out == nil {
			out = make([]Stmt, len(list))
			copy(out, list[:i])
		}
		if out != nil {
			out[i] = r
		}
	}
	if out == nil {
		return list
	}
	return out
}

func sameExprs(a, b []Expr) bool { return len(a) == 0 || &a[0] == &b[0] }
func sameStmts(a, b []Stmt) bool { return len(a) == 0 || &a[0] == &b[0] }

func (a *applier) children(n Node) Node {
	switch n := n.(type) {
	case *Literal, *DefaultValue, *LocalRef, *ThisRef, *ConditionalReceiver,
		*Goto, *LabelStmt, *NoOp:
		return n

	case *FieldAccess:
		if r := a.expr(n.Receiver); r != n.Receiver {
			c := *n
			c.Receiver = r
			return &c
		}
	case *ArrayAccess:
		arr, idx := a.expr(n.Array), a.expr(n.Index)
		if arr != n.Array || idx != n.Index {
			c := *n
			c.Array, c.Index = arr, idx
			return &c
		}
	case *Call:
		recv, args := a.expr(n.Receiver), a.exprs(n.Args)
		if recv != n.Receiver || !sameExprs(args, n.Args) {
			c := *n
			c.Receiver, c.Args = recv, args
			return &c
		}
	case *New:
		if args := a.exprs(n.Args); !sameExprs(args, n.Args) {
			c := *n
			c.Args = args
			return &c
		}
	case *ArrayCreation:
		if elems := a.exprs(n.Elems); !sameExprs(elems, n.Elems) {
			c := *n
			c.Elems = elems
			return &c
		}
	case *Binary:
		l, r := a.expr(n.Left), a.expr(n.Right)
		if l != n.Left || r != n.Right {
			c := *n
			c.Left, c.Right = l, r
			return &c
		}
	case *Unary:
		if x := a.expr(n.Operand); x != n.Operand {
			c := *n
			c.Operand = x
			return &c
		}
	case *Coalesce:
		l, r := a.expr(n.Left), a.expr(n.Right)
		if l != n.Left || r != n.Right {
			c := *n
			c.Left, c.Right = l, r
			return &c
		}
	case *Conditional:
		cond, cons, alt := a.expr(n.Cond), a.expr(n.Consequence), a.expr(n.Alternative)
		if cond != n.Cond || cons != n.Consequence || alt != n.Alternative {
			c := *n
			c.Cond, c.Consequence, c.Alternative = cond, cons, alt
			return &c
		}
	case *Assign:
		l, r := a.expr(n.Left), a.expr(n.Right)
		if l != n.Left || r != n.Right {
			c := *n
			c.Left, c.Right = l, r
			return &c
		}
	case *CompoundAssign:
		l, r := a.expr(n.Left), a.expr(n.Right)
		if l != n.Left || r != n.Right {
			c := *n
			c.Left, c.Right = l, r
			return &c
		}
	case *Conversion:
		if x := a.expr(n.Operand); x != n.Operand {
			c := *n
			c.Operand = x
			return &c
		}
	case *IsType:
		if x := a.expr(n.Operand); x != n.Operand {
			c := *n
			c.Operand = x
			return &c
		}
	case *Sequence:
		effects, value := a.exprs(n.SideEffects), a.expr(n.Value)
		if !sameExprs(effects, n.SideEffects) || value != n.Value {
			c := *n
			c.SideEffects, c.Value = effects, value
			return &c
		}
	case *Await:
		if x := a.expr(n.Operand); x != n.Operand {
			c := *n
			c.Operand = x
			return &c
		}
	case *Lambda:
		if body := a.block(n.Body); body != n.Body {
			c := *n
			c.Body = body
			return &c
		}
	case *Invoke:
		fn, args := a.expr(n.Func), a.exprs(n.Args)
		if fn != n.Func || !sameExprs(args, n.Args) {
			c := *n
			c.Func, c.Args = fn, args
			return &c
		}
	case *ConditionalAccess:
		recv, access := a.expr(n.Receiver), a.expr(n.Access)
		if recv != n.Receiver || access != n.Access {
			c := *n
			c.Receiver, c.Access = recv, access
			return &c
		}
	case *LoweredConditionalAccess:
		recv, notNull, null := a.expr(n.Receiver), a.expr(n.WhenNotNull), a.expr(n.WhenNull)
		if recv != n.Receiver || notNull != n.WhenNotNull || null != n.WhenNull {
			c := *n
			c.Receiver, c.WhenNotNull, c.WhenNull = recv, notNull, null
			return &c
		}
	case *Interpolation:
		var parts []InterpolationPart
		for i, p := range n.Parts {
			v := a.expr(p.Value)
			if v != p.Value && parts == nil {
				parts = make([]InterpolationPart, len(n.Parts))
				copy(parts, n.Parts)
			}
			if parts != nil {
				parts[i].Value = v
			}
		}
		if parts != nil {
			c := *n
			c.Parts = parts
			return &c
		}
	case *BadExpr:
		if children := a.exprs(n.Children); !sameExprs(children, n.Children) {
			c := *n
			c.Children = children
			return &c
		}

	case *Block:
		if stmts := a.stmts(n.Stmts); !sameStmts(stmts, n.Stmts) {
			c := *n
			c.Stmts = stmts
			return &c
		}
	case *ExprStmt:
		if x := a.expr(n.X); x != n.X {
			c := *n
			c.X = x
			return &c
		}
	case *If:
		cond, then, els := a.expr(n.Cond), a.stmt(n.Then), a.stmt(n.Else)
		if cond != n.Cond || then != n.Then || els != n.Else {
			c := *n
			c.Cond, c.Then, c.Else = cond, then, els
			return &c
		}
	case *CondGoto:
		if cond := a.expr(n.Cond); cond != n.Cond {
			c := *n
			c.Cond = cond
			return &c
		}
	case *Return:
		if x := a.expr(n.Result); x != n.Result {
			c := *n
			c.Result = x
			return &c
		}
	case *Throw:
		if x := a.expr(n.X); x != n.X {
			c := *n
			c.X = x
			return &c
		}
	case *Switch:
		x := a.expr(n.X)
		var cases []*SwitchCase
		for i, sc := range n.Cases {
			body := a.stmt(sc.Body)
			if body != sc.Body && cases == nil {
				cases = make([]*SwitchCase, len(n.Cases))
				copy(cases, n.Cases)
			}
			if cases != nil && body != sc.Body {
				cases[i] = &SwitchCase{Value: sc.Value, Body: body}
			}
		}
		if x != n.X || cases != nil {
			c := *n
			c.X = x
			if cases != nil {
				c.Cases = cases
			}
			return &c
		}
	case *Try:
		body := a.block(n.Body)
		var catches []*Catch
		for i, cc := range n.Catches {
			r := a.node(cc).(*Catch)
			if r != cc && catches == nil {
				catches = make([]*Catch, len(n.Catches))
				copy(catches, n.Catches)
			}
			if catches != nil {
				catches[i] = r
			}
		}
		finally := a.block(n.Finally)
		if body != n.Body || catches != nil || finally != n.Finally {
			c := *n
			c.Body, c.Finally = body, finally
			if catches != nil {
				c.Catches = catches
			}
			return &c
		}
	case *Catch:
		filter, body := a.expr(n.Filter), a.block(n.Body)
		if filter != n.Filter || body != n.Body {
			c := *n
			c.Filter, c.Body = filter, body
			return &c
		}
	case *While:
		cond, body := a.expr(n.Cond), a.stmt(n.Body)
		if cond != n.Cond || body != n.Body {
			c := *n
			c.Cond, c.Body = cond, body
			return &c
		}
	case *For:
		init, cond, incr, body := a.stmts(n.Init), a.expr(n.Cond), a.stmts(n.Increment), a.stmt(n.Body)
		if !sameStmts(init, n.Init) || cond != n.Cond || !sameStmts(incr, n.Increment) || body != n.Body {
			c := *n
			c.Init, c.Cond, c.Increment, c.Body = init, cond, incr, body
			return &c
		}
	case *Lock:
		x, body := a.expr(n.X), a.stmt(n.Body)
		if x != n.X || body != n.Body {
			c := *n
			c.X, c.Body = x, body
			return &c
		}
	default:
		panic("bound: unexpected node " + typeName(n))
	}
	return n
}
