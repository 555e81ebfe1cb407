package lower

import (
	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/diag"
	"github.com/stealthrocket/lower/wellknown"
)

// handlerRewriter moves awaits out of finally blocks, catch bodies and catch
// filters, none of which may suspend.
//
// A try statement whose finally block awaits becomes a region: the try
// block runs inside a catch-all that records the exception in a pending
// local, every jump leaving the region is replaced by a jump to a proxy
// label that records the original destination as a branch number, and the
// finally block runs as ordinary code after the region before the pending
// exception is rethrown or the pending branch is taken.
//
// Catch clauses that await have their body moved after the try statement
// and are selected by a pending catch number recorded by the clause.
type handlerRewriter struct {
	*lowering
	analysis *awaitAnalysis
}

// regionFrame tracks a try block whose finally block awaits. The root frame
// stands for the method (or lambda) body itself.
type regionFrame struct {
	parent *regionFrame
	result *bound.Type

	// labels that jumps may target directly from inside the region.
	labels map[*bound.Label]struct{}

	// proxies of the labels outside the region that are targets of jumps
	// from inside it, in the order the jumps were found.
	proxies map[*bound.Label]*bound.Label
	proxied []*bound.Label

	returnProxy *bound.Label
	returnValue *bound.Local
}

func (r *regionFrame) isRoot() bool { return r.parent == nil }

// catchFrame tracks a try statement whose catch clauses are moved out of
// the exception handler.
type catchFrame struct {
	pendingException *bound.Local
	pendingCatch     *bound.Local
	// handlers moved out of the catch clauses, selected by their index + 1.
	handlers []bound.Stmt
	// locals of filtered catch clauses, declared for the whole statement.
	hoisted []*bound.Local
}

// frames is the context in which a statement is rewritten. It is passed
// down explicitly rather than kept as mutable rewriter state.
type frames struct {
	region *regionFrame
	// catch is the frame of the moved catch body the statement is in, if
	// any. A rethrow there refers to the pending exception.
	catch *catchFrame
}

func (l *lowering) rewriteHandlers(body *bound.Block, result *bound.Type) *bound.Block {
	r := &handlerRewriter{lowering: l, analysis: analyzeAwaits(body)}
	return r.block(body, frames{region: &regionFrame{result: result}})
}

func (r *handlerRewriter) block(b *bound.Block, fr frames) *bound.Block {
	if b == nil {
		return nil
	}
	var stmts []bound.Stmt
	for i, s := range b.Stmts {
		rs := r.stmt(s, fr)
		if rs != s && stmts == nil {
			stmts = make([]bound.Stmt, len(b.Stmts))
			copy(stmts, b.Stmts[:i])
		}
		if stmts != nil {
			stmts[i] = rs
		}
	}
	if stmts == nil {
		return b
	}
	c := *b
	c.Stmts = stmts
	return &c
}

func (r *handlerRewriter) stmtOrNil(s bound.Stmt, fr frames) bound.Stmt {
	if s == nil {
		return nil
	}
	return r.stmt(s, fr)
}

func (r *handlerRewriter) stmt(s bound.Stmt, fr frames) bound.Stmt {
	r.f.Pos = s.Position()

	switch s := s.(type) {
	case *bound.Block:
		return r.block(s, fr)

	case *bound.ExprStmt:
		if x := r.expr(s.X); x != s.X {
			c := *s
			c.X = x
			return &c
		}

	case *bound.If:
		cond, then, els := r.expr(s.Cond), r.stmt(s.Then, fr), r.stmtOrNil(s.Else, fr)
		if cond != s.Cond || then != s.Then || els != s.Else {
			c := *s
			c.Cond, c.Then, c.Else = cond, then, els
			return &c
		}

	case *bound.Goto:
		if l := r.branch(fr.region, s.Label); l != s.Label {
			r.f.Pos = s.Pos
			return r.f.Goto(l)
		}

	case *bound.CondGoto:
		if r.leaves(fr.region, s.Label) {
			diag.Invariant(s.Pos, "conditional jump to %s leaves a try block whose finally block awaits", s.Label)
		}
		if cond := r.expr(s.Cond); cond != s.Cond {
			c := *s
			c.Cond = cond
			return &c
		}

	case *bound.LabelStmt, *bound.NoOp:

	case *bound.Return:
		x := r.expr(s.Result)
		if !fr.region.isRoot() {
			r.f.Pos = s.Pos
			return r.pendReturn(fr.region, x)
		}
		if x != s.Result {
			c := *s
			c.Result = x
			return &c
		}

	case *bound.Throw:
		if s.X == nil && fr.catch != nil {
			return r.rethrow(r.f.Local(fr.catch.pendingException))
		}
		if x := r.expr(s.X); x != s.X {
			c := *s
			c.X = x
			return &c
		}

	case *bound.Switch:
		x := r.expr(s.X)
		var cases []*bound.SwitchCase
		for i, sc := range s.Cases {
			body := r.stmt(sc.Body, fr)
			if body != sc.Body && cases == nil {
				cases = make([]*bound.SwitchCase, len(s.Cases))
				copy(cases, s.Cases)
			}
			if body != sc.Body {
				cases[i] = &bound.SwitchCase{Value: sc.Value, Body: body}
			}
		}
		if x != s.X || cases != nil {
			c := *s
			c.X = x
			if cases != nil {
				c.Cases = cases
			}
			return &c
		}

	case *bound.Try:
		return r.try(s, fr)

	case *bound.While:
		cond, body := r.expr(s.Cond), r.stmt(s.Body, fr)
		if cond != s.Cond || body != s.Body {
			c := *s
			c.Cond, c.Body = cond, body
			return &c
		}

	case *bound.For, *bound.Lock:
		diag.Invariant(s.Position(), "%T must be lowered before rewriting exception handlers", s)

	default:
		diag.Invariant(s.Position(), "unexpected statement %T", s)
	}
	return s
}

// expr rewrites the bodies of the lambdas found in e, each in a root frame
// of its own.
func (r *handlerRewriter) expr(e bound.Expr) bound.Expr {
	if e == nil {
		return nil
	}
	return bound.ApplyExpr(e,
		func(n bound.Node) bool {
			_, ok := n.(*bound.Lambda)
			return !ok
		},
		func(n bound.Node) bound.Node {
			if l, ok := n.(*bound.Lambda); ok {
				if body := r.block(l.Body, frames{region: &regionFrame{result: l.Result}}); body != l.Body {
					c := *l
					c.Body = body
					return &c
				}
			}
			return n
		})
}

func (r *handlerRewriter) try(s *bound.Try, fr frames) bound.Stmt {
	if labels, ok := r.analysis.regions[s]; ok {
		return r.region(s, labels, fr)
	}

	if r.analysis.rewritesCatches(s) {
		if s.Finally == nil {
			return r.catches(s, fr)
		}
		// The finally block does not await: keep it as an actual finally
		// block around the rewritten try-catch.
		inner := r.catches(&bound.Try{Pos: s.Pos, Body: s.Body, Catches: s.Catches}, fr)
		finally := r.block(s.Finally, fr)
		r.f.Pos = s.Pos
		return &bound.Try{Pos: s.Pos, Body: r.f.Block(nil, inner), Finally: finally}
	}

	body := r.block(s.Body, fr)
	var catches []*bound.Catch
	for i, c := range s.Catches {
		rc := r.trueCatch(c, fr)
		if rc != c && catches == nil {
			catches = make([]*bound.Catch, len(s.Catches))
			copy(catches, s.Catches)
		}
		if catches != nil {
			catches[i] = rc
		}
	}
	finally := r.block(s.Finally, fr)
	if body == s.Body && catches == nil && finally == s.Finally {
		return s
	}
	c := *s
	c.Body, c.Finally = body, finally
	if catches != nil {
		c.Catches = catches
	}
	return &c
}

// trueCatch rewrites a catch clause that stays an exception handler.
func (r *handlerRewriter) trueCatch(c *bound.Catch, fr frames) *bound.Catch {
	fr.catch = nil
	filter, body := r.expr(c.Filter), r.block(c.Body, fr)
	if filter == c.Filter && body == c.Body {
		return c
	}
	rc := *c
	rc.Filter, rc.Body = filter, body
	return &rc
}

// region rewrites a try statement whose finally block awaits.
func (r *handlerRewriter) region(s *bound.Try, labels map[*bound.Label]struct{}, fr frames) bound.Stmt {
	frame := &regionFrame{
		parent: fr.region,
		result: fr.region.result,
		labels: labels,
	}
	inner := frames{region: frame, catch: fr.catch}

	var body bound.Stmt
	if len(s.Catches) > 0 {
		body = r.try(&bound.Try{Pos: s.Pos, Body: s.Body, Catches: s.Catches}, inner)
	} else {
		body = r.block(s.Body, inner)
	}

	f := r.f
	f.Pos = s.Pos
	// Jumps out of the body use the proxies of the enclosing region before
	// the jumps of the finally block do.
	exits := make([]bound.Stmt, len(frame.proxied))
	for i, target := range frame.proxied {
		exits[i] = f.Goto(r.branch(fr.region, target))
	}
	var exitReturn bound.Stmt
	if frame.returnProxy != nil {
		var value bound.Expr
		if frame.returnValue != nil {
			value = f.Local(frame.returnValue)
		}
		exitReturn = r.unpendReturn(fr.region, value)
	}

	finally := r.block(s.Finally, fr)
	f.Pos = s.Pos
	pendingException := f.Temp(bound.Object, bound.PendingException)
	pendingBranch := f.Temp(bound.Int, bound.PendingBranch)
	finallyLabel := f.NewLabel()

	tryStmts := []bound.Stmt{body, f.Goto(finallyLabel)}
	var cases []*bound.SwitchCase
	for i, target := range frame.proxied {
		n := int64(i + 1)
		tryStmts = append(tryStmts,
			f.Label(frame.proxies[target]),
			f.Store(pendingBranch, f.Int(n)),
			f.Goto(finallyLabel))
		cases = append(cases, &bound.SwitchCase{Value: n, Body: exits[i]})
	}
	if frame.returnProxy != nil {
		n := int64(len(frame.proxied) + 1)
		tryStmts = append(tryStmts,
			f.Label(frame.returnProxy),
			f.Store(pendingBranch, f.Int(n)),
			f.Goto(finallyLabel))
		cases = append(cases, &bound.SwitchCase{Value: n, Body: exitReturn})
	}

	caught := f.Temp(bound.Object, bound.CatchTemp)
	catchAll := &bound.Catch{
		Pos:   s.Pos,
		Local: caught,
		Body:  f.Block(nil, f.Store(pendingException, f.Local(caught))),
	}

	var after []bound.Stmt
	if finally != nil {
		after = append(after, finally)
	}
	after = append(after, f.If(
		f.Ne(f.Local(pendingException), f.Null(bound.Object)),
		r.rethrow(f.Local(pendingException)),
		nil))
	if len(cases) > 0 {
		after = append(after, f.Switch(f.Local(pendingBranch), cases...))
	}

	locals := []*bound.Local{pendingException, pendingBranch}
	if frame.returnValue != nil {
		locals = append(locals, frame.returnValue)
	}
	return f.Block(locals,
		f.Store(pendingException, f.Null(bound.Object)),
		f.Store(pendingBranch, f.Int(0)),
		&bound.Try{Pos: s.Pos, Body: f.Block(nil, tryStmts...), Catches: []*bound.Catch{catchAll}},
		f.Label(finallyLabel),
		f.Block(nil, after...))
}

// leaves reports whether a jump to l from inside frame leaves the region.
func (r *handlerRewriter) leaves(frame *regionFrame, l *bound.Label) bool {
	if frame.isRoot() {
		return false
	}
	_, ok := frame.labels[l]
	return !ok
}

// branch returns the label a jump to l from inside frame has to target.
func (r *handlerRewriter) branch(frame *regionFrame, l *bound.Label) *bound.Label {
	if !r.leaves(frame, l) {
		return l
	}
	if p, ok := frame.proxies[l]; ok {
		return p
	}
	if frame.proxies == nil {
		frame.proxies = map[*bound.Label]*bound.Label{}
	}
	p := r.f.NewLabel()
	frame.proxies[l] = p
	frame.proxied = append(frame.proxied, l)
	return p
}

// pendReturn records the return value and jumps to the return proxy of
// frame.
func (r *handlerRewriter) pendReturn(frame *regionFrame, value bound.Expr) bound.Stmt {
	f := r.f
	if frame.returnProxy == nil {
		frame.returnProxy = f.NewLabel()
	}
	if value == nil {
		return f.Goto(frame.returnProxy)
	}
	if frame.returnValue == nil {
		frame.returnValue = f.Temp(frame.result, bound.ReturnValue)
	}
	return f.Block(nil,
		f.Store(frame.returnValue, value),
		f.Goto(frame.returnProxy))
}

// unpendReturn completes a return recorded by a nested region.
func (r *handlerRewriter) unpendReturn(frame *regionFrame, value bound.Expr) bound.Stmt {
	if frame.isRoot() {
		return r.f.Return(value)
	}
	return r.pendReturn(frame, value)
}

// rethrow rethrows the exception held by ex, preserving its stack trace
// when the runtime can capture it.
func (r *handlerRewriter) rethrow(ex bound.Expr) bound.Stmt {
	f := r.f
	capture, ok := r.member(wellknown.ExceptionDispatchInfoCapture)
	if !ok {
		return f.Throw(ex)
	}
	throw, ok := r.member(wellknown.ExceptionDispatchInfoThrow)
	if !ok {
		return f.Throw(ex)
	}
	info := f.Call(nil, capture, f.Convert(ex, bound.Exception))
	return f.If(
		f.IsType(ex, bound.Exception),
		f.ExprStmt(f.Call(info, throw)),
		f.Throw(ex))
}
