package lower

import (
	"fmt"

	"github.com/stealthrocket/lower/bound"
)

// filterPending is the pending catch number recorded by the catch-all that
// replaces catch clauses whose filter awaits. Their filters then run as
// ordinary code after the try statement.
const filterPending = -1

// catches rewrites a try statement (without finally block) having at least
// one catch clause that awaits. The result has the form:
//
//	{
//		var pendingException object, pendingCatch int, <hoisted filter locals>
//		pendingCatch = 0
//		try { ... } catch (T tmp) { pendingException = tmp; pendingCatch = n } ...
//		[if pendingCatch == -1 { <filters in order, else rethrow> }]
//		switch pendingCatch {
//		case n:
//			<moved catch body>
//			goto handled
//		}
//	handled:
//	}
func (r *handlerRewriter) catches(s *bound.Try, fr frames) bound.Stmt {
	f := r.f
	f.Pos = s.Pos
	cf := &catchFrame{
		pendingException: f.Temp(bound.Object, bound.PendingException),
		pendingCatch:     f.Temp(bound.Int, bound.PendingCatch),
	}
	handled := f.NewLabel()

	body := r.block(s.Body, fr)

	// Exceptions reaching a clause whose filter awaits cannot be matched
	// in the handler. That clause and every clause after it are replaced by
	// a single catch-all evaluating their filters in order afterwards.
	split := len(s.Catches)
	for i, c := range s.Catches {
		if r.analysis.filterAwait(c) {
			split = i
			break
		}
	}

	catches := make([]*bound.Catch, 0, split+1)
	for _, c := range s.Catches[:split] {
		if r.analysis.bodyAwait(c) {
			catches = append(catches, r.moveCatch(cf, c, fr, handled))
		} else {
			catches = append(catches, r.trueCatch(c, fr))
		}
	}

	var filters bound.Stmt
	if split < len(s.Catches) {
		f.Pos = s.Catches[split].Pos
		caught := f.Temp(bound.Object, bound.CatchTemp)
		catches = append(catches, &bound.Catch{
			Pos:   f.Pos,
			Local: caught,
			Body: f.Block(nil,
				f.Store(cf.pendingException, f.Local(caught)),
				f.Store(cf.pendingCatch, f.Int(filterPending))),
		})
		filters = r.filterChain(cf, s.Catches[split:], fr, handled)
	}

	f.Pos = s.Pos
	stmts := []bound.Stmt{
		f.Store(cf.pendingCatch, f.Int(0)),
		&bound.Try{Pos: s.Pos, Body: body, Catches: catches},
	}
	if filters != nil {
		stmts = append(stmts, f.If(f.Eq(f.Local(cf.pendingCatch), f.Int(filterPending)), filters, nil))
	}
	cases := make([]*bound.SwitchCase, len(cf.handlers))
	for i, h := range cf.handlers {
		cases[i] = &bound.SwitchCase{Value: int64(i + 1), Body: h}
	}
	stmts = append(stmts, f.Switch(f.Local(cf.pendingCatch), cases...), f.Label(handled))

	locals := append([]*bound.Local{cf.pendingException, cf.pendingCatch}, cf.hoisted...)
	return f.Block(locals, stmts...)
}

// moveCatch moves the body of a catch clause whose filter does not await
// out of the handler, leaving a clause that only records the exception and
// the clause number.
func (r *handlerRewriter) moveCatch(cf *catchFrame, c *bound.Catch, fr frames, handled *bound.Label) *bound.Catch {
	f := r.f
	f.Pos = c.Pos
	ordinal := int64(len(cf.handlers) + 1)
	caught := f.Temp(c.CatchType(), bound.CatchTemp)

	record := f.Assign(f.Local(cf.pendingException), f.Convert(f.Local(caught), bound.Object))
	substitute := map[*bound.Local]*bound.Local{}

	var filter bound.Expr
	var clause *bound.Block
	var locals []*bound.Local
	var prologue []bound.Stmt
	if c.Filter != nil {
		// The filter runs inside the handler and sees the exception through
		// the catch local, which therefore has to outlive the handler.
		effects := []bound.Expr{record}
		if c.Local != nil {
			h := cf.hoist(c.Local)
			substitute[c.Local] = h
			effects = append(effects, f.Assign(f.Local(h), f.Local(caught)))
		}
		filter = f.Sequence(nil, effects, replaceLocals(r.expr(c.Filter), substitute))
		clause = f.Block(nil, f.Store(cf.pendingCatch, f.Int(ordinal)))
	} else {
		clause = f.Block(nil, f.ExprStmt(record), f.Store(cf.pendingCatch, f.Int(ordinal)))
		if c.Local != nil {
			locals = []*bound.Local{c.Local}
			prologue = []bound.Stmt{f.Store(c.Local, f.Convert(f.Local(cf.pendingException), c.CatchType()))}
		}
	}

	cf.handlers = append(cf.handlers, r.handler(cf, c, fr, handled, locals, prologue, substitute))
	return &bound.Catch{Pos: c.Pos, Local: caught, Type: c.Type, Filter: filter, Body: clause}
}

// filterChain builds the code selecting, in order, the first of clauses
// whose type and filter match the pending exception. When none matches,
// the exception is rethrown.
func (r *handlerRewriter) filterChain(cf *catchFrame, clauses []*bound.Catch, fr frames, handled *bound.Label) bound.Stmt {
	f := r.f
	conds := make([]bound.Expr, len(clauses))
	ordinals := make([]int64, len(clauses))

	for i, c := range clauses {
		f.Pos = c.Pos
		ordinals[i] = int64(len(cf.handlers) + 1)
		t := c.CatchType()
		substitute := map[*bound.Local]*bound.Local{}

		var tests []bound.Expr
		if t.Kind != bound.ObjectType {
			tests = append(tests, f.IsType(f.Local(cf.pendingException), t))
		}
		var locals []*bound.Local
		var prologue []bound.Stmt
		if c.Filter != nil {
			filter := r.expr(c.Filter)
			if c.Local != nil {
				h := cf.hoist(c.Local)
				substitute[c.Local] = h
				filter = f.Sequence(nil,
					[]bound.Expr{f.Assign(f.Local(h), f.Convert(f.Local(cf.pendingException), t))},
					replaceLocals(filter, substitute))
			}
			tests = append(tests, filter)
		} else if c.Local != nil {
			locals = []*bound.Local{c.Local}
			prologue = []bound.Stmt{f.Store(c.Local, f.Convert(f.Local(cf.pendingException), t))}
		}

		switch len(tests) {
		case 0:
			conds[i] = f.Bool(true)
		case 1:
			conds[i] = tests[0]
		default:
			conds[i] = f.Binary(bound.AndAlso, tests[0], tests[1])
		}
		cf.handlers = append(cf.handlers, r.handler(cf, c, fr, handled, locals, prologue, substitute))
	}

	chain := r.rethrow(f.Local(cf.pendingException))
	for i := len(clauses) - 1; i >= 0; i-- {
		f.Pos = clauses[i].Pos
		chain = f.If(conds[i], f.Store(cf.pendingCatch, f.Int(ordinals[i])), chain)
	}
	return chain
}

// handler builds the moved body of catch clause c.
func (r *handlerRewriter) handler(cf *catchFrame, c *bound.Catch, fr frames, handled *bound.Label, locals []*bound.Local, prologue []bound.Stmt, substitute map[*bound.Local]*bound.Local) bound.Stmt {
	body := replaceLocals(r.block(c.Body, frames{region: fr.region, catch: cf}), substitute)
	r.f.Pos = c.Pos
	stmts := append(prologue, body, r.f.Goto(handled))
	return r.f.Block(locals, stmts...)
}

// hoist declares the local standing for the catch local l for the whole
// rewritten try statement. Filtered clauses declaring a local of the same
// name and type get distinct names.
func (cf *catchFrame) hoist(l *bound.Local) *bound.Local {
	name := l.Name
	for n := 1; cf.hoisted != nil && cf.conflicts(name, l.Type); n++ {
		name = fmt.Sprintf("%s$%d", l.Name, n)
	}
	h := &bound.Local{Name: name, Type: l.Type, Kind: bound.Synthesized, Synth: bound.FilterLocal}
	cf.hoisted = append(cf.hoisted, h)
	return h
}

func (cf *catchFrame) conflicts(name string, t *bound.Type) bool {
	for _, h := range cf.hoisted {
		if h.Name == name && bound.Identical(h.Type, t) {
			return true
		}
	}
	return false
}

// replaceLocals replaces the references to the keys of m in n by references
// to the matching values.
func replaceLocals[N bound.Node](n N, m map[*bound.Local]*bound.Local) N {
	if len(m) == 0 {
		return n
	}
	return bound.Apply(n, nil, func(node bound.Node) bound.Node {
		if ref, ok := node.(*bound.LocalRef); ok {
			if l, ok := m[ref.Local]; ok {
				return &bound.LocalRef{Pos: ref.Pos, Local: l}
			}
		}
		return node
	}).(N)
}
