package lower

import "github.com/stealthrocket/lower/bound"

// forLoop lowers a for loop to labels and jumps.
//
// When no lambda captures the loop variables, the condition is tested at
// the bottom of the loop:
//
//	{
//		init
//		goto check
//	start:
//		body
//	continue:
//		increment
//	check:
//		if cond goto start
//	break:
//	}
//
// Otherwise every iteration has to see variables of its own. The captured
// variables are declared by a block entered once per iteration, copied in
// from carrier locals and copied back out before the increment, and the
// condition is tested both before the first iteration and at the bottom.
func (r *localRewriter) forLoop(s *bound.For) bound.Stmt {
	f := r.f
	brk, cont := s.Break, s.Continue
	if brk == nil {
		brk = f.NewLabel()
	}
	if cont == nil {
		cont = f.NewLabel()
	}
	start := f.NewLabel()

	captured := capturedLocals(s.Locals, s)
	if len(captured) == 0 {
		check := f.NewLabel()
		var stmts []bound.Stmt
		stmts = append(stmts, s.Init...)
		stmts = append(stmts, f.Goto(check), f.Label(start), s.Body, f.Label(cont))
		stmts = append(stmts, s.Increment...)
		stmts = append(stmts, f.Label(check), loopBack(f, s.Cond, start), f.Label(brk))
		return f.Block(s.Locals, stmts...)
	}

	carriers := map[*bound.Local]*bound.Local{}
	var outer, inner []*bound.Local
	var copyIn, copyOut []bound.Stmt
	for _, l := range s.Locals {
		if !captured[l] {
			outer = append(outer, l)
			continue
		}
		c := f.Temp(l.Type, bound.LoopCopy)
		carriers[l] = c
		outer = append(outer, c)
		inner = append(inner, l)
		copyIn = append(copyIn, f.Store(l, f.Local(c)))
		copyOut = append(copyOut, f.Store(c, f.Local(l)))
	}

	var cond bound.Expr
	if s.Cond != nil {
		cond = replaceLocals(s.Cond, carriers)
	}
	var iteration []bound.Stmt
	iteration = append(iteration, copyIn...)
	iteration = append(iteration, s.Body, f.Label(cont))
	iteration = append(iteration, copyOut...)

	var stmts []bound.Stmt
	for _, init := range s.Init {
		stmts = append(stmts, replaceLocals(init, carriers))
	}
	if cond != nil {
		stmts = append(stmts, f.CondGoto(cond, false, brk))
	}
	stmts = append(stmts, f.Label(start), f.Block(inner, iteration...))
	for _, incr := range s.Increment {
		stmts = append(stmts, replaceLocals(incr, carriers))
	}
	stmts = append(stmts, loopBack(f, cond, start), f.Label(brk))
	return f.Block(outer, stmts...)
}

// while lowers a while loop to labels and jumps. The condition is tested at
// the bottom of the loop, unless a lambda captures the locals the loop
// declares: those are then declared by a block entered once per iteration,
// which has to test the condition first.
func (r *localRewriter) while(s *bound.While) bound.Stmt {
	f := r.f
	brk, cont := s.Break, s.Continue
	if brk == nil {
		brk = f.NewLabel()
	}
	if cont == nil {
		cont = f.NewLabel()
	}

	if len(capturedLocals(s.Locals, s)) > 0 {
		return f.Block(nil,
			f.Label(cont),
			f.Block(s.Locals, f.CondGoto(s.Cond, false, brk), s.Body),
			f.Goto(cont),
			f.Label(brk))
	}

	start := f.NewLabel()
	return f.Block(s.Locals,
		f.Goto(cont),
		f.Label(start),
		s.Body,
		f.Label(cont),
		loopBack(f, s.Cond, start),
		f.Label(brk))
}

func loopBack(f *bound.Factory, cond bound.Expr, start *bound.Label) bound.Stmt {
	if cond == nil {
		return f.Goto(start)
	}
	return f.CondGoto(cond, true, start)
}

// capturedLocals returns the locals among locals that a lambda in n
// refers to.
func capturedLocals(locals []*bound.Local, n bound.Node) map[*bound.Local]bool {
	if len(locals) == 0 {
		return nil
	}
	declared := make(map[*bound.Local]bool, len(locals))
	for _, l := range locals {
		declared[l] = true
	}
	captured := map[*bound.Local]bool{}
	var stack []bound.Node
	depth := 0
	bound.Inspect(n, func(node bound.Node) bool {
		if node == nil {
			if _, ok := stack[len(stack)-1].(*bound.Lambda); ok {
				depth--
			}
			stack = stack[:len(stack)-1]
			return true
		}
		stack = append(stack, node)
		switch node := node.(type) {
		case *bound.Lambda:
			depth++
		case *bound.LocalRef:
			if depth > 0 && declared[node.Local] {
				captured[node.Local] = true
			}
		}
		return true
	})
	return captured
}
