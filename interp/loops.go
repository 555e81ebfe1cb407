package interp

import "github.com/stealthrocket/lower/bound"

// while evaluates a while loop. The locals of the loop are fresh on every
// iteration.
func (m *machine) while(s *bound.While) completion {
	for {
		if c, exit := m.whileIteration(s); exit {
			return c
		}
	}
}

func (m *machine) whileIteration(s *bound.While) (completion, bool) {
	m.push(s.Locals)
	defer m.pop()
	if !m.cond(s.Cond) {
		return completion{}, true
	}
	return m.loopBody(s.Body, s.Break, s.Continue)
}

// forLoop evaluates a for loop. Every iteration has its own copy of the
// loop variables, made before the increment statements run.
func (m *machine) forLoop(s *bound.For) completion {
	parent := m.scope
	m.push(s.Locals)
	defer func() { m.scope = parent }()

	for _, st := range s.Init {
		if c := m.stmt(st); c.kind != normal {
			return c
		}
	}
	for {
		if s.Cond != nil && !m.cond(s.Cond) {
			return completion{}
		}
		if c, exit := m.loopBody(s.Body, s.Break, s.Continue); exit {
			return c
		}

		next := &scope{parent: parent, vars: make(map[*bound.Local]Location, len(m.scope.vars))}
		for l, loc := range m.scope.vars {
			if l.RefKind == bound.ByRef || loc == nil {
				next.vars[l] = loc
				continue
			}
			next.vars[l] = &cell{v: copyValue(loc.Load())}
		}
		m.scope = next

		for _, st := range s.Increment {
			if c := m.stmt(st); c.kind != normal {
				return c
			}
		}
	}
}

// loopBody evaluates the body of a loop, reporting whether the loop exits.
func (m *machine) loopBody(body bound.Stmt, brk, cont *bound.Label) (completion, bool) {
	c := m.stmt(body)
	switch {
	case c.kind == normal:
		return c, false
	case c.kind == jump && brk != nil && c.label == brk:
		return completion{}, true
	case c.kind == jump && cont != nil && c.label == cont:
		return completion{}, false
	}
	return c, true
}

func (m *machine) lock(s *bound.Lock) completion {
	obj := m.eval(s.X)
	m.monitorEnter(obj, nil)
	c, t := m.protect(func() completion { return m.stmt(s.Body) })
	if t != nil {
		m.dispatch(t)
	}
	m.monitorExit(obj)
	if t != nil {
		panic(t)
	}
	return c
}
