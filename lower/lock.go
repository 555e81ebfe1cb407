package lower

import (
	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/wellknown"
)

// lock lowers lock (x) body to:
//
//	{
//		var lockObj, lockTaken bool
//		lockObj = x
//		lockTaken = false
//		try {
//			Monitor.Enter(lockObj, ref lockTaken)
//			body
//		} finally {
//			if lockTaken { Monitor.Exit(lockObj) }
//		}
//	}
//
// When the runtime has no Enter overload reporting whether the lock was
// taken, Enter is called before the try statement instead, so Exit does not
// run when Enter throws.
func (r *localRewriter) lock(s *bound.Lock) bound.Stmt {
	f := r.f
	exit, hasExit := r.require(wellknown.MonitorExit, s.Pos)
	enterWithFlag, hasFlag := r.member(wellknown.MonitorEnterWithFlag)
	var enter *bound.Method
	hasEnter := hasFlag
	if !hasFlag {
		enter, hasEnter = r.require(wellknown.MonitorEnter, s.Pos)
	}
	if !hasExit || !hasEnter {
		return f.Block(nil,
			f.ExprStmt(&bound.BadExpr{Pos: s.Pos, Typ: bound.Void, Children: []bound.Expr{s.X}}),
			s.Body)
	}

	t := s.X.Type()
	if t.IsTypeParam() {
		t = bound.Object
	}
	lockObj := f.Temp(t, bound.LockObject)
	obj := func() bound.Expr { return f.Convert(f.Local(lockObj), bound.Object) }

	if hasFlag {
		lockTaken := f.Temp(bound.Bool, bound.LockTaken)
		enterCall := f.Call(nil, enterWithFlag, obj(), f.Local(lockTaken))
		enterCall.RefKinds = []bound.RefKind{bound.ByValue, bound.ByRef}
		return f.Block([]*bound.Local{lockObj, lockTaken},
			f.Store(lockObj, f.Convert(s.X, t)),
			f.Store(lockTaken, f.Bool(false)),
			&bound.Try{
				Pos:     s.Pos,
				Body:    f.Block(nil, f.ExprStmt(enterCall), s.Body),
				Finally: f.Block(nil, f.If(f.Local(lockTaken), f.ExprStmt(f.Call(nil, exit, obj())), nil)),
			})
	}

	return f.Block([]*bound.Local{lockObj},
		f.Store(lockObj, f.Convert(s.X, t)),
		f.ExprStmt(f.Call(nil, enter, obj())),
		&bound.Try{
			Pos:     s.Pos,
			Body:    f.Block(nil, s.Body),
			Finally: f.Block(nil, f.ExprStmt(f.Call(nil, exit, obj()))),
		})
}
