// Package bound defines the bound tree: the typed, name-resolved
// intermediate representation of a method body that the lowering passes
// consume and produce.
//
// Bound trees are immutable once built. A pass that changes a node returns a
// new node and shares every subtree it did not change, so the identity of an
// unchanged subtree is preserved across passes.
package bound

// Node is implemented by every bound tree node.
type Node interface {
	Position() Pos
	node()
}

// Expr is a node producing a value.
type Expr interface {
	Node
	// Type returns the static type of the value, Void for expressions
	// evaluated only for their side effects.
	Type() *Type
	expr()
}

// Stmt is a node executed for its effect on control flow or state.
type Stmt interface {
	Node
	stmt()
}

// BinaryOp is the operator of a Binary expression.
type BinaryOp uint8

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Rem
	Eq
	Ne
	Lt
	Le
	Gt
	Ge
	And
	Or
	// AndAlso and OrElse evaluate their right operand only when needed.
	AndAlso
	OrElse
)

var binaryOps = [...]string{
	Add: "+", Sub: "-", Mul: "*", Div: "/", Rem: "%",
	Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
	And: "&", Or: "|", AndAlso: "&&", OrElse: "||",
}

func (op BinaryOp) String() string { return binaryOps[op] }

// IsShortCircuit reports whether the right operand is conditionally evaluated.
func (op BinaryOp) IsShortCircuit() bool { return op == AndAlso || op == OrElse }

// IsComparison reports whether the operator produces a bool from its operands.
func (op BinaryOp) IsComparison() bool { return op >= Eq && op <= Ge }

// UnaryOp is the operator of a Unary expression.
type UnaryOp uint8

const (
	Neg UnaryOp = iota
	Not
	// HasValue tests whether a nullable value is present.
	HasValue
	// GetValueOrDefault unwraps a nullable value, producing the default of
	// the underlying type when absent.
	GetValueOrDefault
)

var unaryOps = [...]string{Neg: "-", Not: "!", HasValue: "HasValue", GetValueOrDefault: "GetValueOrDefault"}

func (op UnaryOp) String() string { return unaryOps[op] }

// Expressions.
type (
	// Literal is a constant: nil, bool, int64 or string.
	Literal struct {
		Pos   Pos
		Value any
		Typ   *Type
	}

	// DefaultValue is the default value of a type. The default of Void is an
	// expression that does nothing.
	DefaultValue struct {
		Pos Pos
		Typ *Type
	}

	LocalRef struct {
		Pos   Pos
		Local *Local
	}

	ThisRef struct {
		Pos Pos
		Typ *Type
	}

	// FieldAccess reads or designates a field. Receiver is nil for static
	// fields.
	FieldAccess struct {
		Pos      Pos
		Receiver Expr
		Field    *Field
	}

	ArrayAccess struct {
		Pos   Pos
		Array Expr
		Index Expr
	}

	// Call invokes a method. Receiver is nil for static methods. RefKinds is
	// either nil or parallel to Args.
	Call struct {
		Pos      Pos
		Receiver Expr
		Method   *Method
		Args     []Expr
		RefKinds []RefKind
	}

	// New creates an instance of a class or struct, assigning Args to its
	// instance fields in declaration order.
	New struct {
		Pos  Pos
		Typ  *Type
		Args []Expr
	}

	ArrayCreation struct {
		Pos   Pos
		Typ   *Type
		Elems []Expr
	}

	Binary struct {
		Pos   Pos
		Op    BinaryOp
		Left  Expr
		Right Expr
		Typ   *Type
	}

	Unary struct {
		Pos     Pos
		Op      UnaryOp
		Operand Expr
		Typ     *Type
	}

	// Coalesce evaluates to Left unless it is null, in which case Right is
	// evaluated instead.
	Coalesce struct {
		Pos   Pos
		Left  Expr
		Right Expr
		Typ   *Type
	}

	// Conditional is the ternary operator. A by-reference conditional
	// designates a variable rather than producing a value.
	Conditional struct {
		Pos         Pos
		Cond        Expr
		Consequence Expr
		Alternative Expr
		IsRef       bool
		Typ         *Type
	}

	// Assign stores Right into the variable designated by Left. When IsRef is
	// set, Left is a by-reference local that is rebound to alias the
	// variable designated by Right.
	Assign struct {
		Pos   Pos
		Left  Expr
		Right Expr
		IsRef bool
	}

	CompoundAssign struct {
		Pos   Pos
		Op    BinaryOp
		Left  Expr
		Right Expr
	}

	Conversion struct {
		Pos     Pos
		Operand Expr
		Typ     *Type
	}

	IsType struct {
		Pos     Pos
		Operand Expr
		Target  *Type
	}

	// Sequence declares Locals, evaluates SideEffects in order and then
	// produces Value.
	Sequence struct {
		Pos         Pos
		Locals      []*Local
		SideEffects []Expr
		Value       Expr
	}

	Await struct {
		Pos     Pos
		Operand Expr
		Typ     *Type
	}

	Lambda struct {
		Pos    Pos
		Params []*Local
		Result *Type
		Async  bool
		Body   *Block
	}

	Invoke struct {
		Pos  Pos
		Func Expr
		Args []Expr
	}

	// ConditionalAccess evaluates Receiver once and, unless it is null,
	// evaluates Access in which the matching ConditionalReceiver stands for
	// the receiver value. The result is the default of Typ otherwise.
	ConditionalAccess struct {
		Pos      Pos
		ID       int
		Receiver Expr
		Access   Expr
		Typ      *Type
	}

	// ConditionalReceiver is the placeholder for the receiver of the
	// ConditionalAccess with the same ID.
	ConditionalReceiver struct {
		Pos Pos
		ID  int
		Typ *Type
	}

	// LoweredConditionalAccess is the primitive null-test-and-access form for
	// reference-typed receivers: the receiver is kept as an anonymous stack
	// value for the duration of WhenNotNull. WhenNull, when nil, is the
	// default of Typ.
	LoweredConditionalAccess struct {
		Pos         Pos
		ID          int
		Receiver    Expr
		WhenNotNull Expr
		WhenNull    Expr
		Typ         *Type
	}

	Interpolation struct {
		Pos   Pos
		Parts []InterpolationPart
	}

	// BadExpr replaces an expression that could not be lowered because a
	// required member is missing. A diagnostic has been reported for it.
	BadExpr struct {
		Pos      Pos
		Typ      *Type
		Children []Expr
	}
)

// InterpolationPart is either literal Text or a formatted Value.
type InterpolationPart struct {
	Text      string
	Value     Expr
	Alignment int
	Format    string
}

// Statements.
type (
	// Block declares Locals, which get fresh storage every time the block is
	// entered, and executes Stmts in order. Labels are resolved against the
	// statements of the enclosing blocks.
	Block struct {
		Pos    Pos
		Locals []*Local
		Stmts  []Stmt
	}

	ExprStmt struct {
		Pos Pos
		X   Expr
	}

	If struct {
		Pos  Pos
		Cond Expr
		Then Stmt
		Else Stmt
	}

	Goto struct {
		Pos   Pos
		Label *Label
	}

	// CondGoto jumps to Label when Cond evaluates to JumpIfTrue.
	CondGoto struct {
		Pos        Pos
		Cond       Expr
		JumpIfTrue bool
		Label      *Label
	}

	LabelStmt struct {
		Pos   Pos
		Label *Label
	}

	// Return leaves the method. Result is nil in void methods.
	Return struct {
		Pos    Pos
		Result Expr
	}

	// Throw raises X, or rethrows the exception being handled when X is nil.
	Throw struct {
		Pos Pos
		X   Expr
	}

	// Switch dispatches on an int value. The first case with a matching
	// value executes; there is no fall-through and no default.
	Switch struct {
		Pos   Pos
		X     Expr
		Cases []*SwitchCase
	}

	Try struct {
		Pos     Pos
		Body    *Block
		Catches []*Catch
		Finally *Block
	}

	While struct {
		Pos      Pos
		Locals   []*Local
		Cond     Expr
		Body     Stmt
		Break    *Label
		Continue *Label
	}

	// For declares Locals for the whole loop. Every iteration observes its
	// own copy of them, initialized from the previous iteration.
	For struct {
		Pos       Pos
		Locals    []*Local
		Init      []Stmt
		Cond      Expr
		Increment []Stmt
		Body      Stmt
		Break     *Label
		Continue  *Label
	}

	Lock struct {
		Pos  Pos
		X    Expr
		Body Stmt
	}

	NoOp struct {
		Pos Pos
	}
)

type SwitchCase struct {
	Value int64
	Body  Stmt
}

// Catch is a catch clause. Type nil catches every thrown object. Local, when
// set, receives the exception before Filter and Body run.
type Catch struct {
	Pos    Pos
	Local  *Local
	Type   *Type
	Filter Expr
	Body   *Block
}

// CatchType returns the type caught by c.
func (c *Catch) CatchType() *Type {
	if c.Type == nil {
		return Object
	}
	return c.Type
}

func (n *Literal) Position() Pos                  { return n.Pos }
func (n *DefaultValue) Position() Pos             { return n.Pos }
func (n *LocalRef) Position() Pos                 { return n.Pos }
func (n *ThisRef) Position() Pos                  { return n.Pos }
func (n *FieldAccess) Position() Pos              { return n.Pos }
func (n *ArrayAccess) Position() Pos              { return n.Pos }
func (n *Call) Position() Pos                     { return n.Pos }
func (n *New) Position() Pos                      { return n.Pos }
func (n *ArrayCreation) Position() Pos            { return n.Pos }
func (n *Binary) Position() Pos                   { return n.Pos }
func (n *Unary) Position() Pos                    { return n.Pos }
func (n *Coalesce) Position() Pos                 { return n.Pos }
func (n *Conditional) Position() Pos              { return n.Pos }
func (n *Assign) Position() Pos                   { return n.Pos }
func (n *CompoundAssign) Position() Pos           { return n.Pos }
func (n *Conversion) Position() Pos               { return n.Pos }
func (n *IsType) Position() Pos                   { return n.Pos }
func (n *Sequence) Position() Pos                 { return n.Pos }
func (n *Await) Position() Pos                    { return n.Pos }
func (n *Lambda) Position() Pos                   { return n.Pos }
func (n *Invoke) Position() Pos                   { return n.Pos }
func (n *ConditionalAccess) Position() Pos        { return n.Pos }
func (n *ConditionalReceiver) Position() Pos      { return n.Pos }
func (n *LoweredConditionalAccess) Position() Pos { return n.Pos }
func (n *Interpolation) Position() Pos            { return n.Pos }
func (n *BadExpr) Position() Pos                  { return n.Pos }
func (n *Block) Position() Pos                    { return n.Pos }
func (n *ExprStmt) Position() Pos                 { return n.Pos }
func (n *If) Position() Pos                       { return n.Pos }
func (n *Goto) Position() Pos                     { return n.Pos }
func (n *CondGoto) Position() Pos                 { return n.Pos }
func (n *LabelStmt) Position() Pos                { return n.Pos }
func (n *Return) Position() Pos                   { return n.Pos }
func (n *Throw) Position() Pos                    { return n.Pos }
func (n *Switch) Position() Pos                   { return n.Pos }
func (n *Try) Position() Pos                      { return n.Pos }
func (n *While) Position() Pos                    { return n.Pos }
func (n *For) Position() Pos                      { return n.Pos }
func (n *Lock) Position() Pos                     { return n.Pos }
func (n *NoOp) Position() Pos                     { return n.Pos }
func (n *Catch) Position() Pos                    { return n.Pos }

func (*Literal) node()                  {}
func (*DefaultValue) node()             {}
func (*LocalRef) node()                 {}
func (*ThisRef) node()                  {}
func (*FieldAccess) node()              {}
func (*ArrayAccess) node()              {}
func (*Call) node()                     {}
func (*New) node()                      {}
func (*ArrayCreation) node()            {}
func (*Binary) node()                   {}
func (*Unary) node()                    {}
func (*Coalesce) node()                 {}
func (*Conditional) node()              {}
func (*Assign) node()                   {}
func (*CompoundAssign) node()           {}
func (*Conversion) node()               {}
func (*IsType) node()                   {}
func (*Sequence) node()                 {}
func (*Await) node()                    {}
func (*Lambda) node()                   {}
func (*Invoke) node()                   {}
func (*ConditionalAccess) node()        {}
func (*ConditionalReceiver) node()      {}
func (*LoweredConditionalAccess) node() {}
func (*Interpolation) node()            {}
func (*BadExpr) node()                  {}
func (*Block) node()                    {}
func (*ExprStmt) node()                 {}
func (*If) node()                       {}
func (*Goto) node()                     {}
func (*CondGoto) node()                 {}
func (*LabelStmt) node()                {}
func (*Return) node()                   {}
func (*Throw) node()                    {}
func (*Switch) node()                   {}
func (*Try) node()                      {}
func (*While) node()                    {}
func (*For) node()                      {}
func (*Lock) node()                     {}
func (*NoOp) node()                     {}
func (*Catch) node()                    {}

func (*Literal) expr()                  {}
func (*DefaultValue) expr()             {}
func (*LocalRef) expr()                 {}
func (*ThisRef) expr()                  {}
func (*FieldAccess) expr()              {}
func (*ArrayAccess) expr()              {}
func (*Call) expr()                     {}
func (*New) expr()                      {}
func (*ArrayCreation) expr()            {}
func (*Binary) expr()                   {}
func (*Unary) expr()                    {}
func (*Coalesce) expr()                 {}
func (*Conditional) expr()              {}
func (*Assign) expr()                   {}
func (*CompoundAssign) expr()           {}
func (*Conversion) expr()               {}
func (*IsType) expr()                   {}
func (*Sequence) expr()                 {}
func (*Await) expr()                    {}
func (*Lambda) expr()                   {}
func (*Invoke) expr()                   {}
func (*ConditionalAccess) expr()        {}
func (*ConditionalReceiver) expr()      {}
func (*LoweredConditionalAccess) expr() {}
func (*Interpolation) expr()            {}
func (*BadExpr) expr()                  {}

func (*Block) stmt()     {}
func (*ExprStmt) stmt()  {}
func (*If) stmt()        {}
func (*Goto) stmt()      {}
func (*CondGoto) stmt()  {}
func (*LabelStmt) stmt() {}
func (*Return) stmt()    {}
func (*Throw) stmt()     {}
func (*Switch) stmt()    {}
func (*Try) stmt()       {}
func (*While) stmt()     {}
func (*For) stmt()       {}
func (*Lock) stmt()      {}
func (*NoOp) stmt()      {}

func (n *Literal) Type() *Type             { return n.Typ }
func (n *DefaultValue) Type() *Type        { return n.Typ }
func (n *LocalRef) Type() *Type            { return n.Local.Type }
func (n *ThisRef) Type() *Type             { return n.Typ }
func (n *FieldAccess) Type() *Type         { return n.Field.Type }
func (n *ArrayAccess) Type() *Type         { return n.Array.Type().Elem }
func (n *New) Type() *Type                 { return n.Typ }
func (n *ArrayCreation) Type() *Type       { return n.Typ }
func (n *Binary) Type() *Type              { return n.Typ }
func (n *Unary) Type() *Type               { return n.Typ }
func (n *Coalesce) Type() *Type            { return n.Typ }
func (n *Conditional) Type() *Type         { return n.Typ }
func (n *Assign) Type() *Type              { return n.Left.Type() }
func (n *CompoundAssign) Type() *Type      { return n.Left.Type() }
func (n *Conversion) Type() *Type          { return n.Typ }
func (n *IsType) Type() *Type              { return Bool }
func (n *Sequence) Type() *Type            { return n.Value.Type() }
func (n *Await) Type() *Type               { return n.Typ }
func (n *Lambda) Type() *Type              { return FuncOf(n.Result) }
func (n *ConditionalAccess) Type() *Type   { return n.Typ }
func (n *ConditionalReceiver) Type() *Type { return n.Typ }
func (n *Interpolation) Type() *Type       { return String }
func (n *BadExpr) Type() *Type             { return n.Typ }

func (n *LoweredConditionalAccess) Type() *Type { return n.Typ }

func (n *Call) Type() *Type {
	if n.Method.Result == nil {
		return Void
	}
	return n.Method.Result
}

func (n *Invoke) Type() *Type {
	if t := n.Func.Type(); t != nil && t.Elem != nil {
		return t.Elem
	}
	return Void
}

// RefKind returns how the i-th argument is passed.
func (n *Call) RefKind(i int) RefKind {
	if i < len(n.RefKinds) {
		return n.RefKinds[i]
	}
	return ByValue
}
