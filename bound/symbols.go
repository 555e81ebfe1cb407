package bound

import "fmt"

// Pos is a source position. The zero value is an unknown position.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) IsValid() bool { return p.Line > 0 }

func (p Pos) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// LocalKind tells user-declared locals apart from parameters and locals
// introduced by the compiler.
type LocalKind uint8

const (
	UserLocal LocalKind = iota
	Parameter
	Synthesized
)

// SynthesizedKind records why a synthesized local exists. Passes use it to
// recognize their own temporaries.
type SynthesizedKind uint8

const (
	NotSynthesized SynthesizedKind = iota
	PendingException
	PendingBranch
	PendingCatch
	ReturnValue
	Spill
	AwaitSpill
	CatchTemp
	FilterLocal
	LockObject
	LockTaken
	ReceiverTemp
	LoopCopy
	CompoundTemp
)

var synthesizedNames = [...]string{
	NotSynthesized:   "",
	PendingException: "pendingException",
	PendingBranch:    "pendingBranch",
	PendingCatch:     "pendingCatch",
	ReturnValue:      "returnValue",
	Spill:            "spill",
	AwaitSpill:       "awaitSpill",
	CatchTemp:        "catch",
	FilterLocal:      "filter",
	LockObject:       "lock",
	LockTaken:        "lockTaken",
	ReceiverTemp:     "receiver",
	LoopCopy:         "loop",
	CompoundTemp:     "compound",
}

func (k SynthesizedKind) String() string {
	if int(k) < len(synthesizedNames) {
		return synthesizedNames[k]
	}
	return fmt.Sprintf("SynthesizedKind(%d)", k)
}

// RefKind distinguishes by-value from by-reference passing.
type RefKind uint8

const (
	ByValue RefKind = iota
	ByRef
)

// Local is a local variable or parameter symbol. Locals are compared by
// identity; two locals with the same name are distinct variables.
type Local struct {
	Name    string
	Type    *Type
	Kind    LocalKind
	Synth   SynthesizedKind
	RefKind RefKind
}

func (l *Local) String() string { return l.Name }

// Label is a jump target. Labels are compared by identity.
type Label struct {
	Name string
}

func (l *Label) String() string { return l.Name }

// Method is a method symbol. Methods with a nil Body are external and are
// only ever the target of calls.
type Method struct {
	Name       string
	Params     []*Local
	Result     *Type
	Static     bool
	Async      bool
	TypeParams []*Type
	Body       *Block
	Pos        Pos
}

func (m *Method) String() string { return m.Name }
