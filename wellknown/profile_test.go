package wellknown

import (
	"strings"
	"testing"

	"github.com/stealthrocket/lower/bound"
)

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile([]byte(`
name: legacy
exclude:
  - ExceptionDispatchInfo.Capture
  - Monitor.Enter(ref bool)
`), "legacy.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "legacy" {
		t.Errorf("unexpected name: %q", p.Name)
	}

	for _, test := range []struct {
		id    ID
		avail bool
	}{
		{ExceptionDispatchInfoCapture, false},
		{ExceptionDispatchInfoThrow, true},
		{MonitorEnter, true},
		{MonitorEnterWithFlag, false},
		{MonitorExit, true},
		{StringFormat, true},
	} {
		m, ok := p.Member(test.id)
		if ok != test.avail {
			t.Errorf("%s: available=%v, want %v", test.id, ok, test.avail)
		}
		if ok && m != Method(test.id) {
			t.Errorf("%s: unexpected symbol %v", test.id, m)
		}
	}
}

func TestParseProfileUnknownMember(t *testing.T) {
	_, err := ParseProfile([]byte("exclude: [Console.Beep]\n"), "bad.yaml")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), `unknown member "Console.Beep"`) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLookup(t *testing.T) {
	for id := ID(0); id < numIDs; id++ {
		got, ok := Lookup(Method(id))
		if !ok || got != id {
			t.Errorf("Lookup(%s) = %v, %v", id, got, ok)
		}
		parsed, ok := ParseID(id.String())
		if !ok || parsed != id {
			t.Errorf("ParseID(%q) = %v, %v", id.String(), parsed, ok)
		}
	}
	if _, ok := Lookup(&bound.Method{Name: "Other"}); ok {
		t.Error("unexpected well-known method")
	}
}
