package interp

import "testing"

func TestCompositeFormat(t *testing.T) {
	for _, test := range []struct {
		format string
		args   []Value
		expect string
	}{
		{"{0}", []Value{int64(1)}, "1"},
		{"{0} and {1}", []Value{"a", true}, "a and True"},
		{"{{{0}}}", []Value{int64(1)}, "{1}"},
		{"[{0,3}]", []Value{int64(1)}, "[  1]"},
		{"[{0,-3}]", []Value{int64(1)}, "[1  ]"},
		{"{0:X}", []Value{int64(255)}, "FF"},
		{"{0:x4}", []Value{int64(255)}, "00ff"},
		{"{0:D3}", []Value{int64(-7)}, "-007"},
		{"{0:[#]}", []Value{"a"}, "[a]"},
		{"{0:{{#}}}", []Value{"a"}, "{a}"},
		{"{0,4:{{#}}}", []Value{"a"}, " {a}"},
		{"no items", nil, "no items"},
	} {
		t.Run(test.format, func(t *testing.T) {
			got, err := format(test.format, test.args...)
			if err != nil {
				t.Fatal(err)
			}
			if got != test.expect {
				t.Errorf("want %q, got %q", test.expect, got)
			}
		})
	}
}

func TestCompositeFormatInvalid(t *testing.T) {
	for _, f := range []string{"{", "}", "{1}", "{0", "{x}", "{0,}"} {
		t.Run(f, func(t *testing.T) {
			_, err := format(f, int64(0))
			if err == nil {
				t.Fatal("expected a format exception")
			}
			if err.Type != FormatError {
				t.Errorf("unexpected exception %s", err)
			}
		})
	}
}

func format(f string, args ...Value) (s string, err *Object) {
	defer func() {
		if x := recover(); x != nil {
			err = x.(*thrown).value.(*Object)
		}
	}()
	return compositeFormat(f, args), nil
}
