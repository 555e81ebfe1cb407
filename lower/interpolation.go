package lower

import (
	"strconv"
	"strings"

	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/wellknown"
)

// interpolation lowers an interpolated string to a call of String.Format
// with a composite format string and the values boxed in an array.
func (r *localRewriter) interpolation(e *bound.Interpolation) bound.Expr {
	f := r.f
	var format strings.Builder
	var values []bound.Expr
	for _, p := range e.Parts {
		if p.Value == nil {
			escapeBraces(&format, p.Text)
			continue
		}
		format.WriteByte('{')
		format.WriteString(strconv.Itoa(len(values)))
		if p.Alignment != 0 {
			format.WriteByte(',')
			format.WriteString(strconv.Itoa(p.Alignment))
		}
		if p.Format != "" {
			format.WriteByte(':')
			escapeBraces(&format, p.Format)
		}
		format.WriteByte('}')
		values = append(values, f.Convert(p.Value, bound.Object))
	}
	if len(values) == 0 {
		return f.String(unescapedText(e))
	}

	method, ok := r.require(wellknown.StringFormat, e.Pos)
	if !ok {
		return &bound.BadExpr{Pos: e.Pos, Typ: bound.String, Children: values}
	}
	args := &bound.ArrayCreation{Pos: e.Pos, Typ: bound.ArrayOf(bound.Object), Elems: values}
	return f.Call(nil, method, f.String(format.String()), args)
}

// escapeBraces writes s to b with every brace doubled.
func escapeBraces(b *strings.Builder, s string) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '{' || c == '}' {
			b.WriteByte(c)
		}
		b.WriteByte(c)
	}
}

func unescapedText(e *bound.Interpolation) string {
	var b strings.Builder
	for _, p := range e.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
