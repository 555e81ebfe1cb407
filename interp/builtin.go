package interp

import (
	"strconv"
	"strings"

	"github.com/stealthrocket/lower/bound"
	"github.com/stealthrocket/lower/wellknown"
)

// builtin evaluates a call to a well-known member.
func (m *machine) builtin(method *bound.Method, this Location, args []Value) (Value, bool) {
	id, ok := wellknown.Lookup(method)
	if !ok {
		return nil, false
	}
	switch id {
	case wellknown.ExceptionDispatchInfoCapture:
		ex, ok := args[0].(*Object)
		if !ok {
			Throw(NewException(ArgumentError, "capturing a non-exception"))
		}
		return &DispatchInfo{Exception: ex, trace: append([]bound.Pos(nil), ex.Trace...)}, true

	case wellknown.ExceptionDispatchInfoThrow:
		info := this.Load().(*DispatchInfo)
		info.Exception.Trace = append([]bound.Pos(nil), info.trace...)
		panic(&thrown{value: info.Exception})

	case wellknown.MonitorEnter:
		m.monitorEnter(args[0], nil)

	case wellknown.MonitorEnterWithFlag:
		taken, _ := args[1].(*Ref)
		m.monitorEnter(args[0], taken)

	case wellknown.MonitorExit:
		m.monitorExit(args[0])

	case wellknown.StringFormat:
		format, _ := args[0].(string)
		values, _ := args[1].(*Array)
		if values == nil {
			values = new(Array)
		}
		return compositeFormat(format, values.Elems), true
	}
	return nil, true
}

func (m *machine) monitorEnter(obj Value, taken *Ref) {
	if obj == nil {
		Throw(NewException(NullReference, "locking null"))
	}
	if taken != nil && taken.Load() == true {
		Throw(NewException(ArgumentError, "lockTaken must be false"))
	}
	m.locks[obj]++
	if taken != nil {
		taken.Store(true)
	}
}

func (m *machine) monitorExit(obj Value) {
	if m.locks[obj] == 0 {
		Throw(NewException(SynchronizationLock, "releasing a lock that is not held"))
	}
	m.locks[obj]--
}

// compositeFormat formats args according to a composite format string,
// where {index[,alignment][:format]} items are replaced by the formatted
// arguments and doubled braces stand for literal braces, including inside
// the format of an item.
func compositeFormat(format string, args []Value) string {
	invalid := func() {
		Throw(NewException(FormatError, "invalid format string "+strconv.Quote(format)))
	}
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		c := format[i]
		switch c {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			i++
			start := i
			for i < len(format) && format[i] >= '0' && format[i] <= '9' {
				i++
			}
			index, err := strconv.Atoi(format[start:i])
			if err != nil || index >= len(args) {
				invalid()
			}
			align := 0
			if i < len(format) && format[i] == ',' {
				i++
				start = i
				if i < len(format) && format[i] == '-' {
					i++
				}
				for i < len(format) && format[i] >= '0' && format[i] <= '9' {
					i++
				}
				if align, err = strconv.Atoi(format[start:i]); err != nil {
					invalid()
				}
			}
			var spec strings.Builder
			if i < len(format) && format[i] == ':' {
				for i++; i < len(format); i++ {
					if format[i] != '{' && format[i] != '}' {
						spec.WriteByte(format[i])
						continue
					}
					if i+1 < len(format) && format[i+1] == format[i] {
						spec.WriteByte(format[i])
						i++
						continue
					}
					break
				}
			}
			if i >= len(format) || format[i] != '}' {
				invalid()
			}
			b.WriteString(formatItem(args[index], align, spec.String()))

		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			invalid()

		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// formatItem formats v and pads it to the alignment: to the left when it is
// positive, to the right when it is negative.
func formatItem(v Value, align int, format string) string {
	s := formatValue(v, format)
	width := align
	if width < 0 {
		width = -width
	}
	if pad := width - len(s); pad > 0 {
		if align > 0 {
			return strings.Repeat(" ", pad) + s
		}
		return s + strings.Repeat(" ", pad)
	}
	return s
}

// formatValue formats v according to a format specifier. Integers support
// the D (decimal) and X (hexadecimal) specifiers with an optional precision;
// any other specifier is a pattern in which every '#' is replaced by the
// default rendering of the value.
func formatValue(v Value, format string) string {
	if format == "" {
		return display(v)
	}
	if i, ok := v.(int64); ok && len(format) > 0 {
		precision, err := strconv.Atoi(format[1:])
		if len(format) == 1 {
			precision, err = 0, nil
		}
		if err == nil {
			switch format[0] {
			case 'D', 'd':
				s := strconv.FormatInt(abs(i), 10)
				s = strings.Repeat("0", max(0, precision-len(s))) + s
				if i < 0 {
					s = "-" + s
				}
				return s
			case 'X', 'x':
				s := strconv.FormatUint(uint64(i), 16)
				if format[0] == 'X' {
					s = strings.ToUpper(s)
				}
				return strings.Repeat("0", max(0, precision-len(s))) + s
			}
		}
	}
	return strings.ReplaceAll(format, "#", display(v))
}

func abs(i int64) int64 {
	if i < 0 {
		return -i
	}
	return i
}
