// Package boundyaml decodes bound trees from YAML documents.
//
// A document declares types, external methods implemented by the host, and
// methods with a body:
//
//	types:
//	  - class: NotFound
//	    base: Exception
//	  - struct: Counter
//	    fields: [n int]
//	extern:
//	  - {name: log, params: [string]}
//	  - {name: fetch, params: [int], result: int}
//	methods:
//	  - name: Main
//	    async: true
//	    params: [n int]
//	    result: int
//	    body:
//	      - var: {name: x, init: {await: {call: [fetch, n]}}}
//	      - call: [log, "fetched"]
//	      - return: x
//
// Statements and expressions are mappings with a single key naming their
// kind. Plain scalars are locals, integers, booleans and null; quoted
// scalars are strings. The scalar "$" refers to the receiver of the
// innermost conditional access.
package boundyaml

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/stealthrocket/lower/bound"
	"gopkg.in/yaml.v3"
)

// Program holds the declarations of a document.
type Program struct {
	Types   map[string]*bound.Type
	Externs map[string]*bound.Method
	Methods []*bound.Method
	// This holds the receiver type of instance methods.
	This map[*bound.Method]*bound.Type
}

// Method returns the method with the given name, or nil.
func (p *Program) Method(name string) *bound.Method {
	for _, m := range p.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Error is a decoding error at a position of the document.
type Error struct {
	Pos bound.Pos
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Pos, e.Msg) }

// Load decodes the document at path.
func Load(path string, types ...*bound.Type) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	p, err := Decode(data, types...)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", path, err)
	}
	return p, nil
}

// Decode decodes a document. The types passed are declared in addition to
// the types of the document, and can be referred to by name.
func Decode(data []byte, types ...*bound.Type) (prog *Program, err error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	d := &decoder{
		prog: &Program{
			Types:   map[string]*bound.Type{},
			Externs: map[string]*bound.Method{},
			This:    map[*bound.Method]*bound.Type{},
		},
		bodies: map[*bound.Method]*yaml.Node{},
	}
	for _, t := range []*bound.Type{bound.Void, bound.Bool, bound.Int, bound.String, bound.Object, bound.Exception} {
		d.prog.Types[t.Name] = t
	}
	for _, t := range types {
		d.prog.Types[t.Name] = t
	}

	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(*Error)
			if !ok {
				panic(r)
			}
			prog, err = nil, e
		}
	}()
	if len(doc.Content) == 0 {
		return d.prog, nil
	}
	d.document(doc.Content[0])
	return d.prog, nil
}

type decoder struct {
	prog   *Program
	bodies map[*bound.Method]*yaml.Node

	// state of the method being decoded
	method     *bound.Method
	this       *bound.Type
	typeParams map[string]*bound.Type
	scopes     []*scope
	labels     map[string]*bound.Label
	loops      []loop
	receivers  []*bound.ConditionalReceiver
	receiverID int
}

type scope struct {
	names  map[string]*bound.Local
	locals []*bound.Local
}

type loop struct {
	brk, cont *bound.Label
}

func pos(n *yaml.Node) bound.Pos { return bound.Pos{Line: n.Line, Col: n.Column} }

func (d *decoder) fail(n *yaml.Node, format string, args ...any) {
	panic(&Error{Pos: pos(n), Msg: fmt.Sprintf(format, args...)})
}

// fields returns the values of a mapping by key, failing on keys not in
// allowed.
func (d *decoder) fields(n *yaml.Node, allowed ...string) map[string]*yaml.Node {
	if n.Kind != yaml.MappingNode {
		d.fail(n, "expected a mapping")
	}
	m := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		found := false
		for _, a := range allowed {
			found = found || a == k.Value
		}
		if !found {
			d.fail(k, "unexpected key %q", k.Value)
		}
		m[k.Value] = n.Content[i+1]
	}
	return m
}

// single returns the key and value of a mapping with a single entry.
func (d *decoder) single(n *yaml.Node) (string, *yaml.Node) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		d.fail(n, "expected a mapping with a single key")
	}
	return n.Content[0].Value, n.Content[1]
}

func (d *decoder) seq(n *yaml.Node) []*yaml.Node {
	if n == nil {
		return nil
	}
	if n.Kind != yaml.SequenceNode {
		d.fail(n, "expected a sequence")
	}
	return n.Content
}

func (d *decoder) scalar(n *yaml.Node) string {
	if n.Kind != yaml.ScalarNode {
		d.fail(n, "expected a scalar")
	}
	return n.Value
}

func (d *decoder) bool(n *yaml.Node) bool {
	if n == nil {
		return false
	}
	b, err := strconv.ParseBool(d.scalar(n))
	if err != nil {
		d.fail(n, "expected a boolean")
	}
	return b
}

func (d *decoder) int(n *yaml.Node) int64 {
	i, err := strconv.ParseInt(d.scalar(n), 10, 64)
	if err != nil {
		d.fail(n, "expected an integer")
	}
	return i
}

func (d *decoder) document(n *yaml.Node) {
	f := d.fields(n, "types", "extern", "methods")

	// Types are declared before their fields are decoded so that they can
	// refer to each other.
	type decl struct {
		t    *bound.Type
		node map[string]*yaml.Node
	}
	var decls []decl
	for _, tn := range d.seq(f["types"]) {
		tf := d.fields(tn, "class", "struct", "base", "fields")
		var t *bound.Type
		switch {
		case tf["class"] != nil:
			t = bound.NewClass(d.scalar(tf["class"]), nil)
		case tf["struct"] != nil:
			t = bound.NewStruct(d.scalar(tf["struct"]))
		default:
			d.fail(tn, "type declaration without class or struct")
		}
		d.prog.Types[t.Name] = t
		decls = append(decls, decl{t, tf})
	}
	for _, decl := range decls {
		if base := decl.node["base"]; base != nil {
			decl.t.Base = d.typ(base)
		}
		for _, fn := range d.seq(decl.node["fields"]) {
			d.field(decl.t, fn)
		}
	}

	for _, en := range d.seq(f["extern"]) {
		m := d.signature(en, false)
		d.prog.Externs[m.Name] = m
	}

	for _, mn := range d.seq(f["methods"]) {
		m := d.signature(mn, true)
		d.prog.Methods = append(d.prog.Methods, m)
	}
	for _, m := range d.prog.Methods {
		d.body(m)
	}
}

// field decodes "name type" with optional "static" and "readonly"
// modifiers in front.
func (d *decoder) field(t *bound.Type, n *yaml.Node) {
	words := strings.Fields(d.scalar(n))
	var flags bound.FieldFlags
	for len(words) > 2 {
		switch words[0] {
		case "static":
			flags |= bound.StaticField
		case "readonly":
			flags |= bound.ReadOnlyField
		default:
			d.fail(n, "unexpected field modifier %q", words[0])
		}
		words = words[1:]
	}
	if len(words) != 2 {
		d.fail(n, "expected a field declaration")
	}
	t.AddField(words[0], d.parseType(n, words[1]), flags)
}

func (d *decoder) signature(n *yaml.Node, withBody bool) *bound.Method {
	allowed := []string{"name", "params", "result", "this", "async", "typeParams"}
	if withBody {
		allowed = append(allowed, "body")
	}
	f := d.fields(n, allowed...)
	if f["name"] == nil {
		d.fail(n, "method without a name")
	}
	m := &bound.Method{
		Name:   d.scalar(f["name"]),
		Result: bound.Void,
		Async:  d.bool(f["async"]),
		Static: f["this"] == nil,
		Pos:    pos(n),
	}

	d.typeParams = map[string]*bound.Type{}
	for _, tp := range d.seq(f["typeParams"]) {
		t := bound.NewTypeParam(d.scalar(tp))
		d.typeParams[t.Name] = t
		m.TypeParams = append(m.TypeParams, t)
	}
	for i, pn := range d.seq(f["params"]) {
		m.Params = append(m.Params, d.param(pn, i))
	}
	if r := f["result"]; r != nil {
		m.Result = d.typ(r)
	}
	if t := f["this"]; t != nil {
		d.prog.This[m] = d.typ(t)
	}
	if withBody {
		d.bodies[m] = f["body"]
	}
	d.typeParams = nil
	return m
}

// param decodes "[ref] [name] type". Unnamed parameters are named after
// their position.
func (d *decoder) param(n *yaml.Node, i int) *bound.Local {
	words := strings.Fields(d.scalar(n))
	l := &bound.Local{Kind: bound.Parameter}
	if len(words) > 0 && words[0] == "ref" {
		l.RefKind = bound.ByRef
		words = words[1:]
	}
	switch len(words) {
	case 1:
		l.Name, l.Type = "p"+strconv.Itoa(i), d.parseType(n, words[0])
	case 2:
		l.Name, l.Type = words[0], d.parseType(n, words[1])
	default:
		d.fail(n, "expected a parameter declaration")
	}
	return l
}

func (d *decoder) typ(n *yaml.Node) *bound.Type {
	return d.parseType(n, d.scalar(n))
}

func (d *decoder) parseType(n *yaml.Node, s string) *bound.Type {
	s = strings.TrimSpace(s)
	switch {
	case s == "func":
		return bound.FuncOf(bound.Void)
	case strings.HasPrefix(s, "func "):
		return bound.FuncOf(d.parseType(n, s[len("func "):]))
	case strings.HasSuffix(s, "?"):
		return bound.NullableOf(d.parseType(n, s[:len(s)-1]))
	case strings.HasSuffix(s, "[]"):
		return bound.ArrayOf(d.parseType(n, s[:len(s)-2]))
	}
	if t, ok := d.typeParams[s]; ok {
		return t
	}
	if t, ok := d.prog.Types[s]; ok {
		return t
	}
	d.fail(n, "unknown type %q", s)
	return nil
}
