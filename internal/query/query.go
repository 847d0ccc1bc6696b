// Package query builds predicates against a subject that is bound later.
//
//	pred := query.X().Attr("mtu").Ge(9000)
//	jumbo, err := switches.Filter([]graph.Predicate{pred}, nil)
//
// Operands may themselves be expressions, in which case they are resolved
// against the same subject as the left-hand side, so
// query.X().Attr("mtu").Gt(query.X().Attr("parent_mtu")) compares two
// attributes of each candidate.
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agentic-research/netmodel/internal/field"
	"github.com/cockroachdb/errors"
)

// ErrUnsupported is returned when a subject cannot perform an operation
// (attribute access on a number, a call on an entity, ...).
var ErrUnsupported = errors.New("operation not supported by subject")

// Attributer resolves attribute names.
type Attributer interface {
	Attr(name string) (any, error)
}

// Caller accepts a filtered sub-call.
type Caller interface {
	Call(args []any, kw map[string]any) (any, error)
}

// Extractor returns the single element of a set.
type Extractor interface {
	Extract() (any, error)
}

// Container answers membership tests.
type Container interface {
	Contains(v any) (bool, error)
}

type op interface {
	apply(v, subject any) (any, error)
	render(lhs string) string
}

// Expr is an immutable chain of operations applied to a subject.
type Expr struct {
	ops []op
}

// X is the unbound subject.
func X() *Expr { return &Expr{} }

func (x *Expr) then(o op) *Expr {
	ops := make([]op, 0, len(x.ops)+1)
	ops = append(ops, x.ops...)
	return &Expr{ops: append(ops, o)}
}

func (x *Expr) Attr(name string) *Expr { return x.then(attrOp{name: name}) }

// Call applies a filtered sub-call. Positional args are passed through
// (expressions act as predicates of the callee); keyword values that are
// expressions are resolved against the outer subject first.
func (x *Expr) Call(args []any, kw map[string]any) *Expr {
	return x.then(callOp{args: args, kw: kw})
}

// Where is Call with keywords only.
func (x *Expr) Where(kw map[string]any) *Expr { return x.Call(nil, kw) }

func (x *Expr) Eq(v any) *Expr { return x.then(cmpOp{sym: "==", rhs: v}) }
func (x *Expr) Ne(v any) *Expr { return x.then(cmpOp{sym: "!=", rhs: v}) }
func (x *Expr) Lt(v any) *Expr { return x.then(cmpOp{sym: "<", rhs: v}) }
func (x *Expr) Le(v any) *Expr { return x.then(cmpOp{sym: "<=", rhs: v}) }
func (x *Expr) Gt(v any) *Expr { return x.then(cmpOp{sym: ">", rhs: v}) }
func (x *Expr) Ge(v any) *Expr { return x.then(cmpOp{sym: ">=", rhs: v}) }

func (x *Expr) In(v any) *Expr    { return x.then(inOp{rhs: v}) }
func (x *Expr) NotIn(v any) *Expr { return x.then(inOp{rhs: v, negate: true}) }

// Match tests the formatted value against a regular expression.
func (x *Expr) Match(pattern string) (*Expr, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "pattern %q", pattern)
	}
	return x.then(matchOp{re: re}), nil
}

// MustMatch is Match for patterns known to be valid.
func (x *Expr) MustMatch(pattern string) *Expr {
	return x.then(matchOp{re: regexp.MustCompile(pattern)})
}

// One extracts the single element of a set.
func (x *Expr) One() *Expr { return x.then(oneOp{}) }

// Resolve runs the chain against subject.
func (x *Expr) Resolve(subject any) (any, error) {
	v := subject
	for _, o := range x.ops {
		var err error
		if v, err = o.apply(v, subject); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Test resolves the chain and reports whether the result is truthy.
func (x *Expr) Test(subject any) (bool, error) {
	v, err := x.Resolve(subject)
	if err != nil {
		return false, err
	}
	return field.Truthy(v), nil
}

func (x *Expr) String() string {
	s := "X"
	for _, o := range x.ops {
		s = o.render(s)
	}
	return s
}

func resolveOperand(v, subject any) (any, error) {
	if e, ok := v.(*Expr); ok {
		return e.Resolve(subject)
	}
	return field.Normalize(v), nil
}

func renderOperand(v any) string {
	switch x := v.(type) {
	case *Expr:
		return x.String()
	case string:
		return fmt.Sprintf("%q", x)
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = renderOperand(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case field.Equaler:
		// Identity-compared operands must not share filter cache entries.
		return fmt.Sprintf("%v@%p", x, x)
	}
	return fmt.Sprint(v)
}

type attrOp struct{ name string }

// apply propagates nil so that chains through missing references compare
// false instead of failing the whole filter.
func (o attrOp) apply(v, _ any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case Attributer:
		return x.Attr(o.name)
	case map[string]any:
		return x[o.name], nil
	}
	return nil, errors.Wrapf(ErrUnsupported, "attribute %q of %T", o.name, v)
}

func (o attrOp) render(lhs string) string { return lhs + "." + o.name }

type callOp struct {
	args []any
	kw   map[string]any
}

func (o callOp) apply(v, subject any) (any, error) {
	c, ok := v.(Caller)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupported, "call on %T", v)
	}
	kw := make(map[string]any, len(o.kw))
	for k, val := range o.kw {
		r, err := resolveOperand(val, subject)
		if err != nil {
			return nil, err
		}
		kw[k] = r
	}
	return c.Call(o.args, kw)
}

func (o callOp) render(lhs string) string {
	var parts []string
	for _, a := range o.args {
		parts = append(parts, renderOperand(a))
	}
	keys := make([]string, 0, len(o.kw))
	for k := range o.kw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+renderOperand(o.kw[k]))
	}
	return lhs + "(" + strings.Join(parts, ", ") + ")"
}

type cmpOp struct {
	sym string
	rhs any
}

func (o cmpOp) apply(v, subject any) (any, error) {
	rhs, err := resolveOperand(o.rhs, subject)
	if err != nil {
		return nil, err
	}
	switch o.sym {
	case "==", "!=":
		eq, err := field.Equal(v, rhs)
		if err != nil {
			return nil, err
		}
		return eq == (o.sym == "=="), nil
	}
	if v == nil || rhs == nil {
		return false, nil
	}
	c, err := field.Compare(v, rhs)
	if err != nil {
		return nil, err
	}
	switch o.sym {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	}
	return c >= 0, nil
}

func (o cmpOp) render(lhs string) string { return lhs + " " + o.sym + " " + renderOperand(o.rhs) }

type inOp struct {
	rhs    any
	negate bool
}

func (o inOp) apply(v, subject any) (any, error) {
	rhs, err := resolveOperand(o.rhs, subject)
	if err != nil {
		return nil, err
	}
	found, err := contains(rhs, v)
	if err != nil {
		return nil, err
	}
	return found != o.negate, nil
}

func contains(set, v any) (bool, error) {
	switch s := set.(type) {
	case nil:
		return false, nil
	case Container:
		return s.Contains(v)
	case []any:
		for _, item := range s {
			if field.Same(item, v) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		k, ok := v.(string)
		if !ok {
			return false, nil
		}
		_, found := s[k]
		return found, nil
	case string:
		sub, ok := v.(string)
		return ok && strings.Contains(s, sub), nil
	}
	return false, errors.Wrapf(ErrUnsupported, "membership in %T", set)
}

func (o inOp) render(lhs string) string {
	if o.negate {
		return lhs + " not in " + renderOperand(o.rhs)
	}
	return lhs + " in " + renderOperand(o.rhs)
}

type matchOp struct{ re *regexp.Regexp }

func (o matchOp) apply(v, _ any) (any, error) {
	if v == nil {
		return false, nil
	}
	return o.re.MatchString(field.Format(v)), nil
}

func (o matchOp) render(lhs string) string { return lhs + " =~ /" + o.re.String() + "/" }

type oneOp struct{}

func (oneOp) apply(v, _ any) (any, error) {
	switch x := v.(type) {
	case Extractor:
		return x.Extract()
	case []any:
		if len(x) == 1 {
			return x[0], nil
		}
		return nil, errors.AssertionFailedf("expected exactly one value, found %d", len(x))
	}
	return nil, errors.Wrapf(ErrUnsupported, "extract from %T", v)
}

func (oneOp) render(lhs string) string { return "+(" + lhs + ")" }
