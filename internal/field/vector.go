package field

import (
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

type vectorKind int

const (
	listKind vectorKind = iota
	setKind
	rangeKind
	rangeListKind
)

var vectorPrefix = map[vectorKind]string{
	listKind:      "list",
	setKind:       "set",
	rangeKind:     "range",
	rangeListKind: "rangelist",
}

// MaxRangeSpan caps how many values one range or rangelist cell expands to.
const MaxRangeSpan = 1 << 16

// vector wraps a scalar type. Its values are []any of the element type.
type vector struct {
	kind vectorKind
	elem Type
}

// NewList splits a cell on commas and newlines.
func NewList(elem Type) Type { return &vector{kind: listKind, elem: elem} }

// NewSet is a list sorted by Order with duplicates removed.
func NewSet(elem Type) Type { return &vector{kind: setKind, elem: elem} }

// NewRange expands a single "lo-hi" cell into every integer between the bounds.
func NewRange(elem Type) Type { return &vector{kind: rangeKind, elem: elem} }

// NewRangeList expands comma separated ranges and singletons ("1-3,7").
func NewRangeList(elem Type) Type { return &vector{kind: rangeListKind, elem: elem} }

func (v *vector) Name() string    { return vectorPrefix[v.kind] + "." + v.elem.Name() }
func (v *vector) Elem() Type      { return v.elem }
func (v *vector) Indexable() bool { return false }
func (v *vector) Empty() any      { return []any{} }

func (v *vector) Convert(raw string) (any, error) {
	switch v.kind {
	case rangeKind:
		return v.expand(strings.TrimSpace(raw))
	case rangeListKind:
		var out []any
		for _, part := range splitItems(raw) {
			vals, err := v.expand(part)
			if err != nil {
				return nil, err
			}
			if len(out)+len(vals) > MaxRangeSpan {
				return nil, convertErr(v, raw, errors.Newf("more than %d values", MaxRangeSpan))
			}
			out = append(out, vals...)
		}
		return out, nil
	}

	items := splitItems(raw)
	out := make([]any, 0, len(items))
	for _, item := range items {
		val, err := v.elem.Convert(item)
		if err != nil {
			return nil, convertErr(v, raw, err)
		}
		out = append(out, val)
	}
	if v.kind == setKind {
		out = Distinct(out)
	}
	return out, nil
}

// expand turns "lo-hi" into [lo, lo+1, ..., hi]. A bare value is a range of one.
func (v *vector) expand(item string) ([]any, error) {
	lo, hi, isRange := strings.Cut(item, "-")
	if !isRange || lo == "" {
		val, err := v.elem.Convert(item)
		if err != nil {
			return nil, convertErr(v, item, err)
		}
		return []any{val}, nil
	}
	from, err := Int.Convert(lo)
	if err != nil {
		return nil, convertErr(v, item, err)
	}
	to, err := Int.Convert(hi)
	if err != nil {
		return nil, convertErr(v, item, err)
	}
	a, b := from.(int64), to.(int64)
	if b < a {
		return nil, convertErr(v, item, errors.New("descending range"))
	}
	// Exact for any b >= a, even when b-a overflows int64.
	if span := uint64(b) - uint64(a); span >= MaxRangeSpan {
		return nil, convertErr(v, item, errors.Newf("range spans more than %d values", MaxRangeSpan))
	}
	out := make([]any, 0, b-a+1)
	for n := a; n <= b; n++ {
		val, err := v.elem.Convert(Format(n))
		if err != nil {
			return nil, convertErr(v, item, err)
		}
		out = append(out, val)
	}
	return out, nil
}

func (v *vector) Encode(val any) any {
	items, _ := val.([]any)
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = v.elem.Encode(item)
	}
	return out
}

func (v *vector) Decode(enc any) (any, error) {
	items, ok := enc.([]any)
	if !ok {
		return nil, convertErr(v, Format(enc), nil)
	}
	out := make([]any, len(items))
	for i, item := range items {
		val, err := v.elem.Decode(item)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

func splitItems(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Distinct sorts values by Order and drops duplicates.
func Distinct(vals []any) []any {
	out := append([]any(nil), vals...)
	sort.SliceStable(out, func(i, j int) bool { return Order(out[i], out[j]) < 0 })
	n := 0
	for i, v := range out {
		if i > 0 && Order(out[n-1], v) == 0 {
			continue
		}
		out[n] = v
		n++
	}
	return out[:n]
}

// combination tries each alternative in order; the first that converts wins.
type combination struct {
	alts []Type
}

// NewCombination builds an "a|b|c" type.
func NewCombination(alts ...Type) Type { return &combination{alts: alts} }

func (c *combination) Name() string {
	names := make([]string, len(c.alts))
	for i, a := range c.alts {
		names[i] = a.Name()
	}
	return strings.Join(names, "|")
}

func (c *combination) Indexable() bool {
	for _, a := range c.alts {
		if !a.Indexable() {
			return false
		}
	}
	return true
}

func (c *combination) Empty() any { return c.alts[0].Empty() }

func (c *combination) Convert(raw string) (any, error) {
	var errs error
	for _, a := range c.alts {
		v, err := a.Convert(raw)
		if err == nil {
			return v, nil
		}
		errs = errors.CombineErrors(errs, err)
	}
	return nil, convertErr(c, raw, errs)
}

// Encode stores the winning alternative's index with its encoding.
func (c *combination) Encode(v any) any {
	for i, a := range c.alts {
		if _, err := a.Convert(Format(v)); err == nil {
			return []any{float64(i), a.Encode(v)}
		}
	}
	return []any{float64(0), c.alts[0].Encode(v)}
}

func (c *combination) Decode(enc any) (any, error) {
	pair, ok := enc.([]any)
	if !ok || len(pair) != 2 {
		return nil, convertErr(c, Format(enc), nil)
	}
	i, err := toIndex(pair[0])
	if err != nil || i < 0 || i >= len(c.alts) {
		return nil, convertErr(c, Format(enc), err)
	}
	return c.alts[i].Decode(pair[1])
}

func toIndex(v any) (int, error) {
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int64:
		return int(n), nil
	case int:
		return n, nil
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return int(i), err
	}
	return 0, errors.Newf("not an index: %v", v)
}
