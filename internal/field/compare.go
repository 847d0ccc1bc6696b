package field

import (
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/cockroachdb/errors"
)

// ErrIncomparable is returned when two values have no common ordering.
var ErrIncomparable = errors.New("values are not comparable")

// Equaler lets composite values (entities, collections) define equality.
// A non-nil error means the comparison itself is invalid.
type Equaler interface {
	Equal(other any) (bool, error)
}

// Normalize maps Go literals onto the value types Convert produces so that
// callers can write Filter(nil, map[string]any{"id": 1}).
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case apd.Decimal:
		return &x
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	}
	return v
}

// Compare orders two values of the same scalar kind.
func Compare(a, b any) (int, error) {
	a, b = Normalize(a), Normalize(b)
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpInt(x, y), nil
		case *apd.Decimal:
			return apd.New(x, 0).Cmp(y), nil
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			}
			return 1, nil
		}
	case *apd.Decimal:
		switch y := b.(type) {
		case *apd.Decimal:
			return x.Cmp(y), nil
		case int64:
			return x.Cmp(apd.New(y, 0)), nil
		}
	case IP:
		if y, ok := b.(IP); ok {
			return x.Compare(y), nil
		}
	case []any:
		if y, ok := b.([]any); ok {
			for i := 0; i < len(x) && i < len(y); i++ {
				c, err := Compare(x[i], y[i])
				if err != nil || c != 0 {
					return c, err
				}
			}
			return cmpInt(int64(len(x)), int64(len(y))), nil
		}
	}
	return 0, errors.Wrapf(ErrIncomparable, "%T and %T", a, b)
}

// Equal reports value equality. Values of different kinds are unequal;
// the error is only set when an Equaler rejects the comparison.
func Equal(a, b any) (bool, error) {
	if e, ok := a.(Equaler); ok {
		return e.Equal(b)
	}
	if e, ok := b.(Equaler); ok {
		return e.Equal(a)
	}
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}
	c, err := Compare(a, b)
	if err != nil {
		return false, nil
	}
	return c == 0, nil
}

// Same is Equal with errors treated as inequality.
func Same(a, b any) bool {
	ok, err := Equal(a, b)
	return err == nil && ok
}

// Order is a total order over every value kind: nil sorts last, kinds are
// grouped by rank and compared within a kind.
func Order(a, b any) int {
	a, b = Normalize(a), Normalize(b)
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}
	if c, err := Compare(a, b); err == nil {
		return c
	}
	return strings.Compare(Format(a), Format(b))
}

func rank(v any) int {
	switch v.(type) {
	case bool:
		return 0
	case int64, *apd.Decimal:
		return 1
	case IP:
		return 2
	case string:
		return 3
	case []any:
		return 4
	case nil:
		return 6
	}
	return 5
}

// Truthy mirrors how predicates treat non-boolean results.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case interface{ Len() int }:
		return x.Len() > 0
	}
	return true
}

// IsEmpty reports whether v counts as an absent value.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
