package field

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Builtin scalar types.
var (
	Int      Type = intType{}
	String   Type = stringType{}
	Bool     Type = boolType{}
	Currency Type = currencyType{}
	IPv4     Type = ipType{name: "ipv4", bits: 32}
	IPv6     Type = ipType{name: "ipv6", bits: 128}
)

// scalarCodec gives every scalar the same text-based Encode/Decode.
type scalarCodec struct{}

func (scalarCodec) Indexable() bool { return true }
func (scalarCodec) Empty() any      { return nil }

type intType struct{ scalarCodec }

func (intType) Name() string { return "int" }

func (t intType) Convert(raw string) (any, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), "_", "")
	base := 10
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		base = 0
	}
	n, err := strconv.ParseInt(s, base, 64)
	if err != nil {
		return nil, convertErr(t, raw, nil)
	}
	return n, nil
}

func (intType) Encode(v any) any { return Format(v) }

func (t intType) Decode(enc any) (any, error) { return decodeText(t, enc) }

type stringType struct{ scalarCodec }

func (stringType) Name() string                    { return "string" }
func (stringType) Convert(raw string) (any, error) { return raw, nil }
func (stringType) Encode(v any) any                { return Format(v) }
func (t stringType) Decode(enc any) (any, error)   { return decodeText(t, enc) }

type boolType struct{ scalarCodec }

func (boolType) Name() string { return "bool" }

func (t boolType) Convert(raw string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "on", "1", "x":
		return true, nil
	case "false", "no", "n", "off", "0", "-":
		return false, nil
	}
	return nil, convertErr(t, raw, nil)
}

func (boolType) Encode(v any) any              { return Format(v) }
func (t boolType) Decode(enc any) (any, error) { return decodeText(t, enc) }

type currencyType struct{ scalarCodec }

func (currencyType) Name() string { return "currency" }

func (t currencyType) Convert(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "$€£")
	s = strings.ReplaceAll(s, ",", "")
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, convertErr(t, raw, err)
	}
	if d.Form != apd.Finite {
		return nil, convertErr(t, raw, nil)
	}
	return d, nil
}

func (currencyType) Encode(v any) any              { return Format(v) }
func (t currencyType) Decode(enc any) (any, error) { return decodeText(t, enc) }

type ipType struct {
	scalarCodec
	name string
	bits int
}

func (t ipType) Name() string { return t.name }

func (t ipType) Convert(raw string) (any, error) {
	ip, err := ParseIP(strings.TrimSpace(raw))
	if err != nil {
		return nil, convertErr(t, raw, err)
	}
	if ip.Addr.BitLen() != t.bits {
		return nil, convertErr(t, raw, nil)
	}
	return ip, nil
}

func (t ipType) Encode(v any) any            { return Format(v) }
func (t ipType) Decode(enc any) (any, error) { return decodeText(t, enc) }

func decodeText(t Type, enc any) (any, error) {
	s, ok := enc.(string)
	if !ok {
		return nil, convertErr(t, fmt.Sprint(enc), nil)
	}
	return t.Convert(s)
}

// Format renders a value the way it would be written in a cell.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case *apd.Decimal:
		return x.Text('f')
	case IP:
		return x.String()
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = Format(e)
		}
		return strings.Join(parts, ",")
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
