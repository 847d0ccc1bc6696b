// Package field holds the value types a CSV column can declare and the
// catalog that maps type names such as "list.ip" or "int|string" onto them.
package field

import (
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrConvert marks a cell that does not match its declared type.
var ErrConvert = errors.New("cell conversion failed")

// ErrUnknownType is returned by the catalog for unregistered type names.
var ErrUnknownType = errors.New("unknown field type")

// Type converts raw cell text into a typed value.
// Values produced by a Type are immutable once returned.
type Type interface {
	// Name is the catalog name the type was looked up by.
	Name() string
	// Convert parses one non-empty cell.
	Convert(raw string) (any, error)
	// Indexable reports whether values can be kept in a sorted index.
	Indexable() bool
	// Empty is the typed default for a known field with no value.
	Empty() any
	// Encode returns a JSON-safe form of v. Decode reverses it.
	Encode(v any) any
	Decode(enc any) (any, error)
}

// Elementer is implemented by vector types.
type Elementer interface {
	Elem() Type
}

// Catalog resolves textual type names. The zero value is not usable; use
// NewCatalog or Default.
type Catalog struct {
	mu      sync.RWMutex
	scalars map[string]Type
	vectors map[string]func(Type) Type
	cache   map[string]Type
}

// NewCatalog returns a catalog with the builtin scalar and vector types.
func NewCatalog() *Catalog {
	c := &Catalog{
		scalars: make(map[string]Type),
		vectors: make(map[string]func(Type) Type),
		cache:   make(map[string]Type),
	}
	for _, t := range []Type{Int, String, Bool, Currency, IPv4, IPv6} {
		c.Register(t.Name(), t)
	}
	c.Register("str", String)
	c.Register("ip", IPv4)
	c.RegisterVector("list", NewList)
	c.RegisterVector("set", NewSet)
	c.RegisterVector("range", NewRange)
	c.RegisterVector("rangelist", NewRangeList)
	return c
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the process-wide catalog.
func Default() *Catalog {
	defaultOnce.Do(func() { defaultCatalog = NewCatalog() })
	return defaultCatalog
}

// Register adds or replaces a scalar type name.
func (c *Catalog) Register(name string, t Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scalars[strings.ToLower(name)] = t
	c.cache = make(map[string]Type)
}

// RegisterVector adds a wrapper prefix such as "list".
func (c *Catalog) RegisterVector(prefix string, wrap func(Type) Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[strings.ToLower(prefix)] = wrap
	c.cache = make(map[string]Type)
}

// Names lists every registered scalar name and vector prefix.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.scalars)+len(c.vectors))
	for n := range c.scalars {
		names = append(names, n)
	}
	for p := range c.vectors {
		names = append(names, p+".*")
	}
	sort.Strings(names)
	return names
}

// Lookup parses a type expression: a scalar name, a vector prefix applied to
// a type ("list.ip"), or a combination of alternatives ("int|string").
func (c *Catalog) Lookup(name string) (Type, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "string"
	}

	c.mu.RLock()
	t, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := c.parse(key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = t
	c.mu.Unlock()
	return t, nil
}

func (c *Catalog) parse(key string) (Type, error) {
	if strings.Contains(key, "|") {
		var alts []Type
		for _, part := range strings.Split(key, "|") {
			t, err := c.parse(strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			alts = append(alts, t)
		}
		return NewCombination(alts...), nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parseLocked(key)
}

func (c *Catalog) parseLocked(key string) (Type, error) {
	if t, ok := c.scalars[key]; ok {
		return t, nil
	}
	if prefix, rest, ok := strings.Cut(key, "."); ok {
		wrap, found := c.vectors[prefix]
		if !found {
			return nil, errors.Wrapf(ErrUnknownType, "%q", key)
		}
		elem, err := c.parseLocked(rest)
		if err != nil {
			return nil, err
		}
		return wrap(elem), nil
	}
	return nil, errors.Wrapf(ErrUnknownType, "%q", key)
}

func convertErr(t Type, raw string, cause error) error {
	if cause != nil {
		return errors.Mark(errors.Wrapf(cause, "%q is not a valid %s", raw, t.Name()), ErrConvert)
	}
	return errors.Mark(errors.Newf("%q is not a valid %s", raw, t.Name()), ErrConvert)
}
