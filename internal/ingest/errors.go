package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrHeaderOrder is returned when a selector column follows an
	// attribute column, or a selector is malformed.
	ErrHeaderOrder = errors.New("selector columns must precede attribute columns")
	// ErrUnresolvedPath is returned when a table path or selector segment
	// names a table that does not exist yet.
	ErrUnresolvedPath = errors.New("unresolved table path")
	// ErrNoLinkGroup is returned when no role combination of a link block
	// resolves.
	ErrNoLinkGroup = errors.New("no valid link group")
	// ErrMissingHeader is returned when a block lacks its type or role row.
	ErrMissingHeader = errors.New("missing header row")
)

// LoadError locates a failure in a source.
type LoadError struct {
	Source string
	Row    int
	Err    error
}

func (e *LoadError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%s:%d: %v", e.Source, e.Row, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func loadErr(source string, row int, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Source: source, Row: row, Err: err}
}

// RowWarning collects the recoverable problems of one row.
type RowWarning struct {
	Row      int
	Messages []string
}

// Warnings maps a source to its row warnings, in row order.
type Warnings map[string][]RowWarning

func (w Warnings) add(source string, row int, msg string) {
	rows := w[source]
	if n := len(rows); n > 0 && rows[n-1].Row == row {
		rows[n-1].Messages = append(rows[n-1].Messages, msg)
		return
	}
	w[source] = append(rows, RowWarning{Row: row, Messages: []string{msg}})
}

// Count returns the number of messages across all sources.
func (w Warnings) Count() int {
	n := 0
	for _, rows := range w {
		for _, r := range rows {
			n += len(r.Messages)
		}
	}
	return n
}

// Sources lists the sources with warnings, sorted.
func (w Warnings) Sources() []string {
	out := make([]string, 0, len(w))
	for s := range w {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (w Warnings) String() string {
	var b strings.Builder
	for _, src := range w.Sources() {
		for _, r := range w[src] {
			for _, m := range r.Messages {
				fmt.Fprintf(&b, "%s:%d: %s\n", src, r.Row, m)
			}
		}
	}
	return b.String()
}
