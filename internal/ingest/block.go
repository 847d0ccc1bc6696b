package ingest

import (
	"strings"

	"github.com/agentic-research/netmodel/internal/field"
	"github.com/cockroachdb/errors"
)

// VariablesTable is the table whose columns become values on the root.
const VariablesTable = "variables"

type BlockKind int

const (
	TableBlock BlockKind = iota
	LinkBlock
)

func (k BlockKind) String() string {
	if k == LinkBlock {
		return "link"
	}
	return "table"
}

// Block is one table or link declaration and its data rows.
//
// A table block is an optional type row followed by a name row whose first
// cell holds the dotted table path. A link block is a role row, a type row
// and a name row whose first cell starts with '*'. Data rows have an empty
// first cell.
type Block struct {
	Kind   BlockKind
	Source string
	Path   string
	Roles  *Record
	Types  *Record
	Names  Record
	Rows   []Record
}

// Depth is the number of segments in the block's path.
func (b *Block) Depth() int { return strings.Count(b.Path, ".") + 1 }

// Line is the line of the name row.
func (b *Block) Line() int { return b.Names.Line }

// typeAt returns the type cell of column i.
func (b *Block) typeAt(i int) string {
	if b.Types == nil {
		return ""
	}
	return b.Types.Cell(i)
}

func (b *Block) roleAt(i int) string {
	if b.Roles == nil {
		return ""
	}
	return b.Roles.Cell(i)
}

// Segment splits a source into blocks. cat decides whether the row above a
// table's name row is a type row: it is when every non-empty cell names a
// known type, and is data of the previous block otherwise.
func Segment(src *Source, cat *field.Catalog) ([]*Block, error) {
	recs := src.Records
	var headers []int
	for i, r := range recs {
		if r.First() != "" && !r.Comment() {
			headers = append(headers, i)
		}
	}

	starts := make([]int, len(headers))
	blocks := make([]*Block, len(headers))
	prev := -1
	for k, i := range headers {
		names := recs[i].truncated()
		b := &Block{Source: src.Name, Names: names, Path: names.First()}
		starts[k] = i
		if strings.HasPrefix(b.Path, "*") {
			b.Kind = LinkBlock
			b.Path = strings.TrimSpace(strings.TrimPrefix(b.Path, "*"))
			if i-2 <= prev || !headerRow(recs[i-2]) || !headerRow(recs[i-1]) {
				return nil, &LoadError{Source: src.Name, Row: names.Line,
					Err: errors.Wrapf(ErrMissingHeader, "link %q needs role and type rows", b.Path)}
			}
			roles, types := recs[i-2].truncated(), recs[i-1].truncated()
			b.Roles, b.Types = &roles, &types
			starts[k] = i - 2
		} else if i-1 > prev && isTypeRow(recs[i-1], cat) {
			types := recs[i-1].truncated()
			b.Types = &types
			starts[k] = i - 1
		}
		if b.Path == "" {
			return nil, &LoadError{Source: src.Name, Row: names.Line, Err: errors.New("empty table path")}
		}
		blocks[k] = b
		prev = i
	}

	for k, i := range headers {
		end := len(recs)
		if k+1 < len(headers) {
			end = starts[k+1]
		}
		for _, r := range recs[i+1 : end] {
			if r.Blank() || r.Comment() {
				continue
			}
			blocks[k].Rows = append(blocks[k].Rows, r)
		}
	}
	return blocks, nil
}

func headerRow(r Record) bool {
	return r.First() == "" && !r.Comment()
}

func isTypeRow(r Record, cat *field.Catalog) bool {
	if !headerRow(r) {
		return false
	}
	cells := r.truncated().Cells
	for i := 1; i < len(cells); i++ {
		typeName, _ := splitAliases(cells[i])
		if typeName == "" {
			continue
		}
		if _, err := cat.Lookup(typeName); err != nil {
			return false
		}
	}
	return true
}

// splitAliases splits "base//a//b" into "base" and ["a", "b"].
func splitAliases(cell string) (string, []string) {
	parts := strings.Split(cell, "//")
	var aliases []string
	for _, a := range parts[1:] {
		if a = strings.TrimSpace(a); a != "" {
			aliases = append(aliases, a)
		}
	}
	return strings.TrimSpace(parts[0]), aliases
}
