package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-git/go-billy/v5"
)

// DefaultDelimiter is used when no line starts with a delimiter.
const DefaultDelimiter = ';'

var bom = []byte{0xEF, 0xBB, 0xBF}

// Record is one parsed CSV line with surrounding whitespace removed from
// every cell.
type Record struct {
	Line  int
	Cells []string
}

// First returns the leading cell, or "".
func (r Record) First() string {
	if len(r.Cells) == 0 {
		return ""
	}
	return r.Cells[0]
}

// Cell returns cell i, or "" past the end.
func (r Record) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// Blank reports whether every cell is empty.
func (r Record) Blank() bool {
	for _, c := range r.Cells {
		if c != "" {
			return false
		}
	}
	return true
}

// Comment reports whether the row is a comment ("#...") or suppressed ("!").
func (r Record) Comment() bool {
	f := r.First()
	return strings.HasPrefix(f, "#") || f == "!"
}

// truncated drops the cells from the first "!" marker onward.
func (r Record) truncated() Record {
	for i, c := range r.Cells {
		if i > 0 && strings.HasPrefix(c, "!") {
			return Record{Line: r.Line, Cells: r.Cells[:i]}
		}
	}
	return r
}

// Source is a parsed CSV file.
type Source struct {
	Name      string
	Delimiter rune
	Records   []Record
}

// DetectDelimiter returns the delimiter of the first line that starts
// with ',' or ';'.
func DetectDelimiter(data []byte) rune {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimLeft(sc.Text(), " \t")
		if line == "" {
			continue
		}
		switch line[0] {
		case ',', ';':
			return rune(line[0])
		}
	}
	return DefaultDelimiter
}

// ParseSource tokenizes CSV text. Blank rows are kept so that header
// detection can see them; callers drop them from data.
func ParseSource(name string, data []byte) (*Source, error) {
	data = bytes.TrimPrefix(data, bom)
	src := &Source{Name: name, Delimiter: DetectDelimiter(data)}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = src.Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	for {
		cells, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &LoadError{Source: name, Err: errors.Wrap(err, "parse csv")}
		}
		line, _ := r.FieldPos(0)
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		src.Records = append(src.Records, Record{Line: line, Cells: cells})
	}
	return src, nil
}

// ReadSource reads and parses path from fsys.
func ReadSource(fsys billy.Filesystem, path string) (*Source, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	return ParseSource(path, data)
}
