package document

import (
	"bytes"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/regsync/regsync/internal/tree"
)

// DiffOp classifies a line of a document diff.
type DiffOp int

const (
	DiffEqual DiffOp = iota
	DiffDelete
	DiffInsert
)

// DiffLine is one line of a line-oriented diff between two renderings.
type DiffLine struct {
	Op   DiffOp
	Text string
}

// Render encodes n with the JSON codec.
func Render(n *tree.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := JSON.Encode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Diff returns the line diff that turns the JSON rendering of from into the
// rendering of to.
func Diff(from, to *tree.Node) ([]DiffLine, error) {
	a, err := Render(from)
	if err != nil {
		return nil, err
	}
	b, err := Render(to)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(string(a), string(b))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var out []DiffLine
	for _, d := range diffs {
		op := DiffEqual
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = DiffDelete
		case diffmatchpatch.DiffInsert:
			op = DiffInsert
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out = append(out, DiffLine{Op: op, Text: strings.TrimSuffix(line, "\n")})
		}
	}
	return out, nil
}

// MergePatch returns the RFC 7386 merge patch that turns the JSON rendering
// of from into the rendering of to.
func MergePatch(from, to *tree.Node) ([]byte, error) {
	a, err := Render(from)
	if err != nil {
		return nil, err
	}
	b, err := Render(to)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreateMergePatch(a, b)
}
