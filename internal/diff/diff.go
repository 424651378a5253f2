// Package diff recovers a single edit operation from two whole-buffer
// snapshots of a text control.
package diff

import "fmt"

// OpKind is the kind of edit recovered from a snapshot pair.
type OpKind int

const (
	None OpKind = iota
	Insert
	Delete
)

func (k OpKind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	default:
		return "none"
	}
}

// Op is one edit. Index and Length count runes, not bytes.
// Text is set for Insert, Length for Delete.
type Op struct {
	Kind   OpKind
	Index  int
	Text   string
	Length int
}

func (o Op) String() string {
	switch o.Kind {
	case Insert:
		return fmt.Sprintf("insert{%d,%q}", o.Index, o.Text)
	case Delete:
		return fmt.Sprintf("delete{%d,%d}", o.Index, o.Length)
	default:
		return "none"
	}
}

// Extract returns the single edit turning prev into next.
//
// The common prefix and suffix are trimmed (never overlapping) and whatever is
// left in the middle is the changed region. A non-empty removed slice is
// reported as a Delete even if something was inserted too; such mixed
// snapshots cannot be expressed as one op and the delete side wins.
func Extract(prev, next string) Op {
	a := []rune(prev)
	b := []rune(next)

	limit := min(len(a), len(b))

	p := 0
	for p < limit && a[p] == b[p] {
		p++
	}

	s := 0
	for s < limit-p && a[len(a)-1-s] == b[len(b)-1-s] {
		s++
	}

	removed := len(a) - s - p
	inserted := b[p : len(b)-s]

	if removed > 0 {
		return Op{Kind: Delete, Index: p, Length: removed}
	}
	if len(inserted) > 0 {
		return Op{Kind: Insert, Index: p, Text: string(inserted)}
	}
	return Op{Kind: None}
}

// Apply replays op on text. Out-of-range indices are clamped.
func Apply(text string, op Op) string {
	r := []rune(text)
	at := clamp(op.Index, 0, len(r))

	switch op.Kind {
	case Insert:
		out := make([]rune, 0, len(r)+len(op.Text))
		out = append(out, r[:at]...)
		out = append(out, []rune(op.Text)...)
		out = append(out, r[at:]...)
		return string(out)
	case Delete:
		end := clamp(at+op.Length, at, len(r))
		return string(append(r[:at:at], r[end:]...))
	default:
		return text
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
