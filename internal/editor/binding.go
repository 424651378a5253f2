// Package editor keeps a plain text control and a replicated document in
// step.
//
// The control only reports whole-buffer snapshots. Local input is turned
// into a single insert or delete with diff.Extract; document changes (local
// or remote) are written back over the control with the selection clamped to
// the new length.
package editor

import (
	"fmt"
	"unicode/utf8"

	"storysync/internal/diff"
)

// Control is a text-editing widget. Offsets are in runes.
type Control interface {
	Value() string
	SetValue(value string)
	Selection() (start, end int)
	SetSelection(start, end int)
}

// Document is the text side of the replicated document.
type Document interface {
	String() string
	Insert(index int, text string) error
	Delete(index, length int) error
	OnChange(fn func()) (cancel func())
}

// Binding ties one control to one document.
type Binding struct {
	doc     Document
	control Control
	prev    string
	cancel  func()
}

// Bind shows the document's current text in control and keeps it there.
func Bind(doc Document, control Control) *Binding {
	b := &Binding{doc: doc, control: control}
	b.refresh()
	b.cancel = doc.OnChange(b.refresh)
	return b
}

// HandleInput takes the control's new full value and applies the edit it
// represents to the document. It returns the op that was applied.
func (b *Binding) HandleInput(next string) (diff.Op, error) {
	op := diff.Extract(b.prev, next)

	var err error
	switch op.Kind {
	case diff.None:
		return op, nil
	case diff.Delete:
		err = b.doc.Delete(op.Index, op.Length)
	case diff.Insert:
		err = b.doc.Insert(op.Index, op.Text)
	}
	if err != nil {
		return op, fmt.Errorf("apply %s: %w", op, err)
	}

	b.prev = b.doc.String()
	return op, nil
}

// Text returns the last buffer value the binding knows about.
func (b *Binding) Text() string {
	return b.prev
}

// Close stops reflecting document changes into the control.
func (b *Binding) Close() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// refresh overwrites the control. The caret is clamped, not shifted: a
// remote edit before the caret leaves the caret at the same offset.
func (b *Binding) refresh() {
	value := b.doc.String()
	b.prev = value

	start, end := b.control.Selection()
	n := utf8.RuneCountInString(value)

	b.control.SetValue(value)
	b.control.SetSelection(clamp(start, n), clamp(end, n))
}

func clamp(offset, length int) int {
	if offset < 0 {
		return 0
	}
	if offset > length {
		return length
	}
	return offset
}
