package editor

// TextArea is an in-memory Control. Type simulates a user edit and reports
// the new snapshot to the input handler, the way a browser textarea fires its
// change event.
type TextArea struct {
	value      string
	start, end int
	onInput    func(value string)
}

func NewTextArea() *TextArea {
	return &TextArea{}
}

func (ta *TextArea) Value() string {
	return ta.value
}

func (ta *TextArea) SetValue(value string) {
	ta.value = value
}

func (ta *TextArea) Selection() (int, int) {
	return ta.start, ta.end
}

func (ta *TextArea) SetSelection(start, end int) {
	ta.start, ta.end = start, end
}

// OnInput sets the handler receiving snapshots produced by Type.
func (ta *TextArea) OnInput(fn func(value string)) {
	ta.onInput = fn
}

// Type replaces the whole value, puts the caret at caret and fires the
// input handler.
func (ta *TextArea) Type(value string, caret int) {
	ta.value = value
	ta.start, ta.end = caret, caret
	if ta.onInput != nil {
		ta.onInput(value)
	}
}
