package awardwizard

import "strings"

// ChangeKind is the input type a change event originates from.
type ChangeKind string

const (
	ChangeText     ChangeKind = "text"
	ChangeCheckbox ChangeKind = "checkbox"
	ChangeFile     ChangeKind = "file"
)

// Change describes one input change event.
type Change struct {
	Name    string
	Kind    ChangeKind
	Value   string
	Checked bool
	Files   []*FileRef
}

// ParseChangeKind maps an HTML input type to a ChangeKind. Anything other
// than checkbox or file (radio, select, textarea, email, ...) is text.
func ParseChangeKind(s string) ChangeKind {
	switch ChangeKind(strings.ToLower(strings.TrimSpace(s))) {
	case ChangeCheckbox:
		return ChangeCheckbox
	case ChangeFile:
		return ChangeFile
	default:
		return ChangeText
	}
}

// Reduce returns the next form state with only c.Name replaced.
// prev is never modified.
func Reduce(prev FormState, c Change) FormState {
	next := prev.Clone()
	switch c.Kind {
	case ChangeCheckbox:
		next[c.Name] = Bool(c.Checked)
	case ChangeFile:
		if len(c.Files) > 0 {
			next[c.Name] = File(c.Files[0])
		} else {
			next[c.Name] = Null()
		}
	default:
		next[c.Name] = Text(c.Value)
	}
	return next
}
