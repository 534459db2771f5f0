// Package awardwizard implements the registration wizard for the Alumni
// Entrepreneur Award: form state, step navigation, persistence, the
// unsaved-changes guard and the two-phase submission protocol.
package awardwizard

import (
	"maps"
	"slices"
)

// ValueKind identifies the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindText
	KindBool
	KindFile
	// KindPlaceholder stands in for a file after a persist/load round trip.
	// It has the file's metadata but no content.
	KindPlaceholder
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindFile:
		return "file"
	case KindPlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// FileRef is a live handle to a file the user selected.
type FileRef struct {
	Name        string
	Size        int64
	ContentType string
	Data        []byte
}

// Value is a single form field value.
type Value struct {
	kind ValueKind
	text string
	b    bool
	file *FileRef
}

// Null returns the empty value.
func Null() Value { return Value{} }

// Text returns a text value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// File returns a file value. A nil ref yields Null.
func File(f *FileRef) Value {
	if f == nil {
		return Null()
	}
	return Value{kind: KindFile, file: f}
}

// Placeholder returns a content-less stand-in for a previously selected file.
func Placeholder(name string, size int64, contentType string) Value {
	return Value{kind: KindPlaceholder, file: &FileRef{Name: name, Size: size, ContentType: contentType}}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is empty.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text returns the text content, or "" for other kinds.
func (v Value) Text() string { return v.text }

// Bool returns the boolean content, or false for other kinds.
func (v Value) Bool() bool { return v.b }

// File returns the live file for KindFile and the metadata-only ref for
// KindPlaceholder.
func (v Value) File() *FileRef { return v.file }

// Display renders the value for the review step.
func (v Value) Display() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindBool:
		if v.b {
			return "Yes"
		}
		return "No"
	case KindFile:
		return v.file.Name
	case KindPlaceholder:
		return v.file.Name + " (please re-select)"
	default:
		return ""
	}
}

// Equal compares two values. File values compare by metadata, not content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindBool:
		return v.b == o.b
	case KindFile, KindPlaceholder:
		return v.file.Name == o.file.Name && v.file.Size == o.file.Size && v.file.ContentType == o.file.ContentType
	default:
		return true
	}
}

// FormState holds the accumulated field values across all steps.
type FormState map[string]Value

// Get returns the value for name, or Null when absent.
func (s FormState) Get(name string) Value {
	return s[name]
}

// Text is shorthand for Get(name).Text().
func (s FormState) Text(name string) string {
	return s[name].Text()
}

// IsEmpty reports whether no key holds a populated value.
func (s FormState) IsEmpty() bool {
	for _, v := range s {
		if !v.IsNull() {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy. FileRefs are shared.
func (s FormState) Clone() FormState {
	if s == nil {
		return FormState{}
	}
	return maps.Clone(s)
}

// Files returns the names of keys holding live files, sorted.
func (s FormState) Files() []string {
	var names []string
	for k, v := range s {
		if v.kind == KindFile {
			names = append(names, k)
		}
	}
	slices.Sort(names)
	return names
}

// Payload converts the state to a JSON-ready map. File, placeholder and
// null values are left out; a cleared file input holds null.
func (s FormState) Payload() map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		switch v.kind {
		case KindText:
			out[k] = v.text
		case KindBool:
			out[k] = v.b
		}
	}
	return out
}

// Equal reports whether both states hold equal values for the same keys.
func (s FormState) Equal(o FormState) bool {
	return maps.EqualFunc(s, o, Value.Equal)
}
