package awardwizard

import "fmt"

// StepKind tags the variant of a Step.
type StepKind int

const (
	// StepForm is an editable step bound to the form state.
	StepForm StepKind = iota
	// StepReview is the read-only summary shown before submission.
	StepReview
)

func (k StepKind) String() string {
	switch k {
	case StepForm:
		return "form"
	case StepReview:
		return "review"
	default:
		return "unknown"
	}
}

// FieldInput is the HTML input type a field is rendered with.
type FieldInput string

const (
	InputText     FieldInput = "text"
	InputEmail    FieldInput = "email"
	InputTextarea FieldInput = "textarea"
	InputRadio    FieldInput = "radio"
	InputCheckbox FieldInput = "checkbox"
	InputFile     FieldInput = "file"
)

// ChangeKind returns how changes from this input are reduced.
func (in FieldInput) ChangeKind() ChangeKind {
	return ParseChangeKind(string(in))
}

// Option is one choice of a radio field.
type Option struct {
	Value string
	Label string
}

// Condition makes a field visible only when another field has a value.
type Condition struct {
	Field  string
	Equals string
}

// FieldSpec describes one input of a step.
type FieldSpec struct {
	Name     string
	Label    string
	Input    FieldInput
	Required bool
	Options  []Option
	Accept   string
	ShowIf   *Condition
}

// Visible reports whether the field is shown for state s.
func (f FieldSpec) Visible(s FormState) bool {
	if f.ShowIf == nil {
		return true
	}
	return s.Text(f.ShowIf.Field) == f.ShowIf.Equals
}

// Step is one entry of the step sequence.
type Step struct {
	Kind   StepKind
	Title  string
	Intro  string // markdown
	Fields []FieldSpec
}

// ReviewRow is one line of the review summary.
type ReviewRow struct {
	Label string
	Value string
}

// Review builds the summary rows of every visible field of the form steps.
func Review(steps []Step, s FormState) []ReviewRow {
	var rows []ReviewRow
	for _, st := range steps {
		if st.Kind != StepForm {
			continue
		}
		for _, f := range st.Fields {
			if !f.Visible(s) {
				continue
			}
			v := s.Get(f.Name)
			display := v.Display()
			if display == "" {
				if f.Input == InputFile {
					display = "Not uploaded"
				} else if f.Input == InputCheckbox {
					display = "No"
				}
			}
			rows = append(rows, ReviewRow{Label: f.Label, Value: display})
		}
	}
	return rows
}

var yesNo = []Option{{Value: "yes", Label: "Yes"}, {Value: "no", Label: "No"}}

// DefaultSteps returns the award registration steps.
func DefaultSteps() []Step {
	return []Step{
		{
			Kind:  StepForm,
			Title: "Personal Information",
			Fields: []FieldSpec{
				{Name: "fullName", Label: "Full Name", Input: InputText, Required: true},
				{Name: "email", Label: "Email", Input: InputEmail, Required: true},
				{Name: "companyName", Label: "Company", Input: InputText, Required: true},
			},
		},
		{
			Kind:  StepForm,
			Title: "Innovation & IP",
			Fields: []FieldSpec{
				{Name: "innovations", Label: "Key innovations introduced by your company", Input: InputTextarea, Required: true},
				{Name: "hasIpr", Label: "Filed or granted Intellectual Property Rights (IPRs)", Input: InputRadio, Required: true, Options: yesNo},
				{Name: "iprDetails", Label: "Type of IPR and details", Input: InputTextarea, ShowIf: &Condition{Field: "hasIpr", Equals: "yes"}},
			},
		},
		{
			Kind:  StepForm,
			Title: "Merger & Acquisition",
			Intro: "Upload your **business plan** as a PDF. Files are not kept if you reload the page; select it again before submitting.",
			Fields: []FieldSpec{
				{Name: "hasMerger", Label: "Merger or acquisition involving a corporate or MNC", Input: InputRadio, Required: true, Options: yesNo},
				{Name: "mergerDetails", Label: "Merger details", Input: InputTextarea, ShowIf: &Condition{Field: "hasMerger", Equals: "yes"}},
				{Name: "businessPlan", Label: "Business Plan", Input: InputFile, Accept: ".pdf"},
			},
		},
		{
			Kind:  StepForm,
			Title: "Awards & Collaborations",
			Intro: "By submitting you confirm that the information provided is accurate and you accept the award's *terms and conditions*.",
			Fields: []FieldSpec{
				{Name: "hasForeign", Label: "Foreign collaborations or international presence", Input: InputRadio, Required: true, Options: yesNo},
				{Name: "foreignDescription", Label: "Nature of foreign collaborations", Input: InputTextarea, ShowIf: &Condition{Field: "hasForeign", Equals: "yes"}},
				{Name: "hasAwards", Label: "Notable awards, certifications or recognitions", Input: InputRadio, Required: true, Options: yesNo},
				{Name: "agreeToTerms", Label: "Agreed to Terms", Input: InputCheckbox, Required: true},
			},
		},
		{
			Kind:  StepReview,
			Title: "Review Your Information",
		},
	}
}

// ValidateSteps checks that steps has exactly TotalSteps entries, that
// only the last one is a review step and that field names are unique.
func ValidateSteps(steps []Step) error {
	if len(steps) != TotalSteps {
		return fmt.Errorf("expected %d steps, got %d", TotalSteps, len(steps))
	}
	seen := make(map[string]int)
	for i, st := range steps {
		last := i == len(steps)-1
		if last && st.Kind != StepReview {
			return fmt.Errorf("step %d: last step must be a review step", i+1)
		}
		if !last && st.Kind == StepReview {
			return fmt.Errorf("step %d: only the last step may be a review step", i+1)
		}
		for _, f := range st.Fields {
			if f.Name == "" {
				return fmt.Errorf("step %d: field without a name", i+1)
			}
			if prev, ok := seen[f.Name]; ok {
				return fmt.Errorf("step %d: field %q already declared in step %d", i+1, f.Name, prev)
			}
			seen[f.Name] = i + 1
		}
	}
	return nil
}

// FieldByName finds a field across all steps.
func FieldByName(steps []Step, name string) (FieldSpec, bool) {
	for _, st := range steps {
		for _, f := range st.Fields {
			if f.Name == name {
				return f, true
			}
		}
	}
	return FieldSpec{}, false
}
