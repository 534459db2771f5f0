package awardwizard

// StepStatus is how a step is shown in the step indicator.
type StepStatus string

const (
	StatusCompleted StepStatus = "completed"
	StatusActive    StepStatus = "active"
	StatusReached   StepStatus = "reached"
	StatusLocked    StepStatus = "locked"
)

// IndicatorItem is one circle of the step indicator.
type IndicatorItem struct {
	Number    int
	Title     string
	Status    StepStatus
	Clickable bool
}

// FieldView is a field bound to its current value.
type FieldView struct {
	FieldSpec
	Value   string
	Checked bool
	// FileName is set for file inputs with a selected or remembered file.
	FileName string
	// Reselect is true when the file must be chosen again after a reload.
	Reselect bool
}

// Snapshot is a render-ready view of the wizard.
type Snapshot struct {
	Position   Position        `json:"position"`
	Total      int             `json:"total"`
	Indicator  []IndicatorItem `json:"indicator"`
	Step       Step            `json:"-"`
	Fields     []FieldView     `json:"-"`
	Review     []ReviewRow     `json:"review,omitempty"`
	IsReview   bool            `json:"isReview"`
	Message    string          `json:"message,omitempty"`
	Phase      string          `json:"phase"`
	Submitting bool            `json:"submitting"`
	GuardArmed bool            `json:"guardArmed"`
}

// Snapshot returns the current view of the wizard.
func (w *Wizard) Snapshot() Snapshot {
	phase := w.submitter.Phase()
	armed := w.guard.Armed()

	w.mu.Lock()
	defer w.mu.Unlock()
	pos := w.nav.Position()
	step := w.steps[pos.Current-1]

	snap := Snapshot{
		Position:   pos,
		Total:      len(w.steps),
		Step:       step,
		IsReview:   step.Kind == StepReview,
		Message:    w.message,
		Phase:      phase.String(),
		Submitting: phase.InFlight(),
		GuardArmed: armed,
	}
	for i, st := range w.steps {
		n := i + 1
		item := IndicatorItem{Number: n, Title: st.Title, Clickable: n <= pos.Completed}
		switch {
		case n == pos.Current:
			item.Status = StatusActive
		case n < pos.Current:
			item.Status = StatusCompleted
		case n <= pos.Completed:
			item.Status = StatusReached
		default:
			item.Status = StatusLocked
		}
		snap.Indicator = append(snap.Indicator, item)
	}

	if snap.IsReview {
		snap.Review = Review(w.steps, w.form)
		return snap
	}
	for _, f := range step.Fields {
		if !f.Visible(w.form) {
			continue
		}
		v := w.form.Get(f.Name)
		fv := FieldView{FieldSpec: f, Value: v.Text(), Checked: v.Bool()}
		if ref := v.File(); ref != nil {
			fv.FileName = ref.Name
			fv.Reselect = v.Kind() == KindPlaceholder
		}
		snap.Fields = append(snap.Fields, fv)
	}
	return snap
}
