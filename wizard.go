package awardwizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

// ErrNotOnReview is returned when a submission is requested before the
// review step.
var ErrNotOnReview = errors.New("submission is only possible from the review step")

// Progress messages shown while submitting.
const (
	MsgSubmitting = "Submitting your application..."
	MsgUploading  = "Profile details submitted. Uploading files..."
	MsgSubmitted  = "Application submitted successfully!"
)

// Options configures a Wizard.
type Options struct {
	Steps     []Step
	Store     FormStore
	Profiles  ProfileService
	Lifecycle Lifecycle
	Logger    *zap.Logger
	// OnPhase is called after each submission phase change, once the
	// status message has been updated. Success is reported after the form
	// and position have been reset. It must not block.
	OnPhase func(Phase)
}

// Wizard is one mounted instance of the registration wizard. It owns its
// form state and position and mirrors both to the store on every change.
// It is safe for concurrent use.
type Wizard struct {
	steps     []Step
	store     FormStore
	guard     *Guard
	submitter *Submitter
	logger    *zap.Logger
	onPhase   func(Phase)

	mu         sync.Mutex
	nav        *Navigator
	form       FormState
	message    string
	submitting bool
}

// New mounts a wizard, rehydrating form state and position from the store.
func New(ctx context.Context, opts Options) (*Wizard, error) {
	if opts.Steps == nil {
		opts.Steps = DefaultSteps()
	}
	if err := ValidateSteps(opts.Steps); err != nil {
		return nil, fmt.Errorf("invalid steps: %w", err)
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Profiles == nil {
		return nil, errors.New("profile service is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Wizard{
		steps:     opts.Steps,
		store:     opts.Store,
		guard:     NewGuard(opts.Store, logger),
		submitter: NewSubmitter(opts.Profiles, logger),
		logger:    logger.Named("wizard"),
		onPhase:   opts.OnPhase,
		nav:       NewNavigator(len(opts.Steps), opts.Store.LoadPosition(ctx)),
		form:      opts.Store.LoadForm(ctx),
	}
	w.submitter.OnPhase(w.phaseChanged)

	if opts.Lifecycle != nil {
		w.guard.Attach(opts.Lifecycle)
		w.guard.Sync(w.form)
	}
	return w, nil
}

// Close detaches the guard from its lifecycle.
func (w *Wizard) Close() {
	w.guard.Detach()
}

// Steps returns the step sequence.
func (w *Wizard) Steps() []Step { return w.steps }

// Position returns the current position.
func (w *Wizard) Position() Position {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nav.Position()
}

// Form returns a copy of the form state.
func (w *Wizard) Form() FormState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.form.Clone()
}

// Message returns the latest user-visible status message.
func (w *Wizard) Message() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.message
}

// Phase returns the submission phase.
func (w *Wizard) Phase() Phase { return w.submitter.Phase() }

// GuardArmed reports whether the before-unload warning is active.
func (w *Wizard) GuardArmed() bool { return w.guard.Armed() }

// Change applies an input change and persists the result.
func (w *Wizard) Change(ctx context.Context, c Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.form = Reduce(w.form, c)
	if err := w.store.SaveForm(ctx, w.form); err != nil {
		w.logger.Warn("persist form failed", zap.Error(err))
	}
	w.guard.Sync(w.form)
}

// Next advances one step.
func (w *Wizard) Next(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.nav.Advance() {
		return false
	}
	w.persistPosition(ctx)
	return true
}

// Prev retreats one step.
func (w *Wizard) Prev(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.nav.Retreat() {
		return false
	}
	w.persistPosition(ctx)
	return true
}

// GoTo jumps to an already reached step. Unreached steps are ignored.
func (w *Wizard) GoTo(ctx context.Context, step int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.nav.JumpTo(step) {
		return false
	}
	w.persistPosition(ctx)
	return true
}

func (w *Wizard) persistPosition(ctx context.Context) {
	p := w.nav.Position()
	if err := w.store.SaveCurrentStep(ctx, p.Current); err != nil {
		w.logger.Warn("persist current step failed", zap.Error(err))
	}
	if err := w.store.SaveCompletedStep(ctx, p.Completed); err != nil {
		w.logger.Warn("persist completed step failed", zap.Error(err))
	}
}

// Submit runs the two-phase submission from the review step. On success
// the form state, position and store are reset before observers hear of
// it. On failure everything is left as it was and the error message is
// kept for display.
func (w *Wizard) Submit(ctx context.Context, creds Credentials) error {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmissionInFlight
	}
	if !w.nav.IsLast() {
		w.mu.Unlock()
		return ErrNotOnReview
	}
	if creds.Token == "" || creds.SubjectID == "" {
		w.message = "Error: please log in before submitting. Please try again."
		w.mu.Unlock()
		return ErrNotAuthenticated
	}
	w.submitting = true
	state := w.form.Clone()
	w.mu.Unlock()

	err := w.submitter.Submit(ctx, creds, state)

	w.mu.Lock()
	w.submitting = false
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.form = FormState{}
	w.nav.Reset()
	if err := w.store.Clear(ctx); err != nil {
		w.logger.Warn("purge after submission failed", zap.Error(err))
	}
	w.guard.Sync(w.form)
	w.mu.Unlock()

	if w.onPhase != nil {
		w.onPhase(PhaseSuccess)
	}
	return nil
}

func (w *Wizard) phaseChanged(p Phase) {
	var msg string
	switch p {
	case PhaseSubmittingProfile:
		msg = MsgSubmitting
	case PhaseUploadingFile:
		msg = MsgUploading
	case PhaseSuccess:
		msg = MsgSubmitted
	case PhaseFailed:
		if se := w.submitter.LastError(); se != nil {
			msg = fmt.Sprintf("Error: %s. Please try again.", se.Error())
		}
	default:
		return
	}
	w.mu.Lock()
	w.message = msg
	w.mu.Unlock()
	// Success is announced by Submit once the state has been reset.
	if w.onPhase != nil && p != PhaseSuccess {
		w.onPhase(p)
	}
}

// HandleAction dispatches a named wizard action. data carries the
// action's arguments as decoded from a form post or a WebSocket message.
func (w *Wizard) HandleAction(ctx context.Context, action string, data map[string]any) error {
	switch action {
	case "change":
		name, _ := data["name"].(string)
		if name == "" {
			return errors.New("change: missing field name")
		}
		kind, _ := data["kind"].(string)
		value, _ := data["value"].(string)
		w.Change(ctx, Change{Name: name, Kind: ParseChangeKind(kind), Value: value, Checked: truthy(data["checked"])})
	case "next":
		w.Next(ctx)
	case "prev":
		w.Prev(ctx)
	case "goto":
		step, ok := intArg(data["step"])
		if !ok {
			return errors.New("goto: missing step")
		}
		w.GoTo(ctx, step)
	default:
		return fmt.Errorf("unknown wizard action: %s", action)
	}
	return nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b || t == "on"
	default:
		return false
	}
}

func intArg(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(t)
		return n, err == nil
	default:
		return 0, false
	}
}
