package awardwizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

// Phase is the state of the submission protocol.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmittingProfile
	PhaseUploadingFile
	PhaseSuccess
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmittingProfile:
		return "submitting-profile"
	case PhaseUploadingFile:
		return "uploading-file"
	case PhaseSuccess:
		return "success"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InFlight reports whether p is one of the network phases.
func (p Phase) InFlight() bool {
	return p == PhaseSubmittingProfile || p == PhaseUploadingFile
}

// Stage names used in failure messages.
const StageProfile = "profile details"

var (
	// ErrSubmissionInFlight is returned when Submit is called while a
	// previous submission has not finished.
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	// ErrNotAuthenticated is returned when credentials are missing.
	ErrNotAuthenticated = errors.New("not signed in")
)

// Credentials identify the subject the submission applies to.
type Credentials struct {
	SubjectID string
	Token     string
}

// ProfileService is the remote boundary used by the submission protocol.
type ProfileService interface {
	SubmitProfile(ctx context.Context, subjectID, token string, profile map[string]any) error
	UploadFile(ctx context.Context, subjectID, fieldType, token string, file *FileRef) error
}

// SubmissionError reports which stage of the submission failed.
type SubmissionError struct {
	Stage   string
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Stage == StageProfile {
		return fmt.Sprintf("Failed to submit %s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("Failed to upload %s: %s", strings.TrimSuffix(e.Stage, " upload"), e.Message)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// serverMessager is implemented by remote errors that carry a message
// suitable for the user.
type serverMessager interface {
	ServerMessage() string
}

func messageOf(err error) string {
	var sm serverMessager
	if errors.As(err, &sm) {
		if msg := sm.ServerMessage(); msg != "" {
			return msg
		}
	}
	return err.Error()
}

// UploadStage returns the failure stage for an upload of fieldType,
// e.g. "businessPlan" -> "business plan upload".
func UploadStage(fieldType string) string {
	var b strings.Builder
	for i, r := range fieldType {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String() + " upload"
}

// Submitter runs the two-phase submission: profile JSON first, then the
// file upload. Phase 2 never starts before phase 1 succeeded, and nothing
// is retried or rolled back.
type Submitter struct {
	api    ProfileService
	logger *zap.Logger

	mu      sync.Mutex
	phase   Phase
	lastErr *SubmissionError
	observe func(Phase)
}

// NewSubmitter creates a submitter over api.
func NewSubmitter(api ProfileService, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{api: api, logger: logger.Named("submit")}
}

// OnPhase sets an observer called on every phase transition.
func (s *Submitter) OnPhase(fn func(Phase)) {
	s.mu.Lock()
	s.observe = fn
	s.mu.Unlock()
}

// Phase returns the current phase.
func (s *Submitter) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// LastError returns the failure of the last submission, if it failed.
func (s *Submitter) LastError() *SubmissionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Reset returns a finished submitter to idle.
func (s *Submitter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.phase.InFlight() {
		s.phase = PhaseIdle
		s.lastErr = nil
	}
}

func (s *Submitter) transition(p Phase) {
	s.mu.Lock()
	s.phase = p
	fn := s.observe
	s.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// Submit drains state to the remote boundary. It returns nil on success,
// a *SubmissionError on remote failure and ErrSubmissionInFlight when a
// submission is already running.
func (s *Submitter) Submit(ctx context.Context, creds Credentials, state FormState) error {
	s.mu.Lock()
	if s.phase.InFlight() {
		s.mu.Unlock()
		return ErrSubmissionInFlight
	}
	s.lastErr = nil
	s.phase = PhaseSubmittingProfile
	fn := s.observe
	s.mu.Unlock()
	if fn != nil {
		fn(PhaseSubmittingProfile)
	}
	log := s.logger.With(zap.String("subject", creds.SubjectID))

	if err := s.api.SubmitProfile(ctx, creds.SubjectID, creds.Token, state.Payload()); err != nil {
		log.Info("profile submission failed", zap.Error(err))
		return s.fail(StageProfile, err)
	}

	files := state.Files()
	if len(files) > 0 {
		s.transition(PhaseUploadingFile)
		for _, name := range files {
			if err := s.api.UploadFile(ctx, creds.SubjectID, name, creds.Token, state.Get(name).File()); err != nil {
				log.Info("file upload failed", zap.String("field", name), zap.Error(err))
				return s.fail(UploadStage(name), err)
			}
		}
	}

	s.transition(PhaseSuccess)
	log.Info("application submitted", zap.Int("files", len(files)))
	return nil
}

func (s *Submitter) fail(stage string, err error) error {
	se := &SubmissionError{Stage: stage, Message: messageOf(err), Err: err}
	s.mu.Lock()
	s.lastErr = se
	s.mu.Unlock()
	s.transition(PhaseFailed)
	return se
}
