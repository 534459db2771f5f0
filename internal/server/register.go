package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/livetemplate/awardwizard"
	"github.com/livetemplate/awardwizard/internal/session"
)

// Notices shown inside the wizard.
const (
	noticeConfirm    = "Please confirm that the information is accurate before submitting."
	noticeInFlight   = "Your application is already being submitted."
	noticeNotReview  = "Please review your application before submitting."
	noticeTooLarge   = "The selected file is too large."
	noticeBadType    = "Only PDF files can be uploaded."
	noticeBadAction  = "That action is not available."
	noticeReadFailed = "The selected file could not be read. Please choose it again."
)

// wizardView is the data of the "wizard" template.
type wizardView struct {
	awardwizard.Snapshot
	MountID     string
	TabID       string
	Notice      string
	MaxUploadMB int64
}

// renderMessage carries a fresh wizard body to the client.
type renderMessage struct {
	Type       string `json:"type"`
	HTML       string `json:"html"`
	GuardArmed bool   `json:"guardArmed"`
}

type guardMessage struct {
	Type  string `json:"type"`
	Armed bool   `json:"armed"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (s *Server) view(m *mount) *wizardView {
	return &wizardView{
		Snapshot:    m.wizard.Snapshot(),
		MountID:     m.id,
		TabID:       m.tab,
		Notice:      m.getNotice(),
		MaxUploadMB: (s.cfg.Upload.GetMaxBytes() + (1 << 20) - 1) >> 20,
	}
}

func (s *Server) renderWizard(m *mount) (renderMessage, error) {
	v := s.view(m)
	html, err := s.render.Wizard(v)
	if err != nil {
		return renderMessage{}, err
	}
	return renderMessage{Type: "render", HTML: html, GuardArmed: v.GuardArmed}, nil
}

// pushRender sends the current wizard body to every socket of m.
func (s *Server) pushRender(m *mount) {
	msg, err := s.renderWizard(m)
	if err != nil {
		s.logger.Error("render wizard failed", zap.String("mount", m.id), zap.Error(err))
		return
	}
	m.broadcast(msg, s.logger)
}

// tabID returns raw when it is a valid tab id, or a fresh one.
func tabID(raw string) string {
	if id, err := uuid.Parse(raw); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// registerURL is the wizard page of a mount within its tab.
func registerURL(mountID, tab string) string {
	q := url.Values{}
	if mountID != "" {
		q.Set("mount", mountID)
	}
	if tab != "" {
		q.Set("tab", tab)
	}
	if len(q) == 0 {
		return "/register"
	}
	return "/register?" + q.Encode()
}

// openMount creates a wizard over the persisted state of the session's
// browser tab. Tabs never share form state or position.
func (s *Server) openMount(ctx context.Context, u user, tab string) (*mount, error) {
	m := newMount(uuid.NewString(), u.sessionID, tabID(tab))
	logger := s.logger.With(zap.String("mount", m.id))

	// Called with wizard locks held: only write to the sockets.
	m.lifecycle.SetOnArmChange(func(armed bool) {
		m.broadcast(guardMessage{Type: "guard", Armed: armed}, logger)
	})

	wiz, err := awardwizard.New(ctx, awardwizard.Options{
		Steps:     s.steps,
		Store:     awardwizard.NewFormStore(wizardBucket(s.sessions, u.sessionID, m.tab), logger),
		Profiles:  s.api,
		Lifecycle: m.lifecycle,
		Logger:    logger,
		OnPhase:   func(awardwizard.Phase) { s.pushRender(m) },
	})
	if err != nil {
		return nil, fmt.Errorf("mount wizard: %w", err)
	}
	m.wizard = wiz
	s.mounts.add(m)
	logger.Debug("wizard mounted", zap.String("tab", m.tab), zap.Int("step", wiz.Position().Current))
	return m, nil
}

// wizardBucket is where the wizard of one browser tab persists its entries.
func wizardBucket(b session.Backend, sessionID, tab string) session.Bucket {
	return session.NewBucket(b, sessionID).Scoped("tab/" + tab)
}

// mountFor returns the caller's mount with the given id.
func (s *Server) mountFor(u user, id string) (*mount, bool) {
	if id == "" {
		return nil, false
	}
	m, ok := s.mounts.get(id)
	if !ok || m.sessionID != u.sessionID {
		return nil, false
	}
	return m, true
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	m, ok := s.mountFor(u, r.URL.Query().Get("mount"))
	if !ok {
		var err error
		if m, err = s.openMount(r.Context(), u, r.URL.Query().Get("tab")); err != nil {
			s.logger.Error("open wizard failed", zap.Error(err))
			p := s.newPage(r, "Award application")
			p.Error = "The application form could not be opened. Please try again."
			s.renderPage(w, http.StatusOK, "dashboard", p)
			return
		}
	}

	p := s.newPage(r, "Award application")
	p.Wizard = s.view(m)
	s.renderPage(w, http.StatusOK, "register", p)
}

// handleRegisterPost is the form-post path of the wizard. Without
// JavaScript every button posts the whole step; with it only file changes
// come here.
func (s *Server) handleRegisterPost(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	maxBytes := s.cfg.Upload.GetMaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))

	if err := r.ParseMultipartForm(maxBytes + (1 << 20)); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.logger.Info("bad wizard post", zap.Error(err))
		writeJSONError(w, http.StatusRequestEntityTooLarge, noticeTooLarge)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	m, ok := s.mountFor(u, r.FormValue("mount"))
	if !ok {
		if wantsJSON(r) {
			writeJSONError(w, http.StatusNotFound, "wizard not found, please reload the page")
			return
		}
		tab := r.FormValue("tab")
		if _, err := uuid.Parse(tab); err != nil {
			tab = ""
		}
		http.Redirect(w, r, registerURL("", tab), http.StatusSeeOther)
		return
	}

	ctx := r.Context()
	m.setNotice("")
	switch action := r.FormValue("action"); action {
	case "change":
		name := r.FormValue("name")
		if awardwizard.ParseChangeKind(r.FormValue("kind")) == awardwizard.ChangeFile {
			s.applyFile(ctx, m, r, name, "file", true)
		} else if err := m.wizard.HandleAction(ctx, "change", map[string]any{
			"name":    name,
			"kind":    r.FormValue("kind"),
			"value":   r.FormValue("value"),
			"checked": r.FormValue("checked"),
		}); err != nil {
			m.setNotice(noticeBadAction)
		}
	case "next", "prev", "goto", "submit":
		s.applyFields(ctx, m, r)
		switch action {
		case "next":
			m.wizard.Next(ctx)
		case "prev":
			m.wizard.Prev(ctx)
		case "goto":
			step := r.URL.Query().Get("step")
			if step == "" {
				step = r.FormValue("step")
			}
			n, err := strconv.Atoi(step)
			if err != nil || !m.wizard.GoTo(ctx, n) {
				s.logger.Debug("goto ignored", zap.String("step", step))
			}
		case "submit":
			if !truthy(r.FormValue("confirm")) {
				m.setNotice(noticeConfirm)
				break
			}
			s.submit(ctx, m, u)
		}
	default:
		m.setNotice(noticeBadAction)
	}

	if wantsJSON(r) {
		msg, err := s.renderWizard(m)
		if err != nil {
			s.logger.Error("render wizard failed", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "render failed")
			return
		}
		writeJSON(w, http.StatusOK, msg)
		return
	}
	http.Redirect(w, r, registerURL(m.id, m.tab), http.StatusSeeOther)
}

// applyFields applies the current step's inputs from a full form post.
// The "fields" value lists the inputs that were on the page, so an
// unchecked checkbox is distinguishable from a field of another step.
func (s *Server) applyFields(ctx context.Context, m *mount, r *http.Request) {
	listed := r.FormValue("fields")
	if listed == "" {
		return
	}
	for _, name := range strings.Split(listed, ",") {
		spec, ok := awardwizard.FieldByName(s.steps, strings.TrimSpace(name))
		if !ok {
			continue
		}
		switch spec.Input {
		case awardwizard.InputCheckbox:
			m.wizard.Change(ctx, awardwizard.Change{Name: spec.Name, Kind: awardwizard.ChangeCheckbox, Checked: truthy(r.FormValue(spec.Name))})
		case awardwizard.InputFile:
			s.applyFile(ctx, m, r, spec.Name, spec.Name, false)
		default:
			if _, present := r.Form[spec.Name]; !present {
				continue
			}
			m.wizard.Change(ctx, awardwizard.Change{Name: spec.Name, Kind: awardwizard.ChangeText, Value: r.FormValue(spec.Name)})
		}
	}
}

// applyFile reads the multipart part into a file value for field. A
// missing part clears the field only when clearMissing is set, since
// browsers omit file inputs that were left untouched.
func (s *Server) applyFile(ctx context.Context, m *mount, r *http.Request, field, part string, clearMissing bool) {
	if _, ok := awardwizard.FieldByName(s.steps, field); !ok {
		m.setNotice(noticeBadAction)
		return
	}

	f, hdr, err := r.FormFile(part)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			if clearMissing {
				m.wizard.Change(ctx, awardwizard.Change{Name: field, Kind: awardwizard.ChangeFile})
			}
			return
		}
		m.setNotice(noticeReadFailed)
		return
	}
	defer f.Close()

	if hdr.Filename == "" {
		return
	}
	maxBytes := s.cfg.Upload.GetMaxBytes()
	if hdr.Size > maxBytes {
		m.setNotice(noticeTooLarge)
		return
	}
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		m.setNotice(noticeReadFailed)
		return
	}
	if int64(len(data)) > maxBytes {
		m.setNotice(noticeTooLarge)
		return
	}

	ctype := hdr.Header.Get("Content-Type")
	if ctype == "" || ctype == "application/octet-stream" {
		ctype = http.DetectContentType(data)
	}
	if !s.cfg.Upload.IsAccepted(ctype) {
		m.setNotice(noticeBadType)
		return
	}

	m.wizard.Change(ctx, awardwizard.Change{
		Name: field,
		Kind: awardwizard.ChangeFile,
		Files: []*awardwizard.FileRef{{
			Name:        filepath.Base(hdr.Filename),
			Size:        int64(len(data)),
			ContentType: ctype,
			Data:        data,
		}},
	})
}

// submit runs the submission and maps local refusals to notices. Remote
// failures are shown through the wizard's own message.
func (s *Server) submit(ctx context.Context, m *mount, u user) {
	err := m.wizard.Submit(ctx, u.creds())
	var se *awardwizard.SubmissionError
	switch {
	case err == nil:
		m.setNotice("")
		s.logger.Info("application submitted", zap.String("subject", u.identity.SubjectID))
	case errors.Is(err, awardwizard.ErrNotOnReview):
		m.setNotice(noticeNotReview)
	case errors.Is(err, awardwizard.ErrSubmissionInFlight):
		m.setNotice(noticeInFlight)
	case errors.As(err, &se):
		s.logger.Info("submission failed", zap.String("stage", se.Stage), zap.Error(se.Err))
	case errors.Is(err, awardwizard.ErrNotAuthenticated):
		// the wizard already shows the login message
	default:
		s.logger.Warn("submission failed", zap.Error(err))
	}
}

// handlePageHide receives the page-hide beacon. A page that is not kept
// in the back/forward cache is gone, so its mount is dropped too.
func (s *Server) handlePageHide(w http.ResponseWriter, r *http.Request) {
	sid, ok := session.FromRequest(r)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := r.ParseMultipartForm(64 << 10); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id := r.FormValue("mount")
	persisted, _ := strconv.ParseBool(r.FormValue("persisted"))

	m, ok := s.mounts.get(id)
	if !ok || m.sessionID != sid {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	m.lifecycle.PageHide(persisted)
	if !persisted {
		s.mounts.remove(id)
	}
	s.logger.Debug("page hidden", zap.String("mount", id), zap.Bool("persisted", persisted))
	w.WriteHeader(http.StatusNoContent)
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "on", "yes":
		return true
	}
	return false
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
