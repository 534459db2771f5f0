package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/livetemplate/awardwizard"
	"github.com/livetemplate/awardwizard/internal/config"
	"github.com/livetemplate/awardwizard/internal/remote"
	"github.com/livetemplate/awardwizard/internal/session"
)

// fakeAPI records calls and returns canned results.
type fakeAPI struct {
	mu sync.Mutex

	token       string
	loginErr    error
	registerErr error
	profileErr  error
	uploadErr   error
	profileGate chan struct{}

	registered  []remote.RegisterRequest
	profiles    []map[string]any
	uploads     []string
	otpChecks   int
	resets      []remote.ResetPasswordRequest
	nominations []remote.Nomination
}

func (f *fakeAPI) Register(_ context.Context, req remote.RegisterRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return "", f.registerErr
	}
	f.registered = append(f.registered, req)
	return "User registered successfully", nil
}

func (f *fakeAPI) Login(_ context.Context, _ remote.LoginRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.loginErr
}

func (f *fakeAPI) ForgotPassword(context.Context, string) (string, error) {
	return "OTP sent to your email", nil
}

func (f *fakeAPI) VerifyOTP(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.otpChecks++
	return "OTP verified", nil
}

func (f *fakeAPI) ResetPassword(_ context.Context, req remote.ResetPasswordRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, req)
	return "Password reset", nil
}

func (f *fakeAPI) SubmitProfile(ctx context.Context, subjectID, _ string, profile map[string]any) error {
	f.mu.Lock()
	gate := f.profileGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return f.profileErr
	}
	profile["subject"] = subjectID
	f.profiles = append(f.profiles, profile)
	return nil
}

func (f *fakeAPI) UploadFile(_ context.Context, _, fieldType, _ string, file *awardwizard.FileRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, fieldType+":"+file.Name)
	return nil
}

func (f *fakeAPI) ListNominations(context.Context, awardwizard.Credentials) ([]remote.Nomination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Nomination(nil), f.nominations...), nil
}

func (f *fakeAPI) CreateNomination(_ context.Context, _ awardwizard.Credentials, n remote.Nomination) (remote.Nomination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.Status = "Pending"
	f.nominations = append(f.nominations, n)
	return n, nil
}

func (f *fakeAPI) profileCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.profiles)
}

func testToken(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": "ada@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

type testEnv struct {
	srv      *Server
	ts       *httptest.Server
	api      *fakeAPI
	sessions session.Backend
	client   *http.Client
	tabs     map[string]string // mount id -> tab id
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil)
}

func newTestEnvWith(t *testing.T, configure func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.RateLimit = config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000}
	cfg.Upload.MaxBytes = 1 << 20
	if configure != nil {
		configure(cfg)
	}

	api := &fakeAPI{token: testToken(t, "123")}
	backend := session.NewMemory(time.Hour)
	t.Cleanup(func() { _ = backend.Close() })

	srv, err := New(Options{Config: cfg, API: api, Sessions: backend, Logger: zap.NewNop()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := httptest.NewServer(srv.Handler(ctx))
	t.Cleanup(func() {
		ts.Close()
		cancel()
		_ = srv.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{srv: srv, ts: ts, api: api, sessions: backend, client: client, tabs: map[string]string{}}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.ts.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp, _ := e.postForm(t, "/login", url.Values{"email": {"ada@example.com"}, "password": {"secret"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func (e *testEnv) sessionID(t *testing.T) string {
	t.Helper()
	u, _ := url.Parse(e.ts.URL)
	for _, c := range e.client.Jar.Cookies(u) {
		if c.Name == session.CookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie")
	return ""
}

var (
	mountPattern = regexp.MustCompile(`data-mount="([^"]+)"`)
	tabPattern   = regexp.MustCompile(`data-tab="([^"]+)"`)
)

// openWizard loads /register in a new tab and returns the mount id.
func (e *testEnv) openWizard(t *testing.T) string {
	t.Helper()
	return e.openWizardInTab(t, "")
}

// openWizardInTab loads the wizard of an existing tab and returns the
// mount id.
func (e *testEnv) openWizardInTab(t *testing.T, tab string) string {
	t.Helper()
	resp, body := e.get(t, registerURL("", tab))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := mountPattern.FindStringSubmatch(body)
	require.Len(t, m, 2, "mount id not found in page")
	tm := tabPattern.FindStringSubmatch(body)
	require.Len(t, tm, 2, "tab id not found in page")
	e.tabs[m[1]] = tm[1]
	return m[1]
}

// stored reads a persisted wizard entry of the tab that opened mountID.
func (e *testEnv) stored(t *testing.T, mountID, key string) (string, error) {
	t.Helper()
	tab, ok := e.tabs[mountID]
	require.True(t, ok, "unknown mount %s", mountID)
	return wizardBucket(e.sessions, e.sessionID(t), tab).Get(context.Background(), key)
}

// wizardPost sends a multipart wizard post and returns the rendered body.
func (e *testEnv) wizardPost(t *testing.T, mountID string, fields map[string]string, file *multipartFile) renderMessage {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("mount", mountID))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		part, err := mw.CreateFormFile(file.field, file.name)
		require.NoError(t, err)
		_, err = part.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.ts.URL+"/register", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msg renderMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	return msg
}

type multipartFile struct {
	field, name string
	data        []byte
}

var pdfBytes = []byte("%PDF-1.4\n1 0 obj<<>>endobj\ntrailer<<>>\n%%EOF\n")

func TestIndexAnonymous(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Create an account")
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestProtectedPagesRedirectToLogin(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/register", "/dashboard", "/nominations"} {
		resp, _ := env.get(t, path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/login?next="+url.QueryEscape(path), resp.Header.Get("Location"), path)
	}
}

func TestLoginStoresTokenAndRedirects(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.postForm(t, "/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"secret"},
		"next":     {"/nominations"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/nominations", resp.Header.Get("Location"))

	token, err := env.sessions.Get(context.Background(), env.sessionID(t), session.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, env.api.token, token)

	_, body := env.get(t, "/dashboard")
	assert.Contains(t, body, "ada@example.com")
}

func TestLoginRejectsOffsiteNext(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.postForm(t, "/login", url.Values{
		"email":    {"ada@example.com"},
		"password": {"secret"},
		"next":     {"//evil.example/"},
	})
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestLoginShowsServerMessage(t *testing.T) {
	env := newTestEnv(t)
	env.api.loginErr = &remote.HTTPError{Endpoint: "POST /auth/login", StatusCode: http.StatusUnauthorized, Message: "Invalid credentials"}

	resp, body := env.postForm(t, "/login", url.Values{"email": {"ada@example.com"}, "password": {"nope"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Invalid credentials")
}

func TestSignup(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.postForm(t, "/signup", url.Values{
		"name": {"Ada"}, "email": {"ada@example.com"},
		"password": {"a"}, "confirmPassword": {"b"},
		"course": {"msc-data-science"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Passwords do not match.")
	assert.Contains(t, body, `value="msc-data-science" selected`)
	assert.Empty(t, env.api.registered)

	resp, _ = env.postForm(t, "/signup", url.Values{
		"name": {"Ada"}, "email": {"ada@example.com"}, "mobile": {"555"},
		"password": {"pw"}, "confirmPassword": {"pw"},
		"course": {"msc-data-science"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?notice=registered", resp.Header.Get("Location"))
	require.Len(t, env.api.registered, 1)
	assert.Equal(t, remote.RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "pw", Mobile: "555"}, env.api.registered[0])

	_, body = env.get(t, "/login?notice=registered")
	assert.Contains(t, body, "Account created. Please log in.")
}

func TestForgotPasswordStages(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.postForm(t, "/forgot-password", url.Values{"stage": {"email"}, "email": {"ada@example.com"}})
	assert.Contains(t, body, `name="stage" value="otp"`)
	assert.Contains(t, body, "OTP sent to your email")

	_, body = env.postForm(t, "/forgot-password", url.Values{"stage": {"otp"}, "email": {"ada@example.com"}, "otp": {"12ab"}})
	assert.Contains(t, body, "Please enter the 6-digit code.")
	assert.Equal(t, 0, env.api.otpChecks)

	_, body = env.postForm(t, "/forgot-password", url.Values{"stage": {"otp"}, "email": {"ada@example.com"}, "otp": {"123456"}})
	assert.Contains(t, body, `name="stage" value="reset"`)
	assert.Equal(t, 1, env.api.otpChecks)

	reset := url.Values{"stage": {"reset"}, "email": {"ada@example.com"}, "otp": {"123456"}, "newPassword": {"x"}, "confirmPassword": {"y"}}
	_, body = env.postForm(t, "/forgot-password", reset)
	assert.Contains(t, body, "Passwords do not match.")
	assert.Empty(t, env.api.resets)

	reset.Set("confirmPassword", "x")
	resp, _ := env.postForm(t, "/forgot-password", reset)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?notice=password-reset", resp.Header.Get("Location"))
	require.Len(t, env.api.resets, 1)
	assert.Equal(t, "123456", env.api.resets[0].OTP)
}

func TestWizardFormPostAdvances(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	id := env.openWizard(t)

	resp, _ := env.postForm(t, "/register", url.Values{
		"mount":       {id},
		"action":      {"next"},
		"fields":      {"fullName,email,companyName"},
		"fullName":    {"Ada Lovelace"},
		"email":       {"ada@example.com"},
		"companyName": {"Engines Ltd"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/register?mount="+id+"&tab="+env.tabs[id], resp.Header.Get("Location"))

	_, body := env.get(t, "/register?mount="+id)
	assert.Contains(t, body, "Innovation &amp; IP")
	assert.Contains(t, body, `data-guard="true"`)

	step, err := env.stored(t, id, awardwizard.KeyCurrentStep)
	require.NoError(t, err)
	assert.Equal(t, "2", step)
	form, err := env.stored(t, id, awardwizard.KeyFormData)
	require.NoError(t, err)
	assert.Contains(t, form, "Engines Ltd")
}

func TestWizardGotoUnreachedStepIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	id := env.openWizard(t)

	msg := env.wizardPost(t, id, map[string]string{"action": "goto", "step": "4"}, nil)
	assert.Contains(t, msg.HTML, "<h2>Personal Information</h2>")
	assert.Contains(t, msg.HTML, `aria-current="step">1<`)
}

func TestWizardRejectsOtherSessionsMount(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	id := env.openWizard(t)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	other := *env
	other.client = &http.Client{Jar: jar, CheckRedirect: env.client.CheckRedirect}
	other.login(t)

	resp, _ := other.postForm(t, "/register", url.Values{"mount": {id}, "action": {"next"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/register", resp.Header.Get("Location"))
}

// fillToReview walks all four form steps with the form-post fallback.
func fillToReview(t *testing.T, env *testEnv, id string, withFile bool) renderMessage {
	t.Helper()
	env.wizardPost(t, id, map[string]string{
		"action": "next", "fields": "fullName,email,companyName",
		"fullName": "Ada Lovelace", "email": "ada@example.com", "companyName": "Engines Ltd",
	}, nil)
	env.wizardPost(t, id, map[string]string{
		"action": "next", "fields": "innovations,hasIpr",
		"innovations": "Analytical engine", "hasIpr": "no",
	}, nil)
	var file *multipartFile
	if withFile {
		file = &multipartFile{field: "businessPlan", name: "plan.pdf", data: pdfBytes}
	}
	env.wizardPost(t, id, map[string]string{
		"action": "next", "fields": "hasMerger,businessPlan", "hasMerger": "no",
	}, file)
	return env.wizardPost(t, id, map[string]string{
		"action": "next", "fields": "hasForeign,hasAwards,agreeToTerms",
		"hasForeign": "no", "hasAwards": "yes", "agreeToTerms": "on",
	}, nil)
}

func TestWizardSubmitWithFile(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	id := env.openWizard(t)

	review := fillToReview(t, env, id, true)
	assert.Contains(t, review.HTML, "Review Your Information")
	assert.Contains(t, review.HTML, "plan.pdf")

	msg := env.wizardPost(t, id, map[string]string{"action": "submit"}, nil)
	assert.Contains(t, msg.HTML, noticeConfirm)
	assert.Equal(t, 0, env.api.profileCalls())

	msg = env.wizardPost(t, id, map[string]string{"action": "submit", "confirm": "yes"}, nil)
	assert.Contains(t, msg.HTML, awardwizard.MsgSubmitted)
	assert.Contains(t, msg.HTML, "<h2>Personal Information</h2>")
	assert.False(t, msg.GuardArmed)

	require.Equal(t, 1, env.api.profileCalls())
	profile := env.api.profiles[0]
	assert.Equal(t, "123", profile["subject"])
	assert.Equal(t, "Engines Ltd", profile["companyName"])
	assert.Equal(t, true, profile["agreeToTerms"])
	assert.NotContains(t, profile, "businessPlan")
	assert.Equal(t, []string{"businessPlan:plan.pdf"}, env.api.uploads)

	_, err := env.stored(t, id, awardwizard.KeyFormData)
	assert.True(t, errors.Is(err, awardwizard.ErrNotFound), "form data should be purged, got %v", err)
}

func TestWizardSubmitProfileFailureKeepsState(t *testing.T) {
	env := newTestEnv(t)
	env.api.profileErr = &remote.HTTPError{Endpoint: "POST /nominee-details/123/profile", StatusCode: http.StatusBadRequest, Message: "Profile incomplete"}
	env.login(t)
	id := env.openWizard(t)
	fillToReview(t, env, id, false)

	msg := env.wizardPost(t, id, map[string]string{"action": "submit", "confirm": "yes"}, nil)
	assert.Contains(t, msg.HTML, "Error: Failed to submit profile details: Profile incomplete. Please try again.")
	assert.Contains(t, msg.HTML, "Review Your Information")
	assert.True(t, msg.GuardArmed)
	assert.Empty(t, env.api.uploads)

	form, err := env.stored(t, id, awardwizard.KeyFormData)
	require.NoError(t, err)
	assert.Contains(t, form, "Ada Lovelace")
}

func TestWizardRejectsNonPDF(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	id := env.openWizard(t)

	msg := env.wizardPost(t, id, map[string]string{"action": "change", "name": "businessPlan", "kind": "file"},
		&multipartFile{field: "file", name: "plan.png", data: []byte("\x89PNG\r\n\x1a\n0000")})
	assert.Contains(t, msg.HTML, noticeBadType)
}

func TestPageHideDiscardPurgesState(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	id := env.openWizard(t)
	env.wizardPost(t, id, map[string]string{"action": "change", "name": "fullName", "kind": "text", "value": "Ada"}, nil)
	require.Equal(t, 1, env.srv.Mounts())

	resp, _ := env.postForm(t, "/register/pagehide", url.Values{"mount": {id}, "persisted": {"true"}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, err := env.stored(t, id, awardwizard.KeyFormData)
	require.NoError(t, err, "bfcache page-hide must keep state")
	assert.Equal(t, 1, env.srv.Mounts())

	resp, _ = env.postForm(t, "/register/pagehide", url.Values{"mount": {id}, "persisted": {"false"}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, err = env.stored(t, id, awardwizard.KeyFormData)
	assert.True(t, errors.Is(err, awardwizard.ErrNotFound))
	assert.Equal(t, 0, env.srv.Mounts())
}

func TestTabsKeepSeparateState(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	a := env.openWizard(t)
	b := env.openWizard(t)
	require.NotEqual(t, env.tabs[a], env.tabs[b])

	env.wizardPost(t, a, map[string]string{"action": "change", "name": "fullName", "kind": "text", "value": "Ada"}, nil)
	env.wizardPost(t, b, map[string]string{"action": "change", "name": "fullName", "kind": "text", "value": "Grace"}, nil)

	resp, _ := env.postForm(t, "/register/pagehide", url.Values{"mount": {b}, "persisted": {"false"}})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, err := env.stored(t, b, awardwizard.KeyFormData)
	assert.True(t, errors.Is(err, awardwizard.ErrNotFound))
	form, err := env.stored(t, a, awardwizard.KeyFormData)
	require.NoError(t, err)
	assert.Contains(t, form, "Ada")
	assert.NotContains(t, form, "Grace")

	// Reloading tab A brings its own state back.
	reopened := env.openWizardInTab(t, env.tabs[a])
	assert.Equal(t, env.tabs[a], env.tabs[reopened])
	_, body := env.get(t, registerURL(reopened, env.tabs[a]))
	assert.Contains(t, body, `value="Ada"`)
}

func TestRegisterIgnoresMalformedTab(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	id := env.openWizardInTab(t, "../../other")
	_, err := uuid.Parse(env.tabs[id])
	assert.NoError(t, err)
}

func TestLogoutDropsSession(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	sid := env.sessionID(t)
	env.openWizard(t)

	resp, _ := env.postForm(t, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, err := env.sessions.Get(context.Background(), sid, session.KeyAccessToken)
	assert.True(t, errors.Is(err, awardwizard.ErrNotFound))
	assert.Equal(t, 0, env.srv.Mounts())

	resp, _ = env.get(t, "/dashboard")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestNominations(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	_, body := env.get(t, "/nominations")
	assert.Contains(t, body, "You have not nominated anyone yet.")
	assert.Contains(t, body, "<strong>Note:</strong>")

	_, body = env.postForm(t, "/nominations", url.Values{"name": {"Grace"}, "email": {"grace@example.com"}, "relationship": {"cousin"}})
	assert.Contains(t, body, "Please choose one of the listed relationships.")

	_, body = env.postForm(t, "/nominations", url.Values{"name": {"Grace"}, "email": {"grace@example.com"}, "relationship": {"batchmate"}})
	assert.Contains(t, body, "Thank you for nominating Grace!")
	assert.Contains(t, body, "<td>Batchmate</td>")
	assert.Contains(t, body, "<td>Pending</td>")
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"ok"`)
}

func TestStaticAssetsCompressed(t *testing.T) {
	env := newTestEnv(t)
	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/static/wizard.js", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	gz, err := gzip.NewReader(resp.Body)
	require.NoError(t, err)
	js, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(js), "sendBeacon")
}
