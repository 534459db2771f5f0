package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/livetemplate/awardwizard"
	"github.com/livetemplate/awardwizard/internal/assets"
	"github.com/livetemplate/awardwizard/internal/auth"
	"github.com/livetemplate/awardwizard/internal/config"
	"github.com/livetemplate/awardwizard/internal/remote"
	"github.com/livetemplate/awardwizard/internal/session"
)

// API is the award API as used by the handlers. *remote.Client implements it.
type API interface {
	awardwizard.ProfileService
	Register(ctx context.Context, req remote.RegisterRequest) (string, error)
	Login(ctx context.Context, req remote.LoginRequest) (string, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	VerifyOTP(ctx context.Context, email, otp string) (string, error)
	ResetPassword(ctx context.Context, req remote.ResetPasswordRequest) (string, error)
	ListNominations(ctx context.Context, creds awardwizard.Credentials) ([]remote.Nomination, error)
	CreateNomination(ctx context.Context, creds awardwizard.Credentials, n remote.Nomination) (remote.Nomination, error)
}

var _ API = (*remote.Client)(nil)

// Options configures a Server.
type Options struct {
	Config   *config.Config
	API      API
	Sessions session.Backend
	Logger   *zap.Logger
	// Steps overrides the wizard steps. Nil uses awardwizard.DefaultSteps.
	Steps []awardwizard.Step
	// Now is the clock used for token expiry. Nil uses time.Now.
	Now func() time.Time
}

// Server serves the award site: account pages, the registration wizard
// and nominations.
type Server struct {
	cfg      *config.Config
	api      API
	sessions session.Backend
	logger   *zap.Logger
	steps    []awardwizard.Step
	now      func() time.Time
	render   *Renderer
	mounts   *mountRegistry

	mu       sync.Mutex
	watcher  *Watcher
	rateDone <-chan struct{}
}

// New creates a server. The config must already be validated.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.API == nil {
		return nil, errors.New("server: API is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("server: session backend is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Steps == nil {
		opts.Steps = awardwizard.DefaultSteps()
	}
	if err := awardwizard.ValidateSteps(opts.Steps); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r, err := NewRenderer(opts.Config.Server.TemplatesDir)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger.Named("server")
	s := &Server{
		cfg:      opts.Config,
		api:      opts.API,
		sessions: opts.Sessions,
		logger:   logger,
		steps:    opts.Steps,
		now:      opts.Now,
		render:   r,
	}
	s.mounts = newMountRegistry(opts.Config.Session.GetTTL(), logger.Named("mounts"))
	return s, nil
}

// Handler returns the site's handler. Background work started for it
// stops when ctx is done.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /signup", s.handleSignupPage)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /forgot-password", s.handleForgotPage)
	mux.HandleFunc("POST /forgot-password", s.handleForgot)

	mux.HandleFunc("GET /dashboard", s.requireLogin(s.handleDashboard))
	mux.HandleFunc("GET /register", s.requireLogin(s.handleRegisterPage))
	mux.HandleFunc("POST /register", s.requireLogin(s.handleRegisterPost))
	mux.HandleFunc("GET /register/ws", s.requireLogin(s.handleWizardSocket))
	mux.HandleFunc("POST /register/pagehide", s.handlePageHide)
	mux.HandleFunc("GET /nominations", s.requireLogin(s.handleNominationsPage))
	mux.HandleFunc("POST /nominations", s.requireLogin(s.handleNominate))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(assets.ClientFS())))

	rl := s.cfg.Server.RateLimit
	limit, done := RateLimitMiddleware(ctx, rl.GetRPS(), rl.GetBurst(), rl.GetMaxIPs(), s.logger.Named("ratelimit"))
	s.mu.Lock()
	s.rateDone = done
	s.mu.Unlock()

	var h http.Handler = mux
	h = WithCompression(h)
	h = limit(h)
	h = SecurityHeadersMiddleware()(h)
	h = RequestLogMiddleware(s.logger.Named("http"))(h)
	h = RecoverMiddleware(s.logger)(h)
	return h
}

// Close releases every mounted wizard and stops the watcher.
func (s *Server) Close() error {
	s.mounts.Close()
	return s.StopWatch()
}

// Mounts returns the number of live wizard mounts.
func (s *Server) Mounts() int { return s.mounts.Len() }

// EnableWatch reloads templates from the override directory when they
// change and pushes a fresh render to every open wizard.
func (s *Server) EnableWatch() error {
	dir := s.render.Dir()
	if dir == "" {
		return errors.New("watch requires server.templates_dir")
	}
	w, err := NewWatcher(dir, func(name string) error {
		if err := s.render.Reload(); err != nil {
			return fmt.Errorf("reload templates: %w", err)
		}
		s.mounts.Each(func(m *mount) { s.pushRender(m) })
		return nil
	}, s.logger.Named("watch"))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	w.Start()
	s.logger.Info("template watcher started", zap.String("dir", dir))
	return nil
}

// StopWatch stops the template watcher if it is running.
func (s *Server) StopWatch() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		return w.Stop()
	}
	return nil
}

// user is the signed-in caller of a request.
type user struct {
	sessionID string
	token     string
	identity  auth.Identity
}

func (u user) creds() awardwizard.Credentials {
	return awardwizard.Credentials{SubjectID: u.identity.SubjectID, Token: u.token}
}

type userKey struct{}

func userFrom(ctx context.Context) (user, bool) {
	u, ok := ctx.Value(userKey{}).(user)
	return u, ok
}

// currentUser resolves the session's access token. Expired or unreadable
// tokens are dropped from the session.
func (s *Server) currentUser(r *http.Request) (user, bool) {
	sid, ok := session.FromRequest(r)
	if !ok {
		return user{}, false
	}
	token, err := s.sessions.Get(r.Context(), sid, session.KeyAccessToken)
	if err != nil {
		if !errors.Is(err, awardwizard.ErrNotFound) {
			s.logger.Warn("read access token failed", zap.Error(err))
		}
		return user{}, false
	}
	id, err := auth.Parse(token, s.now())
	if err != nil {
		s.logger.Debug("discarding access token", zap.Error(err))
		if err := s.sessions.Delete(r.Context(), sid, session.KeyAccessToken); err != nil {
			s.logger.Warn("delete access token failed", zap.Error(err))
		}
		return user{}, false
	}
	return user{sessionID: sid, token: token, identity: id}, true
}

// requireLogin sends anonymous callers to the login page.
func (s *Server) requireLogin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.currentUser(r)
		if !ok {
			if r.Header.Get("Upgrade") == "websocket" || wantsJSON(r) {
				writeJSONError(w, http.StatusUnauthorized, "login required")
				return
			}
			target := r.URL.Path
			if r.Method != http.MethodGet {
				target = "/dashboard"
			}
			http.Redirect(w, r, "/login?next="+url.QueryEscape(target), http.StatusSeeOther)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	}
}

// notices are the flash messages addressable by ?notice=.
var notices = map[string]string{
	"registered":     "Account created. Please log in.",
	"password-reset": "Your password has been reset. Please log in.",
	"logged-out":     "You have been logged out.",
	"login-required": "Please log in to continue.",
}

type option struct {
	Value string
	Label string
}

var courses = []option{
	{"msc-software-systems", "MSc Software Systems"},
	{"msc-data-science", "MSc Data Science"},
	{"msc-theoretical-computer-science", "MSc Theoretical Computer Science"},
	{"msc-cyber-security", "MSc Cyber Security"},
}

const nominationNote = "**Note:** An email will be sent to the nominee with instructions to register. " +
	"We recommend you also contact them to ensure they complete the application."

// pageData is the data of every full page.
type pageData struct {
	Title    string
	AppTitle string
	LoggedIn bool
	Email    string
	Notice   string
	Error    string
	// Form echoes submitted values back into the page.
	Form map[string]string

	Wizard        *wizardView
	Stage         string
	Courses       []option
	Nominations   []remote.Nomination
	Relationships []string
	Note          template.HTML
}

func (s *Server) newPage(r *http.Request, title string) *pageData {
	p := &pageData{
		Title:    title,
		AppTitle: s.cfg.Title,
		Form:     map[string]string{},
		Notice:   notices[r.URL.Query().Get("notice")],
	}
	if u, ok := userFrom(r.Context()); ok {
		p.LoggedIn = true
		p.Email = u.identity.Email
	} else if u, ok := s.currentUser(r); ok {
		p.LoggedIn = true
		p.Email = u.identity.Email
	}
	return p
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data *pageData) {
	if err := s.render.Page(w, status, name, data); err != nil {
		s.logger.Error("render page failed", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, "index", s.newPage(r, ""))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, "dashboard", s.newPage(r, "Dashboard"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "mounts": s.mounts.Len()}
	if b, ok := s.api.(interface{ Breaker() *remote.CircuitBreaker }); ok {
		status["circuit"] = b.Breaker().State().String()
	}
	writeJSON(w, http.StatusOK, status)
}
