package server

import (
	"net/http"
	"net/mail"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/livetemplate/awardwizard/internal/auth"
	"github.com/livetemplate/awardwizard/internal/remote"
	"github.com/livetemplate/awardwizard/internal/security"
	"github.com/livetemplate/awardwizard/internal/session"
)

var otpPattern = regexp.MustCompile(`^[0-9]{6}$`)

// Forgot-password stages.
const (
	stageEmail = "email"
	stageOTP   = "otp"
	stageReset = "reset"
)

func formValues(r *http.Request, names ...string) map[string]string {
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = strings.TrimSpace(r.PostFormValue(n))
	}
	return out
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(r, "Sign up")
	p.Courses = courses
	s.renderPage(w, http.StatusOK, "signup", p)
}

// handleSignup creates the account. The course is only used by the page.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(r, "Sign up")
	p.Courses = courses
	p.Form = formValues(r, "name", "email", "mobile", "course")
	password := r.PostFormValue("password")

	switch {
	case p.Form["name"] == "" || p.Form["email"] == "" || password == "":
		p.Error = "Name, email and password are required."
	case !validEmail(p.Form["email"]):
		p.Error = "Please enter a valid email address."
	case password != r.PostFormValue("confirmPassword"):
		p.Error = "Passwords do not match."
	}
	if p.Error != "" {
		s.renderPage(w, http.StatusUnprocessableEntity, "signup", p)
		return
	}

	_, err := s.api.Register(r.Context(), remote.RegisterRequest{
		Name:     p.Form["name"],
		Email:    p.Form["email"],
		Password: password,
		Mobile:   p.Form["mobile"],
	})
	if err != nil {
		s.logger.Info("registration failed", zap.Error(err))
		p.Error = remote.UserMessage(err)
		s.renderPage(w, http.StatusOK, "signup", p)
		return
	}
	http.Redirect(w, r, "/login?notice=registered", http.StatusSeeOther)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(r, "Log in")
	p.Form["next"] = security.LocalRedirect(r.URL.Query().Get("next"))
	s.renderPage(w, http.StatusOK, "login", p)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(r, "Log in")
	p.Form = formValues(r, "email", "next")
	p.Form["next"] = security.LocalRedirect(p.Form["next"])
	password := r.PostFormValue("password")

	if p.Form["email"] == "" || password == "" {
		p.Error = "Email and password are required."
		s.renderPage(w, http.StatusUnprocessableEntity, "login", p)
		return
	}

	token, err := s.api.Login(r.Context(), remote.LoginRequest{Email: p.Form["email"], Password: password})
	if err != nil {
		s.logger.Info("login failed", zap.Error(err))
		p.Error = remote.UserMessage(err)
		s.renderPage(w, http.StatusOK, "login", p)
		return
	}
	if _, err := auth.Parse(token, s.now()); err != nil {
		s.logger.Warn("login returned unusable token", zap.Error(err))
		p.Error = "Login failed. Please try again."
		s.renderPage(w, http.StatusOK, "login", p)
		return
	}

	sid := session.Ensure(w, r, s.cfg.Server.SecureCookies)
	if err := s.sessions.Set(r.Context(), sid, session.KeyAccessToken, token); err != nil {
		s.logger.Error("store access token failed", zap.Error(err))
		p.Error = "Login failed. Please try again."
		s.renderPage(w, http.StatusOK, "login", p)
		return
	}

	next := p.Form["next"]
	if next == "" {
		next = "/dashboard"
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// handleLogout forgets the token and everything else stored for the
// session, including an unfinished application.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sid, ok := session.FromRequest(r); ok {
		if err := s.sessions.Drop(r.Context(), sid); err != nil {
			s.logger.Warn("drop session failed", zap.Error(err))
		}
		s.mounts.Each(func(m *mount) {
			if m.sessionID == sid {
				s.mounts.remove(m.id)
			}
		})
	}
	session.Expire(w, s.cfg.Server.SecureCookies)
	http.Redirect(w, r, "/?notice=logged-out", http.StatusSeeOther)
}

func (s *Server) handleForgotPage(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(r, "Forgot password")
	p.Stage = stageEmail
	s.renderPage(w, http.StatusOK, "forgot", p)
}

// handleForgot drives the three recovery stages. Each post carries the
// stage it was rendered for, and the email and OTP collected so far.
func (s *Server) handleForgot(w http.ResponseWriter, r *http.Request) {
	p := s.newPage(r, "Forgot password")
	p.Form = formValues(r, "email", "otp")
	p.Stage = r.PostFormValue("stage")
	ctx := r.Context()

	switch p.Stage {
	case stageOTP:
		if !otpPattern.MatchString(p.Form["otp"]) {
			p.Error = "Please enter the 6-digit code."
			break
		}
		msg, err := s.api.VerifyOTP(ctx, p.Form["email"], p.Form["otp"])
		if err != nil {
			p.Error = remote.UserMessage(err)
			break
		}
		p.Notice = msg
		p.Stage = stageReset

	case stageReset:
		newPassword := r.PostFormValue("newPassword")
		confirm := r.PostFormValue("confirmPassword")
		if newPassword == "" {
			p.Error = "Please enter a new password."
			break
		}
		if newPassword != confirm {
			p.Error = "Passwords do not match."
			break
		}
		if _, err := s.api.ResetPassword(ctx, remote.ResetPasswordRequest{
			Email:           p.Form["email"],
			OTP:             p.Form["otp"],
			NewPassword:     newPassword,
			ConfirmPassword: confirm,
		}); err != nil {
			p.Error = remote.UserMessage(err)
			break
		}
		http.Redirect(w, r, "/login?notice=password-reset", http.StatusSeeOther)
		return

	default:
		p.Stage = stageEmail
		if !validEmail(p.Form["email"]) {
			p.Error = "Please enter a valid email address."
			break
		}
		msg, err := s.api.ForgotPassword(ctx, p.Form["email"])
		if err != nil {
			p.Error = remote.UserMessage(err)
			break
		}
		p.Notice = msg
		p.Stage = stageOTP
	}
	s.renderPage(w, http.StatusOK, "forgot", p)
}
