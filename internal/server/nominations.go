package server

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/livetemplate/awardwizard/internal/remote"
)

func (s *Server) nominationsPage(r *http.Request) *pageData {
	p := s.newPage(r, "Nominations")
	p.Relationships = remote.Relationships
	p.Note = s.render.Markdown(nominationNote)
	return p
}

// loadNominations fills the list, leaving an error on the page when the
// API cannot be reached.
func (s *Server) loadNominations(r *http.Request, p *pageData) {
	u, _ := userFrom(r.Context())
	list, err := s.api.ListNominations(r.Context(), u.creds())
	if err != nil {
		s.logger.Info("list nominations failed", zap.Error(err))
		if p.Error == "" {
			p.Error = "Your nominations could not be loaded: " + remote.UserMessage(err)
		}
		return
	}
	p.Nominations = list
}

func (s *Server) handleNominationsPage(w http.ResponseWriter, r *http.Request) {
	p := s.nominationsPage(r)
	s.loadNominations(r, p)
	s.renderPage(w, http.StatusOK, "nominations", p)
}

func (s *Server) handleNominate(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	p := s.nominationsPage(r)
	p.Form = formValues(r, "name", "email", "relationship")

	switch {
	case p.Form["name"] == "" || p.Form["email"] == "" || p.Form["relationship"] == "":
		p.Error = "Please fill in the nominee's name, email and your relationship."
	case !validEmail(p.Form["email"]):
		p.Error = "Please enter a valid email address for the nominee."
	case !remote.ValidRelationship(strings.ToLower(p.Form["relationship"])):
		p.Error = "Please choose one of the listed relationships."
	}

	if p.Error == "" {
		created, err := s.api.CreateNomination(r.Context(), u.creds(), remote.Nomination{
			Name:         p.Form["name"],
			Email:        p.Form["email"],
			Relationship: strings.ToLower(p.Form["relationship"]),
		})
		if err != nil {
			s.logger.Info("create nomination failed", zap.Error(err))
			p.Error = remote.UserMessage(err)
		} else {
			p.Notice = fmt.Sprintf("Thank you for nominating %s!", created.Name)
			p.Form = map[string]string{}
		}
	}

	s.loadNominations(r, p)
	s.renderPage(w, http.StatusOK, "nominations", p)
}
