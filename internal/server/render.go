package server

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/livetemplate/awardwizard/internal/assets"
)

// pageNames are the templates rendered inside layout.html.
var pageNames = []string{"index", "signup", "login", "forgot", "dashboard", "register", "nominations"}

// Renderer renders pages from the embedded templates, letting files in an
// override directory replace them by name.
type Renderer struct {
	dir string
	md  goldmark.Markdown

	mu    sync.RWMutex
	pages map[string]*template.Template
}

// NewRenderer parses the templates. dir may be empty.
func NewRenderer(dir string) (*Renderer, error) {
	r := &Renderer{
		dir: dir,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Typographer),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the override directory.
func (r *Renderer) Dir() string { return r.dir }

// Markdown renders src to HTML. Raw HTML in src is escaped by goldmark.
func (r *Renderer) Markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"markdown": r.Markdown,
		"title":    titleCase,
	}
}

func (r *Renderer) read(name string) ([]byte, error) {
	if r.dir != "" {
		data, err := os.ReadFile(filepath.Join(r.dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return fs.ReadFile(assets.TemplatesFS(), name)
}

// Reload re-parses every template. On error the previous set stays active.
func (r *Renderer) Reload() error {
	base := template.New("layout").Funcs(r.funcs())
	for _, name := range []string{"layout.html", "wizard.html"} {
		src, err := r.read(name)
		if err != nil {
			return fmt.Errorf("read template %s: %w", name, err)
		}
		if _, err := base.New(name).Parse(string(src)); err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, page := range pageNames {
		src, err := r.read(page + ".html")
		if err != nil {
			return fmt.Errorf("read template %s: %w", page, err)
		}
		t, err := base.Clone()
		if err != nil {
			return err
		}
		if _, err := t.New(page + ".html").Parse(string(src)); err != nil {
			return fmt.Errorf("parse template %s: %w", page, err)
		}
		pages[page] = t
	}

	r.mu.Lock()
	r.pages = pages
	r.mu.Unlock()
	return nil
}

// Page renders the named page into w.
func (r *Renderer) Page(w http.ResponseWriter, status int, name string, data any) error {
	r.mu.RLock()
	t, ok := r.pages[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Wizard renders only the wizard body, for live updates.
func (r *Renderer) Wizard(v *wizardView) (string, error) {
	r.mu.RLock()
	t := r.pages["register"]
	r.mu.RUnlock()

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "wizard", v); err != nil {
		return "", fmt.Errorf("render wizard: %w", err)
	}
	return buf.String(), nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	rs := []rune(s)
	rs[0] = unicode.ToUpper(rs[0])
	return strings.TrimSpace(string(rs))
}
