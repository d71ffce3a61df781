// Package view renders the GHIA pages. Templates are embedded and exposed
// as templ components so handlers serve them through templ.Handler.
package view

import (
	"context"
	"embed"
	"html/template"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/abhishek0-0/healthsec-CTF/internal/mission"
)

//go:embed templates/*.html
var templatesFS embed.FS

var funcs = template.FuncMap{
	"lines": lines,
}

var (
	welcomeTmpl  = mustPage("welcome.html")
	registerTmpl = mustPage("register.html")
	pageTmpl     = mustPage("page.html")
	errorTmpl    = mustPage("error.html")
)

func mustPage(name string) *template.Template {
	return template.Must(
		template.New("layout.html").
			Funcs(funcs).
			ParseFS(templatesFS, "templates/layout.html", "templates/"+name),
	)
}

func lines(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// shell is the layout data shared by every page.
type shell struct {
	Title      string
	Theme      string
	Refresh    int
	RefreshURL string
	Keyboard   bool
	EnterHref  string
	Page       any
}

func render(t *template.Template, data shell) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return t.ExecuteTemplate(w, "layout.html", data)
	})
}

func Welcome() templ.Component {
	return render(welcomeTmpl, shell{
		Title:     "Welcome",
		Theme:     "welcome",
		EnterHref: "/register",
		Page:      nil,
	})
}

// RegisterData drives the register page. A non-empty Agent switches it to
// the post-registration welcome panel.
type RegisterData struct {
	Lines []string
	Name  string
	Error string
	Agent string
}

func Register(data RegisterData) templ.Component {
	s := shell{Title: "Register", Theme: "register", Page: data}
	if data.Agent != "" {
		s.EnterHref = "/briefing"
	}
	return render(registerTmpl, s)
}

// Page renders the briefing, a mission or a stub.
func Page(data mission.PageData) templ.Component {
	return render(pageTmpl, shell{
		Title:      data.Page.Title,
		Theme:      data.Page.Theme,
		Refresh:    data.RefreshSeconds,
		RefreshURL: data.PollURL,
		Keyboard:   data.Page.Policy.Keyboard,
		Page:       data,
	})
}

var _ mission.Renderer = Page

type errorData struct {
	Code    int
	Heading string
	Message string
}

// Error is the page shown for unknown routes and recovered failures.
func Error(code int) templ.Component {
	d := errorData{Code: code, Heading: "Signal lost", Message: "Something went wrong on our side. Your progress on this page may have been reset."}
	if code == http.StatusNotFound {
		d.Heading = "No such file, Agent"
		d.Message = "This page is not in the GHIA archive."
	}
	return render(errorTmpl, shell{Title: d.Heading, Theme: "briefing", Page: d})
}
