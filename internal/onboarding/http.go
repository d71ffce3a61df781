// Package onboarding serves the welcome, register and briefing pages.
package onboarding

import (
	"log"
	"net/http"
	"strings"

	"github.com/a-h/templ"

	"github.com/abhishek0-0/healthsec-CTF/internal/agent"
	"github.com/abhishek0-0/healthsec-CTF/internal/mission"
	"github.com/abhishek0-0/healthsec-CTF/internal/telemetry"
	"github.com/abhishek0-0/healthsec-CTF/internal/view"
)

// TypingLines is the terminal intro shown before the name form.
var TypingLines = []string{
	"Interest acknowledged.",
	"GHIA verification protocol initiated…",
	"Before we proceed, identify yourself.",
}

const msgEmptyName = "Enter your name, Agent."

type Handler struct {
	agents   agent.Repo
	missions *mission.Handler
	logger   *log.Logger
	events   *telemetry.Recorder

	sessionResolver func(*http.Request) string
}

func NewHandler(agents agent.Repo, missions *mission.Handler, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{agents: agents, missions: missions, logger: logger}
}

func (h *Handler) SetSessionResolver(fn func(*http.Request) string) {
	h.sessionResolver = fn
}

func (h *Handler) SetRecorder(rec *telemetry.Recorder) {
	h.events = rec
}

func (h *Handler) sessionForRequest(r *http.Request) string {
	if h.sessionResolver == nil {
		return ""
	}
	return strings.TrimSpace(h.sessionResolver(r))
}

// GET /
func (h *Handler) Welcome(w http.ResponseWriter, r *http.Request) {
	h.events.Record(telemetry.EventWelcomeViewed, nil)
	templ.Handler(view.Welcome()).ServeHTTP(w, r)
}

// GET /register
func (h *Handler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	templ.Handler(view.Register(view.RegisterData{Lines: TypingLines})).ServeHTTP(w, r)
}

// POST /register stores the trimmed name, then shows the welcome panel. A
// storage failure is logged and the page carries on with the typed name.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	raw := r.PostFormValue("name")
	name, err := agent.CleanName(raw)
	if err != nil {
		data := view.RegisterData{Lines: TypingLines, Name: raw, Error: msgEmptyName}
		templ.Handler(view.Register(data), templ.WithStatus(http.StatusUnprocessableEntity)).ServeHTTP(w, r)
		return
	}

	sid := h.sessionForRequest(r)
	switch {
	case sid == "":
		h.logger.Printf("[onboarding] register without session, name not stored")
	case h.agents == nil:
		h.logger.Printf("[onboarding] no agent repository, name not stored")
	default:
		if _, err := h.agents.Save(r.Context(), sid, name); err != nil {
			h.logger.Printf("[onboarding] save name failed: %v", err)
		} else {
			h.events.Record(telemetry.EventAgentRegistered, nil)
		}
	}

	templ.Handler(view.Register(view.RegisterData{Agent: name})).ServeHTTP(w, r)
}

// GET /briefing
func (h *Handler) Briefing(w http.ResponseWriter, r *http.Request) {
	h.missions.Mount(w, r, mission.BriefingID)
}

// POST /briefing
func (h *Handler) BriefingPost(w http.ResponseWriter, r *http.Request) {
	h.missions.Act(w, r, mission.BriefingID)
}

// GET /briefing/poll
func (h *Handler) BriefingPoll(w http.ResponseWriter, r *http.Request) {
	h.missions.Poll(w, r, mission.BriefingID)
}
