package mission

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/abhishek0-0/healthsec-CTF/internal/agent"
	"github.com/abhishek0-0/healthsec-CTF/internal/httpmw"
	"github.com/abhishek0-0/healthsec-CTF/internal/telemetry"
	"github.com/abhishek0-0/healthsec-CTF/internal/wizard"
)

var ErrUnknownAction = errors.New("unknown action")

// Handler serves the briefing and mission pages plus their JSON API.
type Handler struct {
	catalog *Catalog
	store   *wizard.Store
	render  Renderer
	logger  *log.Logger
	clock   wizard.Clock
	events  *telemetry.Recorder

	sessionResolver func(*http.Request) string
	agentResolver   func(*http.Request) string
}

func NewHandler(catalog *Catalog, store *wizard.Store, render Renderer, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		catalog: catalog,
		store:   store,
		render:  render,
		logger:  logger,
		clock:   wizard.RealClock{},
	}
}

func (h *Handler) SetSessionResolver(fn func(*http.Request) string) {
	h.sessionResolver = fn
}

func (h *Handler) SetAgentResolver(fn func(*http.Request) string) {
	h.agentResolver = fn
}

func (h *Handler) SetRecorder(rec *telemetry.Recorder) {
	h.events = rec
}

// SetClock should be the clock the store was built with.
func (h *Handler) SetClock(c wizard.Clock) {
	if c != nil {
		h.clock = c
	}
}

func (h *Handler) sessionForRequest(r *http.Request) string {
	if h.sessionResolver == nil {
		return ""
	}
	return strings.TrimSpace(h.sessionResolver(r))
}

func (h *Handler) agentName(r *http.Request) string {
	if h.agentResolver == nil {
		return agent.DefaultName
	}
	if name := strings.TrimSpace(h.agentResolver(r)); name != "" {
		return name
	}
	return agent.DefaultName
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// record tags events with the page id.
func (h *Handler) record(def Definition, t telemetry.EventType) {
	h.events.Record(t, telemetry.EventMetadata{"mission": def.ID})
}

func (h *Handler) specFor(def Definition) (wizard.Spec, error) {
	spec, err := def.WizardSpec()
	if err != nil {
		return wizard.Spec{}, err
	}
	if spec.Gate != nil {
		spec.OnResolve = func(ok bool) {
			if ok {
				h.record(def, telemetry.EventFlagAccepted)
				return
			}
			h.record(def, telemetry.EventFlagRejected)
		}
	}
	return spec, nil
}

// apply runs fn against the session's wizard and snapshots the result. A
// request without a session works on a throwaway wizard.
func (h *Handler) apply(sid string, spec wizard.Spec, fn func(*wizard.Wizard) error) (Snapshot, error) {
	var snap Snapshot
	run := func(w *wizard.Wizard) error {
		var err error
		if fn != nil {
			err = fn(w)
		}
		snap = snapshotOf(w)
		return err
	}
	if sid == "" {
		w, err := wizard.New(spec, h.clock)
		if err != nil {
			return Snapshot{}, err
		}
		return snap, run(w)
	}
	_, err := h.store.Do(sid, spec, run)
	return snap, err
}

// Action is one wizard move, from a form post or the JSON API.
type Action struct {
	Action string `json:"action"`
	Step   int    `json:"step,omitempty"`
	Answer string `json:"answer,omitempty"`
	Key    string `json:"key,omitempty"`
}

func actionFromForm(r *http.Request) Action {
	a := Action{
		Action: strings.TrimSpace(r.PostFormValue("action")),
		Answer: r.PostFormValue("answer"),
		Key:    strings.TrimSpace(r.PostFormValue("key")),
	}
	if n, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("step"))); err == nil {
		a.Step = n
	}
	return a
}

// perform applies a to w and returns the route to navigate to, if any.
func (h *Handler) perform(def Definition, w *wizard.Wizard, a Action) (string, error) {
	switch a.Action {
	case ActionNext:
		w.Advance()
	case ActionBack:
		w.Retreat()
	case ActionJump:
		return "", w.JumpTo(a.Step)
	case ActionRetry:
		w.Retry()
	case ActionSubmit:
		return "", h.submit(def, w, func() error { return w.Submit(a.Answer) })
	case ActionKey:
		if a.Key == wizard.KeyEnter && atIdleGate(w) && strings.TrimSpace(a.Answer) != "" {
			var route string
			err := h.submit(def, w, func() error {
				var err error
				route, err = w.Key(a.Key, a.Answer)
				return err
			})
			return route, err
		}
		route, err := w.Key(a.Key, a.Answer)
		if route != "" {
			h.completed(def)
		}
		return route, err
	case ActionProceed:
		route, err := w.Proceed()
		if err != nil {
			return "", err
		}
		h.completed(def)
		return route, nil
	default:
		return "", ErrUnknownAction
	}
	return "", nil
}

func atIdleGate(w *wizard.Wizard) bool {
	g := w.Spec().Gate
	if g == nil {
		return false
	}
	st := w.State()
	return st.Step == g.Step && st.Status != wizard.StatusVerifying && st.Status != wizard.StatusSuccess
}

func (h *Handler) submit(def Definition, w *wizard.Wizard, fn func() error) error {
	err := fn()
	switch {
	case errors.Is(err, wizard.ErrEmptyAnswer), errors.Is(err, wizard.ErrMalformedAnswer):
		h.record(def, telemetry.EventFlagInvalid)
	case err == nil:
		h.record(def, telemetry.EventFlagSubmitted)
	}
	return err
}

func (h *Handler) completed(def Definition) {
	if def.ID == BriefingID {
		h.events.Record(telemetry.EventBriefingCompleted, nil)
		return
	}
	h.record(def, telemetry.EventMissionCompleted)
}

func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, def Definition, snap Snapshot) {
	data := buildPageData(def, h.agentName(r), snap, h.clock.Now())
	var c templ.Component
	if h.render != nil {
		c = h.render(data)
	}
	if c == nil {
		http.Error(w, "no renderer", http.StatusInternalServerError)
		return
	}
	templ.Handler(c).ServeHTTP(w, r)
}

// Mount resets the page for the session and renders step 1.
func (h *Handler) Mount(w http.ResponseWriter, r *http.Request, id string) {
	def := h.catalog.Resolve(id)
	httpmw.Annotate(r.Context(), "page", def.ID)
	spec, err := h.specFor(def)
	if err != nil {
		h.logger.Printf("[mission] %s: %v", def.ID, err)
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	sid := h.sessionForRequest(r)
	if sid != "" {
		if _, err := h.store.Mount(sid, spec); err != nil {
			h.logger.Printf("[mission] mount %s: %v", def.ID, err)
			http.Error(w, "page unavailable", http.StatusInternalServerError)
			return
		}
	}
	snap, err := h.apply(sid, spec, nil)
	if err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	h.record(def, telemetry.EventPageMounted)
	h.renderPage(w, r, def, snap)
}

// Act applies a posted form action and renders the result. Refused moves
// render the unchanged page; the inline message carries any feedback.
func (h *Handler) Act(w http.ResponseWriter, r *http.Request, id string) {
	def := h.catalog.Resolve(id)
	httpmw.Annotate(r.Context(), "page", def.ID)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	sid := h.sessionForRequest(r)
	if sid == "" {
		http.Redirect(w, r, def.Route, http.StatusSeeOther)
		return
	}
	spec, err := h.specFor(def)
	if err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}

	a := actionFromForm(r)
	httpmw.Annotate(r.Context(), "action", a.Action)
	var route string
	snap, err := h.apply(sid, spec, func(wz *wizard.Wizard) error {
		var err error
		route, err = h.perform(def, wz, a)
		return err
	})
	if errors.Is(err, ErrUnknownAction) {
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	if route != "" {
		http.Redirect(w, r, route, http.StatusSeeOther)
		return
	}
	h.renderPage(w, r, def, snap)
}

// Poll renders the mounted state without resetting it. Without a mounted
// page it sends the browser back to the page route, which mounts one.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request, id string) {
	def := h.catalog.Resolve(id)
	httpmw.Annotate(r.Context(), "page", def.ID)
	spec, err := h.specFor(def)
	if err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	sid := h.sessionForRequest(r)
	if sid == "" {
		http.Redirect(w, r, def.Route, http.StatusSeeOther)
		return
	}
	var snap Snapshot
	_, err = h.store.Peek(sid, spec.Key, func(wz *wizard.Wizard) { snap = snapshotOf(wz) })
	if errors.Is(err, wizard.ErrNotMounted) {
		http.Redirect(w, r, def.Route, http.StatusSeeOther)
		return
	}
	if err != nil {
		http.Error(w, "page unavailable", http.StatusInternalServerError)
		return
	}
	h.renderPage(w, r, def, snap)
}

// GET /mission/{id}
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	h.Mount(w, r, chi.URLParam(r, "id"))
}

// POST /mission/{id}
func (h *Handler) PagePost(w http.ResponseWriter, r *http.Request) {
	h.Act(w, r, chi.URLParam(r, "id"))
}

// GET /mission/{id}/poll
func (h *Handler) PagePoll(w http.ResponseWriter, r *http.Request) {
	h.Poll(w, r, chi.URLParam(r, "id"))
}

// GET /api/missions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":  h.catalog.Version,
		"pages":    h.catalog.List(),
		"missions": h.catalog.Missions(),
	})
}

type stateResponse struct {
	ID string `json:"id"`
	Snapshot
	Route string `json:"route,omitempty"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) apiPage(w http.ResponseWriter, r *http.Request) (Definition, wizard.Spec, string, bool) {
	def, ok := h.catalog.Lookup(chi.URLParam(r, "id"))
	httpmw.Annotate(r.Context(), "page", chi.URLParam(r, "id"))
	if !ok {
		writeErr(w, http.StatusNotFound, ErrNotFound.Error())
		return Definition{}, wizard.Spec{}, "", false
	}
	sid := h.sessionForRequest(r)
	if sid == "" {
		writeErr(w, http.StatusUnauthorized, "no session")
		return Definition{}, wizard.Spec{}, "", false
	}
	spec, err := h.specFor(def)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "page unavailable")
		return Definition{}, wizard.Spec{}, "", false
	}
	return def, spec, sid, true
}

// GET /api/missions/{id}/state
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	def, spec, sid, ok := h.apiPage(w, r)
	if !ok {
		return
	}
	snap, err := h.apply(sid, spec, nil)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "page unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{ID: def.ID, Snapshot: snap})
}

// POST /api/missions/{id}/actions
func (h *Handler) Actions(w http.ResponseWriter, r *http.Request) {
	def, spec, sid, ok := h.apiPage(w, r)
	if !ok {
		return
	}
	var a Action
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	httpmw.Annotate(r.Context(), "action", a.Action)
	var route string
	snap, err := h.apply(sid, spec, func(wz *wizard.Wizard) error {
		var err error
		route, err = h.perform(def, wz, a)
		return err
	})
	resp := stateResponse{ID: def.ID, Snapshot: snap, Route: route}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnknownAction), errors.Is(err, wizard.ErrStepOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrNavigationDisabled):
		return http.StatusForbidden
	case errors.Is(err, wizard.ErrEmptyAnswer), errors.Is(err, wizard.ErrMalformedAnswer):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wizard.ErrGateLocked),
		errors.Is(err, wizard.ErrNotAtGate),
		errors.Is(err, wizard.ErrVerificationPending),
		errors.Is(err, wizard.ErrAlreadySolved),
		errors.Is(err, wizard.ErrNotComplete):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
