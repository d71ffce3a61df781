// Package serverapp assembles the GHIA HTTP server from config.
package serverapp

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/abhishek0-0/healthsec-CTF/internal/agent"
	"github.com/abhishek0-0/healthsec-CTF/internal/config"
	"github.com/abhishek0-0/healthsec-CTF/internal/httpmw"
	"github.com/abhishek0-0/healthsec-CTF/internal/mission"
	"github.com/abhishek0-0/healthsec-CTF/internal/onboarding"
	"github.com/abhishek0-0/healthsec-CTF/internal/session"
	"github.com/abhishek0-0/healthsec-CTF/internal/telemetry"
	"github.com/abhishek0-0/healthsec-CTF/internal/view"
	"github.com/abhishek0-0/healthsec-CTF/internal/wizard"
	staticfiles "github.com/abhishek0-0/healthsec-CTF/static"
)

type Options struct {
	Config *config.Config
	Logger *log.Logger

	// Clock drives verification delays; nil means wall time.
	Clock wizard.Clock
}

// App is the assembled handler plus the resources it owns.
type App struct {
	handler http.Handler
	agents  agent.Repo
	store   *wizard.Store
	routes  *RouteRegistry
	idle    time.Duration
	logger  *log.Logger
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// Routes lists the registered routes in registration order.
func (a *App) Routes() []RouteDoc { return a.routes.List() }

// PruneIdlePages drops mounted wizard pages left idle longer than the
// configured timeout, checking every interval until ctx is done. It blocks;
// run it in its own goroutine.
func (a *App) PruneIdlePages(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = max(a.idle/4, time.Minute)
	}
	a.store.PruneEvery(ctx, interval, func(n int) {
		a.logger.Printf("[wizard] pruned %d idle pages", n)
	})
}

func (a *App) Close() error {
	if a.agents == nil {
		return nil
	}
	return a.agents.Close()
}

func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	cfg := opts.Config
	cfg.ApplyDefaults()
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Clock == nil {
		opts.Clock = wizard.RealClock{}
	}
	logger := opts.Logger

	catalog, err := mission.Load(cfg.Missions.CatalogPath)
	if err != nil {
		return nil, err
	}
	agents, err := agent.Open(cfg.Storage.Driver, cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	sessions := session.NewService(session.Options{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.CookieSecure,
		SameSite:   cfg.Session.CookieSameSite,
	}, logger)
	logSecurityHints(logger, cfg)

	events := telemetry.NewMemoryRepositoryWithLimit(cfg.Telemetry.Limit)
	recorder := telemetry.NewRecorder(events, logger)

	agentHandler := agent.NewHandler(agents, logger)
	agentHandler.SetSessionResolver(sessions.ID)

	store := wizard.NewStore(opts.Clock, cfg.Wizard.IdleTimeout)
	missions := mission.NewHandler(catalog, store, view.Page, logger)
	missions.SetClock(opts.Clock)
	missions.SetSessionResolver(sessions.ID)
	missions.SetAgentResolver(agentHandler.Name)
	missions.SetRecorder(recorder)

	onboard := onboarding.NewHandler(agents, missions, logger)
	onboard.SetSessionResolver(sessions.ID)
	onboard.SetRecorder(recorder)

	statsHandler := telemetry.NewHandler(events)

	r := chi.NewRouter()
	rr := &RouteRegistry{}

	var staticHandler http.Handler = http.FileServer(http.FS(staticfiles.EmbeddedFS()))
	if cfg.Static.UseDisk {
		staticHandler = http.FileServer(http.Dir(cfg.Static.Dir))
	}
	r.Handle("/static/*", http.StripPrefix("/static/", staticHandler))
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.Dir(cfg.Static.AssetsDir))))

	handle(r, rr, "GET /healthz", "liveness", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"service": "ghia",
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	})
	handle(r, rr, "GET /readyz", "readiness; checks agent storage", func(w http.ResponseWriter, r *http.Request) {
		if _, err := agents.Count(r.Context()); err != nil {
			logger.Printf("[serverapp] readiness check failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"ok":    false,
				"error": "agent storage unavailable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":            true,
			"service":       "ghia",
			"mounted_pages": store.Len(),
			"time":          time.Now().UTC().Format(time.RFC3339),
		})
	})

	handle(r, rr, "GET /", "welcome page", onboard.Welcome)
	handle(r, rr, "GET /register", "registration form", onboard.RegisterForm)
	handle(r, rr, "POST /register", "store agent name", onboard.Register)
	handle(r, rr, "GET /briefing", "briefing wizard", onboard.Briefing)
	handle(r, rr, "POST /briefing", "briefing wizard action", onboard.BriefingPost)
	handle(r, rr, "GET /briefing/poll", "briefing state after a delay", onboard.BriefingPoll)
	handle(r, rr, "GET /mission/{id}", "mission wizard", missions.Page)
	handle(r, rr, "POST /mission/{id}", "mission wizard action", missions.PagePost)
	handle(r, rr, "GET /mission/{id}/poll", "mission state after a delay", missions.PagePoll)

	handle(r, rr, "GET /api/agent", "current agent name", agentHandler.Get)
	handle(r, rr, "POST /api/agent", "set agent name", agentHandler.Put)
	handle(r, rr, "PUT /api/agent", "set agent name", agentHandler.Put)
	handle(r, rr, "GET /api/missions", "catalog summary", missions.List)
	handle(r, rr, "GET /api/missions/{id}/state", "wizard snapshot", missions.State)
	handle(r, rr, "POST /api/missions/{id}/actions", "apply a wizard action", missions.Actions)
	handle(r, rr, "GET /api/telemetry/stats", "funnel statistics", statsHandler.Stats)
	handle(r, rr, "GET /api/routes", "this list", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rr.List())
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		templ.Handler(view.Error(http.StatusNotFound), templ.WithStatus(http.StatusNotFound)).ServeHTTP(w, r)
	})

	errorPage := templ.Handler(view.Error(http.StatusInternalServerError), templ.WithStatus(http.StatusInternalServerError))
	h := httpmw.Chain(
		sessions.Ensure(annotateSession(sessions.ID, r)),
		httpmw.WithAccessLog(logger),
		httpmw.WithRequestID,
		httpmw.WithRecover(logger, errorPage),
		httpmw.WithSecurityHeaders,
	)
	return &App{handler: h, agents: agents, store: store, routes: rr, idle: cfg.Wizard.IdleTimeout, logger: logger}, nil
}

// sessionLogLen keeps the full session id out of the access log.
const sessionLogLen = 8

func annotateSession(resolve func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sid := resolve(r); sid != "" {
			if len(sid) > sessionLogLen {
				sid = sid[:sessionLogLen]
			}
			httpmw.Annotate(r.Context(), "session", sid)
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func logSecurityHints(logger *log.Logger, cfg *config.Config) {
	if logger == nil || !cfg.Production() {
		return
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Session.CookieSecure)) {
	case "1", "true", "yes":
	default:
		logger.Printf("[security] env=%s but %sSESSION_COOKIE_SECURE is not explicitly true", cfg.Env, config.EnvPrefix)
	}
	if strings.TrimSpace(cfg.Session.CookieSameSite) == "" {
		logger.Printf("[security] env=%s and %sSESSION_COOKIE_SAMESITE unset (default lax)", cfg.Env, config.EnvPrefix)
	}
}
