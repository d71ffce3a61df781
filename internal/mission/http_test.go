package mission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhishek0-0/healthsec-CTF/internal/telemetry"
	"github.com/abhishek0-0/healthsec-CTF/internal/wizard"
)

func textRenderer(d PageData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, "step=%d/%d status=%s heading=%q message=%q gate=%t refresh=%d agent=%s body=%q",
			d.State.Step, d.State.TotalSteps, d.State.Status, d.Panel.Heading, d.State.Message,
			d.Gate != nil, d.RefreshSeconds, d.Agent, d.Panel.Body)
		return err
	})
}

type testApp struct {
	router http.Handler
	clock  *wizard.FakeClock
	events *telemetry.MemoryRepository
	store  *wizard.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	cat, err := Default()
	require.NoError(t, err)
	clk := wizard.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := wizard.NewStore(clk, 0)
	repo := telemetry.NewMemoryRepository()

	h := NewHandler(cat, store, textRenderer, log.New(io.Discard, "", 0))
	h.SetClock(clk)
	h.SetRecorder(telemetry.NewRecorder(repo, nil))
	h.SetSessionResolver(func(r *http.Request) string { return r.Header.Get("X-Session") })
	h.SetAgentResolver(func(r *http.Request) string { return r.Header.Get("X-Agent") })

	r := chi.NewRouter()
	r.Get("/briefing", func(w http.ResponseWriter, r *http.Request) { h.Mount(w, r, BriefingID) })
	r.Post("/briefing", func(w http.ResponseWriter, r *http.Request) { h.Act(w, r, BriefingID) })
	r.Get("/mission/{id}", h.Page)
	r.Post("/mission/{id}", h.PagePost)
	r.Get("/mission/{id}/poll", h.PagePoll)
	r.Get("/api/missions", h.List)
	r.Get("/api/missions/{id}/state", h.State)
	r.Post("/api/missions/{id}/actions", h.Actions)
	return &testApp{router: r, clock: clk, events: repo, store: store}
}

func (a *testApp) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Session", "s1")
	req.Header.Set("X-Agent", "Jordan")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Session", "s1")
	req.Header.Set("X-Agent", "Jordan")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) act(path, action string) *httptest.ResponseRecorder {
	return a.post(path, url.Values{"action": {action}})
}

func (a *testApp) api(path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session", "s1")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) count(t *testing.T, typ telemetry.EventType) int {
	t.Helper()
	ev, err := a.events.GetEvents(time.Time{}, []telemetry.EventType{typ})
	require.NoError(t, err)
	return len(ev)
}

func TestBriefing_AgentNameAndDeploy(t *testing.T) {
	app := newTestApp(t)

	res := app.get("/briefing")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "step=1/8")

	res = app.act("/briefing", ActionNext)
	assert.Contains(t, res.Body.String(), "Welcome to GHIA, Agent Jordan.")

	for i := 0; i < 6; i++ {
		app.act("/briefing", ActionNext)
	}
	res = app.act("/briefing", ActionProceed)
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/mission/1", res.Header().Get("Location"))
	assert.Equal(t, 1, app.count(t, telemetry.EventBriefingCompleted))
}

func TestBriefing_ProceedRefusedBeforeLastStep(t *testing.T) {
	app := newTestApp(t)
	app.get("/briefing")
	res := app.act("/briefing", ActionProceed)
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "step=1/8")
}

func TestMission1_VerifyThenPoll(t *testing.T) {
	app := newTestApp(t)
	app.get("/mission/1")
	for i := 0; i < 3; i++ {
		app.act("/mission/1", ActionNext)
	}
	res := app.get("/mission/1/poll")
	assert.Contains(t, res.Body.String(), "step=4/6")
	assert.Contains(t, res.Body.String(), "gate=true")

	res = app.act("/mission/1", ActionNext)
	assert.Contains(t, res.Body.String(), "step=4/6", "gate blocks advance")

	res = app.post("/mission/1", url.Values{"action": {ActionSubmit}, "answer": {"3"}})
	assert.Contains(t, res.Body.String(), "status=verifying")
	assert.Contains(t, res.Body.String(), "refresh=3")

	app.clock.Advance(2300 * time.Millisecond)
	res = app.get("/mission/1/poll")
	assert.Contains(t, res.Body.String(), "step=5/6")
	assert.Contains(t, res.Body.String(), "status=incorrect")
	assert.Contains(t, res.Body.String(), `heading=""`, "rejected panel replaces the verdict")
	assert.Equal(t, 1, app.count(t, telemetry.EventFlagRejected))

	res = app.act("/mission/1", ActionRetry)
	assert.Contains(t, res.Body.String(), "step=4/6")

	app.post("/mission/1", url.Values{"action": {ActionSubmit}, "answer": {" 000 "}})
	app.clock.Advance(3 * time.Second)
	res = app.get("/mission/1/poll")
	assert.Contains(t, res.Body.String(), "status=success")
	assert.Contains(t, res.Body.String(), `heading="Verification complete."`)

	res = app.act("/mission/1", ActionBack)
	assert.Contains(t, res.Body.String(), "step=5/6", "back locked after success")

	app.act("/mission/1", ActionNext)
	res = app.act("/mission/1", ActionProceed)
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/mission/2", res.Header().Get("Location"))

	assert.Equal(t, 1, app.count(t, telemetry.EventFlagAccepted))
	assert.Equal(t, 2, app.count(t, telemetry.EventFlagSubmitted))
	assert.Equal(t, 1, app.count(t, telemetry.EventMissionCompleted))
}

func TestMission1_RemountResets(t *testing.T) {
	app := newTestApp(t)
	app.get("/mission/1")
	app.act("/mission/1", ActionNext)
	res := app.get("/mission/1")
	assert.Contains(t, res.Body.String(), "step=1/6")
}

func TestMission2_DateGate(t *testing.T) {
	app := newTestApp(t)
	app.get("/mission/2")
	app.act("/mission/2", ActionNext)
	app.act("/mission/2", ActionNext)

	res := app.post("/mission/2", url.Values{"action": {ActionSubmit}, "answer": {""}})
	assert.Contains(t, res.Body.String(), "step=3/4")
	assert.Contains(t, res.Body.String(), "status= ")
	assert.Equal(t, 1, app.count(t, telemetry.EventFlagInvalid))

	res = app.post("/mission/2", url.Values{"action": {ActionSubmit}, "answer": {"15-06-2020"}})
	assert.Contains(t, res.Body.String(), "step=3/4")

	res = app.post("/mission/2", url.Values{"action": {ActionSubmit}, "answer": {"2020-06-14"}})
	assert.Contains(t, res.Body.String(), "step=3/4")
	assert.Contains(t, res.Body.String(), "status=incorrect")

	res = app.post("/mission/2", url.Values{"action": {ActionSubmit}, "answer": {"2020-06-15"}})
	assert.Contains(t, res.Body.String(), "step=4/4")
	assert.Contains(t, res.Body.String(), "status=success")
	assert.Contains(t, res.Body.String(), "gate=false")
}

func TestKeyAction_EnterSubmitsAndProceeds(t *testing.T) {
	app := newTestApp(t)
	app.get("/mission/1")
	for i := 0; i < 3; i++ {
		app.post("/mission/1", url.Values{"action": {ActionKey}, "key": {wizard.KeyRight}})
	}
	res := app.post("/mission/1", url.Values{"action": {ActionKey}, "key": {wizard.KeyEnter}, "answer": {"0"}})
	assert.Contains(t, res.Body.String(), "status=verifying")
	app.clock.Advance(3 * time.Second)
	app.post("/mission/1", url.Values{"action": {ActionKey}, "key": {wizard.KeyEnter}})
	res = app.post("/mission/1", url.Values{"action": {ActionKey}, "key": {wizard.KeyEnter}})
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/mission/2", res.Header().Get("Location"))
}

func TestKeyAction_IgnoredWithoutKeyboardPolicy(t *testing.T) {
	app := newTestApp(t)
	app.get("/mission/4")
	res := app.post("/mission/4", url.Values{"action": {ActionKey}, "key": {wizard.KeyRight}})
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "step=1/3")
}

func TestStubAndPlaceholderPages(t *testing.T) {
	app := newTestApp(t)
	res := app.get("/mission/3")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `heading="Mission 3"`)

	res = app.get("/mission/42")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `heading="Mission 42"`)
	assert.Contains(t, res.Body.String(), `body="Coming soon."`)
}

func TestPoll_WithoutMountedPageRedirects(t *testing.T) {
	app := newTestApp(t)

	res := app.get("/mission/1/poll")
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/mission/1", res.Header().Get("Location"))
	assert.Equal(t, 0, app.store.Len(), "poll never mounts")

	app.get("/briefing")
	app.act("/briefing", ActionNext)
	res = app.get("/mission/1/poll")
	require.Equal(t, http.StatusSeeOther, res.Code)

	res = app.act("/briefing", ActionNext)
	assert.Contains(t, res.Body.String(), "step=3/8", "briefing state survives a stray poll")
}

func TestUnknownFormAction(t *testing.T) {
	app := newTestApp(t)
	app.get("/mission/1")
	res := app.act("/mission/1", "teleport")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestPostWithoutSessionRedirects(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/mission/2", strings.NewReader("action=next"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/mission/2", rec.Header().Get("Location"))
}

func TestAPI_ListHidesFlags(t *testing.T) {
	app := newTestApp(t)
	res := app.get("/api/missions")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, `"id":"briefing"`)
	assert.NotContains(t, body, "DISCLAIMER:NONADVISORY")
	assert.NotContains(t, body, "2020-06-15")
}

func TestAPI_StateAndActions(t *testing.T) {
	app := newTestApp(t)

	res := app.get("/api/missions/9/state")
	require.Equal(t, http.StatusOK, res.Code)
	var st stateResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&st))
	assert.Equal(t, 1, st.State.Step)
	assert.True(t, st.CanAdvance)

	res = app.api("/api/missions/9/actions", Action{Action: ActionJump, Step: 3})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = app.api("/api/missions/9/actions", Action{Action: ActionNext})
	require.Equal(t, http.StatusOK, res.Code)

	res = app.api("/api/missions/9/actions", Action{Action: ActionSubmit, Answer: "disclaimer:nonadvisory"})
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&st))
	assert.Equal(t, wizard.StatusIncorrect, st.State.Status)

	res = app.api("/api/missions/9/actions", Action{Action: ActionSubmit, Answer: "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)

	res = app.api("/api/missions/9/actions", Action{Action: ActionSubmit, Answer: "DISCLAIMER:NONADVISORY"})
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&st))
	assert.Equal(t, wizard.StatusSuccess, st.State.Status)
	assert.Equal(t, 3, st.State.Step)

	res = app.api("/api/missions/9/actions", Action{Action: ActionSubmit, Answer: "x"})
	assert.Equal(t, http.StatusConflict, res.Code)

	res = app.api("/api/missions/9/actions", Action{Action: ActionProceed})
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&st))
	assert.Equal(t, "/mission/10", st.Route)
}

func TestAPI_Errors(t *testing.T) {
	app := newTestApp(t)
	assert.Equal(t, http.StatusNotFound, app.get("/api/missions/99/state").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/missions/1/state", nil)
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/missions/1/actions", strings.NewReader("{"))
	req.Header.Set("X-Session", "s1")
	rec = httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusBadRequest, app.api("/api/missions/1/actions", Action{Action: "fly"}).Code)
	assert.Equal(t, http.StatusBadRequest, app.api("/api/missions/1/actions", Action{Action: ActionJump, Step: 9}).Code)
	assert.Equal(t, http.StatusConflict, app.api("/api/missions/1/actions", Action{Action: ActionJump, Step: 6}).Code)
}

func TestRefreshAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time { t := now.Add(d); return &t }
	assert.Equal(t, 1, refreshAfter(nil, now))
	assert.Equal(t, 1, refreshAfter(at(-time.Second), now))
	assert.Equal(t, 3, refreshAfter(at(2200*time.Millisecond), now))
	assert.Equal(t, 10, refreshAfter(at(time.Minute), now))
}
