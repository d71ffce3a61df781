package mission

import (
	"math"
	"time"

	"github.com/a-h/templ"

	"github.com/abhishek0-0/healthsec-CTF/internal/wizard"
)

// Renderer turns page data into a component. The view package provides
// the real one; tests can pass a stub.
type Renderer func(PageData) templ.Component

// Snapshot is the wizard state plus the moves currently allowed.
type Snapshot struct {
	State      wizard.State `json:"state"`
	CanAdvance bool         `json:"canAdvance"`
	CanRetreat bool         `json:"canRetreat"`
}

func snapshotOf(w *wizard.Wizard) Snapshot {
	return Snapshot{
		State:      w.State(),
		CanAdvance: w.CanAdvance(),
		CanRetreat: w.CanRetreat(),
	}
}

// PageData is everything a page template needs for one render.
type PageData struct {
	Agent string
	Page  Definition
	Panel Panel
	Snapshot

	// Gate is set only while the answer form should be shown.
	Gate *Gate
	// Action is the form target for wizard moves.
	Action  string
	PollURL string
	// RefreshSeconds is > 0 while a verification is pending.
	RefreshSeconds int
}

func (p PageData) Steps() []int {
	out := make([]int, p.State.TotalSteps)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func (p PageData) Verifying() bool { return p.State.Status == wizard.StatusVerifying }
func (p PageData) Solved() bool    { return p.State.Status == wizard.StatusSuccess }
func (p PageData) Rejected() bool  { return p.State.Status == wizard.StatusIncorrect }

// ShowTitle is false for the briefing and stub pages, whose first heading
// already names them.
func (p PageData) ShowTitle() bool {
	return p.Page.ID != BriefingID && !p.Page.Stub
}

// ShowStepLabel hides the counter once the flag is accepted.
func (p PageData) ShowStepLabel() bool {
	return p.Page.Policy.StepLabel && !p.Solved()
}

func buildPageData(def Definition, agent string, snap Snapshot, now time.Time) PageData {
	d := def.ForAgent(agent)
	panel, _ := d.Panel(snap.State.Step)
	if snap.State.Status == wizard.StatusIncorrect && panel.Rejected != nil {
		panel = *panel.Rejected
	}
	data := PageData{
		Agent:    agent,
		Page:     d,
		Panel:    panel,
		Snapshot: snap,
		Action:   d.Route,
		PollURL:  d.Route + "/poll",
	}
	if g := d.Gate; g != nil && snap.State.Step == g.Step && snap.State.Status != wizard.StatusSuccess {
		data.Gate = g
	}
	if snap.State.Status == wizard.StatusVerifying {
		data.RefreshSeconds = refreshAfter(snap.State.ReadyAt, now)
	}
	return data
}

func refreshAfter(readyAt *time.Time, now time.Time) int {
	if readyAt == nil {
		return 1
	}
	secs := int(math.Ceil(readyAt.Sub(now).Seconds()))
	switch {
	case secs < 1:
		return 1
	case secs > 10:
		return 10
	}
	return secs
}
