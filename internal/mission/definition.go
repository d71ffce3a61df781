package mission

import (
	"fmt"
	"strings"
	"time"

	"github.com/abhishek0-0/healthsec-CTF/internal/wizard"
)

// AgentPlaceholder is replaced with the agent display name when a page is
// rendered.
const AgentPlaceholder = "{{agent}}"

// BriefingID is the catalog id of the onboarding briefing.
const BriefingID = "briefing"

// Button actions understood by the page handler.
const (
	ActionNext    = "next"
	ActionBack    = "back"
	ActionJump    = "jump"
	ActionSubmit  = "submit"
	ActionRetry   = "retry"
	ActionKey     = "key"
	ActionProceed = "proceed"
	// ActionLink is a plain anchor to Button.Route, no state change.
	ActionLink = "link"
)

// Definition is one page of the catalog: the briefing, a mission or a stub.
type Definition struct {
	ID     string  `yaml:"id" json:"id"`
	Route  string  `yaml:"route" json:"route"`
	Title  string  `yaml:"title" json:"title"`
	Theme  string  `yaml:"theme" json:"theme"`
	Next   string  `yaml:"next" json:"next"`
	Stub   bool    `yaml:"stub" json:"stub"`
	Policy Policy  `yaml:"policy" json:"policy"`
	Gate   *Gate   `yaml:"gate,omitempty" json:"-"`
	Panels []Panel `yaml:"panels" json:"panels"`
}

type Policy struct {
	ProgressDots         bool `yaml:"progress_dots" json:"progressDots"`
	DotsBypassGate       bool `yaml:"dots_bypass_gate" json:"dotsBypassGate"`
	LockBackAfterSuccess bool `yaml:"lock_back_after_success" json:"lockBackAfterSuccess"`
	Keyboard             bool `yaml:"keyboard" json:"keyboard"`
	// StepLabel shows "n / N" under the card.
	StepLabel bool `yaml:"step_label" json:"stepLabel"`
}

// Gate is the flag check of a mission. Expected never leaves the server
// through the JSON API.
type Gate struct {
	Step        int           `yaml:"step"`
	ResultStep  int           `yaml:"result_step"`
	Normalizer  string        `yaml:"normalizer"`
	MaxDigits   int           `yaml:"max_digits"`
	Expected    string        `yaml:"expected"`
	VerifyDelay time.Duration `yaml:"verify_delay"`

	Prompt      string `yaml:"prompt"`
	Format      string `yaml:"format"`
	Placeholder string `yaml:"placeholder"`
	InputMode   string `yaml:"input_mode"`
	MaxLength   int    `yaml:"max_length"`
	SubmitLabel string `yaml:"submit_label"`

	Messages Messages `yaml:"messages"`
}

type Messages struct {
	Empty     string `yaml:"empty"`
	Malformed string `yaml:"malformed"`
	Incorrect string `yaml:"incorrect"`
}

// Panel is the content of one wizard step.
type Panel struct {
	Subheading string    `yaml:"subheading,omitempty" json:"subheading,omitempty"`
	Heading    string    `yaml:"heading,omitempty" json:"heading,omitempty"`
	Typing     []string  `yaml:"typing,omitempty" json:"typing,omitempty"`
	Body       string    `yaml:"body,omitempty" json:"body,omitempty"`
	BulletIcon string    `yaml:"bullet_icon,omitempty" json:"bulletIcon,omitempty"`
	Bullets    []string  `yaml:"bullets,omitempty" json:"bullets,omitempty"`
	Box        *Box      `yaml:"box,omitempty" json:"box,omitempty"`
	Pre        string    `yaml:"pre,omitempty" json:"pre,omitempty"`
	Exhibits   []Exhibit `yaml:"exhibits,omitempty" json:"exhibits,omitempty"`
	Links      []Link    `yaml:"links,omitempty" json:"links,omitempty"`
	Badge      string    `yaml:"badge,omitempty" json:"badge,omitempty"`
	Rewards    []string  `yaml:"rewards,omitempty" json:"rewards,omitempty"`
	Message    string    `yaml:"message,omitempty" json:"message,omitempty"`
	Tagline    string    `yaml:"tagline,omitempty" json:"tagline,omitempty"`
	Button     *Button   `yaml:"button,omitempty" json:"button,omitempty"`
	// Rejected replaces the panel when the gate verdict is "incorrect".
	Rejected *Panel `yaml:"rejected,omitempty" json:"rejected,omitempty"`
}

type Box struct {
	Title string `yaml:"title" json:"title"`
	Body  string `yaml:"body" json:"body"`
	Link  *Link  `yaml:"link,omitempty" json:"link,omitempty"`
}

type Exhibit struct {
	Src     string `yaml:"src" json:"src"`
	Alt     string `yaml:"alt" json:"alt"`
	Caption string `yaml:"caption,omitempty" json:"caption,omitempty"`
}

type Link struct {
	Href     string `yaml:"href" json:"href"`
	Label    string `yaml:"label" json:"label"`
	Download bool   `yaml:"download,omitempty" json:"download,omitempty"`
}

type Button struct {
	Label  string `yaml:"label" json:"label"`
	Action string `yaml:"action" json:"action"`
	Route  string `yaml:"route,omitempty" json:"route,omitempty"`
	Style  string `yaml:"style,omitempty" json:"style,omitempty"`
}

// Summary is the public view of a definition.
type Summary struct {
	ID     string `json:"id"`
	Route  string `json:"route"`
	Title  string `json:"title"`
	Steps  int    `json:"steps"`
	Gated  bool   `json:"gated"`
	Stub   bool   `json:"stub"`
	Next   string `json:"next,omitempty"`
	Policy Policy `json:"policy"`
}

func (d Definition) Summary() Summary {
	return Summary{
		ID:     d.ID,
		Route:  d.Route,
		Title:  d.Title,
		Steps:  len(d.Panels),
		Gated:  d.Gate != nil,
		Stub:   d.Stub,
		Next:   d.Next,
		Policy: d.Policy,
	}
}

func (d Definition) Key() string {
	if d.ID == BriefingID {
		return BriefingID
	}
	return "mission-" + d.ID
}

// WizardSpec turns the definition into the state machine configuration.
func (d Definition) WizardSpec() (wizard.Spec, error) {
	spec := wizard.Spec{
		Key:        d.Key(),
		TotalSteps: len(d.Panels),
		Policy: wizard.Policy{
			ProgressDots:         d.Policy.ProgressDots,
			DotsBypassGate:       d.Policy.DotsBypassGate,
			LockBackAfterSuccess: d.Policy.LockBackAfterSuccess,
			Keyboard:             d.Policy.Keyboard,
		},
		NextRoute: d.Next,
	}
	if g := d.Gate; g != nil {
		n, err := wizard.NormalizerByName(g.Normalizer, g.MaxDigits)
		if err != nil {
			return wizard.Spec{}, fmt.Errorf("mission %s: %w", d.ID, err)
		}
		spec.Gate = &wizard.Gate{
			Step:             g.Step,
			ResultStep:       g.ResultStep,
			Normalizer:       n,
			Expected:         g.Expected,
			EmptyMessage:     g.Messages.Empty,
			MalformedMessage: g.Messages.Malformed,
			IncorrectMessage: g.Messages.Incorrect,
			VerifyDelay:      g.VerifyDelay,
		}
	}
	if err := spec.Validate(); err != nil {
		return wizard.Spec{}, err
	}
	return spec, nil
}

// Panel returns the content for step, 1-based.
func (d Definition) Panel(step int) (Panel, bool) {
	if step < 1 || step > len(d.Panels) {
		return Panel{}, false
	}
	return d.Panels[step-1], true
}

// ForAgent returns a copy with every agent placeholder replaced by name.
func (d Definition) ForAgent(name string) Definition {
	r := strings.NewReplacer(AgentPlaceholder, name)
	out := d
	out.Title = r.Replace(d.Title)
	out.Panels = make([]Panel, len(d.Panels))
	for i, p := range d.Panels {
		out.Panels[i] = p.replace(r)
	}
	if d.Gate != nil {
		g := *d.Gate
		g.Prompt = r.Replace(g.Prompt)
		out.Gate = &g
	}
	return out
}

func (p Panel) replace(r *strings.Replacer) Panel {
	out := p
	out.Subheading = r.Replace(p.Subheading)
	out.Heading = r.Replace(p.Heading)
	out.Body = r.Replace(p.Body)
	out.Message = r.Replace(p.Message)
	out.Tagline = r.Replace(p.Tagline)
	out.Typing = replaceAll(r, p.Typing)
	out.Bullets = replaceAll(r, p.Bullets)
	out.Rewards = replaceAll(r, p.Rewards)
	if p.Box != nil {
		b := *p.Box
		b.Title = r.Replace(b.Title)
		b.Body = r.Replace(b.Body)
		out.Box = &b
	}
	if p.Rejected != nil {
		rej := p.Rejected.replace(r)
		out.Rejected = &rej
	}
	return out
}

func replaceAll(r *strings.Replacer, in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = r.Replace(s)
	}
	return out
}

// Placeholder is the generic page for ids the catalog does not know.
func Placeholder(id string) Definition {
	id = strings.TrimSpace(id)
	if id == "" {
		id = "1"
	}
	return Definition{
		ID:    id,
		Route: "/mission/" + id,
		Title: "Mission " + id,
		Theme: "briefing",
		Stub:  true,
		Panels: []Panel{{
			Heading: "Mission " + id,
			Body:    "Coming soon.",
			Button:  &Button{Label: "Back to Briefing", Action: ActionLink, Route: "/briefing"},
		}},
	}
}
