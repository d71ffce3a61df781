// Package wizard implements the step wizard shared by the briefing and
// every mission page: a bounded step index, an optional answer gate and
// the navigation policy that decides which moves are allowed.
package wizard

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrStepOutOfRange      = errors.New("step out of range")
	ErrNavigationDisabled  = errors.New("navigation disabled for this page")
	ErrGateLocked          = errors.New("gate must be solved first")
	ErrNotAtGate           = errors.New("no answer expected at this step")
	ErrEmptyAnswer         = errors.New("empty answer")
	ErrMalformedAnswer     = errors.New("malformed answer")
	ErrVerificationPending = errors.New("verification in progress")
	ErrAlreadySolved       = errors.New("gate already solved")
	ErrNotComplete         = errors.New("page not complete")
)

// Status is the verification status of the gate.
type Status string

const (
	StatusUnset     Status = ""
	StatusVerifying Status = "verifying"
	StatusSuccess   Status = "success"
	StatusIncorrect Status = "incorrect"
)

// Keys understood by Key.
const (
	KeyLeft  = "ArrowLeft"
	KeyRight = "ArrowRight"
	KeyEnter = "Enter"
)

// Gate describes the step that needs a correct flag before the wizard
// may move on.
type Gate struct {
	Step int
	// ResultStep, when non-zero, is where the wizard lands after a
	// verification resolves (success or not). Zero keeps a rejected answer
	// on the gate step and sends an accepted one to the terminal step.
	ResultStep       int
	Normalizer       Normalizer
	Expected         string
	EmptyMessage     string
	MalformedMessage string
	IncorrectMessage string
	VerifyDelay      time.Duration
}

// Policy holds the per-page navigation rules.
type Policy struct {
	ProgressDots         bool
	DotsBypassGate       bool
	LockBackAfterSuccess bool
	Keyboard             bool
}

type Spec struct {
	Key        string
	TotalSteps int
	Gate       *Gate
	Policy     Policy
	NextRoute  string
	// OnResolve, if set, is called once per verdict, including delayed
	// ones settled on a later observation. It runs with the store lock held.
	OnResolve func(ok bool)
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Key) == "" {
		return errors.New("wizard key is required")
	}
	if s.TotalSteps < 1 {
		return fmt.Errorf("%s: total steps must be positive, got %d", s.Key, s.TotalSteps)
	}
	if s.Gate == nil {
		return nil
	}
	g := s.Gate
	if g.Step < 1 || g.Step >= s.TotalSteps {
		return fmt.Errorf("%s: gate step %d outside [1,%d)", s.Key, g.Step, s.TotalSteps)
	}
	if g.ResultStep != 0 && (g.ResultStep <= g.Step || g.ResultStep > s.TotalSteps) {
		return fmt.Errorf("%s: result step %d must follow gate step %d", s.Key, g.ResultStep, g.Step)
	}
	if g.Normalizer == nil {
		return fmt.Errorf("%s: gate normalizer is required", s.Key)
	}
	if g.Expected == "" {
		return fmt.Errorf("%s: gate expected flag is required", s.Key)
	}
	if g.VerifyDelay < 0 {
		return fmt.Errorf("%s: negative verify delay", s.Key)
	}
	return nil
}

// State is a snapshot of a wizard instance.
type State struct {
	Step       int        `json:"step"`
	TotalSteps int        `json:"totalSteps"`
	Status     Status     `json:"status"`
	Message    string     `json:"message,omitempty"`
	Answer     string     `json:"answer,omitempty"`
	ReadyAt    *time.Time `json:"readyAt,omitempty"`
}

func (s State) Terminal() bool { return s.Step == s.TotalSteps }

// Wizard is one mounted page instance. It is not safe for concurrent use;
// Store serializes access.
type Wizard struct {
	spec  Spec
	clock Clock

	state     State
	pendingOK bool
}

func New(spec Spec, clock Clock) (*Wizard, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Wizard{
		spec:  spec,
		clock: clock,
		state: State{Step: 1, TotalSteps: spec.TotalSteps},
	}, nil
}

func (w *Wizard) Spec() Spec { return w.spec }

func (w *Wizard) State() State {
	w.settle()
	out := w.state
	if w.state.ReadyAt != nil {
		t := *w.state.ReadyAt
		out.ReadyAt = &t
	}
	return out
}

// settle resolves a pending verification once its delay has elapsed.
func (w *Wizard) settle() {
	if w.state.Status != StatusVerifying || w.state.ReadyAt == nil {
		return
	}
	if w.clock.Now().Before(*w.state.ReadyAt) {
		return
	}
	w.resolve(w.pendingOK)
}

func (w *Wizard) resolve(ok bool) {
	g := w.spec.Gate
	w.state.ReadyAt = nil
	w.pendingOK = false
	if w.spec.OnResolve != nil {
		w.spec.OnResolve(ok)
	}
	if ok {
		w.state.Status = StatusSuccess
		w.state.Message = ""
		if g.ResultStep > 0 {
			w.state.Step = g.ResultStep
		} else {
			w.state.Step = w.spec.TotalSteps
		}
		return
	}
	w.state.Status = StatusIncorrect
	w.state.Message = g.IncorrectMessage
	if g.ResultStep > 0 {
		w.state.Step = g.ResultStep
	}
}

func (w *Wizard) solved() bool {
	return w.spec.Gate == nil || w.state.Status == StatusSuccess
}

func (w *Wizard) CanAdvance() bool {
	w.settle()
	if w.state.Step >= w.spec.TotalSteps || w.state.Status == StatusVerifying {
		return false
	}
	if g := w.spec.Gate; g != nil && w.state.Step >= g.Step && !w.solved() {
		return false
	}
	return true
}

func (w *Wizard) CanRetreat() bool {
	w.settle()
	if w.state.Step <= 1 || w.state.Status == StatusVerifying {
		return false
	}
	if w.spec.Policy.LockBackAfterSuccess && w.spec.Gate != nil && w.state.Status == StatusSuccess {
		return false
	}
	return true
}

// Advance moves one step forward. It never errors; a refused move is a
// no-op reported as false.
func (w *Wizard) Advance() bool {
	if !w.CanAdvance() {
		return false
	}
	w.state.Step++
	w.state.Message = ""
	return true
}

// Retreat moves one step back and clears the verification status.
func (w *Wizard) Retreat() bool {
	if !w.CanRetreat() {
		return false
	}
	w.state.Step--
	w.state.Status = StatusUnset
	w.state.Message = ""
	return true
}

// JumpTo is the progress-dot move.
func (w *Wizard) JumpTo(n int) error {
	w.settle()
	if !w.spec.Policy.ProgressDots {
		return ErrNavigationDisabled
	}
	if n < 1 || n > w.spec.TotalSteps {
		return ErrStepOutOfRange
	}
	if w.state.Status == StatusVerifying {
		return ErrVerificationPending
	}
	if n == w.state.Step {
		return nil
	}
	if n < w.state.Step && !w.CanRetreat() {
		return ErrGateLocked
	}
	if g := w.spec.Gate; g != nil && n > g.Step && !w.solved() && !w.spec.Policy.DotsBypassGate {
		return ErrGateLocked
	}
	back := n < w.state.Step
	w.state.Step = n
	w.state.Message = ""
	if back || w.state.Status == StatusIncorrect {
		w.state.Status = StatusUnset
	}
	return nil
}

// Submit checks raw against the gate flag.
func (w *Wizard) Submit(raw string) error {
	w.settle()
	g := w.spec.Gate
	if g == nil || w.state.Step != g.Step {
		return ErrNotAtGate
	}
	switch w.state.Status {
	case StatusVerifying:
		return ErrVerificationPending
	case StatusSuccess:
		return ErrAlreadySolved
	}

	w.state.Answer = raw
	w.state.Status = StatusUnset
	w.state.Message = ""

	normalized, err := g.Normalizer.Normalize(raw)
	if err != nil {
		w.state.Message = g.EmptyMessage
		if errors.Is(err, ErrMalformedAnswer) && g.MalformedMessage != "" {
			w.state.Message = g.MalformedMessage
		}
		return err
	}

	ok := g.Normalizer.Equal(normalized, g.Expected)
	if g.VerifyDelay > 0 {
		readyAt := w.clock.Now().Add(g.VerifyDelay)
		w.state.Status = StatusVerifying
		w.state.ReadyAt = &readyAt
		w.pendingOK = ok
		return nil
	}
	w.resolve(ok)
	return nil
}

// Retry leaves a rejected result and returns to an idle gate.
func (w *Wizard) Retry() bool {
	w.settle()
	g := w.spec.Gate
	if g == nil || w.state.Status != StatusIncorrect {
		return false
	}
	w.state.Step = g.Step
	w.state.Status = StatusUnset
	w.state.Message = ""
	return true
}

// Proceed returns the route that follows the terminal step.
func (w *Wizard) Proceed() (string, error) {
	w.settle()
	if w.state.Step != w.spec.TotalSteps {
		return "", ErrNotComplete
	}
	if !w.solved() && !w.spec.Policy.DotsBypassGate {
		return "", ErrNotComplete
	}
	return w.spec.NextRoute, nil
}

// Key maps a keyboard key to a move. input is the current answer field,
// used by Enter on the gate step. A non-empty route means the caller should
// navigate there.
func (w *Wizard) Key(key, input string) (string, error) {
	if !w.spec.Policy.Keyboard {
		return "", ErrNavigationDisabled
	}
	w.settle()
	switch key {
	case KeyRight:
		w.Advance()
	case KeyLeft:
		w.Retreat()
	case KeyEnter:
		if g := w.spec.Gate; g != nil && w.state.Step == g.Step &&
			w.state.Status != StatusVerifying && w.state.Status != StatusSuccess {
			if strings.TrimSpace(input) == "" {
				return "", nil
			}
			return "", w.Submit(input)
		}
		if w.state.Step < w.spec.TotalSteps {
			w.Advance()
			return "", nil
		}
		route, err := w.Proceed()
		if err != nil {
			return "", nil
		}
		return route, nil
	}
	return "", nil
}
