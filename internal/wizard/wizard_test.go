package wizard

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func magnetSpec(t *testing.T) Spec {
	t.Helper()
	n, err := NormalizerByName(NormInteger, 3)
	require.NoError(t, err)
	return Spec{
		Key:        "mission-1",
		TotalSteps: 6,
		Gate: &Gate{
			Step:             4,
			ResultStep:       5,
			Normalizer:       n,
			Expected:         "0",
			EmptyMessage:     "Enter a number.",
			IncorrectMessage: "Incorrect. Review the FDA ingredient list carefully.",
			VerifyDelay:      2200 * time.Millisecond,
		},
		Policy:    Policy{ProgressDots: true, LockBackAfterSuccess: true, Keyboard: true},
		NextRoute: "/mission/2",
	}
}

func dateSpec(t *testing.T) Spec {
	t.Helper()
	n, err := NormalizerByName(NormDate, 0)
	require.NoError(t, err)
	return Spec{
		Key:        "mission-2",
		TotalSteps: 4,
		Gate: &Gate{
			Step:             3,
			Normalizer:       n,
			Expected:         "2020-06-15",
			EmptyMessage:     "Enter the date in YYYY-MM-DD format.",
			MalformedMessage: "Invalid date format. Use YYYY-MM-DD.",
			IncorrectMessage: "Not yet. Re-check the FDA notice date.",
		},
		Policy:    Policy{LockBackAfterSuccess: true, Keyboard: true},
		NextRoute: "/mission/3",
	}
}

func newWizard(t *testing.T, spec Spec) (*Wizard, *FakeClock) {
	t.Helper()
	clk := NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	w, err := New(spec, clk)
	require.NoError(t, err)
	return w, clk
}

func TestSpecValidate(t *testing.T) {
	n, _ := NormalizerByName(NormExact, 0)
	cases := []struct {
		name string
		spec Spec
	}{
		{"no key", Spec{TotalSteps: 2}},
		{"no steps", Spec{Key: "k"}},
		{"gate on terminal", Spec{Key: "k", TotalSteps: 2, Gate: &Gate{Step: 2, Normalizer: n, Expected: "x"}}},
		{"result before gate", Spec{Key: "k", TotalSteps: 4, Gate: &Gate{Step: 2, ResultStep: 2, Normalizer: n, Expected: "x"}}},
		{"no normalizer", Spec{Key: "k", TotalSteps: 3, Gate: &Gate{Step: 2, Expected: "x"}}},
		{"no flag", Spec{Key: "k", TotalSteps: 3, Gate: &Gate{Step: 2, Normalizer: n}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.spec, nil)
			assert.Error(t, err)
		})
	}
}

func TestAdvance_GatelessRunsToEnd(t *testing.T) {
	w, _ := newWizard(t, Spec{Key: "briefing", TotalSteps: 8, Policy: Policy{ProgressDots: true}, NextRoute: "/mission/1"})

	for i := 0; i < 7; i++ {
		assert.True(t, w.Advance())
	}
	assert.False(t, w.Advance(), "advance at terminal is a no-op")
	assert.Equal(t, 8, w.State().Step)

	route, err := w.Proceed()
	require.NoError(t, err)
	assert.Equal(t, "/mission/1", route)
}

func TestRetreat_NoopAtFirstStep(t *testing.T) {
	w, _ := newWizard(t, magnetSpec(t))
	assert.False(t, w.Retreat())
	assert.Equal(t, 1, w.State().Step)
}

func TestAdvance_BlockedAtGate(t *testing.T) {
	w, _ := newWizard(t, magnetSpec(t))
	w.Advance()
	w.Advance()
	w.Advance()
	require.Equal(t, 4, w.State().Step)

	assert.False(t, w.Advance())
	assert.Equal(t, 4, w.State().Step)
}

func TestSubmit_NotAtGate(t *testing.T) {
	w, _ := newWizard(t, magnetSpec(t))
	assert.ErrorIs(t, w.Submit("0"), ErrNotAtGate)
}

func TestSubmit_EmptySetsMessageWithoutTransition(t *testing.T) {
	w, _ := newWizard(t, magnetSpec(t))
	require.NoError(t, w.JumpTo(4))

	assert.ErrorIs(t, w.Submit("   "), ErrEmptyAnswer)
	st := w.State()
	assert.Equal(t, 4, st.Step)
	assert.Equal(t, StatusUnset, st.Status)
	assert.Equal(t, "Enter a number.", st.Message)
}

func TestSubmit_DelayedSuccessLandsOnResultStep(t *testing.T) {
	w, clk := newWizard(t, magnetSpec(t))
	require.NoError(t, w.JumpTo(4))

	require.NoError(t, w.Submit(" 0 "))
	st := w.State()
	assert.Equal(t, StatusVerifying, st.Status)
	require.NotNil(t, st.ReadyAt)

	assert.ErrorIs(t, w.Submit("0"), ErrVerificationPending)
	assert.False(t, w.Retreat(), "no back while verifying")

	clk.Advance(2 * time.Second)
	assert.Equal(t, StatusVerifying, w.State().Status)

	clk.Advance(200 * time.Millisecond)
	st = w.State()
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, 5, st.Step)
	assert.Nil(t, st.ReadyAt)

	assert.False(t, w.Retreat(), "back locked after success")
	assert.ErrorIs(t, w.JumpTo(2), ErrGateLocked)

	assert.True(t, w.Advance())
	assert.False(t, w.Retreat())
	route, err := w.Proceed()
	require.NoError(t, err)
	assert.Equal(t, "/mission/2", route)
}

func TestSubmit_IncorrectThenRetry(t *testing.T) {
	w, clk := newWizard(t, magnetSpec(t))
	require.NoError(t, w.JumpTo(4))

	require.NoError(t, w.Submit("7"))
	clk.Advance(3 * time.Second)

	st := w.State()
	assert.Equal(t, StatusIncorrect, st.Status)
	assert.Equal(t, 5, st.Step)
	assert.Equal(t, "Incorrect. Review the FDA ingredient list carefully.", st.Message)
	assert.False(t, w.Advance(), "cannot pass a rejected gate")

	assert.True(t, w.Retry())
	st = w.State()
	assert.Equal(t, 4, st.Step)
	assert.Equal(t, StatusUnset, st.Status)
	assert.Empty(t, st.Message)
}

func TestSubmit_IntegerComparesNumerically(t *testing.T) {
	w, clk := newWizard(t, magnetSpec(t))
	require.NoError(t, w.JumpTo(4))
	require.NoError(t, w.Submit("000"))
	clk.Advance(time.Minute)
	assert.Equal(t, StatusSuccess, w.State().Status)
}

func TestSubmit_IntegerRejectsTooManyDigits(t *testing.T) {
	w, _ := newWizard(t, magnetSpec(t))
	require.NoError(t, w.JumpTo(4))
	assert.ErrorIs(t, w.Submit("1000"), ErrMalformedAnswer)
	assert.Equal(t, StatusUnset, w.State().Status)
}

func TestJumpTo(t *testing.T) {
	w, _ := newWizard(t, magnetSpec(t))

	assert.ErrorIs(t, w.JumpTo(0), ErrStepOutOfRange)
	assert.ErrorIs(t, w.JumpTo(7), ErrStepOutOfRange)
	assert.ErrorIs(t, w.JumpTo(5), ErrGateLocked)
	require.NoError(t, w.JumpTo(3))
	require.NoError(t, w.JumpTo(1))
	assert.Equal(t, 1, w.State().Step)
}

func TestJumpTo_BypassWhenConfigured(t *testing.T) {
	spec := magnetSpec(t)
	spec.Policy.DotsBypassGate = true
	w, _ := newWizard(t, spec)

	require.NoError(t, w.JumpTo(6))
	route, err := w.Proceed()
	require.NoError(t, err)
	assert.Equal(t, "/mission/2", route)
}

func TestJumpTo_BackClearsStatusLikeRetreat(t *testing.T) {
	spec := magnetSpec(t)
	spec.Gate.VerifyDelay = 0
	spec.Policy.LockBackAfterSuccess = false

	jumped, _ := newWizard(t, spec)
	require.NoError(t, jumped.JumpTo(4))
	require.NoError(t, jumped.Submit("0"))
	require.Equal(t, StatusSuccess, jumped.State().Status)
	require.NoError(t, jumped.JumpTo(2))

	retreated, _ := newWizard(t, spec)
	require.NoError(t, retreated.JumpTo(4))
	require.NoError(t, retreated.Submit("0"))
	for retreated.State().Step > 2 {
		require.True(t, retreated.Retreat())
	}

	assert.Equal(t, retreated.State(), jumped.State())
	assert.Equal(t, StatusUnset, jumped.State().Status)
	assert.ErrorIs(t, jumped.JumpTo(5), ErrGateLocked)
}

func TestJumpTo_DisabledWithoutDots(t *testing.T) {
	w, _ := newWizard(t, dateSpec(t))
	assert.ErrorIs(t, w.JumpTo(2), ErrNavigationDisabled)
}

func TestDateGate(t *testing.T) {
	cases := []struct {
		in      string
		status  Status
		step    int
		message string
	}{
		{"2020-06-15", StatusSuccess, 4, ""},
		{"2020-06-14", StatusIncorrect, 3, "Not yet. Re-check the FDA notice date."},
		{"15-06-2020", StatusUnset, 3, "Invalid date format. Use YYYY-MM-DD."},
		{"2020-02-30", StatusUnset, 3, "Invalid date format. Use YYYY-MM-DD."},
		{"", StatusUnset, 3, "Enter the date in YYYY-MM-DD format."},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			w, _ := newWizard(t, dateSpec(t))
			w.Advance()
			w.Advance()
			_ = w.Submit(tc.in)
			st := w.State()
			assert.Equal(t, tc.status, st.Status)
			assert.Equal(t, tc.step, st.Step)
			assert.Equal(t, tc.message, st.Message)
		})
	}
}

func TestProceed_OnlyFromSuccess(t *testing.T) {
	w, _ := newWizard(t, dateSpec(t))
	w.Advance()
	w.Advance()
	_, err := w.Proceed()
	assert.ErrorIs(t, err, ErrNotComplete)

	require.NoError(t, w.Submit("2020-06-15"))
	route, err := w.Proceed()
	require.NoError(t, err)
	assert.Equal(t, "/mission/3", route)
	assert.False(t, w.Retreat())
}

func TestRetreat_ClearsIncorrect(t *testing.T) {
	w, _ := newWizard(t, dateSpec(t))
	w.Advance()
	w.Advance()
	require.NoError(t, w.Submit("2020-01-01"))
	require.Equal(t, StatusIncorrect, w.State().Status)

	assert.True(t, w.Retreat())
	st := w.State()
	assert.Equal(t, 2, st.Step)
	assert.Equal(t, StatusUnset, st.Status)
	assert.Empty(t, st.Message)
}

func TestKey(t *testing.T) {
	w, clk := newWizard(t, magnetSpec(t))

	route, err := w.Key(KeyEnter, "")
	require.NoError(t, err)
	assert.Empty(t, route)
	assert.Equal(t, 2, w.State().Step)

	_, _ = w.Key(KeyRight, "")
	_, _ = w.Key(KeyLeft, "")
	_, _ = w.Key(KeyRight, "")
	_, _ = w.Key(KeyRight, "")
	require.Equal(t, 4, w.State().Step)

	_, err = w.Key(KeyEnter, "")
	require.NoError(t, err)
	assert.Equal(t, StatusUnset, w.State().Status, "enter with empty input is ignored")

	_, err = w.Key(KeyEnter, "0")
	require.NoError(t, err)
	assert.Equal(t, StatusVerifying, w.State().Status)

	clk.Advance(3 * time.Second)
	_, _ = w.Key(KeyEnter, "")
	assert.Equal(t, 6, w.State().Step)

	route, err = w.Key(KeyEnter, "")
	require.NoError(t, err)
	assert.Equal(t, "/mission/2", route)

	_, _ = w.Key(KeyLeft, "")
	assert.Equal(t, 6, w.State().Step)
}

func TestKey_DisabledByPolicy(t *testing.T) {
	spec := dateSpec(t)
	spec.Policy.Keyboard = false
	w, _ := newWizard(t, spec)
	_, err := w.Key(KeyRight, "")
	assert.ErrorIs(t, err, ErrNavigationDisabled)
}

func TestStepStaysInBounds(t *testing.T) {
	spec := magnetSpec(t)
	spec.Policy.DotsBypassGate = true
	w, clk := newWizard(t, spec)
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		switch r.Intn(6) {
		case 0:
			w.Advance()
		case 1:
			w.Retreat()
		case 2:
			_ = w.JumpTo(r.Intn(10) - 2)
		case 3:
			_ = w.Submit([]string{"", "0", "5", "abc"}[r.Intn(4)])
		case 4:
			w.Retry()
		case 5:
			clk.Advance(time.Second)
		}
		st := w.State()
		require.GreaterOrEqual(t, st.Step, 1)
		require.LessOrEqual(t, st.Step, st.TotalSteps)
	}
}

func TestOnResolve_FiresOncePerVerdict(t *testing.T) {
	spec := magnetSpec(t)
	var verdicts []bool
	spec.OnResolve = func(ok bool) { verdicts = append(verdicts, ok) }
	w, clk := newWizard(t, spec)
	for w.State().Step < 4 {
		require.True(t, w.Advance())
	}

	require.NoError(t, w.Submit("2"))
	assert.Empty(t, verdicts)
	clk.Advance(3 * time.Second)
	w.State()
	w.State()
	assert.Equal(t, []bool{false}, verdicts)

	require.True(t, w.Retry())
	require.NoError(t, w.Submit("0"))
	clk.Advance(3 * time.Second)
	assert.Equal(t, StatusSuccess, w.State().Status)
	assert.Equal(t, []bool{false, true}, verdicts)
}
