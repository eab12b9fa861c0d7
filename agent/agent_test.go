package agent

import (
	"context"
	"image/color"
	"io"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/capture"
	"github.com/m4xw311/playtest/config"
	"github.com/m4xw311/playtest/errors"
	"github.com/m4xw311/playtest/executor"
	"github.com/m4xw311/playtest/llm"
	"github.com/m4xw311/playtest/session"
	"github.com/m4xw311/playtest/uicontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock fires every timer at once and records the requested durations.
// A blocking fakeClock never fires.
type fakeClock struct {
	mu       sync.Mutex
	now      time.Time
	waits    []time.Duration
	blocking bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits = append(f.waits, d)
	if f.blocking {
		return nil
	}
	f.now = f.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- f.now
	return ch
}

func (f *fakeClock) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}

func click(thought string) llm.MockReply {
	return llm.MockReply{Text: `{"thought":"` + thought + `","actionType":"Click","screenPosition":{"x":0.5,"y":0.5}}`}
}

func networkError() llm.MockReply {
	return llm.MockReply{Err: errors.E(errors.KindNetwork, "request timed out")}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Run.GameDescription = "Tap the gems."
	cfg.Run.ActionDelaySeconds = 0.5
	cfg.Run.Report = false
	cfg.Run.SaveCaptures = false
	cfg.Run.ReportDir = t.TempDir()
	return cfg
}

var screen = capture.Static{Image: imaging.New(8, 8, color.White)}

type harness struct {
	cfg      *config.Config
	mock     *llm.Mock
	clock    *fakeClock
	capture  capture.Source
	context  uicontext.Source
	executor executor.Executor
	cb       Callbacks
}

func newHarness(t *testing.T, replies ...llm.MockReply) *harness {
	return &harness{
		cfg:      testConfig(t),
		mock:     &llm.Mock{Replies: replies},
		clock:    newFakeClock(),
		capture:  screen,
		context:  uicontext.Static("[Button] \"Play\""),
		executor: executor.NewLog(nil, executor.Screen{}),
	}
}

func (h *harness) controller() *Controller {
	return New(h.cfg, h.capture, h.context, h.executor,
		WithClock(h.clock),
		WithLogger(zap.NewNop()),
		WithCallbacks(h.cb),
		WithProviderFactory(func(config.Provider, *zap.Logger) (llm.DecisionProvider, error) {
			return h.mock, nil
		}))
}

func (h *harness) run(t *testing.T) (*Controller, *session.Session, error) {
	t.Helper()
	c := h.controller()
	require.NoError(t, c.Start(context.Background()))
	s, err := c.Run(context.Background())
	return c, s, err
}

func TestThreeConsecutiveFailuresStopRun(t *testing.T) {
	h := newHarness(t, click("one"), click("two"), networkError(), networkError(), networkError())
	c, s, err := h.run(t)

	require.ErrorIs(t, err, ErrTooManyFailures)
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 3, c.Failures())
	require.NotNil(t, s)
	assert.True(t, s.Ended())
	assert.True(t, s.EndedOnFailure)
	assert.Equal(t, 2, s.TotalSteps)
	assert.Contains(t, s.Note, "3 consecutive decision failures")
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, FailureBackoff, FailureBackoff}, h.clock.Waits())
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	h := newHarness(t, networkError(), networkError(), click("one"), networkError(), networkError(), click("two"))
	h.cfg.Run.MaxSteps = 2
	c, s, err := h.run(t)

	require.NoError(t, err)
	assert.Equal(t, StateStopped, c.State())
	assert.Equal(t, 0, c.Failures())
	assert.Equal(t, 2, s.TotalSteps)
	assert.False(t, s.EndedOnFailure)
	assert.Equal(t, "step limit of 2 reached", s.Note)
	assert.Equal(t, []time.Duration{FailureBackoff, FailureBackoff, 500 * time.Millisecond, FailureBackoff, FailureBackoff}, h.clock.Waits())
}

func TestParseAndProtocolFailuresCount(t *testing.T) {
	h := newHarness(t,
		llm.MockReply{Text: "I would click the button."},
		llm.MockReply{Err: errors.E(errors.KindProtocol, "status 500")},
		llm.MockReply{Text: `{"actionType": "Click",`},
	)
	_, s, err := h.run(t)
	require.ErrorIs(t, err, ErrTooManyFailures)
	assert.Equal(t, 0, s.TotalSteps)
}

func TestWaitDurationDrivesDelay(t *testing.T) {
	h := newHarness(t,
		llm.MockReply{Text: `{"actionType":"Wait","duration":3}`},
		llm.MockReply{Text: `{"actionType":"Wait","duration":0}`},
		llm.MockReply{Text: `{"actionType":"Wait","duration":-2}`},
		click("done"),
	)
	h.cfg.Run.MaxSteps = 4
	_, s, err := h.run(t)

	require.NoError(t, err)
	assert.Equal(t, 4, s.TotalSteps)
	assert.Equal(t, []time.Duration{3 * time.Second, 500 * time.Millisecond, 500 * time.Millisecond}, h.clock.Waits())
}

func TestInterStepDelay(t *testing.T) {
	wait := func(d float64) action.Action { return action.Action{Type: action.Wait, Duration: d} }
	assert.Equal(t, 1500*time.Millisecond, InterStepDelay(wait(1.5), time.Second))
	assert.Equal(t, time.Second, InterStepDelay(wait(0), time.Second))
	assert.Equal(t, time.Second, InterStepDelay(wait(-1), time.Second))
	assert.Equal(t, 2*time.Second, InterStepDelay(action.Action{Type: action.Click, Duration: 5}, 2*time.Second))
	assert.Equal(t, time.Second, InterStepDelay(wait(0), 0))
	assert.Equal(t, MaxWait, InterStepDelay(wait(1e10), time.Second))
	assert.Equal(t, MaxWait, InterStepDelay(wait(math.Inf(1)), time.Second))
	assert.Equal(t, time.Second, InterStepDelay(wait(math.NaN()), time.Second))
}

func TestExecutionErrorsDoNotCount(t *testing.T) {
	h := newHarness(t, click("a"), click("b"), click("c"))
	h.cfg.Run.MaxSteps = 3
	h.executor = executor.Func(func(ctx context.Context, act action.Action) error {
		return errors.New("input device unavailable")
	})
	var failed []action.Action
	h.cb.OnExecutionError = func(act action.Action, err error) {
		assert.True(t, errors.IsKind(err, errors.KindExecution))
		failed = append(failed, act)
	}
	c, s, err := h.run(t)

	require.NoError(t, err)
	assert.Equal(t, StateStopped, c.State())
	assert.Equal(t, 0, c.Failures())
	assert.Equal(t, 3, s.TotalSteps)
	assert.Len(t, failed, 3)
}

func TestStartProviderError(t *testing.T) {
	h := newHarness(t)
	h.mock.InitErr = errors.E(errors.KindProvider, "GEMINI_API_KEY environment variable not set")
	c := h.controller()

	err := c.Start(context.Background())
	assert.True(t, errors.IsKind(err, errors.KindProvider))
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Session())

	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Empty(t, h.mock.Contexts())
}

func TestStartFactoryErrorIsProviderError(t *testing.T) {
	h := newHarness(t)
	c := New(h.cfg, h.capture, h.context, h.executor, WithClock(h.clock),
		WithProviderFactory(func(config.Provider, *zap.Logger) (llm.DecisionProvider, error) {
			return nil, errors.New("no such provider")
		}))
	err := c.Start(context.Background())
	assert.True(t, errors.IsKind(err, errors.KindProvider))
	assert.Equal(t, StateIdle, c.State())
}

func TestStartResetsProviderAndTracksStates(t *testing.T) {
	h := newHarness(t, click("only"))
	h.cfg.Run.MaxSteps = 1
	var states []State
	h.cb.OnStateChange = func(from, to State) { states = append(states, to) }
	_, _, err := h.run(t)

	require.NoError(t, err)
	assert.Equal(t, 1, h.mock.Resets())
	assert.Equal(t, []State{StateInitializing, StateCapturing, StateAwaitingDecision, StateActing, StateStopped}, states)
}

func TestContextPreambleAndFallback(t *testing.T) {
	h := newHarness(t, click("a"), click("b"))
	h.cfg.Run.MaxSteps = 2
	calls := 0
	h.context = uicontext.Func(func(ctx context.Context) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("dumper crashed")
		}
		return "[Canvas] Main", nil
	})
	_, _, err := h.run(t)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"[Game Description]\nTap the gems.\n\n[Current State]\n[Canvas] Main",
		"[Game Description]\nTap the gems.\n\n[Current State]\nContext Info Not Available",
	}, h.mock.Contexts())
}

func TestCaptureFailuresCount(t *testing.T) {
	h := newHarness(t)
	h.capture = capture.SourceFunc(func(ctx context.Context) (*capture.Frame, error) {
		return nil, errors.New("window minimized")
	})
	c, s, err := h.run(t)
	require.ErrorIs(t, err, ErrTooManyFailures)
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 0, s.TotalSteps)
	assert.Empty(t, h.mock.Contexts())
}

func TestCaptureExhaustedStops(t *testing.T) {
	h := newHarness(t, click("a"))
	served := false
	h.capture = capture.SourceFunc(func(ctx context.Context) (*capture.Frame, error) {
		if served {
			return nil, io.EOF
		}
		served = true
		return screen.Capture(ctx)
	})
	c, s, err := h.run(t)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, c.State())
	assert.Equal(t, 1, s.TotalSteps)
	assert.Equal(t, "capture source exhausted", s.Note)
}

func TestStopDiscardsInFlightDecision(t *testing.T) {
	h := newHarness(t, click("late"))
	release := make(chan struct{})
	h.mock.Block = release
	awaiting := make(chan struct{}, 1)
	h.cb.OnStateChange = func(from, to State) {
		if to == StateAwaitingDecision {
			awaiting <- struct{}{}
		}
	}
	c := h.controller()
	require.NoError(t, c.Start(context.Background()))

	type result struct {
		s   *session.Session
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := c.Run(context.Background())
		done <- result{s, err}
	}()

	<-awaiting
	c.Stop()
	c.Stop()
	close(release)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, StateStopped, c.State())
		assert.True(t, r.s.Ended())
		assert.Equal(t, 0, r.s.TotalSteps)
		assert.Equal(t, "stopped by user", r.s.Note)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestStopDuringCaptureSkipsDecision(t *testing.T) {
	h := newHarness(t, click("never"))
	var c *Controller
	h.capture = capture.SourceFunc(func(ctx context.Context) (*capture.Frame, error) {
		c.Stop()
		return screen.Capture(ctx)
	})
	c = h.controller()
	require.NoError(t, c.Start(context.Background()))
	s, err := c.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateStopped, c.State())
	assert.Equal(t, 0, s.TotalSteps)
	assert.Equal(t, "stopped by user", s.Note)
	assert.Empty(t, h.mock.Contexts())
}

func TestStopInterruptsWait(t *testing.T) {
	h := newHarness(t, click("a"))
	h.clock.blocking = true
	waiting := make(chan struct{}, 1)
	h.cb.OnStateChange = func(from, to State) {
		if to == StateWaiting {
			waiting <- struct{}{}
		}
	}
	c := h.controller()
	require.NoError(t, c.Start(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background())
		done <- err
	}()
	<-waiting
	c.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Equal(t, StateStopped, c.State())
		assert.Equal(t, 1, c.Session().TotalSteps)
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not interrupt the wait")
	}
}

func TestCancelledContextEndsRun(t *testing.T) {
	h := newHarness(t, click("a"))
	h.clock.blocking = true
	ctx, cancel := context.WithCancel(context.Background())
	h.cb.OnStateChange = func(from, to State) {
		if to == StateWaiting {
			cancel()
		}
	}
	c := h.controller()
	require.NoError(t, c.Start(context.Background()))
	s, err := c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateStopped, c.State())
	assert.True(t, s.Ended())
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	c := newHarness(t).controller()
	c.Stop()
	assert.Equal(t, StateIdle, c.State())
}

func TestReportWrittenOnFinish(t *testing.T) {
	h := newHarness(t, click("press play"))
	h.cfg.Run.Report = true
	h.cfg.Run.SaveCaptures = true
	h.cfg.Run.SessionName = "smoke"
	h.cfg.Run.MaxSteps = 1
	var reported []string
	h.cb.OnFinished = func(s *session.Session, paths []string) { reported = paths }
	_, s, err := h.run(t)

	require.NoError(t, err)
	dir := h.cfg.Run.ReportDir
	assert.Equal(t, []string{
		filepath.Join(dir, "smoke.md"),
		filepath.Join(dir, "smoke.html"),
		filepath.Join(dir, "smoke.json"),
	}, reported)
	for _, p := range reported {
		assert.FileExists(t, p)
	}
	assert.Equal(t, "smoke_step001.jpg", s.Steps[0].CaptureRef)
	assert.FileExists(t, filepath.Join(dir, "smoke_step001.jpg"))
}
