package agent

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m4xw311/playtest/action"
	"github.com/m4xw311/playtest/capture"
	"github.com/m4xw311/playtest/config"
	"github.com/m4xw311/playtest/errors"
	"github.com/m4xw311/playtest/executor"
	"github.com/m4xw311/playtest/llm"
	"github.com/m4xw311/playtest/session"
	"github.com/m4xw311/playtest/uicontext"
	"go.uber.org/zap"
)

type State int

const (
	StateIdle State = iota
	StateInitializing
	StateCapturing
	StateAwaitingDecision
	StateActing
	StateWaiting
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateCapturing:
		return "capturing"
	case StateAwaitingDecision:
		return "awaiting-decision"
	case StateActing:
		return "acting"
	case StateWaiting:
		return "waiting"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Running reports whether s is one of the steady-loop states.
func (s State) Running() bool {
	return s >= StateCapturing && s <= StateWaiting
}

const (
	// MaxConsecutiveFailures is the number of decision failures in a row
	// that ends a run.
	MaxConsecutiveFailures = 3
	// FailureBackoff is the pause after a failed decision.
	FailureBackoff = 2 * time.Second
)

var (
	ErrTooManyFailures = errors.Sentinel("too many consecutive decision failures")
	ErrNotRunning      = errors.Sentinel("agent is not running")
	ErrAlreadyStarted  = errors.Sentinel("agent is already running")
)

// ProviderFactory builds the decision provider for a run.
type ProviderFactory func(cfg config.Provider, logger *zap.Logger) (llm.DecisionProvider, error)

// Callbacks let a front-end follow a run. All of them are invoked on the
// control goroutine and must not block.
type Callbacks struct {
	OnStateChange     func(from, to State)
	OnStep            func(step session.Step)
	OnDecisionFailure func(err error, consecutive int)
	OnExecutionError  func(act action.Action, err error)
	OnFinished        func(s *session.Session, reportPaths []string)
}

type Option func(*Controller)

// WithProviderFactory replaces llm.New.
func WithProviderFactory(f ProviderFactory) Option {
	return func(c *Controller) { c.factory = f }
}

func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

func WithCallbacks(cb Callbacks) Option {
	return func(c *Controller) { c.callbacks = cb }
}

// Controller runs the perception-action loop: capture, ask the provider,
// execute the decision, wait, repeat. One goroutine drives it through Start
// and Run (or Tick); Stop may be called from any goroutine.
type Controller struct {
	cfg       *config.Config
	capture   capture.Source
	uiContext uicontext.Source
	executor  executor.Executor

	factory   ProviderFactory
	clock     Clock
	logger    *zap.Logger
	callbacks Callbacks

	recorder *session.Recorder
	captures *session.CaptureStore
	provider llm.DecisionProvider

	mu       sync.Mutex
	state    State
	failures int

	stopping atomic.Bool
	stopCh   chan struct{}
	stopOnce *sync.Once
}

// New creates an idle controller.
func New(cfg *config.Config, source capture.Source, uiContext uicontext.Source, exec executor.Executor, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		capture:   source,
		uiContext: uiContext,
		executor:  exec,
		factory:   llm.New,
		clock:     RealClock(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.uiContext == nil {
		c.uiContext = uicontext.Static(uicontext.Unavailable)
	}
	c.logger = c.logger.Named("agent")
	c.recorder = session.NewRecorder(c.logger, c.clock.Now)
	if cfg.Run.SaveCaptures && cfg.Run.Report {
		c.captures = &session.CaptureStore{Dir: cfg.Run.ReportDir}
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Failures returns the current number of consecutive decision failures.
func (c *Controller) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Session returns the run's session. It must not be read concurrently with
// a running loop.
func (c *Controller) Session() *session.Session {
	return c.recorder.Session()
}

func (c *Controller) setState(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	if from != to && c.callbacks.OnStateChange != nil {
		c.callbacks.OnStateChange(from, to)
	}
}

// Start builds and initializes the provider and opens a new session. A
// provider error leaves the controller idle; the loop never runs.
func (c *Controller) Start(ctx context.Context) error {
	if s := c.State(); s != StateIdle && s != StateStopped && s != StateFailed {
		return ErrAlreadyStarted
	}
	c.setState(StateInitializing)

	provider, err := c.factory(c.cfg.Provider, c.logger)
	if err == nil {
		err = provider.Initialize(ctx)
	}
	if err != nil {
		c.setState(StateIdle)
		if !errors.IsKind(err, errors.KindProvider) {
			err = errors.Wrap(errors.KindProvider, err, "provider initialization failed")
		}
		c.logger.Error("Could not start", zap.Error(err))
		return err
	}
	c.provider = provider

	if r, ok := provider.(llm.Resetter); ok {
		if err := r.Reset(ctx); err != nil {
			c.logger.Warn("Provider reset failed", zap.Error(err))
		}
	}

	c.mu.Lock()
	c.failures = 0
	c.stopCh = make(chan struct{})
	c.stopOnce = &sync.Once{}
	c.mu.Unlock()
	c.stopping.Store(false)

	s := c.recorder.StartSession(c.cfg.Run.SessionName)
	c.logger.Info("Agent started",
		zap.String("provider", string(c.cfg.Provider.Kind)),
		zap.String("session", s.Name))
	c.setState(StateCapturing)
	return nil
}

// Stop asks the loop to end. It is observed at the next suspension point; a
// decision already in flight completes and its result is discarded.
func (c *Controller) Stop() {
	c.mu.Lock()
	ch, once := c.stopCh, c.stopOnce
	c.mu.Unlock()
	if ch == nil {
		return
	}
	c.stopping.Store(true)
	once.Do(func() { close(ch) })
}

// Run ticks until the run stops or fails and returns the finalized session.
func (c *Controller) Run(ctx context.Context) (*session.Session, error) {
	if !c.State().Running() {
		return c.Session(), ErrNotRunning
	}
	for c.State().Running() {
		if err := c.Tick(ctx); err != nil {
			return c.Session(), err
		}
	}
	return c.Session(), nil
}

// Tick performs one loop iteration. It returns ErrTooManyFailures when the
// failure threshold is reached and the context's error when it is cancelled.
func (c *Controller) Tick(ctx context.Context) error {
	if !c.State().Running() {
		return ErrNotRunning
	}
	if c.stopRequested(ctx) {
		return c.stopped(ctx, "stopped by user")
	}

	c.setState(StateCapturing)
	frame, err := c.capture.Capture(ctx)
	if errors.Is(err, io.EOF) {
		c.finish("capture source exhausted", false)
		return nil
	}
	if err != nil {
		return c.decisionFailed(ctx, errors.Wrapf(err, "capture failed"))
	}
	contextText := uicontext.Compose(c.cfg.Run.GameDescription, c.describe(ctx))
	if c.stopRequested(ctx) {
		return c.stopped(ctx, "stopped by user")
	}

	c.setState(StateAwaitingDecision)
	act, err := c.provider.RequestAction(ctx, frame, contextText)
	if c.stopRequested(ctx) {
		if err == nil {
			c.logger.Info("Discarding decision received after stop", zap.String("action", act.String()))
		}
		return c.stopped(ctx, "stopped by user")
	}
	if err != nil {
		return c.decisionFailed(ctx, err)
	}

	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
	step := c.record(frame, act)
	c.logger.Info("Decision",
		zap.Int("step", step.Index),
		zap.String("thought", act.Thought),
		zap.String("action", act.String()))
	if c.callbacks.OnStep != nil {
		c.callbacks.OnStep(step)
	}

	c.setState(StateActing)
	c.act(ctx, act)
	if c.stopRequested(ctx) {
		return c.stopped(ctx, "stopped by user")
	}
	if limit := c.cfg.Run.MaxSteps; limit > 0 && step.Index >= limit {
		c.finish(fmt.Sprintf("step limit of %d reached", limit), false)
		return nil
	}

	c.setState(StateWaiting)
	if !c.wait(ctx, InterStepDelay(act, c.cfg.Run.ActionDelay())) {
		return c.stopped(ctx, "stopped by user")
	}
	return nil
}

func (c *Controller) stopRequested(ctx context.Context) bool {
	return c.stopping.Load() || ctx.Err() != nil
}

// stopped finalizes after a stop request or cancellation.
func (c *Controller) stopped(ctx context.Context, note string) error {
	if err := ctx.Err(); err != nil && !c.stopping.Load() {
		c.finish("run cancelled", false)
		return err
	}
	c.finish(note, false)
	return nil
}

func (c *Controller) describe(ctx context.Context) string {
	state, err := c.uiContext.Describe(ctx)
	if err != nil {
		c.logger.Warn("UI context unavailable", zap.Error(err))
		return uicontext.Unavailable
	}
	return state
}

func (c *Controller) decisionFailed(ctx context.Context, err error) error {
	c.mu.Lock()
	c.failures++
	n := c.failures
	c.mu.Unlock()

	c.logger.Warn("No decision obtained",
		zap.Int("consecutive", n),
		zap.Stringer("kind", errors.KindOf(err)),
		zap.Error(err))
	if c.callbacks.OnDecisionFailure != nil {
		c.callbacks.OnDecisionFailure(err, n)
	}

	if n >= MaxConsecutiveFailures {
		c.finish(fmt.Sprintf("ended after %d consecutive decision failures: %v", n, err), true)
		return ErrTooManyFailures
	}

	c.setState(StateWaiting)
	if !c.wait(ctx, FailureBackoff) {
		return c.stopped(ctx, "stopped by user")
	}
	return nil
}

func (c *Controller) record(frame *capture.Frame, act action.Action) session.Step {
	ref := ""
	if c.captures != nil {
		name, err := c.captures.Save(c.Session().Name, c.recorder.NextIndex(), frame)
		if err != nil {
			c.logger.Warn("Failed to save capture", zap.Error(err))
		} else {
			ref = name
		}
	}
	step, _ := c.recorder.LogStep(act.Thought, act, ref)
	return step
}

// act executes the decision and waits for completion. Execution errors are
// logged and do not count as decision failures.
func (c *Controller) act(ctx context.Context, act action.Action) {
	if act.Type == action.Wait {
		return
	}
	var err error
	select {
	case err = <-c.executor.Execute(ctx, act):
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		c.logger.Warn("Action execution failed", zap.String("action", act.String()), zap.Error(err))
		if c.callbacks.OnExecutionError != nil {
			c.callbacks.OnExecutionError(act, err)
		}
	}
}

// wait pauses for d and reports false when interrupted by a stop request or
// cancellation.
func (c *Controller) wait(ctx context.Context, d time.Duration) bool {
	c.mu.Lock()
	stop := c.stopCh
	c.mu.Unlock()
	select {
	case <-c.clock.After(d):
		return true
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// finish closes the session, writes the report when enabled and moves to
// the terminal state.
func (c *Controller) finish(note string, failed bool) {
	c.recorder.EndSession(note, failed)

	var paths []string
	if c.cfg.Run.Report {
		var err error
		paths, err = c.recorder.WriteReport(c.cfg.Run.ReportDir)
		if err != nil {
			c.logger.Error("Failed to write report", zap.Error(err))
		}
	}
	if closer, ok := c.provider.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.logger.Warn("Failed to close provider", zap.Error(err))
		}
	}

	if failed {
		c.setState(StateFailed)
	} else {
		c.setState(StateStopped)
	}
	if c.callbacks.OnFinished != nil {
		c.callbacks.OnFinished(c.Session(), paths)
	}
}

// MaxWait caps the pause requested by a Wait action.
const MaxWait = time.Hour

// InterStepDelay is the pause after act: a Wait action's own positive
// duration capped at MaxWait, otherwise the configured default. It is never
// zero.
func InterStepDelay(act action.Action, defaultDelay time.Duration) time.Duration {
	if act.Type == action.Wait && act.Duration > 0 {
		if act.Duration >= MaxWait.Seconds() {
			return MaxWait
		}
		return time.Duration(act.Duration * float64(time.Second))
	}
	if defaultDelay <= 0 {
		return time.Duration(action.DefaultDuration * float64(time.Second))
	}
	return defaultDelay
}
