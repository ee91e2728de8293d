package engine

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kingrea/agent-collab/internal/agent"
	"github.com/kingrea/agent-collab/internal/artifact"
	"github.com/kingrea/agent-collab/internal/config"
	"github.com/kingrea/agent-collab/internal/history"
	"github.com/kingrea/agent-collab/internal/logbook"
	"github.com/kingrea/agent-collab/internal/prompt"
	"github.com/kingrea/agent-collab/internal/workflow"
)

// emptyArtifact stands in for a plan or comments file that has no content.
const emptyArtifact = "(empty)"

// PromptResolver turns a template id and variables into prompt text.
type PromptResolver interface {
	Resolve(id string, vars map[string]string) (string, error)
}

// Recorder receives a copy of every agent exchange.
type Recorder interface {
	Record(ctx context.Context, ex history.Exchange) error
}

// SessionFactory builds the agent session for a role.
type SessionFactory func(role workflow.Role, kind string) (agent.Session, error)

// Controller coordinates both agent sessions through the workflow phases.
type Controller struct {
	cfg        *config.Config
	store      StateStore
	prompts    PromptResolver
	artifacts  *artifact.Store
	newSession SessionFactory
	listeners  []Listener
	logger     zerolog.Logger
	book       *logbook.Logbook
	metrics    *Metrics
	recorder   Recorder
	clock      func() time.Time

	planner  agent.Session
	reviewer agent.Session

	// op serializes the public operations; mu guards state for readers that
	// must not wait for a running exchange.
	op    sync.Mutex
	busy  atomic.Bool
	mu    sync.RWMutex
	state State
}

// Option customizes the controller.
type Option func(*Controller)

// WithStore replaces the default file repository.
func WithStore(store StateStore) Option {
	return func(c *Controller) {
		if store != nil {
			c.store = store
		}
	}
}

// WithPromptResolver replaces the default prompt library.
func WithPromptResolver(resolver PromptResolver) Option {
	return func(c *Controller) {
		if resolver != nil {
			c.prompts = resolver
		}
	}
}

// WithSessionFactory replaces how agent sessions are created.
func WithSessionFactory(factory SessionFactory) Option {
	return func(c *Controller) {
		if factory != nil {
			c.newSession = factory
		}
	}
}

// WithListeners registers listeners, called in the order given.
func WithListeners(listeners ...Listener) Option {
	return func(c *Controller) {
		for _, l := range listeners {
			if l != nil {
				c.listeners = append(c.listeners, l)
			}
		}
	}
}

// WithLogger routes diagnostics to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithLogbook appends the collaboration journey to book.
func WithLogbook(book *logbook.Logbook) Option {
	return func(c *Controller) {
		c.book = book
	}
}

// WithMetrics records activity into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithRecorder stores every exchange through r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// DefaultSessionFactory builds CLI sessions bound to the project directory,
// honoring binary overrides from the configuration.
func DefaultSessionFactory(cfg *config.Config) SessionFactory {
	return func(_ workflow.Role, kind string) (agent.Session, error) {
		return agent.New(kind, cfg.ProjectDir, agent.WithBinary(cfg.AgentBinary(kind)))
	}
}

// New loads persisted state (or starts fresh) and builds both agent sessions.
// Agent availability is not checked here.
func New(cfg *config.Config, opts ...Option) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: config is required")
	}
	c := &Controller{
		cfg:       cfg,
		artifacts: artifact.NewStore(cfg.PlanPath(), cfg.CommentsPath()),
		logger:    zerolog.Nop(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.store == nil {
		c.store = NewRepository(cfg.StatePath())
	}
	if c.prompts == nil {
		c.prompts = prompt.NewLibrary(cfg.PromptsDir())
	}
	if c.newSession == nil {
		c.newSession = DefaultSessionFactory(cfg)
	}

	state, ok := c.store.Load()
	if !ok {
		state = NewState()
		if err := os.MkdirAll(cfg.Workdir(), 0o755); err != nil {
			return nil, fmt.Errorf("engine: ensure workdir: %w", err)
		}
		c.logger.Debug().Msg("no usable state file, starting fresh")
	}
	c.state = state

	planner, err := c.newSession(workflow.RolePlanner, cfg.RoleKind(workflow.RolePlanner))
	if err != nil {
		return nil, fmt.Errorf("engine: planner session: %w", err)
	}
	reviewer, err := c.newSession(workflow.RoleReviewer, cfg.RoleKind(workflow.RoleReviewer))
	if err != nil {
		return nil, fmt.Errorf("engine: reviewer session: %w", err)
	}
	c.planner = planner
	c.reviewer = reviewer
	c.resumeSessions(state)
	c.metrics.setIteration(state.Iteration)
	c.logger.Info().
		Str("phase", state.Phase.Key()).
		Int("iteration", state.Iteration).
		Str("planner", planner.Name()).
		Str("reviewer", reviewer.Name()).
		Msg("controller ready")
	return c, nil
}

func (c *Controller) resumeSessions(state State) {
	for _, role := range []workflow.Role{workflow.RolePlanner, workflow.RoleReviewer} {
		handle := state.Session(role)
		if handle == "" {
			continue
		}
		if c.Session(role).Resume(handle) {
			c.logger.Debug().Str("role", string(role)).Str("session", handle).Msg("resumed agent session")
			continue
		}
		c.logger.Warn().Str("role", string(role)).Str("session", handle).Msg("agent session not resumable, continuing without prior context")
		c.book.SessionLost(string(role), handle)
	}
}

// Session returns the agent session bound to role.
func (c *Controller) Session(role workflow.Role) agent.Session {
	if role == workflow.RoleReviewer {
		return c.reviewer
	}
	return c.planner
}

// Config returns the configuration the controller was built with.
func (c *Controller) Config() *config.Config {
	return c.cfg
}

// Artifacts returns the plan/comments store.
func (c *Controller) Artifacts() *artifact.Store {
	return c.artifacts
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Phase returns the current phase.
func (c *Controller) Phase() workflow.Phase {
	return c.State().Phase
}

// Busy reports whether an operation is running.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// IsApproved re-reads the comments and checks for the approval marker.
func (c *Controller) IsApproved() bool {
	return c.artifacts.Approved()
}

// IsMaxIterations reports whether the review budget is used up.
func (c *Controller) IsMaxIterations() bool {
	return c.State().Iteration >= c.cfg.MaxIterations()
}

// PlanContent returns the plan text, or "" when there is none.
func (c *Controller) PlanContent() string {
	return c.artifacts.Content(artifact.KindPlan)
}

// CommentsContent returns the review comments, or "" when there are none.
func (c *Controller) CommentsContent() string {
	return c.artifacts.Content(artifact.KindComments)
}

// Status builds a read model of the controller.
func (c *Controller) Status() Status {
	state := c.State()
	next := workflow.NextPhases(state.Phase)
	keys := make([]string, 0, len(next))
	for _, p := range next {
		keys = append(keys, p.Key())
	}
	return Status{
		Phase:           state.Phase.Key(),
		PhaseLabel:      state.Phase.String(),
		Iteration:       state.Iteration,
		MaxIterations:   c.cfg.MaxIterations(),
		BudgetReached:   state.Iteration >= c.cfg.MaxIterations(),
		Approved:        c.IsApproved(),
		NextPhases:      keys,
		ActiveRole:      string(workflow.ActiveRole(state.Phase)),
		PlannerSession:  state.PlannerSession,
		ReviewerSession: state.ReviewerSession,
		Busy:            c.Busy(),
	}
}

// Refine continues the goal conversation with the planner. The first call
// moves the workflow out of Init.
func (c *Controller) Refine(ctx context.Context, userText string) (string, error) {
	unlock, err := c.begin()
	if err != nil {
		return "", err
	}
	defer unlock()

	switch phase := c.Phase(); phase {
	case workflow.PhaseInit:
		if err := c.transition(workflow.PhaseRefineGoal); err != nil {
			return "", err
		}
	case workflow.PhaseRefineGoal:
	default:
		return "", &InvalidTransitionError{From: phase, To: workflow.PhaseRefineGoal}
	}
	return c.exchange(ctx, workflow.RolePlanner, prompt.RefineGoal, nil, "\n\nUser: "+userText)
}

// WritePlan asks the planner to write the plan file, then hands over to review.
// A WritePlan phase left behind by a failed attempt can be retried.
func (c *Controller) WritePlan(ctx context.Context) (string, error) {
	unlock, err := c.begin()
	if err != nil {
		return "", err
	}
	defer unlock()

	if phase := c.Phase(); phase != workflow.PhaseWritePlan {
		if err := c.transition(workflow.PhaseWritePlan); err != nil {
			return "", err
		}
	}
	response, err := c.exchange(ctx, workflow.RolePlanner, prompt.WritePlan, map[string]string{
		"plan_path": c.cfg.PlanPath(),
	}, "")
	if err != nil {
		return "", err
	}
	if err := c.transition(workflow.PhaseReview); err != nil {
		return response, err
	}
	return response, nil
}

// Review runs one review round with the reviewer.
func (c *Controller) Review(ctx context.Context) (string, error) {
	unlock, err := c.begin()
	if err != nil {
		return "", err
	}
	defer unlock()
	return c.review(ctx)
}

func (c *Controller) review(ctx context.Context) (string, error) {
	if phase := c.Phase(); phase != workflow.PhaseReview {
		return "", &InvalidTransitionError{From: phase, To: workflow.PhaseReview}
	}
	response, err := c.exchange(ctx, workflow.RoleReviewer, prompt.ReviewPlan, map[string]string{
		"plan_path":     c.cfg.PlanPath(),
		"comments_path": c.cfg.CommentsPath(),
	}, "")
	if err != nil {
		return "", err
	}

	next := c.State()
	next.Iteration++
	if err := c.commit(next); err != nil {
		return response, err
	}
	c.metrics.setIteration(next.Iteration)

	approved := c.IsApproved()
	c.metrics.reviewRound(approved)
	target := workflow.PhaseRespond
	if approved {
		target = workflow.PhaseApproved
	}
	c.book.ReviewRound(next.Iteration, approved)
	if err := c.transition(target); err != nil {
		return response, err
	}
	return response, nil
}

// Respond has the planner address the review comments.
func (c *Controller) Respond(ctx context.Context) (string, error) {
	unlock, err := c.begin()
	if err != nil {
		return "", err
	}
	defer unlock()
	return c.respond(ctx)
}

func (c *Controller) respond(ctx context.Context) (string, error) {
	if phase := c.Phase(); !workflow.CanTransition(phase, workflow.PhaseReview) {
		return "", &InvalidTransitionError{From: phase, To: workflow.PhaseReview}
	}
	response, err := c.exchange(ctx, workflow.RolePlanner, prompt.RespondComments, map[string]string{
		"plan_path":     c.cfg.PlanPath(),
		"comments_path": c.cfg.CommentsPath(),
	}, "")
	if err != nil {
		return "", err
	}
	if err := c.transition(workflow.PhaseReview); err != nil {
		return response, err
	}
	return response, nil
}

// RunReviewLoop alternates review and respond rounds until the plan is
// approved or the iteration budget runs out.
func (c *Controller) RunReviewLoop(ctx context.Context) (string, error) {
	unlock, err := c.begin()
	if err != nil {
		return "", err
	}
	defer unlock()

	var last string
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		phase := c.Phase()
		switch phase {
		case workflow.PhaseApproved:
			return last, nil
		case workflow.PhaseReview, workflow.PhaseRespond:
		default:
			return last, &InvalidTransitionError{From: phase, To: workflow.PhaseReview}
		}
		if c.IsMaxIterations() {
			c.book.BudgetReached(c.cfg.MaxIterations())
			return last, fmt.Errorf("%w after %d rounds", ErrIterationBudget, c.State().Iteration)
		}
		if phase == workflow.PhaseReview {
			last, err = c.review(ctx)
		} else {
			last, err = c.respond(ctx)
		}
		if err != nil {
			return last, err
		}
	}
}

// ExecuteStep has the planner carry out one plan step. The first step moves
// the workflow from Approved into Execute.
func (c *Controller) ExecuteStep(ctx context.Context, stepNumber int, stepContent string) (string, error) {
	unlock, err := c.begin()
	if err != nil {
		return "", err
	}
	defer unlock()

	if stepNumber < 1 {
		return "", fmt.Errorf("engine: step number must be positive, got %d", stepNumber)
	}
	switch phase := c.Phase(); phase {
	case workflow.PhaseApproved:
		if err := c.transition(workflow.PhaseExecute); err != nil {
			return "", err
		}
	case workflow.PhaseExecute:
	default:
		return "", &InvalidTransitionError{From: phase, To: workflow.PhaseExecute}
	}
	response, err := c.exchange(ctx, workflow.RolePlanner, prompt.ExecuteStep, map[string]string{
		"step_number":  strconv.Itoa(stepNumber),
		"step_content": stepContent,
		"plan_path":    c.cfg.PlanPath(),
	}, "")
	if err != nil {
		return "", err
	}
	c.book.StepExecuted(stepNumber)
	return response, nil
}

// MarkDone finishes the collaboration.
func (c *Controller) MarkDone() error {
	unlock, err := c.begin()
	if err != nil {
		return err
	}
	defer unlock()
	return c.transition(workflow.PhaseDone)
}

// RecoverContext re-seeds the active agent with the plan, comments and
// progress after a restart. Phase and iteration are left alone.
func (c *Controller) RecoverContext(ctx context.Context) (string, error) {
	unlock, err := c.begin()
	if err != nil {
		return "", err
	}
	defer unlock()

	state := c.State()
	return c.exchange(ctx, workflow.ActiveRole(state.Phase), prompt.RecoverContext, map[string]string{
		"plan_path":        c.cfg.PlanPath(),
		"plan_content":     orEmpty(c.PlanContent()),
		"comments_path":    c.cfg.CommentsPath(),
		"comments_content": orEmpty(c.CommentsContent()),
		"phase":            state.Phase.Key(),
		"iteration":        strconv.Itoa(state.Iteration),
	}, "")
}

func (c *Controller) begin() (func(), error) {
	if !c.op.TryLock() {
		return nil, ErrBusy
	}
	c.busy.Store(true)
	return func() {
		c.busy.Store(false)
		c.op.Unlock()
	}, nil
}

// transition moves to target: validate, persist, swap, then notify.
func (c *Controller) transition(target workflow.Phase) error {
	current := c.State()
	if !workflow.CanTransition(current.Phase, target) {
		return &InvalidTransitionError{From: current.Phase, To: target}
	}
	next := current
	next.Phase = target
	if err := c.commit(next); err != nil {
		return err
	}
	c.metrics.transition(current.Phase, target)
	c.logger.Info().Str("from", current.Phase.Key()).Str("to", target.Key()).Msg("phase changed")
	c.book.Transition(current.Phase.Key(), target.Key())
	for _, l := range c.listeners {
		l.OnPhaseChange(target)
	}
	return nil
}

// commit persists next and only then makes it the in-memory state.
func (c *Controller) commit(next State) error {
	if err := c.store.Save(next); err != nil {
		c.logger.Error().Err(err).Str("phase", next.Phase.Key()).Msg("persist state failed")
		return fmt.Errorf("engine: persist state: %w", err)
	}
	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
	return nil
}

// exchange sends one prompt to role's agent, forwarding fragments to the
// listeners while accumulating the reply. Nothing is persisted unless the
// stream completes.
func (c *Controller) exchange(ctx context.Context, role workflow.Role, templateID string, vars map[string]string, suffix string) (string, error) {
	text, err := c.prompts.Resolve(templateID, vars)
	if err != nil {
		return "", fmt.Errorf("engine: resolve prompt %s: %w", templateID, err)
	}
	text += suffix

	session := c.Session(role)
	state := c.State()
	started := c.clock()
	c.logger.Debug().Str("role", string(role)).Str("template", templateID).Int("prompt_bytes", len(text)).Msg("sending prompt")

	response, err := c.stream(ctx, role, session, text)
	elapsed := c.clock().Sub(started)
	c.metrics.exchange(role, err, elapsed)
	c.record(ctx, history.Exchange{
		Role:      string(role),
		Agent:     session.Name(),
		Phase:     state.Phase.Key(),
		Iteration: state.Iteration,
		Template:  templateID,
		Prompt:    text,
		Response:  response,
		Err:       errString(err),
		StartedAt: started,
		Duration:  elapsed,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("role", string(role)).Str("template", templateID).Msg("agent exchange failed")
		c.book.Exchange(string(role), templateID, 0, err)
		return "", fmt.Errorf("engine: %s exchange: %w", role, err)
	}
	c.book.Exchange(string(role), templateID, len(response), nil)

	if handle := session.SessionID(); handle != "" && handle != state.Session(role) {
		if err := c.commit(c.State().WithSession(role, handle)); err != nil {
			return response, err
		}
	}
	return response, nil
}

func (c *Controller) stream(ctx context.Context, role workflow.Role, session agent.Session, text string) (string, error) {
	chunks, err := session.Send(ctx, text)
	if err != nil {
		return "", err
	}
	return agent.Collect(ctx, chunks, func(fragment string) {
		c.metrics.fragment(role)
		for _, l := range c.listeners {
			l.OnOutput(fragment)
		}
	})
}

func (c *Controller) record(ctx context.Context, ex history.Exchange) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(context.WithoutCancel(ctx), ex); err != nil {
		c.logger.Warn().Err(err).Msg("record exchange failed")
	}
}

func orEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return emptyArtifact
	}
	return value
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
