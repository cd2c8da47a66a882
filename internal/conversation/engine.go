// Package conversation implements the Coral chat engine: the service
// navigator, the intent rule table and the per-session state machine that
// drives the lead and scheduling flows.
package conversation

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/coral/internal/clock"
	"github.com/jkindrix/coral/internal/domain"
	apperrors "github.com/jkindrix/coral/internal/errors"
	"github.com/jkindrix/coral/internal/sanitize"
)

// LanguageModel is the hosted model as seen by the engine.
type LanguageModel interface {
	// Classify returns the 1-based index of the matching description, or 0.
	Classify(ctx context.Context, message string, descriptions []string) (int, error)
	// Complete returns the generated reply text. The engine treats blank
	// text as a failure.
	Complete(ctx context.Context, instruction, preamble string, history []string) (string, error)
}

// HandoffSink receives completed leads and bookings.
type HandoffSink interface {
	SubmitLead(ctx context.Context, lead *domain.Lead) error
	SubmitBooking(ctx context.Context, booking *domain.Booking) error
}

// TurnObserver is notified once per answered turn.
type TurnObserver interface {
	ObserveTurn(route string, duration time.Duration)
}

// Routes name the branch that produced a reply.
const (
	RouteWelcome    = "welcome"
	RouteGreeting   = "greeting"
	RouteFlow       = "flow"
	RouteHandoff    = "handoff"
	RouteNavigator  = "navigator"
	RouteRegex      = "regex"
	RouteClassified = "classified"
	RouteFreeform   = "freeform"
	RouteFallback   = "fallback"
	RouteModelError = "model_error"
)

// Config controls optional engine behaviour.
type Config struct {
	Navigator *Navigator
	Registry  *Registry
	Preamble  string

	// FreeformFallback lets the model answer messages no intent matched.
	FreeformFallback bool
	// SurfaceHandoffFailures replaces the flow confirmation with
	// HandoffFailedText when the sink rejects a lead or booking.
	SurfaceHandoffFailures bool
}

// DefaultConfig returns the Codeit navigator and rule table.
func DefaultConfig() Config {
	return Config{
		Navigator: DefaultNavigator(),
		Registry:  DefaultRegistry(),
		Preamble:  Preamble,
	}
}

// Engine answers chat turns. It is safe for concurrent use; turns for the
// same session are processed one at a time.
type Engine struct {
	sessions domain.SessionRepository
	model    LanguageModel
	handoff  HandoffSink
	cfg      Config
	greeting string

	locks    *keyedMutex
	clock    clock.Clock
	intn     func(n int) int
	observer TurnObserver
	logger   *zap.Logger
}

// NewEngine creates an Engine. A nil handoff sink only logs completed flows.
func NewEngine(sessions domain.SessionRepository, model LanguageModel, handoff HandoffSink, cfg Config, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Navigator == nil {
		cfg.Navigator = def.Navigator
	}
	if cfg.Registry == nil {
		cfg.Registry = def.Registry
	}
	if cfg.Preamble == "" {
		cfg.Preamble = def.Preamble
	}

	greeting := WelcomeText
	if menu := cfg.Navigator.Menu(); menu != "" {
		greeting += "\n\nHere’s what we do:\n" + menu
	}

	logger = logger.Named("engine")
	logger.Debug("engine configured",
		zap.Int("intents", cfg.Registry.Len()),
		zap.Bool("freeform_fallback", cfg.FreeformFallback),
	)

	return &Engine{
		sessions: sessions,
		model:    model,
		handoff:  handoff,
		cfg:      cfg,
		greeting: greeting,
		locks:    newKeyedMutex(),
		clock:    clock.New(),
		intn:     rand.IntN,
		logger:   logger,
	}
}

// WithClock sets the clock used to stamp hand-off records.
func (e *Engine) WithClock(c clock.Clock) *Engine {
	e.clock = c
	return e
}

// WithObserver sets the per-turn observer.
func (e *Engine) WithObserver(o TurnObserver) *Engine {
	e.observer = o
	return e
}

// withIntn replaces the random source used by RandomChoice replies.
func (e *Engine) withIntn(fn func(n int) int) *Engine {
	e.intn = fn
	return e
}

// Greeting returns the welcome message with the service menu.
func (e *Engine) Greeting() string {
	return e.greeting
}

// Respond produces exactly one reply for a turn. The only errors returned
// are invalid input and session store failures; model and hand-off problems
// are answered with text.
func (e *Engine) Respond(ctx context.Context, sessionID string, in domain.Input) (domain.Response, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Response{}, apperrors.MissingField("sessionId")
	}
	if in.Event != "" && !in.IsWelcome() {
		return domain.Response{}, apperrors.InvalidInput("unsupported event " + string(in.Event))
	}

	unlock := e.locks.Lock(sessionID)
	defer unlock()

	start := time.Now()
	text, route, err := e.turn(ctx, sessionID, in)
	if err != nil {
		e.logger.Error("turn failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return domain.Response{}, err
	}

	duration := time.Since(start)
	if e.observer != nil {
		e.observer.ObserveTurn(route, duration)
	}
	e.logger.Debug("turn answered",
		zap.String("session_id", sessionID),
		zap.String("route", route),
		zap.Duration("duration", duration),
	)
	return domain.Response{Response: text}, nil
}

func (e *Engine) turn(ctx context.Context, sessionID string, in domain.Input) (string, string, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		if _, err := e.sessions.Create(ctx, sessionID); err != nil {
			return "", "", apperrors.SessionStoreError("create", err)
		}
		if in.IsWelcome() {
			return e.greeting, RouteWelcome, nil
		}
		return e.greeting, RouteGreeting, nil
	case err != nil:
		return "", "", apperrors.SessionStoreError("get", err)
	}

	step, inFlow := sess.State.Step()
	if !inFlow || in.IsWelcome() {
		// Idle turns write nothing else; keep the session from expiring.
		if err := e.touch(ctx, sess.ID); err != nil {
			return "", "", err
		}
	}

	if in.IsWelcome() {
		return e.greeting, RouteWelcome, nil
	}

	if inFlow {
		return e.advance(ctx, sess, step, in.Text)
	}

	msg := Normalize(in.Text)

	if resp, ok := e.cfg.Navigator.Lookup(msg); ok {
		return resp, RouteNavigator, nil
	}

	if intent, ok := e.cfg.Registry.MatchRegex(msg); ok {
		return e.fire(ctx, sessionID, intent, in.Text, RouteRegex)
	}

	index, err := e.model.Classify(ctx, strings.TrimSpace(in.Text), e.cfg.Registry.Descriptions())
	switch {
	case errors.Is(err, apperrors.ErrModelUnavailable):
		// Without a model there is nothing to classify against.
		return FallbackText, RouteFallback, nil
	case err != nil:
		return ApologyText, RouteModelError, nil
	}
	if intent, ok := e.cfg.Registry.At(index); ok {
		return e.fire(ctx, sessionID, intent, in.Text, RouteClassified)
	}

	if e.cfg.FreeformFallback {
		reply, ok := e.complete(ctx, FreeformInstruction, in.Text)
		if !ok {
			return ApologyText, RouteModelError, nil
		}
		return reply, RouteFreeform, nil
	}

	return FallbackText, RouteFallback, nil
}

// complete asks the model for a reply to raw. Blank text counts as a failure
// whatever the model reported.
func (e *Engine) complete(ctx context.Context, instruction, raw string) (string, bool) {
	reply, err := e.model.Complete(ctx, instruction, e.cfg.Preamble, []string{raw})
	if err != nil {
		return "", false
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		e.logger.Warn("model returned blank reply", zap.String("instruction", instruction))
		return "", false
	}
	return reply, true
}

// touch refreshes the session's last-activity time.
func (e *Engine) touch(ctx context.Context, sessionID string) error {
	_, err := e.sessions.Update(ctx, sessionID, func(*domain.Session) error { return nil })
	if err != nil {
		return apperrors.SessionStoreError("touch", err)
	}
	return nil
}

// fire answers with intent's reply and then applies its state transition.
// A failed generation leaves the state alone.
func (e *Engine) fire(ctx context.Context, sessionID string, intent Intent, raw, route string) (string, string, error) {
	var text string
	switch r := intent.Reply.(type) {
	case Literal:
		text = r.Text
	case RandomChoice:
		text = r.Texts[e.intn(len(r.Texts))]
	case Generated:
		reply, ok := e.complete(ctx, r.Instruction, raw)
		if !ok {
			return ApologyText, RouteModelError, nil
		}
		text = reply
	}

	if intent.NextState != "" {
		_, err := e.sessions.Update(ctx, sessionID, func(s *domain.Session) error {
			s.State = intent.NextState
			return nil
		})
		if err != nil {
			return "", "", apperrors.SessionStoreError("update", err)
		}
	}

	e.logger.Debug("intent matched",
		zap.String("session_id", sessionID),
		zap.String("intent", intent.Name),
		zap.String("route", route),
	)
	return text, route, nil
}

// advance stores raw as the answer to step and moves to the next state.
func (e *Engine) advance(ctx context.Context, sess *domain.Session, step domain.Step, raw string) (string, string, error) {
	value := raw
	if step.Field == domain.FieldBudget && strings.TrimSpace(value) == "" {
		value = domain.BudgetNotProvided
	}

	updated, err := e.sessions.Update(ctx, sess.ID, func(s *domain.Session) error {
		s.Data[step.Field] = value
		s.State = step.Next
		return nil
	})
	if err != nil {
		return "", "", apperrors.SessionStoreError("update", err)
	}

	if !step.Final() {
		return stepPrompts[step.Next], RouteFlow, nil
	}

	if err := e.handOff(ctx, updated, step.Flow); err != nil && e.cfg.SurfaceHandoffFailures {
		return HandoffFailedText, RouteHandoff, nil
	}
	return completionText[step.Flow], RouteHandoff, nil
}

func (e *Engine) handOff(ctx context.Context, sess *domain.Session, flow domain.Flow) error {
	now := e.clock.NowUTC()

	var err error
	switch flow {
	case domain.FlowLead:
		lead := sess.Lead(now)
		e.logger.Info("lead collected",
			zap.String("session_id", sess.ID),
			zap.String("lead_id", lead.ID.String()),
			zap.String("name", lead.Name),
			zap.String("contact", sanitize.MaskContact(lead.Contact)),
		)
		if e.handoff != nil {
			err = e.handoff.SubmitLead(ctx, lead)
		}
	case domain.FlowSchedule:
		booking := sess.Booking(now)
		e.logger.Info("meeting scheduled",
			zap.String("session_id", sess.ID),
			zap.String("booking_id", booking.ID.String()),
			zap.String("date", booking.Date),
			zap.String("time", booking.Time),
		)
		if e.handoff != nil {
			err = e.handoff.SubmitBooking(ctx, booking)
		}
	}

	if err != nil {
		e.logger.Warn("hand-off failed",
			zap.String("session_id", sess.ID),
			zap.String("flow", flow.String()),
			zap.Error(err),
		)
	}
	return err
}
