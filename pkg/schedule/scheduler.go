// Package schedule stores future re-invocations of conversations and fires
// them as synthetic messages when they come due.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often the runner looks for due schedules.
const DefaultPollInterval = 30 * time.Second

// MessageText is the synthetic message sent when a schedule fires.
func MessageText(id, text string) string {
	return fmt.Sprintf("[SCHEDULE %s]: %s", id, text)
}

// Scheduler creates, lists and fires schedules.
type Scheduler struct {
	store    *Store
	handler  channel.Handler
	location *time.Location
	interval time.Duration
	now      func() time.Time

	mu sync.Mutex
}

type Option func(*Scheduler)

// WithHandler sets where fired schedules are delivered.
func WithHandler(h channel.Handler) Option {
	return func(s *Scheduler) { s.handler = h }
}

// WithLocation sets the zone for at() and cron() expressions.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func New(store *Store, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		location: time.UTC,
		interval: DefaultPollInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetHandler sets the delivery target after construction, for wiring
// cycles where the handler's tools need the scheduler.
func (s *Scheduler) SetHandler(h channel.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Create validates expression and stores a new schedule for a conversation.
// at() schedules are always one-shot.
func (s *Scheduler) Create(ctx context.Context, conversationID, expression, text string, recurring bool) (*Schedule, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id is required")
	}
	if text == "" {
		return nil, errors.New("schedule text is required")
	}
	expr, err := ParseExpression(expression, s.location)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	first, ok := expr.First(now)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidExpression, "%q never fires after %s", expression, now.Format(time.RFC3339))
	}
	sc := &Schedule{
		ID:             NewID(),
		ConversationID: conversationID,
		Expression:     expr.String(),
		Text:           text,
		Recurring:      recurring && expr.Kind != KindAt,
		CreatedAt:      now,
		NextRunAt:      first.UTC(),
	}
	if err := s.store.Insert(ctx, sc); err != nil {
		return nil, err
	}
	log.Info().
		Str("conversation_id", conversationID).
		Str("schedule", sc.Name()).
		Str("expression", sc.Expression).
		Time("next_run_at", sc.NextRunAt).
		Msg("schedule created")
	return sc, nil
}

func (s *Scheduler) List(ctx context.Context, conversationID string) ([]*Schedule, error) {
	return s.store.List(ctx, conversationID)
}

func (s *Scheduler) Remove(ctx context.Context, conversationID, id string) error {
	if err := s.store.Delete(ctx, conversationID, id); err != nil {
		return err
	}
	log.Info().Str("conversation_id", conversationID).Str("schedule_id", id).Msg("schedule removed")
	return nil
}

// Tick fires every due schedule once. A schedule is advanced only after its
// message was handed over: recurring schedules move to their next run and
// one-shot schedules are deleted. A schedule whose conversation is busy
// stays due and fires on a later tick.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()

	now := s.now().UTC()
	due, err := s.store.Due(ctx, now)
	if err != nil {
		return 0, err
	}
	fired := 0
	for _, sc := range due {
		if handler != nil {
			msg := &channel.Message{
				ID:             "schedule-" + sc.ID,
				ConversationID: sc.ConversationID,
				Date:           now,
				Text:           MessageText(sc.ID, sc.Text),
			}
			if err := handler.HandleMessage(ctx, msg); err != nil {
				if errors.Is(err, channel.ErrConversationBusy) {
					log.Debug().Str("conversation_id", sc.ConversationID).Str("schedule", sc.Name()).Msg("conversation busy, schedule stays due")
					continue
				}
				log.Warn().Err(err).Str("conversation_id", sc.ConversationID).Str("schedule", sc.Name()).Msg("scheduled message failed")
			}
		}
		fired++
		if err := s.advance(ctx, sc, now); err != nil {
			log.Warn().Err(err).Str("schedule", sc.Name()).Msg("could not advance schedule")
		}
	}
	return fired, nil
}

func (s *Scheduler) advance(ctx context.Context, sc *Schedule, now time.Time) error {
	if sc.Recurring {
		expr, err := ParseExpression(sc.Expression, s.location)
		if err != nil {
			return err
		}
		next, ok := expr.Next(now)
		if ok {
			return s.store.SetNextRun(ctx, sc.ID, next.UTC())
		}
	}
	return s.store.Delete(ctx, sc.ConversationID, sc.ID)
}

// Run polls for due schedules until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	c.Schedule(cron.Every(s.interval), cron.FuncJob(func() {
		if _, err := s.Tick(ctx); err != nil {
			log.Error().Err(err).Msg("schedule tick failed")
		}
	}))
	log.Info().Dur("interval", s.interval).Msg("schedule runner started")
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("schedule runner stopped")
	return ctx.Err()
}

// cronLogger routes cron's logging to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
