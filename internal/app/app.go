// Package app wires the configured components into a running agent.
package app

import (
	"context"
	"io"

	"github.com/go-go-golems/parley/pkg/blob"
	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/go-go-golems/parley/pkg/config"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/history"
	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/go-go-golems/parley/pkg/inference/middleware"
	"github.com/go-go-golems/parley/pkg/inference/session"
	"github.com/go-go-golems/parley/pkg/inference/toolloop"
	"github.com/go-go-golems/parley/pkg/inference/tools"
	"github.com/go-go-golems/parley/pkg/knowledge"
	"github.com/go-go-golems/parley/pkg/normalize"
	"github.com/go-go-golems/parley/pkg/prompts"
	"github.com/go-go-golems/parley/pkg/schedule"
	"github.com/go-go-golems/parley/pkg/security"
	"github.com/go-go-golems/parley/pkg/steps/ai"
	"github.com/go-go-golems/parley/pkg/toolbox"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type App struct {
	Config    *config.Config
	Blobs     blob.Store
	History   *history.Store
	Engine    engine.Engine
	Registry  *tools.InMemoryToolRegistry
	Catalogue *tools.Catalogue
	Loop      *toolloop.Loop
	Driver    *session.Driver
	Scheduler *schedule.Scheduler
	Knowledge *knowledge.Store
	Router    *events.EventRouter

	sinks   []events.EventSink
	closers []io.Closer
}

type Option func(*options)

type options struct {
	engine engine.Engine
	blobs  blob.Store
	sinks  []events.EventSink
}

// WithEngine replaces the configured model provider.
func WithEngine(e engine.Engine) Option {
	return func(o *options) { o.engine = e }
}

// WithBlobStore replaces the configured history store.
func WithBlobStore(b blob.Store) Option {
	return func(o *options) { o.blobs = b }
}

// WithEventSinks adds sinks receiving every conversation event.
func WithEventSinks(sinks ...events.EventSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// NewBlobStore opens the history blob store selected by cfg.
func NewBlobStore(cfg config.HistoryConfig) (blob.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return blob.NewMemoryStore(), nil
	case config.StoreFile:
		return blob.NewFileStore(cfg.Path, blob.WithCompression(cfg.Compress))
	case config.StoreSQLite:
		return blob.NewSQLiteStore(cfg.Path)
	}
	return nil, errors.Wrapf(config.ErrInvalidConfig, "unknown history store %q", cfg.Store)
}

// NewEngine builds the model provider selected by cfg.
func NewEngine(cfg config.ModelConfig) (engine.StreamingEngine, error) {
	return ai.NewEngine(ai.EngineSettings{
		Provider:    cfg.Provider,
		Model:       cfg.Name,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		URLOptions:  security.OutboundURLOptions{AllowHTTP: cfg.AllowLocal, AllowLocalNetworks: cfg.AllowLocal},
	})
}

// New builds the agent for ch. The caller must Close the returned App. ch may
// be nil for commands that never handle messages.
func New(cfg *config.Config, ch channel.Channel, opts ...Option) (ret *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a.Blobs = o.blobs
	if a.Blobs == nil {
		if a.Blobs, err = NewBlobStore(cfg.History); err != nil {
			return nil, errors.Wrap(err, "opening history store")
		}
		a.addCloser(a.Blobs)
	}
	a.History = history.NewStore(a.Blobs, history.WithKeyPrefix(cfg.History.KeyPrefix))

	a.Engine = o.engine
	if a.Engine == nil {
		if a.Engine, err = NewEngine(cfg.Model); err != nil {
			return nil, err
		}
	}

	if cfg.Schedule.Enabled {
		store, err := schedule.NewStore(cfg.Schedule.Path)
		if err != nil {
			return nil, errors.Wrap(err, "opening schedule store")
		}
		a.closers = append(a.closers, store)
		a.Scheduler = schedule.New(store,
			schedule.WithLocation(loc),
			schedule.WithPollInterval(cfg.Schedule.PollInterval),
		)
	}
	if cfg.Memory.Enabled {
		if a.Knowledge, err = knowledge.NewStore(cfg.Memory.Path); err != nil {
			return nil, errors.Wrap(err, "opening memory store")
		}
		a.closers = append(a.closers, a.Knowledge)
	}

	if a.Registry, err = toolbox.New(toolbox.Options{
		Scheduler: a.Scheduler,
		Knowledge: a.Knowledge,
		Location:  loc,
	}); err != nil {
		return nil, err
	}
	a.Catalogue = tools.NewCatalogue(a.catalogueSource(), a.Registry)

	builder, err := prompts.NewBuilder(cfg.Prompt.Instructions)
	if err != nil {
		return nil, err
	}

	a.Loop = toolloop.New(
		toolloop.WithEngine(middleware.NewEngineWithMiddleware(a.Engine, middleware.NewLoggingMiddleware(log.Logger))),
		toolloop.WithHistory(a.History),
		toolloop.WithExecutor(tools.NewExecutor(a.Registry, cfg.Tools.Execution)),
		toolloop.WithCatalogue(a.Catalogue),
		toolloop.WithNormalizer(normalize.NewNormalizer(ch,
			normalize.WithStartCommand(cfg.Prompt.StartCommand),
			normalize.WithGreeting(cfg.Prompt.Greeting),
		)),
		toolloop.WithPrompts(builder),
		toolloop.WithTyping(ch),
		toolloop.WithLoopConfig(cfg.Loop),
	)

	a.Driver = session.NewDriver(a.Loop,
		session.WithSender(ch),
		session.WithMaxToolRounds(cfg.Session.MaxToolRounds),
		session.WithLanguage(cfg.Session.Language),
		session.WithReplies(cfg.Session.UnsupportedReply, cfg.Session.FailureReply),
	)
	if a.Scheduler != nil {
		a.Scheduler.SetHandler(a.Driver)
	}

	if a.Router, err = events.NewEventRouter(events.WithVerbose(cfg.Events.Verbose)); err != nil {
		return nil, errors.Wrap(err, "creating event router")
	}
	if cfg.Events.Log {
		a.Router.AddEventHandler("log", events.DefaultTopic, events.LogEvent)
	}
	a.sinks = append([]events.EventSink{a.Router.Sink(events.DefaultTopic)}, o.sinks...)

	log.Debug().
		Str("model", cfg.Model.Name).
		Str("history_store", cfg.History.Store).
		Bool("schedules", a.Scheduler != nil).
		Bool("memory", a.Knowledge != nil).
		Msg("app: configured")
	return a, nil
}

func (a *App) catalogueSource() tools.SpecSource {
	switch {
	case a.Config.Tools.Catalogue != "":
		return tools.FileSource(a.Config.Tools.Catalogue)
	case a.Config.Tools.CatalogueKey != "":
		return tools.BlobSource{Store: a.Blobs, Key: a.Config.Tools.CatalogueKey}
	}
	return nil
}

func (a *App) addCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
}

// Context attaches the event sinks to ctx.
func (a *App) Context(ctx context.Context) context.Context {
	return events.WithEventSinks(ctx, a.sinks...)
}

// Run runs the event router, the schedule runner and front until ctx is
// cancelled or one of them returns. front is typically a channel poller.
func (a *App) Run(ctx context.Context, front func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(a.Context(ctx))
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	routerReady := func() bool {
		select {
		case <-a.Router.Running():
			return true
		case <-ctx.Done():
			return false
		}
	}

	eg.Go(func() error { return ignoreCancel(a.Router.Run(ctx)) })
	if a.Scheduler != nil {
		eg.Go(func() error {
			if !routerReady() {
				return nil
			}
			return ignoreCancel(a.Scheduler.Run(ctx))
		})
	}
	eg.Go(func() error {
		defer cancel()
		if !routerReady() {
			return nil
		}
		return ignoreCancel(front(ctx))
	})
	return eg.Wait()
}

func (a *App) Close() error {
	var first error
	if a.Router != nil {
		_ = a.Router.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
