package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultPollTimeout = 30 * time.Second
	// DefaultQueueSize bounds the messages waiting per chat.
	DefaultQueueSize = 16
)

// Poller long-polls getUpdates and hands messages to a Handler. Messages of
// one chat are handled serially, in arrival order; chats run concurrently.
type Poller struct {
	client    *Client
	handler   channel.Handler
	timeout   time.Duration
	queueSize int

	mu      sync.Mutex
	workers map[string]chan *channel.Message
	wg      sync.WaitGroup
}

type PollerOption func(*Poller)

func WithPollTimeout(d time.Duration) PollerOption {
	return func(p *Poller) { p.timeout = d }
}

func WithQueueSize(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

func NewPoller(client *Client, handler channel.Handler, opts ...PollerOption) *Poller {
	p := &Poller{
		client:    client,
		handler:   handler,
		timeout:   DefaultPollTimeout,
		queueSize: DefaultQueueSize,
		workers:   map[string]chan *channel.Message{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run polls until ctx is cancelled and then waits for the chat workers to
// finish their current message.
func (p *Poller) Run(ctx context.Context) error {
	if p.client == nil || p.handler == nil {
		return errors.New("poller needs a client and a handler")
	}
	log.Info().Dur("timeout", p.timeout).Msg("telegram: polling started")
	defer func() {
		p.wg.Wait()
		log.Info().Msg("telegram: polling stopped")
	}()

	backoff := retry.WithCappedDuration(time.Minute, retry.NewExponential(time.Second))
	var offset int64
	for {
		var updates []Update
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			var err error
			updates, err = p.client.GetUpdates(ctx, offset, p.timeout)
			if err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("telegram: getUpdates failed")
				return retry.RetryableError(err)
			}
			return err
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil {
				continue
			}
			p.Dispatch(ctx, ToChannelMessage(u.Message))
		}
	}
}

// Dispatch queues msg on its chat's worker, starting the worker if needed.
func (p *Poller) Dispatch(ctx context.Context, msg *channel.Message) {
	p.mu.Lock()
	q, ok := p.workers[msg.ConversationID]
	if !ok {
		q = make(chan *channel.Message, p.queueSize)
		p.workers[msg.ConversationID] = q
		p.wg.Add(1)
		go p.work(ctx, msg.ConversationID, q)
	}
	p.mu.Unlock()

	select {
	case q <- msg:
	case <-ctx.Done():
	default:
		log.Warn().Str("conversation_id", msg.ConversationID).Str("message_id", msg.ID).Msg("telegram: chat queue full, dropping message")
	}
}

func (p *Poller) work(ctx context.Context, conversationID string, q chan *channel.Message) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q:
			if err := p.handler.HandleMessage(ctx, msg); err != nil {
				log.Error().Err(err).Str("conversation_id", conversationID).Str("message_id", msg.ID).Msg("telegram: handling message failed")
			}
		}
	}
}
