package toolloop

import (
	"context"
	"sync"
	"time"

	"github.com/go-go-golems/parley/pkg/channel"
	"github.com/rs/zerolog/log"
)

// startTyping sends a typing indicator immediately and then every interval
// until the returned stop function is called. stop waits for the sender
// goroutine, so no indicator is sent after it returns.
func startTyping(ctx context.Context, notifier channel.TypingNotifier, conversationID string, interval time.Duration) (stop func()) {
	if notifier == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		send := func() {
			if err := notifier.SendTyping(ctx, conversationID); err != nil && ctx.Err() == nil {
				log.Debug().Err(err).Str("conversation_id", conversationID).Msg("typing indicator failed")
			}
		}
		send()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				send()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
