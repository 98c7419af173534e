package middleware

import (
	"context"
	"time"

	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/inference/engine"
	"github.com/rs/zerolog"
)

// NewLoggingMiddleware logs request and result details around each invocation.
func NewLoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req engine.Request, onTextDelta engine.TextDeltaFunc) (*engine.Result, error) {
			md := events.MetadataFromContext(ctx)
			lg := logger.With().
				Str("conversation_id", md.ConversationID).
				Str("message_id", md.MessageID).
				Int("turns", len(req.Log)).
				Int("tools", len(req.Tools)).
				Bool("stream", onTextDelta != nil).
				Logger()

			lg.Debug().Msg("inference: starting")
			start := time.Now()
			res, err := next(ctx, req, onTextDelta)
			if err != nil {
				lg.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("inference: failed")
				return res, err
			}
			if res == nil {
				return res, nil
			}

			names := make([]string, 0, len(res.ToolCalls))
			for _, c := range res.ToolCalls {
				names = append(names, c.Name)
			}
			lg.Info().
				Dur("elapsed", time.Since(start)).
				Str("stop_reason", string(res.StopReason)).
				Int("input_tokens", res.Usage.InputTokens).
				Int("output_tokens", res.Usage.OutputTokens).
				Int("text_len", len(res.Text)).
				Strs("tool_calls", names).
				Msg("inference: completed")
			return res, nil
		}
	}
}
