package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

type loggingLLM struct {
	next   CoreLLM
	logger *slog.Logger
}

// LoggingMiddleware logs each request at debug level and failures at warn
// level. Only sizes and timings are logged; message text and credentials
// never reach the log.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next CoreLLM) CoreLLM {
		return &loggingLLM{next: next, logger: logger}
	}
}

func (l *loggingLLM) DoRequest(ctx context.Context, messages []domain.Message, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := l.next.DoRequest(ctx, messages, opts)
	elapsed := time.Since(start)

	if err != nil {
		l.logger.WarnContext(ctx, "chat request failed",
			"model", l.next.GetModel(),
			"messages", len(messages),
			"duration", elapsed,
			"error", err,
		)
		return response, tokensIn, tokensOut, err
	}

	l.logger.DebugContext(ctx, "chat request completed",
		"model", l.next.GetModel(),
		"messages", len(messages),
		"tokens_in", tokensIn,
		"tokens_out", tokensOut,
		"response_chars", len(response),
		"duration", elapsed,
	)
	return response, tokensIn, tokensOut, nil
}

func (l *loggingLLM) GetModel() string { return l.next.GetModel() }

func (l *loggingLLM) SetModel(m string) { l.next.SetModel(m) }
