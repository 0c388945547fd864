package extraction

import (
	"context"
	"log/slog"
	"strings"
)

// injectionPhrases are logged when seen in inbound mail. Detection is
// observability only: the text still goes to the model unchanged, because
// legitimate mail can quote these phrases and the schema gate is the real
// defense.
var injectionPhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard all prior",
	"disregard previous instructions",
	"you are now",
	"new instructions:",
	"system prompt",
}

// Sanitize bounds the text sent to the model and logs suspected prompt
// injection attempts.
func Sanitize(ctx context.Context, logger *slog.Logger, body string, maxChars int) string {
	if maxChars > 0 && len(body) > maxChars {
		logger.InfoContext(ctx, "truncating message body for extraction",
			"original_chars", len(body),
			"max_chars", maxChars,
		)
		body = body[:maxChars]
	}

	lower := strings.ToLower(body)
	for _, phrase := range injectionPhrases {
		if strings.Contains(lower, phrase) {
			logger.WarnContext(ctx, "possible prompt injection phrase in message body",
				"phrase", phrase,
			)
		}
	}
	return body
}
