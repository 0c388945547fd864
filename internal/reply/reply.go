// Package reply composes and dispatches acknowledgment emails.
//
// Composition is deterministic: same envelope and extraction in, same
// acknowledgment out. No model is involved, so a reply can never leak
// hallucinated content back to a client.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mailroom/internal/envelope"
	"mailroom/internal/extraction"
	"mailroom/internal/project/models"
)

// Message is an outbound acknowledgment.
type Message struct {
	From       string
	To         string
	Subject    string
	Body       string
	InReplyTo  string
	References string
}

// Dispatcher hands a composed acknowledgment to the mail transport.
// Dispatch failures are logged and dropped; acknowledgments are best-effort
// and never cause redelivery of a processed message.
type Dispatcher interface {
	Send(ctx context.Context, msg *Message) error
}

// Compose builds the acknowledgment for one processed message.
func Compose(env *envelope.Envelope, project *models.Project, result *extraction.Result, from string) *Message {
	subject := strings.TrimSpace(env.Subject)
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	references := strings.TrimSpace(env.InReplyTo + " " + string(env.MessageID))

	return &Message{
		From:       from,
		To:         env.Sender,
		Subject:    subject,
		Body:       composeBody(project, result),
		InReplyTo:  string(env.MessageID),
		References: references,
	}
}

func composeBody(project *models.Project, result *extraction.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your message has been filed under project %q.\n", project.Name)

	if result.Status == extraction.StatusExtracted && result.Payload != nil {
		section(&b, "Key points", result.Payload.KeyPoints)
		section(&b, "Decisions", decisionLines(result.Payload.Decisions))
		section(&b, "Action items", actionItemLines(result.Payload.ActionItems))
	} else {
		b.WriteString("\nThe message was recorded without automated analysis.\n")
	}

	b.WriteString("\nReply to this address to add to the project record.\n")
	return b.String()
}

func section(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}

func decisionLines(decisions []extraction.Decision) []string {
	lines := make([]string, 0, len(decisions))
	for _, d := range decisions {
		line := d.Decision
		if d.MadeBy != "" {
			line += " (" + d.MadeBy + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

func actionItemLines(items []extraction.ActionItem) []string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		line := item.Task
		var notes []string
		if item.Owner != "" {
			notes = append(notes, item.Owner)
		}
		if item.Deadline != "" {
			notes = append(notes, "due "+item.Deadline)
		}
		if len(notes) > 0 {
			line += " (" + strings.Join(notes, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

// LogDispatcher records acknowledgments in the log instead of sending them,
// for dev environments with no outbound mail transport.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(ctx context.Context, msg *Message) error {
	d.logger.InfoContext(ctx, "acknowledgment composed",
		"to", msg.To,
		"subject", msg.Subject,
		"in_reply_to", msg.InReplyTo,
	)
	return nil
}
