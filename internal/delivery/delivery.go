// Package delivery sends replies back to users over the messaging channel.
// Sending is best effort: failures are reported to the caller, never retried.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Outbound is everything addressed to one recipient in one turn.
type Outbound struct {
	To        string   `json:"to"`
	Messages  []string `json:"messages"`
	Buttons   []Button `json:"buttons,omitempty"`
	Links     []Link   `json:"links,omitempty"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

type Status string

const (
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

type Result struct {
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func Delivered() Result { return Result{Status: StatusDelivered} }

func Failed(format string, args ...any) Result {
	return Result{Status: StatusFailed, Reason: fmt.Sprintf(format, args...)}
}

func (r Result) OK() bool { return r.Status == StatusDelivered }

// Sink delivers an outbound bundle.
type Sink interface {
	Send(ctx context.Context, out Outbound) Result
}

// RenderText flattens messages, numbered buttons and links into the text
// bodies a plain-text channel can carry. Buttons and links are appended to
// the last body.
func RenderText(out Outbound) []string {
	bodies := append([]string(nil), out.Messages...)
	var extra strings.Builder
	for i, b := range out.Buttons {
		fmt.Fprintf(&extra, "%d. %s\n", i+1, b.Title)
	}
	for _, l := range out.Links {
		fmt.Fprintf(&extra, "%s: %s\n", l.Title, l.URL)
	}
	if extra.Len() == 0 {
		return bodies
	}
	tail := strings.TrimRight(extra.String(), "\n")
	if len(bodies) == 0 {
		return []string{tail}
	}
	bodies[len(bodies)-1] += "\n\n" + tail
	return bodies
}

// LogSink only logs outbound messages. Used when no channel is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Send(ctx context.Context, out Outbound) Result {
	s.logger.Info("outbound message",
		"to", out.To,
		"messages", len(out.Messages),
		"buttons", len(out.Buttons),
		"links", len(out.Links),
		"media", len(out.MediaURLs),
		"text", strings.Join(RenderText(out), "\n---\n"),
	)
	return Delivered()
}
