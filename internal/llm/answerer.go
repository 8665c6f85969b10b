// Package llm wraps the completion services used to phrase answers from
// knowledge-base context.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SystemInstruction constrains the model to the supplied knowledge.
const SystemInstruction = `You are an assistant answering employees' work questions for a small business.

Rules:
- Answer ONLY from the knowledge base excerpts provided. Never invent policies, hours, prices or names.
- Reply in the same language as the question (usually Hebrew).
- If the excerpts do not contain the answer, say plainly that you did not find the information. Do not guess.
- Keep the answer short and practical, suitable for a WhatsApp message.`

// FallbackAnswer is returned when the completion service fails.
const FallbackAnswer = "מצטער, נתקלתי בבעיה טכנית. אני מעביר את השאלה למנהל."

// Generator produces an answer for query from knowledge.
type Generator interface {
	Generate(ctx context.Context, system, knowledge, query string) (string, error)
}

// Completion is the outcome of an answer attempt. Failed answers carry
// FallbackAnswer as Text.
type Completion struct {
	Text   string
	Failed bool
}

// Answerer bounds completion calls and never surfaces their errors.
type Answerer struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
}

func NewAnswerer(gen Generator, timeout time.Duration, logger *slog.Logger) *Answerer {
	return &Answerer{gen: gen, timeout: timeout, logger: logger}
}

func (a *Answerer) Answer(ctx context.Context, knowledge, query string) Completion {
	if a.gen == nil {
		return Completion{Text: FallbackAnswer, Failed: true}
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	text, err := a.gen.Generate(ctx, SystemInstruction, knowledge, query)
	if err == nil && strings.TrimSpace(text) == "" {
		err = fmt.Errorf("empty answer")
	}
	if err != nil {
		a.logger.Warn("completion failed, falling back", "error", err)
		return Completion{Text: FallbackAnswer, Failed: true}
	}
	return Completion{Text: strings.TrimSpace(text)}
}

// UserPrompt combines knowledge excerpts and the question into one turn.
func UserPrompt(knowledge, query string) string {
	var sb strings.Builder
	sb.WriteString("Knowledge base excerpts:\n")
	sb.WriteString(knowledge)
	sb.WriteString("\n\nEmployee question:\n")
	sb.WriteString(query)
	return sb.String()
}
