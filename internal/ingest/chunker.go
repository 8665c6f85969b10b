package ingest

import (
	"fmt"
	"strings"
	"time"
)

// ChunkOptions bounds chunk size and splits on silence.
type ChunkOptions struct {
	MaxChunkChars       int
	TimeGap             time.Duration
	MinMessagesPerChunk int
}

func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		MaxChunkChars:       1500,
		TimeGap:             120 * time.Minute,
		MinMessagesPerChunk: 2,
	}
}

// ChunkMessages splits a conversation into segments. It breaks on time gaps
// and size, but never emits a segment shorter than MinMessagesPerChunk
// unless the whole input is that short.
func ChunkMessages(msgs []ParsedMessage, opts ChunkOptions) []Chunk {
	if len(msgs) == 0 {
		return nil
	}
	if opts.MinMessagesPerChunk < 1 {
		opts.MinMessagesPerChunk = 1
	}

	var groups [][]ParsedMessage
	var current []ParsedMessage
	currentChars := 0

	for _, msg := range msgs {
		lineLen := len(FormatLine(msg))

		if len(current) >= opts.MinMessagesPerChunk {
			prev := current[len(current)-1]
			gap := opts.TimeGap > 0 && msg.Timestamp.Sub(prev.Timestamp) > opts.TimeGap
			full := opts.MaxChunkChars > 0 && currentChars+lineLen > opts.MaxChunkChars
			if gap || full {
				groups = append(groups, current)
				current = nil
				currentChars = 0
			}
		}

		current = append(current, msg)
		currentChars += lineLen
	}

	// A short tail joins the previous segment instead of standing alone.
	if len(current) < opts.MinMessagesPerChunk && len(groups) > 0 {
		last := len(groups) - 1
		groups[last] = append(groups[last], current...)
	} else {
		groups = append(groups, current)
	}

	chunks := make([]Chunk, 0, len(groups))
	for i, g := range groups {
		chunks = append(chunks, buildChunk(g, i))
	}
	return chunks
}

func buildChunk(msgs []ParsedMessage, idx int) Chunk {
	c := Chunk{
		ID:        fmt.Sprintf("chunk-%d", idx),
		Messages:  make([]ParsedMessage, len(msgs)),
		StartTime: msgs[0].Timestamp,
		EndTime:   msgs[len(msgs)-1].Timestamp,
	}
	copy(c.Messages, msgs)

	seen := make(map[string]bool)
	var text strings.Builder
	for _, m := range msgs {
		if !seen[m.Sender] {
			seen[m.Sender] = true
			c.Participants = append(c.Participants, m.Sender)
		}
		if m.HasMedia() {
			c.HasMedia = true
			c.MediaFiles = append(c.MediaFiles, m.MediaFilename)
		}
		c.CharCount += len(FormatLine(m))
		text.WriteString(m.Content)
		text.WriteString("\n")
	}
	c.Topic = DetectTopic(text.String())
	return c
}

// FormatLine renders a message the way it is stored in document items.
func FormatLine(m ParsedMessage) string {
	return fmt.Sprintf("[%s] %s: %s", m.Timestamp.Format("02/01/2006 15:04"), m.Sender, m.Content)
}

// FormatTranscript renders a chunk's messages one per line.
func FormatTranscript(c Chunk) string {
	var sb strings.Builder
	for i, m := range c.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(FormatLine(m))
	}
	return sb.String()
}
