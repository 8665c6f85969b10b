package ingest

import "github.com/MikeSquared-Agency/askops/internal/confidence"

const (
	answerLookahead = 5
	minAnswerLength = 10
)

// ExtractQA finds question/answer pairs inside each chunk. Pairs scoring
// at or below weights.ExtractMinimum are dropped; callers apply their own
// stricter cutoff.
func ExtractQA(chunks []Chunk, weights confidence.QAWeights) []QAPair {
	var pairs []QAPair
	for _, c := range chunks {
		for i, q := range c.Messages {
			if !IsQuestion(q.Content) {
				continue
			}
			a, ok := findAnswer(c.Messages, i)
			if !ok {
				continue
			}
			score := weights.ScoreQA(confidence.QAInput{
				Gap:         a.Timestamp.Sub(q.Timestamp),
				AnswerLen:   len(a.Content),
				AnswerMedia: a.HasMedia(),
				HowQuestion: IsHowQuestion(q.Content),
			})
			if score <= weights.ExtractMinimum {
				continue
			}
			pairs = append(pairs, QAPair{
				Question:    q.Content,
				QuestionBy:  q.Sender,
				Answer:      a.Content,
				AnswerBy:    a.Sender,
				AnswerMedia: a.MediaFilename,
				Timestamp:   q.Timestamp,
				Confidence:  score,
			})
		}
	}
	return pairs
}

func findAnswer(msgs []ParsedMessage, qi int) (ParsedMessage, bool) {
	q := msgs[qi]
	end := qi + answerLookahead
	if end >= len(msgs) {
		end = len(msgs) - 1
	}
	for j := qi + 1; j <= end; j++ {
		m := msgs[j]
		if m.Sender == q.Sender {
			continue
		}
		if len(m.Content) < minAnswerLength && !m.HasMedia() {
			continue
		}
		if IsQuestion(m.Content) {
			continue
		}
		return m, true
	}
	return ParsedMessage{}, false
}
