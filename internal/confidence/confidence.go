// Package confidence holds the scoring weights used to judge whether an
// extracted or generated answer can be trusted without human review.
package confidence

import (
	"math"
	"time"
)

// QAWeights scores a question/answer pair found in a chat log.
type QAWeights struct {
	Base float64

	FastWithin   time.Duration
	FastBonus    float64
	MediumWithin time.Duration
	MediumBonus  float64
	SlowAfter    time.Duration
	SlowPenalty  float64

	LongChars      int
	LongBonus      float64
	VeryLongChars  int
	VeryLongBonus  float64
	MediaBonus     float64
	HowQuestion    float64
	ExtractMinimum float64 // pairs at or below this are not reported
}

// DefaultQAWeights returns the weights used for chat-log imports.
func DefaultQAWeights() QAWeights {
	return QAWeights{
		Base:           0.5,
		FastWithin:     5 * time.Minute,
		FastBonus:      0.2,
		MediumWithin:   30 * time.Minute,
		MediumBonus:    0.1,
		SlowAfter:      120 * time.Minute,
		SlowPenalty:    0.2,
		LongChars:      100,
		LongBonus:      0.1,
		VeryLongChars:  200,
		VeryLongBonus:  0.1,
		MediaBonus:     0.15,
		HowQuestion:    0.1,
		ExtractMinimum: 0.5,
	}
}

// QAInput describes the observable features of a candidate answer.
type QAInput struct {
	Gap         time.Duration
	AnswerLen   int
	AnswerMedia bool
	HowQuestion bool
}

// ScoreQA computes the confidence of an extracted pair.
func (w QAWeights) ScoreQA(in QAInput) float64 {
	score := w.Base

	switch {
	case in.Gap < w.FastWithin:
		score += w.FastBonus
	case in.Gap < w.MediumWithin:
		score += w.MediumBonus
	case in.Gap > w.SlowAfter:
		score -= w.SlowPenalty
	}

	if in.AnswerLen > w.LongChars {
		score += w.LongBonus
	}
	if in.AnswerLen > w.VeryLongChars {
		score += w.VeryLongBonus
	}
	if in.AnswerMedia {
		score += w.MediaBonus
	}
	if in.HowQuestion {
		score += w.HowQuestion
	}

	return Round(Clamp(score, 0, 1))
}

// AnswerWeights scores a generated answer to a live employee question.
type AnswerWeights struct {
	Base              float64
	DeflectionPenalty float64
	ManyItems         int
	ManyItemsBonus    float64
	SomeItemsBonus    float64
	LongChars         int
	LongBonus         float64
	VeryLongChars     int
	VeryLongBonus     float64
	PriorityBonus     float64
	Ceiling           float64
}

func DefaultAnswerWeights() AnswerWeights {
	return AnswerWeights{
		Base:              0.5,
		DeflectionPenalty: 0.2,
		ManyItems:         3,
		ManyItemsBonus:    0.2,
		SomeItemsBonus:    0.1,
		LongChars:         100,
		LongBonus:         0.1,
		VeryLongChars:     200,
		VeryLongBonus:     0.15,
		PriorityBonus:     0.1,
		Ceiling:           0.95,
	}
}

// AnswerInput describes a generated answer and the context it was built from.
type AnswerInput struct {
	AnswerLen       int
	Deflected       bool
	MatchedItems    int
	HighPriorityHit bool
}

// ScoreAnswer computes the confidence of a generated answer.
func (w AnswerWeights) ScoreAnswer(in AnswerInput) float64 {
	score := w.Base

	if in.Deflected {
		score -= w.DeflectionPenalty
	}

	switch {
	case in.MatchedItems >= w.ManyItems:
		score += w.ManyItemsBonus
	case in.MatchedItems >= 1:
		score += w.SomeItemsBonus
	}

	switch {
	case in.AnswerLen > w.VeryLongChars:
		score += w.VeryLongBonus
	case in.AnswerLen > w.LongChars:
		score += w.LongBonus
	}

	if in.HighPriorityHit {
		score += w.PriorityBonus
	}

	return Round(Clamp(score, 0, w.Ceiling))
}

// Clamp bounds score to [lo, hi].
func Clamp(score, lo, hi float64) float64 {
	if score < lo {
		return lo
	}
	if score > hi {
		return hi
	}
	return score
}

// Round truncates accumulated float noise to two decimals so threshold
// comparisons against literals like 0.7 behave.
func Round(score float64) float64 {
	return math.Round(score*100) / 100
}
