package ingest

import (
	"regexp"
	"strings"
)

var (
	hebrewInterrogativeRe  = regexp.MustCompile(`^(מה|איך|למה|מדוע|מתי|איפה|היכן|מי|האם|כמה|איזה|איזו|אילו|אפשר|מישהו)(\s|$)`)
	englishInterrogativeRe = regexp.MustCompile(`(?i)^(what|how|why|when|where|who|which|whose|can (i|we|you|someone|anyone)|could|should (i|we)|would|is (there|it|this)|are (there|we|you)|do (i|we|you|they)|does|did (you|anyone|someone)|anyone|anybody)\b`)

	howQuestionRe = regexp.MustCompile(`(?i)(^how\b|\bhow (do|can|should|to)\b|\bwhat (do|should) (i|we|you) do\b|איך|מה עושים|מה לעשות|מה עושה|מה צריך לעשות)`)

	instructionRe = regexp.MustCompile(`(?i)(בבקשה|נא ל|נא |חובה|יש ל|צריך ל|אסור|חשוב|שימו לב|תזכורת|לידיעתכם|לידיעת|מהיום|please|must|required|reminder|attention|make sure|don't forget|from now on|👍|✅|✔️|👌)`)
)

// IsQuestion reports whether content reads as a question.
func IsQuestion(content string) bool {
	c := strings.TrimSpace(content)
	if strings.Contains(c, "?") || strings.Contains(c, "؟") {
		return true
	}
	return hebrewInterrogativeRe.MatchString(c) || englishInterrogativeRe.MatchString(c)
}

// IsHowQuestion reports whether a question asks for a procedure.
func IsHowQuestion(content string) bool {
	return howQuestionRe.MatchString(content)
}

// IsInstruction reports whether content reads as an instruction or announcement.
func IsInstruction(content string) bool {
	return instructionRe.MatchString(content)
}
