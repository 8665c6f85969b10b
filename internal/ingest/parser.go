package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseOptions controls how header timestamps are interpreted.
type ParseOptions struct {
	Location *time.Location // defaults to UTC
}

var (
	// [1.3.2024, 09:15:02] Dana: text
	bracketHeaderRe = regexp.MustCompile(`^\[(\d{1,2})[./](\d{1,2})[./](\d{2,4}),?\s*(\d{1,2}):(\d{2})(?::(\d{2}))?(?:\s?([AaPp][Mm]))?\]\s*(.*)$`)
	// 1/3/24, 09:15 - Dana: text
	dashHeaderRe = regexp.MustCompile(`^(\d{1,2})[./](\d{1,2})[./](\d{2,4}),?\s+(\d{1,2}):(\d{2})(?::(\d{2}))?(?:\s?([AaPp][Mm]))?\s+-\s+(.*)$`)

	mediaMarkerRe = regexp.MustCompile(`<(?:attached|מצורף|מצורפת|adjunto|pièce jointe):\s*([^>]+)>`)

	invisibleMarks = strings.NewReplacer(
		"\u200e", "", "\u200f", "",
		"\u202a", "", "\u202b", "", "\u202c", "", "\u202d", "", "\u202e", "",
		"\u2066", "", "\u2067", "", "\u2068", "", "\u2069", "",
		"\ufeff", "",
	)
	spaceVariants = strings.NewReplacer("\u202f", " ", "\u00a0", " ")
)

// systemPatterns are administrative notices emitted by the export itself.
// Order is irrelevant; any match drops the message. Marked patterns only
// apply when the export prefixed the content with a left-to-right mark,
// since "Dana left" is also something a person can type.
var systemPatterns = []struct {
	Pattern *regexp.Regexp
	Label   string
	Marked  bool
}{
	{regexp.MustCompile(`(?i)messages and calls are end-to-end encrypted`), "encryption", false},
	{regexp.MustCompile(`ההודעות והשיחות מוצפנות מקצה לקצה`), "encryption", false},
	{regexp.MustCompile(`(?i)^(this message was deleted|you deleted this message)\.?$`), "deleted", false},
	{regexp.MustCompile(`^(הודעה זו נמחקה|מחקת את ההודעה הזו|ההודעה נמחקה)\.?$`), "deleted", false},
	{regexp.MustCompile(`(?i)^<media omitted>$`), "media-omitted", false},
	{regexp.MustCompile(`(?i)^(image|video|audio|sticker|document|gif|contact card) omitted$`), "media-omitted", false},
	{regexp.MustCompile(`^(<המדיה לא נכללה>|התמונה הושמטה|הסרטון הושמט|השמע הושמט|המדבקה הושמטה|המסמך הושמט)$`), "media-omitted", false},
	{regexp.MustCompile(`(?i)joined using this group's invite link$`), "joined", false},
	{regexp.MustCompile(`הצטרפ(ה|ו)? (לקבוצה )?באמצעות קישור ההזמנה`), "joined", false},
	{regexp.MustCompile(`(?i)^\S+(?: \S+){0,3} (left|joined)$`), "left", true},
	{regexp.MustCompile(`^\S+(?: \S+){0,3} (יצא|יצאה|עזב|עזבה)$`), "left", true},
	{regexp.MustCompile(`(?i)^\S+(?: \S+){0,3} (added|removed) \S+(?: \S+){0,3}$`), "membership", true},
	{regexp.MustCompile(`^\S+(?: \S+){0,3} (הוסיף|הוסיפה|הסיר|הסירה) את \S+`), "membership", true},
	{regexp.MustCompile(`(?i)changed (the subject|this group's icon|the group description|the group name)`), "group-change", false},
	{regexp.MustCompile(`(שינה|שינתה) את (נושא הקבוצה|סמל הקבוצה|תיאור הקבוצה|שם הקבוצה)`), "group-change", false},
	{regexp.MustCompile(`(?i)created (the )?group`), "created", true},
	{regexp.MustCompile(`(יצר|יצרה) את הקבוצה`), "created", false},
}

// IsSystemContent reports whether content is an export-generated notice.
// marked is true when the raw content began with a direction mark.
func IsSystemContent(content string, marked bool) bool {
	c := strings.TrimSpace(content)
	for _, p := range systemPatterns {
		if p.Marked && !marked {
			continue
		}
		if p.Pattern.MatchString(c) {
			return true
		}
	}
	return false
}

type pendingMessage struct {
	msg           ParsedMessage
	continuations int
}

// Parse converts an exported chat transcript into ordered messages.
func Parse(text string, opts ParseOptions) ParseResult {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	var res ParseResult
	seen := make(map[string]bool)
	var cur *pendingMessage

	flush := func() {
		if cur == nil {
			return
		}
		p := cur
		cur = nil
		if p.msg.IsSystemMessage {
			res.SkippedLines += 1 + p.continuations
			return
		}
		res.MergedLines += p.continuations
		p.msg.ID = fmt.Sprintf("msg-%d", len(res.Messages)+1)
		res.Messages = append(res.Messages, p.msg)
		if !seen[p.msg.Sender] {
			seen[p.msg.Sender] = true
			res.Participants = append(res.Participants, p.msg.Sender)
		}
		if p.msg.MediaFilename != "" {
			res.MediaFiles = append(res.MediaFiles, p.msg.MediaFilename)
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(invisibleMarks.Replace(line)) == "" {
			continue
		}

		ts, rest, ok := matchHeader(spaceVariants.Replace(strings.TrimLeft(line, "\u200e\u200f\ufeff")), loc)
		if !ok {
			if cur == nil {
				res.SkippedLines++
				continue
			}
			cur.msg.Content += "\n" + cleanText(line)
			cur.continuations++
			continue
		}

		flush()

		sender, content, marked, hasSender := splitSender(rest)
		msg := ParsedMessage{Timestamp: ts, Sender: sender, Content: content}
		if !hasSender || IsSystemContent(content, marked) {
			msg.IsSystemMessage = true
		}
		if m := mediaMarkerRe.FindStringSubmatch(content); m != nil {
			msg.MediaFilename = strings.TrimSpace(m[1])
		}
		cur = &pendingMessage{msg: msg}
	}
	flush()

	if n := len(res.Messages); n > 0 {
		res.DateRange = &DateRange{Start: res.Messages[0].Timestamp, End: res.Messages[n-1].Timestamp}
	}
	return res
}

func matchHeader(line string, loc *time.Location) (time.Time, string, bool) {
	m := bracketHeaderRe.FindStringSubmatch(line)
	if m == nil {
		m = dashHeaderRe.FindStringSubmatch(line)
	}
	if m == nil {
		return time.Time{}, "", false
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second := 0
	if m[6] != "" {
		second, _ = strconv.Atoi(m[6])
	}
	if len(m[3]) == 2 {
		year += 2000
	}
	switch strings.ToLower(m[7]) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}

	if day < 1 || day > 31 || month < 1 || month > 12 || hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, "", false
	}
	ts := time.Date(year, time.Month(month), day, hour, minute, second, 0, loc)
	if ts.Day() != day {
		// 31.2 and similar roll over; not a real header.
		return time.Time{}, "", false
	}
	return ts, m[8], true
}

// splitSender separates "Sender: content". Lines without a sender are
// notices written by the export.
func splitSender(rest string) (sender, content string, marked, ok bool) {
	sender, content, found := strings.Cut(rest, ":")
	if !found {
		return "", strings.TrimSpace(cleanText(rest)), true, false
	}
	sender = strings.TrimSpace(cleanText(sender))
	if sender == "" {
		return "", strings.TrimSpace(cleanText(rest)), true, false
	}
	marked = strings.HasPrefix(strings.TrimLeft(content, " "), "\u200e")
	return sender, strings.TrimSpace(cleanText(content)), marked, true
}

func cleanText(s string) string {
	return invisibleMarks.Replace(s)
}
