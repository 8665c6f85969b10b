package ingest

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func makeSenderMessages(sender string, n int, content func(i int) string) []ParsedMessage {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	msgs := make([]ParsedMessage, n)
	for i := range msgs {
		msgs[i] = ParsedMessage{
			ID:        fmt.Sprintf("%s-%d", sender, i),
			Sender:    sender,
			Content:   content(i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func profileByName(t *testing.T, profiles []ParticipantProfile, name string) ParticipantProfile {
	t.Helper()
	for _, p := range profiles {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("no profile for %q", name)
	return ParticipantProfile{}
}

func TestClassifyParticipants_NameKeywords(t *testing.T) {
	plain := func(int) string { return "hello" }
	var msgs []ParsedMessage
	msgs = append(msgs, makeSenderMessages("Rina Admin", 1, plain)...)
	msgs = append(msgs, makeSenderMessages("Moshe מנהל", 1, plain)...)
	msgs = append(msgs, makeSenderMessages("Dana עובדת", 1, plain)...)
	msgs = append(msgs, makeSenderMessages("מנהל מערכת", 1, plain)...)

	profiles := ClassifyParticipants(msgs)

	tests := []struct {
		name string
		want Role
	}{
		{"Rina Admin", RoleAdmin},
		{"Moshe מנהל", RoleManager},
		{"Dana עובדת", RoleEmployee},
		{"מנהל מערכת", RoleAdmin},
	}
	for _, tt := range tests {
		p := profileByName(t, profiles, tt.name)
		if p.Role != tt.want {
			t.Errorf("%s: role = %s, want %s", tt.name, p.Role, tt.want)
		}
		if len(p.Indicators) != 1 || !strings.Contains(p.Indicators[0], "name contains") {
			t.Errorf("%s: indicators = %v", tt.name, p.Indicators)
		}
	}
}

func TestClassifyParticipants_Behaviour(t *testing.T) {
	var msgs []ParsedMessage
	msgs = append(msgs, makeSenderMessages("Moshe", 60, func(i int) string {
		if i%3 == 0 {
			return "please close the register before leaving"
		}
		return "thanks everyone"
	})...)
	msgs = append(msgs, makeSenderMessages("Dana", 10, func(i int) string {
		if i%2 == 0 {
			return "when do we start tomorrow?"
		}
		return "got it thanks"
	})...)
	msgs = append(msgs, makeSenderMessages("Yossi", 201, func(int) string { return "on my way" })...)
	msgs = append(msgs, makeSenderMessages("Noa", 5, func(int) string { return "sounds good" })...)

	profiles := ClassifyParticipants(msgs)

	moshe := profileByName(t, profiles, "Moshe")
	if moshe.Role != RoleManager {
		t.Errorf("Moshe role = %s, want manager", moshe.Role)
	}
	if moshe.InstructionCount != 20 {
		t.Errorf("Moshe instruction count = %d, want 20", moshe.InstructionCount)
	}

	dana := profileByName(t, profiles, "Dana")
	if dana.Role != RoleEmployee {
		t.Errorf("Dana role = %s, want employee", dana.Role)
	}
	if dana.QuestionCount != 5 {
		t.Errorf("Dana question count = %d, want 5", dana.QuestionCount)
	}

	yossi := profileByName(t, profiles, "Yossi")
	if yossi.Role != RoleManager || len(yossi.Indicators) == 0 || !strings.Contains(yossi.Indicators[0], "high volume") {
		t.Errorf("Yossi = %s %v, want manager by volume", yossi.Role, yossi.Indicators)
	}

	noa := profileByName(t, profiles, "Noa")
	if noa.Role != RoleUnknown {
		t.Errorf("Noa role = %s, want unknown", noa.Role)
	}
	if len(noa.Indicators) != 0 {
		t.Errorf("Noa indicators = %v, want none", noa.Indicators)
	}
	if noa.AvgLength != float64(len("sounds good")) {
		t.Errorf("Noa avg length = %v", noa.AvgLength)
	}
}

func TestClassifyParticipants_SortedByCount(t *testing.T) {
	plain := func(int) string { return "ok" }
	var msgs []ParsedMessage
	msgs = append(msgs, makeSenderMessages("Bob", 2, plain)...)
	msgs = append(msgs, makeSenderMessages("Carol", 5, plain)...)
	msgs = append(msgs, makeSenderMessages("Alice", 2, plain)...)

	profiles := ClassifyParticipants(msgs)
	var names []string
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	if strings.Join(names, ",") != "Carol,Alice,Bob" {
		t.Errorf("order = %v, want Carol,Alice,Bob", names)
	}
}

func TestClassifyParticipants_FirstAndLastSeen(t *testing.T) {
	msgs := makeSenderMessages("Dana", 3, func(int) string { return "hi" })
	p := ClassifyParticipants(msgs)[0]
	if !p.FirstSeen.Equal(msgs[0].Timestamp) || !p.LastSeen.Equal(msgs[2].Timestamp) {
		t.Errorf("first/last = %v/%v", p.FirstSeen, p.LastSeen)
	}
}

func TestIsQuestion(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"מה שעות הפעילות?", true},
		{"איך סוגרים את הקופה", true},
		{"מתי המשמרת מתחילה", true},
		{"how do I clock in", true},
		{"Can I swap shifts", true},
		{"פתוח 8-20", false},
		{"Do not forget the keys", false},
		{"מהיום סוגרים ב-22", false},
		{"thanks", false},
	}
	for _, tt := range tests {
		if got := IsQuestion(tt.content); got != tt.want {
			t.Errorf("IsQuestion(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}
