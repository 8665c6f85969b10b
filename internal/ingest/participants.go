package ingest

import (
	"fmt"
	"regexp"
	"sort"
)

// nameKeywords are checked in order; the first hit classifies the sender
// regardless of behaviour.
var nameKeywords = []struct {
	Pattern *regexp.Regexp
	Role    Role
}{
	{regexp.MustCompile(`(?i)(admin|אדמין|מנהל מערכת|מנהלת מערכת)`), RoleAdmin},
	{regexp.MustCompile(`(?i)(manager|boss|owner|מנהל|מנהלת|אחמ"ש|אחראי משמרת|בעלים)`), RoleManager},
	{regexp.MustCompile(`(?i)(employee|staff|worker|עובד|עובדת)`), RoleEmployee},
}

const (
	managerInstructionRatio = 0.2
	managerMinMessages      = 50
	employeeQuestionRatio   = 0.3
	employeeMaxMessages     = 100
	prolificMinMessages     = 200
)

type participantStats struct {
	profile     ParticipantProfile
	totalLength int
}

// ClassifyParticipants builds one profile per sender, sorted by message
// count descending then by name.
func ClassifyParticipants(msgs []ParsedMessage) []ParticipantProfile {
	stats := make(map[string]*participantStats)
	var order []string

	for _, m := range msgs {
		s, ok := stats[m.Sender]
		if !ok {
			s = &participantStats{profile: ParticipantProfile{Name: m.Sender, FirstSeen: m.Timestamp}}
			stats[m.Sender] = s
			order = append(order, m.Sender)
		}
		p := &s.profile
		p.MessageCount++
		p.LastSeen = m.Timestamp
		s.totalLength += len(m.Content)
		if IsQuestion(m.Content) {
			p.QuestionCount++
		}
		if m.HasMedia() {
			p.MediaCount++
		}
		if IsInstruction(m.Content) {
			p.InstructionCount++
		}
	}

	profiles := make([]ParticipantProfile, 0, len(order))
	for _, name := range order {
		s := stats[name]
		p := s.profile
		p.AvgLength = float64(s.totalLength) / float64(p.MessageCount)
		p.Role, p.Indicators = inferRole(p)
		profiles = append(profiles, p)
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].MessageCount != profiles[j].MessageCount {
			return profiles[i].MessageCount > profiles[j].MessageCount
		}
		return profiles[i].Name < profiles[j].Name
	})
	return profiles
}

func inferRole(p ParticipantProfile) (Role, []string) {
	for _, kw := range nameKeywords {
		if m := kw.Pattern.FindString(p.Name); m != "" {
			return kw.Role, []string{fmt.Sprintf("name contains %q", m)}
		}
	}

	n := float64(p.MessageCount)
	instructionRatio := float64(p.InstructionCount) / n
	questionRatio := float64(p.QuestionCount) / n

	if instructionRatio > managerInstructionRatio && p.MessageCount > managerMinMessages {
		return RoleManager, []string{
			fmt.Sprintf("instruction ratio %.2f over %d messages", instructionRatio, p.MessageCount),
		}
	}
	if questionRatio > employeeQuestionRatio && p.MessageCount < employeeMaxMessages {
		return RoleEmployee, []string{
			fmt.Sprintf("question ratio %.2f over %d messages", questionRatio, p.MessageCount),
		}
	}
	if p.MessageCount > prolificMinMessages {
		return RoleManager, []string{fmt.Sprintf("high volume: %d messages", p.MessageCount)}
	}
	return RoleUnknown, nil
}

// RoleLookup maps sender name to inferred role.
func RoleLookup(profiles []ParticipantProfile) map[string]Role {
	out := make(map[string]Role, len(profiles))
	for _, p := range profiles {
		out[p.Name] = p.Role
	}
	return out
}
