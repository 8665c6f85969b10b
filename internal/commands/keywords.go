package commands

import "strings"

// Command is one of the canonical manager commands.
type Command string

const (
	CmdDashboard Command = "dashboard"
	CmdAnalytics Command = "analytics"
	CmdKnowledge Command = "knowledge"
	CmdUsers     Command = "users"
	CmdSettings  Command = "settings"
	CmdPending   Command = "pending"
	CmdHelp      Command = "help"
)

// Keyword maps a localized phrase to a command.
type Keyword struct {
	Phrase  string
	Command Command
}

// Keywords is evaluated in order; the first exact match wins, then the first
// substring match. Phrases are lower case.
var Keywords = []Keyword{
	{"dashboard", CmdDashboard},
	{"דשבורד", CmdDashboard},
	{"לוח בקרה", CmdDashboard},
	{"פאנל", CmdDashboard},

	{"analytics", CmdAnalytics},
	{"stats", CmdAnalytics},
	{"statistics", CmdAnalytics},
	{"סטטיסטיקה", CmdAnalytics},
	{"סטטיסטיקות", CmdAnalytics},
	{"נתונים", CmdAnalytics},
	{"דוח", CmdAnalytics},

	{"knowledge", CmdKnowledge},
	{"מאגר ידע", CmdKnowledge},
	{"מאגר", CmdKnowledge},
	{"ידע", CmdKnowledge},

	{"users", CmdUsers},
	{"team", CmdUsers},
	{"משתמשים", CmdUsers},
	{"עובדים", CmdUsers},
	{"צוות", CmdUsers},

	{"settings", CmdSettings},
	{"הגדרות", CmdSettings},

	{"pending", CmdPending},
	{"ממתינות", CmdPending},
	{"ממתינים", CmdPending},
	{"שאלות פתוחות", CmdPending},

	{"help", CmdHelp},
	{"menu", CmdHelp},
	{"עזרה", CmdHelp},
	{"תפריט", CmdHelp},
	{"פקודות", CmdHelp},
}

// affirmatives claim the oldest pending escalation.
var affirmatives = map[string]bool{
	"yes": true, "y": true, "ok": true, "okay": true, "sure": true,
	"כן": true, "אני": true, "בטח": true, "אוקיי": true, "👍": true,
}

// Match resolves text to a command. Exact matches take precedence over
// substring matches.
func Match(text string) (Command, bool) {
	t := normalize(text)
	if t == "" {
		return "", false
	}
	for _, k := range Keywords {
		if t == k.Phrase {
			return k.Command, true
		}
	}
	for _, k := range Keywords {
		if strings.Contains(t, k.Phrase) {
			return k.Command, true
		}
	}
	return "", false
}

// IsAffirmative reports whether text is a bare "yes".
func IsAffirmative(text string) bool {
	return affirmatives[strings.TrimRight(normalize(text), "!.")]
}

func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
