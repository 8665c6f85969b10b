// Package commands interprets free-text messages from managers: replies to
// escalations, claims of pending questions and dashboard commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/askops/internal/delivery"
	"github.com/MikeSquared-Agency/askops/internal/escalation"
	"github.com/MikeSquared-Agency/askops/internal/store"
)

const (
	analyticsWindow = 7 * 24 * time.Hour
	pendingListMax  = 5
)

// Store is the persistence surface the dispatcher reads.
type Store interface {
	FindInProgressForManager(ctx context.Context, managerID uuid.UUID) (store.Escalation, error)
	ListEscalations(ctx context.Context, companyID string, status store.EscalationStatus) ([]store.Escalation, error)
	CountActiveItems(ctx context.Context, companyID string) (int, error)
	CountSessionsByRole(ctx context.Context, companyID string) (map[store.Role]int, error)
	Analytics(ctx context.Context, companyID string, since time.Time) (store.Analytics, error)
}

// Router is the escalation surface the dispatcher drives.
type Router interface {
	ResolveEscalation(ctx context.Context, id uuid.UUID, response string, mediaURLs []string) (escalation.ResolveResult, error)
	ClaimOldestPending(ctx context.Context, companyID string, managerID uuid.UUID) (store.Escalation, error)
}

// Input is one manager message.
type Input struct {
	Text      string
	MediaURLs []string
}

// Reply is what the manager receives. Resolved is set when the message
// answered an escalation so the caller can forward it to the employee.
type Reply struct {
	Command  Command
	Messages []string
	Links    []delivery.Link
	Resolved *escalation.ResolveResult
	Claimed  *store.Escalation
}

type Dispatcher struct {
	store        Store
	router       Router
	dashboardURL string
	now          func() time.Time
	logger       *slog.Logger
}

func NewDispatcher(s Store, r Router, dashboardURL string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:        s,
		router:       r,
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		now:          time.Now,
		logger:       logger,
	}
}

// SetClock overrides the time source.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Handle interprets a message from manager. An open escalation always takes
// precedence over command matching.
func (d *Dispatcher) Handle(ctx context.Context, manager store.Session, in Input) (Reply, error) {
	open, err := d.store.FindInProgressForManager(ctx, manager.ID)
	switch {
	case err == nil:
		return d.resolve(ctx, open, in)
	case errors.Is(err, store.ErrNotFound):
	default:
		return Reply{}, fmt.Errorf("find open escalation: %w", err)
	}

	if IsAffirmative(in.Text) {
		return d.claim(ctx, manager)
	}

	cmd, ok := Match(in.Text)
	if !ok {
		cmd = CmdHelp
	}
	return d.run(ctx, manager, cmd)
}

func (d *Dispatcher) resolve(ctx context.Context, e store.Escalation, in Input) (Reply, error) {
	if strings.TrimSpace(in.Text) == "" && len(in.MediaURLs) == 0 {
		return Reply{Messages: []string{emptyAnswerMessage, QuestionPrompt(e.EmployeeQuery)}}, nil
	}
	res, err := d.router.ResolveEscalation(ctx, e.ID, in.Text, in.MediaURLs)
	if err != nil {
		return Reply{}, err
	}
	if !res.Resolved {
		return Reply{Messages: []string{"⚠️ לא הצלחתי לסגור את הפנייה, ייתכן שכבר טופלה."}}, nil
	}
	msgs := []string{"✅ התשובה נשלחה לעובד."}
	if res.KnowledgeItemID != nil {
		msgs = append(msgs, "📚 התשובה נוספה למאגר הידע.")
	}
	return Reply{Messages: msgs, Resolved: &res}, nil
}

func (d *Dispatcher) claim(ctx context.Context, manager store.Session) (Reply, error) {
	e, err := d.router.ClaimOldestPending(ctx, manager.CompanyID, manager.ID)
	if errors.Is(err, store.ErrNotFound) {
		return Reply{Messages: []string{"אין כרגע שאלות ממתינות 👌"}}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Messages: []string{QuestionPrompt(e.EmployeeQuery)},
		Claimed:  &e,
	}, nil
}

const emptyAnswerMessage = "✏️ נא לכתוב את התשובה לעובד בהודעה."

// QuestionPrompt is sent to a manager who was handed an escalation.
func QuestionPrompt(query string) string {
	return fmt.Sprintf("❓ שאלה מעובד:\n\n%s\n\nהתשובה הבאה שתשלח/י תועבר לעובד ותתווסף למאגר הידע.", query)
}

func (d *Dispatcher) run(ctx context.Context, manager store.Session, cmd Command) (Reply, error) {
	reply := Reply{Command: cmd}
	switch cmd {
	case CmdDashboard:
		reply.Messages = []string{"🖥️ לוח הבקרה שלך:"}
		reply.Links = []delivery.Link{{Title: "לוח בקרה", URL: d.dashboardURL + "/dashboard"}}

	case CmdAnalytics:
		a, err := d.store.Analytics(ctx, manager.CompanyID, d.now().Add(-analyticsWindow))
		if err != nil {
			return Reply{}, fmt.Errorf("analytics: %w", err)
		}
		reply.Messages = []string{FormatAnalytics(a)}
		reply.Links = []delivery.Link{{Title: "דוח מלא", URL: d.dashboardURL + "/analytics"}}

	case CmdKnowledge:
		n, err := d.store.CountActiveItems(ctx, manager.CompanyID)
		if err != nil {
			return Reply{}, fmt.Errorf("count items: %w", err)
		}
		reply.Messages = []string{fmt.Sprintf("📚 במאגר הידע יש %d פריטים פעילים.", n)}
		reply.Links = []delivery.Link{{Title: "ניהול מאגר הידע", URL: d.dashboardURL + "/knowledge"}}

	case CmdUsers:
		counts, err := d.store.CountSessionsByRole(ctx, manager.CompanyID)
		if err != nil {
			return Reply{}, fmt.Errorf("count users: %w", err)
		}
		reply.Messages = []string{fmt.Sprintf("👥 משתמשים: %d עובדים, %d מנהלים, %d בתהליך הרשמה.",
			counts[store.RoleEmployee], counts[store.RoleManager], counts[store.RoleNone])}
		reply.Links = []delivery.Link{{Title: "ניהול משתמשים", URL: d.dashboardURL + "/users"}}

	case CmdSettings:
		reply.Messages = []string{"⚙️ ההגדרות זמינות בלוח הבקרה:"}
		reply.Links = []delivery.Link{{Title: "הגדרות", URL: d.dashboardURL + "/settings"}}

	case CmdPending:
		pending, err := d.store.ListEscalations(ctx, manager.CompanyID, store.StatusPending)
		if err != nil {
			return Reply{}, fmt.Errorf("list pending: %w", err)
		}
		reply.Messages = []string{FormatPending(pending)}

	case CmdHelp:
		reply.Messages = []string{helpText}

	default:
		return Reply{}, fmt.Errorf("unknown command %q", cmd)
	}
	return reply, nil
}

const helpText = `אפשר לכתוב לי:
• "לוח בקרה" - קישור ללוח הבקרה
• "סטטיסטיקה" - סיכום 7 הימים האחרונים
• "מאגר ידע" - מצב מאגר הידע
• "משתמשים" - מי רשום
• "הגדרות" - הגדרות העסק
• "ממתינות" - שאלות שמחכות למענה
• "כן" - לקחת את השאלה הממתינה הוותיקה ביותר`

// FormatAnalytics renders a rolling summary.
func FormatAnalytics(a store.Analytics) string {
	var b strings.Builder
	b.WriteString("📊 סיכום 7 הימים האחרונים:\n")
	fmt.Fprintf(&b, "שאלות: %d\n", a.Queries)
	fmt.Fprintf(&b, "הועברו למנהל: %d\n", a.Escalated)
	fmt.Fprintf(&b, "ביטחון ממוצע: %.0f%%\n", a.AvgConfidence*100)
	fmt.Fprintf(&b, "פניות: %d נפתחו, %d ממתינות, %d נסגרו", a.EscalationsOpened, a.EscalationsPending, a.EscalationsClosed)
	return b.String()
}

// FormatPending lists up to five pending questions, oldest first.
func FormatPending(pending []store.Escalation) string {
	if len(pending) == 0 {
		return "אין כרגע שאלות ממתינות 👌"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ %d שאלות ממתינות:\n", len(pending))
	for i, e := range pending {
		if i == pendingListMax {
			fmt.Fprintf(&b, "ועוד %d...\n", len(pending)-pendingListMax)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, e.EmployeeQuery)
	}
	b.WriteString(`השב/י "כן" כדי לקחת את הוותיקה ביותר.`)
	return b.String()
}
