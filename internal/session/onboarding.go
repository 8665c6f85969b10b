// Package session implements the onboarding state machine every new
// conversational identity passes through before reaching normal operation.
package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/askops/internal/delivery"
	"github.com/MikeSquared-Agency/askops/internal/store"
)

const (
	ButtonEmployee = "role_employee"
	ButtonManager  = "role_manager"
)

const (
	introMessage    = "שלום! 👋 אני העוזר הדיגיטלי של הצוות. אני עונה על שאלות לגבי העבודה לפי מאגר הידע של העסק, ומעביר למנהל כל מה שאני לא יודע."
	rolePrompt      = "כדי שאוכל לעזור, מה התפקיד שלך?"
	roleRetry       = "לא הבנתי 🙂 בחר/י אחת מהאפשרויות:"
	employeeWelcome = "מעולה! מעכשיו אפשר לשאול אותי כל שאלה על העבודה: שעות, משמרות, נהלים ועוד."
	managerWelcome  = "ברוך הבא! שאלות שאני לא יודע לענות עליהן יגיעו אליך. כתוב \"עזרה\" לרשימת הפקודות."
)

// ErrOnboarded is returned by Advance for sessions that finished onboarding.
var ErrOnboarded = errors.New("session already onboarded")

// Input is one inbound turn.
type Input struct {
	Text     string
	ButtonID string
}

// Transition is the outcome of one onboarding step.
type Transition struct {
	Next     store.Step
	Role     store.Role
	Messages []string
	Buttons  []delivery.Button
}

// Completed reports whether this transition finished onboarding.
func (t Transition) Completed() bool { return t.Next == store.StepComplete }

// RoleButtons are offered whenever a role has to be chosen.
func RoleButtons() []delivery.Button {
	return []delivery.Button{
		{ID: ButtonEmployee, Title: "👷 עובד/ת"},
		{ID: ButtonManager, Title: "👔 מנהל/ת"},
	}
}

// NeedsOnboarding reports whether s should be handled by Advance.
func NeedsOnboarding(s store.Session) bool {
	return s.Step != store.StepComplete
}

// Advance computes the next onboarding state. It does not persist anything.
func Advance(s store.Session, in Input) (Transition, error) {
	switch s.Step {
	case store.StepIntro:
		return Transition{
			Next:     store.StepRoleSelect,
			Role:     store.RoleNone,
			Messages: []string{introMessage, rolePrompt},
			Buttons:  RoleButtons(),
		}, nil

	case store.StepRoleSelect:
		role, ok := ResolveRole(in)
		if !ok {
			return Transition{
				Next:     store.StepRoleSelect,
				Role:     store.RoleNone,
				Messages: []string{roleRetry},
				Buttons:  RoleButtons(),
			}, nil
		}
		return Transition{
			Next:     store.StepComplete,
			Role:     role,
			Messages: []string{welcomeFor(role)},
		}, nil

	case store.StepComplete:
		return Transition{}, ErrOnboarded

	default:
		return Transition{}, fmt.Errorf("unknown onboarding step %q", s.Step)
	}
}

func welcomeFor(role store.Role) string {
	switch role {
	case store.RoleManager:
		return managerWelcome
	case store.RoleEmployee:
		return employeeWelcome
	case store.RoleNone:
		return rolePrompt
	default:
		return rolePrompt
	}
}

var (
	managerKeywords  = []string{"manager", "מנהל", "מנהלת", "👔", "אחמ\"ש"}
	employeeKeywords = []string{"employee", "worker", "עובד", "עובדת", "👷"}
)

// ResolveRole maps a button id, keyword or emoji to a role.
func ResolveRole(in Input) (store.Role, bool) {
	switch in.ButtonID {
	case ButtonEmployee:
		return store.RoleEmployee, true
	case ButtonManager:
		return store.RoleManager, true
	}

	text := strings.ToLower(strings.TrimSpace(in.Text))
	switch text {
	case "":
		return store.RoleNone, false
	case "1", ButtonEmployee:
		return store.RoleEmployee, true
	case "2", ButtonManager:
		return store.RoleManager, true
	}

	for _, kw := range managerKeywords {
		if strings.Contains(text, kw) {
			return store.RoleManager, true
		}
	}
	for _, kw := range employeeKeywords {
		if strings.Contains(text, kw) {
			return store.RoleEmployee, true
		}
	}
	return store.RoleNone, false
}
