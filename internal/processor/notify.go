package processor

import (
	"context"

	"github.com/MikeSquared-Agency/askops/internal/commands"
	"github.com/MikeSquared-Agency/askops/internal/delivery"
	"github.com/MikeSquared-Agency/askops/internal/store"
)

const answerPrefix = "💬 תשובה מהמנהל:\n\n"

// notifyManager sends an assigned escalation's question to its manager.
func (p *Processor) notifyManager(ctx context.Context, e store.Escalation) {
	if e.ManagerSessionID == nil {
		return
	}
	mgr, err := p.store.GetSessionByID(ctx, *e.ManagerSessionID)
	if err != nil {
		p.logger.Warn("manager lookup failed", "escalation_id", e.ID, "error", err)
		return
	}
	p.send(ctx, delivery.Outbound{
		To:       mgr.Phone,
		Messages: []string{commands.QuestionPrompt(e.EmployeeQuery)},
	})
}

// notifyEmployee forwards a manager's answer to the employee who asked.
func (p *Processor) notifyEmployee(ctx context.Context, e store.Escalation, mediaURLs []string) {
	emp, err := p.store.GetSessionByID(ctx, e.EmployeeSessionID)
	if err != nil {
		p.logger.Warn("employee lookup failed", "escalation_id", e.ID, "error", err)
		return
	}
	p.send(ctx, delivery.Outbound{
		To:        emp.Phone,
		Messages:  []string{answerPrefix + e.ManagerResponse},
		MediaURLs: mediaURLs,
	})
}
