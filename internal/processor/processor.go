package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/askops/internal/commands"
	"github.com/MikeSquared-Agency/askops/internal/delivery"
	"github.com/MikeSquared-Agency/askops/internal/escalation"
	"github.com/MikeSquared-Agency/askops/internal/hermes"
	"github.com/MikeSquared-Agency/askops/internal/lock"
	"github.com/MikeSquared-Agency/askops/internal/query"
	"github.com/MikeSquared-Agency/askops/internal/session"
	"github.com/MikeSquared-Agency/askops/internal/store"
)

const (
	employeeErrorMessage = "מצטער, נתקלתי בבעיה טכנית. נסה/י שוב בעוד רגע."
	managerErrorMessage  = "⚠️ אירעה שגיאה בטיפול בהודעה. נסה/י שוב."
)

var ErrInvalidMessage = errors.New("company and phone are required")

// Store is the session surface the processor needs.
type Store interface {
	GetSession(ctx context.Context, companyID, phone string) (store.Session, error)
	GetSessionByID(ctx context.Context, id uuid.UUID) (store.Session, error)
	CreateSession(ctx context.Context, s store.Session) (store.Session, error)
	UpdateSession(ctx context.Context, s store.Session) error
	GetEscalation(ctx context.Context, id uuid.UUID) (store.Escalation, error)
}

type QueryHandler interface {
	Handle(ctx context.Context, sessionID uuid.UUID, q string) (query.Response, error)
}

type CommandHandler interface {
	Handle(ctx context.Context, manager store.Session, in commands.Input) (commands.Reply, error)
}

// Router is the escalation surface the processor drives directly.
type Router interface {
	AssignPending(ctx context.Context, companyID string) ([]store.Escalation, error)
	AssignEscalationToManager(ctx context.Context, id, managerID uuid.UUID) (bool, error)
	ResolveEscalation(ctx context.Context, id uuid.UUID, response string, mediaURLs []string) (escalation.ResolveResult, error)
}

// Processor runs one inbound message through onboarding or the role's
// handler and delivers the replies.
type Processor struct {
	store    Store
	locker   lock.Locker
	queries  QueryHandler
	commands CommandHandler
	router   Router
	sink     delivery.Sink
	now      func() time.Time
	logger   *slog.Logger
}

func New(s Store, locker lock.Locker, q QueryHandler, c CommandHandler, r Router, sink delivery.Sink, logger *slog.Logger) *Processor {
	return &Processor{
		store:    s,
		locker:   locker,
		queries:  q,
		commands: c,
		router:   r,
		sink:     sink,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock overrides the time source.
func (p *Processor) SetClock(now func() time.Time) { p.now = now }

// Outcome summarizes what happened to one inbound message.
type Outcome struct {
	SessionID  uuid.UUID       `json:"session_id"`
	Step       store.Step      `json:"step"`
	Role       store.Role      `json:"role,omitempty"`
	Messages   []string        `json:"messages"`
	Escalated  bool            `json:"escalated"`
	Confidence *float64        `json:"confidence,omitempty"`
	Delivery   delivery.Result `json:"delivery"`
}

// InboundHandler returns the NATS handler for askops.inbound.message. Work
// started by the handler is cancelled with ctx.
func (p *Processor) InboundHandler(ctx context.Context) func(subject string, data []byte) {
	return func(subject string, data []byte) {
		p.HandleInboundEvent(ctx, subject, data)
	}
}

// HandleInboundEvent decodes and processes one bus message. Messages that
// arrive after ctx is done are dropped.
func (p *Processor) HandleInboundEvent(ctx context.Context, subject string, data []byte) {
	var msg hermes.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Error("failed to parse inbound message", "subject", subject, "error", err)
		return
	}
	if err := ctx.Err(); err != nil {
		p.logger.Warn("dropping inbound message after shutdown",
			"company_id", msg.CompanyID,
			"phone", msg.Phone,
		)
		return
	}
	if _, err := p.HandleMessage(ctx, msg); err != nil {
		p.logger.Error("inbound message failed",
			"company_id", msg.CompanyID,
			"phone", msg.Phone,
			"error", err,
		)
	}
}

// HandleMessage processes msg end to end. Messages from the same phone and
// company are processed one at a time in arrival order.
func (p *Processor) HandleMessage(ctx context.Context, msg hermes.InboundMessage) (Outcome, error) {
	msg.CompanyID = strings.TrimSpace(msg.CompanyID)
	msg.Phone = strings.TrimSpace(msg.Phone)
	if msg.CompanyID == "" || msg.Phone == "" {
		return Outcome{}, ErrInvalidMessage
	}

	unlock, err := p.locker.Lock(ctx, "session:"+msg.CompanyID+"|"+msg.Phone)
	if err != nil {
		return Outcome{}, fmt.Errorf("lock session: %w", err)
	}
	defer unlock()

	sess, err := p.loadSession(ctx, msg)
	if err != nil {
		return Outcome{}, err
	}

	if session.NeedsOnboarding(sess) {
		return p.onboard(ctx, sess, msg)
	}

	switch sess.Role {
	case store.RoleEmployee:
		return p.handleEmployee(ctx, sess, msg)
	case store.RoleManager:
		return p.handleManager(ctx, sess, msg)
	case store.RoleNone:
		return Outcome{}, fmt.Errorf("session %s completed onboarding without a role", sess.ID)
	default:
		return Outcome{}, fmt.Errorf("session %s has unknown role %q", sess.ID, sess.Role)
	}
}

func (p *Processor) loadSession(ctx context.Context, msg hermes.InboundMessage) (store.Session, error) {
	sess, err := p.store.GetSession(ctx, msg.CompanyID, msg.Phone)
	if errors.Is(err, store.ErrNotFound) {
		sess, err = p.store.CreateSession(ctx, store.Session{
			CompanyID:   msg.CompanyID,
			Phone:       msg.Phone,
			DisplayName: msg.DisplayName,
			Step:        store.StepIntro,
		})
		if err == nil {
			p.logger.Info("session created", "session_id", sess.ID, "company_id", sess.CompanyID)
		}
	}
	if err != nil {
		return store.Session{}, fmt.Errorf("load session: %w", err)
	}

	sess.LastMessageAt = p.now()
	if msg.DisplayName != "" {
		sess.DisplayName = msg.DisplayName
	}
	if err := p.store.UpdateSession(ctx, sess); err != nil {
		return store.Session{}, fmt.Errorf("touch session: %w", err)
	}
	return sess, nil
}

func (p *Processor) onboard(ctx context.Context, sess store.Session, msg hermes.InboundMessage) (Outcome, error) {
	tr, err := session.Advance(sess, session.Input{Text: msg.Text, ButtonID: msg.ButtonID})
	if err != nil {
		return Outcome{}, err
	}

	sess.Step = tr.Next
	sess.Role = tr.Role
	if err := p.store.UpdateSession(ctx, sess); err != nil {
		return Outcome{}, fmt.Errorf("save onboarding step: %w", err)
	}

	out := Outcome{SessionID: sess.ID, Step: sess.Step, Role: sess.Role, Messages: tr.Messages}
	out.Delivery = p.send(ctx, delivery.Outbound{
		To:       sess.Phone,
		Messages: tr.Messages,
		Buttons:  tr.Buttons,
	})

	if tr.Completed() {
		p.logger.Info("onboarding complete", "session_id", sess.ID, "role", sess.Role)
		if sess.Role == store.RoleManager {
			p.AssignPending(ctx, sess.CompanyID)
		}
	}
	return out, nil
}

func (p *Processor) handleEmployee(ctx context.Context, sess store.Session, msg hermes.InboundMessage) (Outcome, error) {
	out := Outcome{SessionID: sess.ID, Step: sess.Step, Role: sess.Role}

	resp, err := p.queries.Handle(ctx, sess.ID, msg.Text)
	if err != nil {
		p.logger.Error("query failed", "session_id", sess.ID, "error", err)
		out.Messages = []string{employeeErrorMessage}
		out.Delivery = p.send(ctx, delivery.Outbound{To: sess.Phone, Messages: out.Messages})
		return out, nil
	}

	out.Messages = resp.Messages
	out.Escalated = resp.Escalated
	conf := resp.Confidence
	out.Confidence = &conf
	out.Delivery = p.send(ctx, delivery.Outbound{
		To:        sess.Phone,
		Messages:  resp.Messages,
		MediaURLs: resp.MediaURLs,
	})

	if resp.Escalated && resp.Assigned && resp.EscalationID != nil {
		if e, err := p.store.GetEscalation(ctx, *resp.EscalationID); err == nil {
			p.notifyManager(ctx, e)
		} else {
			p.logger.Warn("escalation reload failed", "escalation_id", *resp.EscalationID, "error", err)
		}
	}
	return out, nil
}

func (p *Processor) handleManager(ctx context.Context, sess store.Session, msg hermes.InboundMessage) (Outcome, error) {
	out := Outcome{SessionID: sess.ID, Step: sess.Step, Role: sess.Role}

	reply, err := p.commands.Handle(ctx, sess, commands.Input{Text: msg.Text, MediaURLs: msg.MediaURLs})
	if err != nil {
		p.logger.Error("manager message failed", "session_id", sess.ID, "error", err)
		out.Messages = []string{managerErrorMessage}
		out.Delivery = p.send(ctx, delivery.Outbound{To: sess.Phone, Messages: out.Messages})
		return out, nil
	}

	out.Messages = reply.Messages
	out.Delivery = p.send(ctx, delivery.Outbound{
		To:       sess.Phone,
		Messages: reply.Messages,
		Links:    reply.Links,
	})

	if reply.Resolved != nil && reply.Resolved.Resolved {
		p.notifyEmployee(ctx, reply.Resolved.Escalation, msg.MediaURLs)
	}
	return out, nil
}

// AssignPending hands the company's pending escalations to managers and
// notifies each assignee. It returns how many were assigned.
func (p *Processor) AssignPending(ctx context.Context, companyID string) int {
	assigned, err := p.router.AssignPending(ctx, companyID)
	if err != nil {
		p.logger.Error("assign pending failed", "company_id", companyID, "error", err)
	}
	for _, e := range assigned {
		p.notifyManager(ctx, e)
	}
	return len(assigned)
}

// AssignEscalation assigns a pending escalation on an operator's behalf and
// sends the question to the manager.
func (p *Processor) AssignEscalation(ctx context.Context, id, managerID uuid.UUID) (bool, error) {
	ok, err := p.router.AssignEscalationToManager(ctx, id, managerID)
	if err != nil || !ok {
		return ok, err
	}
	e, err := p.store.GetEscalation(ctx, id)
	if err != nil {
		return true, fmt.Errorf("reload escalation: %w", err)
	}
	p.notifyManager(ctx, e)
	return true, nil
}

// ResolveEscalation resolves an escalation outside the chat channel and
// forwards the answer to the employee.
func (p *Processor) ResolveEscalation(ctx context.Context, id uuid.UUID, response string, mediaURLs []string) (escalation.ResolveResult, error) {
	res, err := p.router.ResolveEscalation(ctx, id, response, mediaURLs)
	if err != nil {
		return escalation.ResolveResult{}, err
	}
	if res.Resolved {
		p.notifyEmployee(ctx, res.Escalation, mediaURLs)
	}
	return res, nil
}

func (p *Processor) send(ctx context.Context, out delivery.Outbound) delivery.Result {
	res := p.sink.Send(ctx, out)
	if !res.OK() {
		p.logger.Warn("delivery failed", "to", out.To, "reason", res.Reason)
	}
	return res
}
