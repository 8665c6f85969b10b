package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process store used when no database is configured and in tests.
type Memory struct {
	mu          sync.RWMutex
	now         func() time.Time
	items       map[uuid.UUID]*KnowledgeItem
	categories  map[uuid.UUID]*Category
	attachments map[uuid.UUID]*Attachment
	sessions    map[uuid.UUID]*Session
	escalations map[uuid.UUID]*Escalation
	queryLogs   map[uuid.UUID]*QueryLog
	seq         map[uuid.UUID]int // insertion order for stable listing
	next        int
}

func NewMemory() *Memory {
	return &Memory{
		now:         func() time.Time { return time.Now().UTC() },
		items:       make(map[uuid.UUID]*KnowledgeItem),
		categories:  make(map[uuid.UUID]*Category),
		attachments: make(map[uuid.UUID]*Attachment),
		sessions:    make(map[uuid.UUID]*Session),
		escalations: make(map[uuid.UUID]*Escalation),
		queryLogs:   make(map[uuid.UUID]*QueryLog),
		seq:         make(map[uuid.UUID]int),
	}
}

// SetClock overrides the time source used for CreatedAt fields.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Close() {}

func (m *Memory) track(id uuid.UUID) {
	m.next++
	m.seq[id] = m.next
}

// Knowledge

func (m *Memory) FindActiveItemsByKeyword(ctx context.Context, companyID string, terms []string, limit int) ([]KnowledgeItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}

	var out []KnowledgeItem
	for _, it := range m.items {
		if it.CompanyID != companyID || !it.IsActive {
			continue
		}
		title := strings.ToLower(it.Title)
		content := strings.ToLower(it.Content)
		for _, t := range lowered {
			if strings.Contains(title, t) || strings.Contains(content, t) {
				out = append(out, cloneItem(it))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return m.seq[out[i].ID] > m.seq[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) CreateItem(ctx context.Context, item KnowledgeItem) (KnowledgeItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item.ID = uuid.New()
	item.IsActive = true
	item.CreatedAt = m.now()
	if item.Tags == nil {
		item.Tags = []string{}
	}
	stored := cloneItem(&item)
	m.items[item.ID] = &stored
	m.track(item.ID)
	return item, nil
}

func (m *Memory) GetItem(ctx context.Context, id uuid.UUID) (KnowledgeItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return KnowledgeItem{}, ErrNotFound
	}
	return cloneItem(it), nil
}

func (m *Memory) SoftDeleteItem(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.IsActive = false
	return nil
}

func (m *Memory) ListItemsByCategory(ctx context.Context, companyID string, categoryID *uuid.UUID) ([]KnowledgeItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []KnowledgeItem
	for _, it := range m.items {
		if it.CompanyID != companyID || !it.IsActive {
			continue
		}
		if categoryID != nil && (it.CategoryID == nil || *it.CategoryID != *categoryID) {
			continue
		}
		out = append(out, cloneItem(it))
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] < m.seq[out[j].ID] })
	return out, nil
}

func (m *Memory) CountActiveItems(ctx context.Context, companyID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, it := range m.items {
		if it.CompanyID == companyID && it.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ActiveTitles(ctx context.Context, companyID string) ([]string, error) {
	items, err := m.ListItemsByCategory(ctx, companyID, nil)
	if err != nil {
		return nil, err
	}
	titles := make([]string, len(items))
	for i, it := range items {
		titles[i] = it.Title
	}
	return titles, nil
}

func (m *Memory) FindCategoryByName(ctx context.Context, companyID, name string) (Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.categories {
		if c.CompanyID == companyID && c.Name == name {
			return *c, nil
		}
	}
	return Category{}, ErrNotFound
}

func (m *Memory) CreateCategory(ctx context.Context, companyID, name string) (Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.CompanyID == companyID && c.Name == name {
			return *c, nil
		}
	}
	c := Category{ID: uuid.New(), CompanyID: companyID, Name: name, CreatedAt: m.now()}
	m.categories[c.ID] = &c
	m.track(c.ID)
	return c, nil
}

func (m *Memory) CreateAttachment(ctx context.Context, a Attachment) (Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.KnowledgeItemID]; !ok {
		return Attachment{}, ErrNotFound
	}
	for _, existing := range m.attachments {
		if existing.KnowledgeItemID == a.KnowledgeItemID && existing.Filename == a.Filename {
			return *existing, nil
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = m.now()
	m.attachments[a.ID] = &a
	m.track(a.ID)
	return a, nil
}

func (m *Memory) ListAttachments(ctx context.Context, itemID uuid.UUID) ([]Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attachment
	for _, a := range m.attachments {
		if a.KnowledgeItemID == itemID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] < m.seq[out[j].ID] })
	return out, nil
}

// Sessions

func (m *Memory) GetSession(ctx context.Context, companyID, phone string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.CompanyID == companyID && s.Phone == phone {
			return *s, nil
		}
	}
	return Session{}, ErrNotFound
}

func (m *Memory) GetSessionByID(ctx context.Context, id uuid.UUID) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return *s, nil
}

// CreateSession inserts s, or returns the existing session for the same
// (company, phone).
func (m *Memory) CreateSession(ctx context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.CompanyID == s.CompanyID && existing.Phone == s.Phone {
			return *existing, nil
		}
	}
	s.ID = uuid.New()
	s.IsActive = true
	if s.Step == "" {
		s.Step = StepIntro
	}
	s.CreatedAt = m.now()
	if s.LastMessageAt.IsZero() {
		s.LastMessageAt = s.CreatedAt
	}
	m.sessions[s.ID] = &s
	m.track(s.ID)
	return s, nil
}

func (m *Memory) UpdateSession(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	existing.DisplayName = s.DisplayName
	existing.Step = s.Step
	existing.Role = s.Role
	existing.IsActive = s.IsActive
	existing.LastMessageAt = s.LastMessageAt
	return nil
}

func (m *Memory) ListActiveManagers(ctx context.Context, companyID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if s.CompanyID == companyID && s.IsActive && s.Role == RoleManager && s.Step == StepComplete {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] < m.seq[out[j].ID] })
	return out, nil
}

func (m *Memory) CountSessionsByRole(ctx context.Context, companyID string) (map[Role]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[Role]int)
	for _, s := range m.sessions {
		if s.CompanyID == companyID && s.IsActive {
			counts[s.Role]++
		}
	}
	return counts, nil
}

// Escalations

func (m *Memory) CreateEscalation(ctx context.Context, e Escalation) (Escalation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !e.Status.Valid() {
		return Escalation{}, errInvalidStatus(e.Status)
	}
	e.ID = uuid.New()
	e.CreatedAt = m.now()
	stored := cloneEscalation(&e)
	m.escalations[e.ID] = &stored
	m.track(e.ID)
	return e, nil
}

func (m *Memory) GetEscalation(ctx context.Context, id uuid.UUID) (Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.escalations[id]
	if !ok {
		return Escalation{}, ErrNotFound
	}
	return cloneEscalation(e), nil
}

func (m *Memory) CountInProgressByManager(ctx context.Context, companyID string) (map[uuid.UUID]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[uuid.UUID]int)
	for _, e := range m.escalations {
		if e.CompanyID == companyID && e.Status == StatusInProgress && e.ManagerSessionID != nil {
			counts[*e.ManagerSessionID]++
		}
	}
	return counts, nil
}

func (m *Memory) AssignEscalation(ctx context.Context, id, managerID uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escalations[id]
	if !ok {
		return false, ErrNotFound
	}
	if e.Status != StatusPending {
		return false, nil
	}
	mgr := managerID
	assigned := at
	e.ManagerSessionID = &mgr
	e.AssignedAt = &assigned
	e.Status = StatusInProgress
	return true, nil
}

func (m *Memory) ResolveEscalation(ctx context.Context, id uuid.UUID, response string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.escalations[id]
	if !ok {
		return false, ErrNotFound
	}
	if e.Status != StatusInProgress {
		return false, nil
	}
	resolved := at
	e.ManagerResponse = response
	e.ResolvedAt = &resolved
	e.Status = StatusResolved
	return true, nil
}

func (m *Memory) FindInProgressForManager(ctx context.Context, managerID uuid.UUID) (Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Escalation
	for _, e := range m.escalations {
		if e.Status != StatusInProgress || e.ManagerSessionID == nil || *e.ManagerSessionID != managerID {
			continue
		}
		if found == nil || e.AssignedAt.After(*found.AssignedAt) ||
			(e.AssignedAt.Equal(*found.AssignedAt) && m.seq[e.ID] > m.seq[found.ID]) {
			found = e
		}
	}
	if found == nil {
		return Escalation{}, ErrNotFound
	}
	return cloneEscalation(found), nil
}

func (m *Memory) OldestPending(ctx context.Context, companyID string) (Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Escalation
	for _, e := range m.escalations {
		if e.CompanyID != companyID || e.Status != StatusPending {
			continue
		}
		if found == nil || m.seq[e.ID] < m.seq[found.ID] {
			found = e
		}
	}
	if found == nil {
		return Escalation{}, ErrNotFound
	}
	return cloneEscalation(found), nil
}

func (m *Memory) ListEscalations(ctx context.Context, companyID string, status EscalationStatus) ([]Escalation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Escalation
	for _, e := range m.escalations {
		if e.CompanyID != companyID || (status != "" && e.Status != status) {
			continue
		}
		out = append(out, cloneEscalation(e))
	}
	sort.Slice(out, func(i, j int) bool { return m.seq[out[i].ID] < m.seq[out[j].ID] })
	return out, nil
}

func (m *Memory) PendingCompanies(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, e := range m.escalations {
		if e.Status == StatusPending && !seen[e.CompanyID] {
			seen[e.CompanyID] = true
			out = append(out, e.CompanyID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Query logs

func (m *Memory) CreateQueryLog(ctx context.Context, l QueryLog) (QueryLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.New()
	l.CreatedAt = m.now()
	stored := l
	m.queryLogs[l.ID] = &stored
	m.track(l.ID)
	return l, nil
}

func (m *Memory) UpdateQueryLog(ctx context.Context, l QueryLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.queryLogs[l.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Answer = l.Answer
	existing.Confidence = l.Confidence
	existing.Escalated = l.Escalated
	existing.KnowledgeItemID = l.KnowledgeItemID
	existing.AnsweredAt = l.AnsweredAt
	return nil
}

func (m *Memory) Analytics(ctx context.Context, companyID string, since time.Time) (Analytics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a := Analytics{Since: since}
	var confSum float64
	for _, l := range m.queryLogs {
		if l.CompanyID != companyID || l.CreatedAt.Before(since) {
			continue
		}
		a.Queries++
		confSum += l.Confidence
		if l.Escalated {
			a.Escalated++
		}
	}
	if a.Queries > 0 {
		a.AvgConfidence = confSum / float64(a.Queries)
	}
	for _, e := range m.escalations {
		if e.CompanyID != companyID || e.CreatedAt.Before(since) {
			continue
		}
		a.EscalationsOpened++
		switch e.Status {
		case StatusPending:
			a.EscalationsPending++
		case StatusResolved:
			a.EscalationsClosed++
		case StatusInProgress:
		}
	}
	return a, nil
}

func cloneItem(it *KnowledgeItem) KnowledgeItem {
	c := *it
	c.Tags = append([]string{}, it.Tags...)
	if it.CategoryID != nil {
		id := *it.CategoryID
		c.CategoryID = &id
	}
	return c
}

func cloneEscalation(e *Escalation) Escalation {
	c := *e
	if e.ManagerSessionID != nil {
		id := *e.ManagerSessionID
		c.ManagerSessionID = &id
	}
	if e.AssignedAt != nil {
		t := *e.AssignedAt
		c.AssignedAt = &t
	}
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}
