package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/gateway"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

// ==========================
// Campaign store
// ==========================

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	tokens    map[string]string
	cancelReq map[string]bool
	stale     []string

	checkpoints int
	cancelSeen  chan struct{}
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns:  map[string]*model.Campaign{},
		tokens:     map[string]string{},
		cancelReq:  map[string]bool{},
		cancelSeen: make(chan struct{}),
	}
}

func (r *fakeCampaignRepo) add(c *model.Campaign) *model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.TargetType == "" {
		c.TargetType = model.TargetAll
	}
	r.campaigns[c.ID] = c
	return c
}

func (r *fakeCampaignRepo) get(id string) model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.campaigns[id]
}

func (r *fakeCampaignRepo) stealLock(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[id] = "someone-else"
}

func (r *fakeCampaignRepo) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	r.add(c)
	return nil
}

func (r *fakeCampaignRepo) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCampaignRepo) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := []*model.Campaign{}
	for _, c := range r.campaigns {
		if status == "" || string(c.Status) == status {
			cp := *c
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *fakeCampaignRepo) Submit(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != model.CampaignDraft {
		return false, nil
	}
	c.Status = model.CampaignPending
	return true, nil
}

func (r *fakeCampaignRepo) AcquireDispatch(ctx context.Context, id, token string, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return false, nil
	}
	stale := c.Status == model.CampaignDispatching && c.HeartbeatAt != nil && c.HeartbeatAt.Before(staleBefore)
	if c.Status != model.CampaignPending && !stale {
		return false, nil
	}
	now := time.Now()
	c.Status = model.CampaignDispatching
	c.DispatchStartedAt = &now
	c.HeartbeatAt = &now
	r.tokens[id] = token
	r.cancelReq[id] = false
	return true, nil
}

func (r *fakeCampaignRepo) owns(id, token string) bool {
	c, ok := r.campaigns[id]
	return ok && c.Status == model.CampaignDispatching && r.tokens[id] == token
}

func (r *fakeCampaignRepo) Checkpoint(ctx context.Context, id, token string, counters model.Counters) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.owns(id, token) {
		return false, appErrors.ErrLockLost
	}
	c := r.campaigns[id]
	c.SentCount, c.DeliveredCount, c.FailedCount = counters.Sent, counters.Delivered, counters.Failed
	now := time.Now()
	c.HeartbeatAt = &now
	r.checkpoints++
	if r.cancelReq[id] {
		select {
		case <-r.cancelSeen:
		default:
			close(r.cancelSeen)
		}
	}
	return r.cancelReq[id], nil
}

func (r *fakeCampaignRepo) Complete(ctx context.Context, id, token string, status model.CampaignStatus, counters model.Counters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.owns(id, token) {
		return appErrors.ErrLockLost
	}
	c := r.campaigns[id]
	now := time.Now()
	c.Status = status
	c.SentCount, c.DeliveredCount, c.FailedCount = counters.Sent, counters.Delivered, counters.Failed
	c.SentAt = &now
	delete(r.tokens, id)
	return nil
}

func (r *fakeCampaignRepo) Release(ctx context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.owns(id, token) {
		return appErrors.ErrLockLost
	}
	c := r.campaigns[id]
	c.Status = model.CampaignPending
	c.HeartbeatAt = nil
	delete(r.tokens, id)
	return nil
}

func (r *fakeCampaignRepo) RequestCancel(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.Status != model.CampaignDispatching {
		return false, nil
	}
	r.cancelReq[id] = true
	return true, nil
}

func (r *fakeCampaignRepo) ListStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	return r.stale, nil
}

func (r *fakeCampaignRepo) Overview(ctx context.Context) (*model.Overview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := &model.Overview{}
	for _, c := range r.campaigns {
		o.TotalCampaigns++
		if c.Status == model.CampaignSent {
			o.SentCampaigns++
			o.TotalSent += c.SentCount
			o.TotalDelivered += c.DeliveredCount
			o.TotalFailed += c.FailedCount
			o.TotalClicks += c.ClickCount
		}
	}
	return o, nil
}

// ==========================
// Recipient registry
// ==========================

type fakeRecipientRepo struct {
	mu          sync.Mutex
	endpoints   []model.RecipientEndpoint
	snapshotErr error
}

func (r *fakeRecipientRepo) Upsert(ctx context.Context, e *model.RecipientEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.endpoints {
		if r.endpoints[i].UserID == e.UserID && r.endpoints[i].Token == e.Token {
			r.endpoints[i].Platform = e.Platform
			r.endpoints[i].UpdatedAt = time.Now()
			*e = r.endpoints[i]
			return nil
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt, e.UpdatedAt = time.Now(), time.Now()
	r.endpoints = append(r.endpoints, *e)
	return nil
}

func (r *fakeRecipientRepo) Snapshot(ctx context.Context) ([]model.RecipientEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshotErr != nil {
		return nil, r.snapshotErr
	}
	out := make([]model.RecipientEndpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out, nil
}

func (r *fakeRecipientRepo) CountSubscribers(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := map[string]bool{}
	for _, e := range r.endpoints {
		users[e.UserID] = true
	}
	return len(users), nil
}

func (r *fakeRecipientRepo) Delete(ctx context.Context, userID, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.endpoints {
		if e.UserID == userID && e.Token == token {
			r.endpoints = append(r.endpoints[:i], r.endpoints[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func endpoints(users ...string) []model.RecipientEndpoint {
	out := make([]model.RecipientEndpoint, len(users))
	for i, u := range users {
		out[i] = model.RecipientEndpoint{ID: "e-" + u, UserID: u, Token: "tok-" + u, Platform: model.PlatformWeb}
	}
	return out
}

// ==========================
// Delivery log
// ==========================

type fakeLogRepo struct {
	mu       sync.Mutex
	entries  map[string]map[string]*model.DeliveryLogEntry
	failFor  map[string]bool
	campaign *fakeCampaignRepo
}

func newFakeLogRepo(campaigns *fakeCampaignRepo) *fakeLogRepo {
	return &fakeLogRepo{
		entries:  map[string]map[string]*model.DeliveryLogEntry{},
		failFor:  map[string]bool{},
		campaign: campaigns,
	}
}

func (r *fakeLogRepo) seed(campaignID, userID string, status model.DeliveryStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[campaignID] == nil {
		r.entries[campaignID] = map[string]*model.DeliveryLogEntry{}
	}
	r.entries[campaignID][userID] = &model.DeliveryLogEntry{ID: uuid.NewString(), CampaignID: campaignID, UserID: userID, Status: status}
}

func (r *fakeLogRepo) entry(campaignID, userID string) *model.DeliveryLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[campaignID][userID]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

func (r *fakeLogRepo) count(campaignID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries[campaignID])
}

func (r *fakeLogRepo) Record(ctx context.Context, e *model.DeliveryLogEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[e.UserID] {
		return false, errors.New("connection reset by peer")
	}
	if r.entries[e.CampaignID] == nil {
		r.entries[e.CampaignID] = map[string]*model.DeliveryLogEntry{}
	}
	if _, exists := r.entries[e.CampaignID][e.UserID]; exists {
		return false, nil
	}
	cp := *e
	cp.ID = uuid.NewString()
	r.entries[e.CampaignID][e.UserID] = &cp
	return true, nil
}

func (r *fakeLogRepo) Attempted(ctx context.Context, campaignID string) (map[string]model.DeliveryStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]model.DeliveryStatus{}
	for u, e := range r.entries[campaignID] {
		out[u] = e.Status
	}
	return out, nil
}

func (r *fakeLogRepo) ListByCampaign(ctx context.Context, campaignID string, offset, limit int) ([]*model.DeliveryLogEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := []*model.DeliveryLogEntry{}
	for _, e := range r.entries[campaignID] {
		cp := *e
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UserID < all[j].UserID })
	total := len(all)
	if offset >= total {
		return []*model.DeliveryLogEntry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *fakeLogRepo) StatsByStatus(ctx context.Context, campaignID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{"sent": 0, "delivered": 0, "failed": 0, "clicked": 0}
	for _, e := range r.entries[campaignID] {
		stats[string(e.Status)]++
	}
	return stats, nil
}

func (r *fakeLogRepo) MarkClicked(ctx context.Context, campaignID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[campaignID][userID]
	if !ok || e.ClickedAt != nil || (e.Status != model.DeliveryDelivered && e.Status != model.DeliverySent) {
		return false, nil
	}
	now := time.Now()
	e.Status = model.DeliveryClicked
	e.ClickedAt = &now

	r.campaign.mu.Lock()
	r.campaign.campaigns[campaignID].ClickCount++
	r.campaign.mu.Unlock()
	return true, nil
}

// ==========================
// Audit sink
// ==========================

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*model.AuditLog
}

func (r *fakeAuditRepo) Insert(ctx context.Context, a *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, a)
	return nil
}

// ==========================
// Gateway
// ==========================

type fakeGateway struct {
	mu       sync.Mutex
	outcomes map[string][]gateway.Outcome
	calls    map[string]int
	messages []gateway.Message

	// When block is set, Send signals started and waits for release.
	block   bool
	started chan string
	release chan struct{}
	onSend  func(userID string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		outcomes: map[string][]gateway.Outcome{},
		calls:    map[string]int{},
		started:  make(chan string, 100),
		release:  make(chan struct{}),
	}
}

func (g *fakeGateway) respond(userID string, outcomes ...gateway.Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outcomes[userID] = outcomes
}

func (g *fakeGateway) callCount(userID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[userID]
}

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) Send(ctx context.Context, ep model.RecipientEndpoint, msg gateway.Message) gateway.Outcome {
	g.mu.Lock()
	attempt := g.calls[ep.UserID]
	g.calls[ep.UserID]++
	g.messages = append(g.messages, msg)
	outcomes := g.outcomes[ep.UserID]
	onSend := g.onSend
	block := g.block
	g.mu.Unlock()

	if onSend != nil {
		onSend(ep.UserID)
	}
	if block {
		g.started <- ep.UserID
		<-g.release
	}

	if len(outcomes) == 0 {
		return gateway.Delivered()
	}
	if attempt >= len(outcomes) {
		return outcomes[len(outcomes)-1]
	}
	return outcomes[attempt]
}
