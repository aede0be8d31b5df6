// Package memory is an in-process implementation of the canonical store.
// Transactions are serialized and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/normalizers"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
)

type txKey struct{}

type tables struct {
	competitors map[string]models.Competitor
	altNames    map[string][]models.AlternateName
	events      map[string]models.Event
	contests    map[string]models.Contest
	views       map[string]models.HistoryView
	pending     map[string]models.PendingCandidate
	provenance  map[string]models.RawRecordLink
}

func newTables() tables {
	return tables{
		competitors: map[string]models.Competitor{},
		altNames:    map[string][]models.AlternateName{},
		events:      map[string]models.Event{},
		contests:    map[string]models.Contest{},
		views:       map[string]models.HistoryView{},
		pending:     map[string]models.PendingCandidate{},
		provenance:  map[string]models.RawRecordLink{},
	}
}

// clone copies the maps. Stored values never share mutable slices with
// callers, so copying the map headers is enough for a rollback snapshot.
func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.competitors {
		c.competitors[k] = v
	}
	for k, v := range t.altNames {
		c.altNames[k] = v
	}
	for k, v := range t.events {
		c.events[k] = v
	}
	for k, v := range t.contests {
		c.contests[k] = v
	}
	for k, v := range t.views {
		c.views[k] = v
	}
	for k, v := range t.pending {
		c.pending[k] = v
	}
	for k, v := range t.provenance {
		c.provenance[k] = v
	}
	return c
}

// Memory holds all tables of the in-memory store
type Memory struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data tables
	now  func() time.Time
	last time.Time
}

func New() *Memory {
	return &Memory{
		data: newTables(),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the memory tables through the store interfaces
func (m *Memory) Store() *store.Store {
	return &store.Store{
		Competitors:  &competitorRepo{m},
		Events:       &eventRepo{m},
		Contests:     &contestRepo{m},
		HistoryViews: &viewRepo{m},
		Pending:      &pendingRepo{m},
		Provenance:   &provenanceRepo{m},
		Tx:           m,
	}
}

// WithinTx serializes transactions. Nested calls join the outer one.
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.data.clone()
	m.mu.RUnlock()

	restore := func() {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		restore()
	}
	return err
}

// Counts reports table sizes, for tests and reports
type Counts struct {
	Competitors    int
	AlternateNames int
	Events         int
	Contests       int
	ActiveContests int
	HistoryViews   int
	Pending        int
	Provenance     int
}

func (m *Memory) Counts() Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := Counts{
		Competitors:  len(m.data.competitors),
		Events:       len(m.data.events),
		Contests:     len(m.data.contests),
		HistoryViews: len(m.data.views),
		Pending:      len(m.data.pending),
		Provenance:   len(m.data.provenance),
	}
	for _, alts := range m.data.altNames {
		c.AlternateNames += len(alts)
	}
	for _, contest := range m.data.contests {
		if contest.IsActive {
			c.ActiveContests++
		}
	}
	return c
}

// Contests returns every stored contest ordered by creation
func (m *Memory) Contests() []*models.Contest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Contest, 0, len(m.data.contests))
	for _, c := range m.data.contests {
		c := c
		out = append(out, &c)
	}
	sortContests(out)
	return out
}

// HistoryViews returns every stored view
func (m *Memory) HistoryViews() []*models.HistoryView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.HistoryView, 0, len(m.data.views))
	for _, v := range m.data.views {
		out = append(out, cloneView(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// tick returns a strictly increasing timestamp so creation order is stable
// even when writes land within the clock's resolution. Callers hold mu.
func (m *Memory) tick() time.Time {
	now := m.now()
	if !now.After(m.last) {
		now = m.last.Add(time.Microsecond)
	}
	m.last = now
	return now
}

func (m *Memory) stamp(id *string, created, updated *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	now := m.tick()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

type competitorRepo struct{ m *Memory }

func (r *competitorRepo) Create(ctx context.Context, c *models.Competitor) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.stamp(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if c.NameKey == "" {
		c.NameKey = normalizers.NameKey(c.DisplayName)
	}
	stored := *c
	stored.AlternateNames = nil
	r.m.data.competitors[c.ID] = stored
	for i := range c.AlternateNames {
		alt := c.AlternateNames[i]
		alt.CompetitorID = c.ID
		r.addAlt(&alt)
		c.AlternateNames[i] = alt
	}
	return nil
}

func (r *competitorRepo) addAlt(alt *models.AlternateName) {
	r.m.stamp(&alt.ID, &alt.CreatedAt, &alt.UpdatedAt)
	if alt.NameKey == "" {
		alt.NameKey = normalizers.NameKey(alt.Name)
	}
	existing := r.m.data.altNames[alt.CompetitorID]
	next := make([]models.AlternateName, 0, len(existing)+1)
	next = append(next, existing...)
	r.m.data.altNames[alt.CompetitorID] = append(next, *alt)
}

func (r *competitorRepo) load(c models.Competitor) *models.Competitor {
	c.AlternateNames = append([]models.AlternateName(nil), r.m.data.altNames[c.ID]...)
	return &c
}

func (r *competitorRepo) Get(ctx context.Context, id string) (*models.Competitor, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	c, ok := r.m.data.competitors[id]
	if !ok {
		return nil, store.NotFound("competitor", id)
	}
	return r.load(c), nil
}

func (r *competitorRepo) Update(ctx context.Context, c *models.Competitor) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.data.competitors[c.ID]; !ok {
		return store.NotFound("competitor", c.ID)
	}
	c.UpdatedAt = r.m.tick()
	stored := *c
	stored.AlternateNames = nil
	r.m.data.competitors[c.ID] = stored
	return nil
}

func (r *competitorRepo) AdjustRecord(ctx context.Context, id string, result models.Result, delta int) error {
	if !result.Valid() {
		return fmt.Errorf("cannot tally result %q", result)
	}

	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	c, ok := r.m.data.competitors[id]
	if !ok {
		return store.NotFound("competitor", id)
	}
	c.FightRecord.Tally(result, delta)
	c.UpdatedAt = r.m.tick()
	r.m.data.competitors[id] = c
	return nil
}

func (r *competitorRepo) FindByNameKey(ctx context.Context, key string) ([]*models.Competitor, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*models.Competitor
	for _, c := range r.m.data.competitors {
		if !c.IsActive {
			continue
		}
		loaded := r.load(c)
		if loaded.HasName(key) {
			out = append(out, loaded)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Search ranks by trigram overlap, the same prefilter postgres applies with pg_trgm
func (r *competitorRepo) Search(ctx context.Context, name string, limit int) ([]*models.Competitor, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	query := trigrams(normalizers.NormalizeName(name))
	type ranked struct {
		c     *models.Competitor
		score float64
	}
	var hits []ranked
	for _, c := range r.m.data.competitors {
		if !c.IsActive {
			continue
		}
		loaded := r.load(c)
		best := trigramSimilarity(query, trigrams(normalizers.NormalizeName(loaded.DisplayName)))
		for _, alt := range loaded.AlternateNames {
			if s := trigramSimilarity(query, trigrams(normalizers.NormalizeName(alt.Name))); s > best {
				best = s
			}
		}
		if best > 0 {
			hits = append(hits, ranked{loaded, best})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].c.ID < hits[j].c.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]*models.Competitor, len(hits))
	for i, h := range hits {
		out[i] = h.c
	}
	return out, nil
}

func (r *competitorRepo) AddAlternateName(ctx context.Context, alt *models.AlternateName) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.data.competitors[alt.CompetitorID]; !ok {
		return store.NotFound("competitor", alt.CompetitorID)
	}
	r.addAlt(alt)
	return nil
}

func trigrams(s string) map[string]bool {
	set := map[string]bool{}
	for _, word := range strings.Fields(s) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = true
		}
	}
	return set
}

func trigramSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for g := range a {
		if b[g] {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

type eventRepo struct{ m *Memory }

func (r *eventRepo) Create(ctx context.Context, e *models.Event) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.stamp(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if e.NameKey == "" {
		e.NameKey = normalizers.TextKey(e.Name)
	}
	r.m.data.events[e.ID] = *e
	return nil
}

func (r *eventRepo) Get(ctx context.Context, id string) (*models.Event, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	e, ok := r.m.data.events[id]
	if !ok {
		return nil, store.NotFound("event", id)
	}
	return &e, nil
}

func (r *eventRepo) FindByNameKey(ctx context.Context, key string) ([]*models.Event, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*models.Event
	for _, e := range r.m.data.events {
		if e.NameKey == key {
			e := e
			out = append(out, &e)
		}
	}
	sortEvents(out)
	return out, nil
}

func (r *eventRepo) ListByDate(ctx context.Context, day time.Time) ([]*models.Event, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	day = normalizers.Day(day)
	var out []*models.Event
	for _, e := range r.m.data.events {
		if e.Date != nil && normalizers.Day(*e.Date).Equal(day) {
			e := e
			out = append(out, &e)
		}
	}
	sortEvents(out)
	return out, nil
}

func sortEvents(events []*models.Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})
}

type contestRepo struct{ m *Memory }

func (r *contestRepo) Create(ctx context.Context, c *models.Contest) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.stamp(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if c.Version == 0 {
		c.Version = 1
	}
	r.m.data.contests[c.ID] = *c
	return nil
}

func (r *contestRepo) Get(ctx context.Context, id string) (*models.Contest, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	c, ok := r.m.data.contests[id]
	if !ok {
		return nil, store.NotFound("contest", id)
	}
	return &c, nil
}

func (r *contestRepo) Update(ctx context.Context, c *models.Contest) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	stored, ok := r.m.data.contests[c.ID]
	if !ok {
		return store.NotFound("contest", c.ID)
	}
	if stored.Version != c.Version {
		return store.ErrVersionConflict
	}
	c.Version++
	c.UpdatedAt = r.m.tick()
	r.m.data.contests[c.ID] = *c
	return nil
}

func (r *contestRepo) ListByEvent(ctx context.Context, eventID string) ([]*models.Contest, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*models.Contest
	for _, c := range r.m.data.contests {
		if c.EventID == eventID && c.IsActive {
			c := c
			out = append(out, &c)
		}
	}
	sortContests(out)
	return out, nil
}

func (r *contestRepo) FindDuplicateGroups(ctx context.Context) ([][]*models.Contest, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	groups := map[string][]*models.Contest{}
	for _, c := range r.m.data.contests {
		if !c.IsActive {
			continue
		}
		a, b := c.CompetitorAID, c.CompetitorBID
		if b < a {
			a, b = b, a
		}
		key := c.EventID + "|" + a + "|" + b
		c := c
		groups[key] = append(groups[key], &c)
	}

	var out [][]*models.Contest
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sortContests(group)
		out = append(out, group)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0].ID < out[j][0].ID })
	return out, nil
}

func sortContests(contests []*models.Contest) {
	sort.Slice(contests, func(i, j int) bool {
		if !contests[i].CreatedAt.Equal(contests[j].CreatedAt) {
			return contests[i].CreatedAt.Before(contests[j].CreatedAt)
		}
		return contests[i].ID < contests[j].ID
	})
}

type viewRepo struct{ m *Memory }

func cloneView(v models.HistoryView) *models.HistoryView {
	v.Conflicts = append([]models.FieldConflict(nil), v.Conflicts...)
	return &v
}

func (r *viewRepo) Create(ctx context.Context, v *models.HistoryView) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.stamp(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	r.m.data.views[v.ID] = *cloneView(*v)
	return nil
}

func (r *viewRepo) Get(ctx context.Context, id string) (*models.HistoryView, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	v, ok := r.m.data.views[id]
	if !ok {
		return nil, store.NotFound("history view", id)
	}
	return cloneView(v), nil
}

func (r *viewRepo) Update(ctx context.Context, v *models.HistoryView) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.data.views[v.ID]; !ok {
		return store.NotFound("history view", v.ID)
	}
	v.UpdatedAt = r.m.tick()
	r.m.data.views[v.ID] = *cloneView(*v)
	return nil
}

func (r *viewRepo) GetByContestAndCompetitor(ctx context.Context, contestID, competitorID string) (*models.HistoryView, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var found *models.HistoryView
	for _, v := range r.m.data.views {
		if v.ContestID != nil && *v.ContestID == contestID && v.CompetitorID == competitorID {
			if found == nil || v.CreatedAt.Before(found.CreatedAt) {
				found = cloneView(v)
			}
		}
	}
	if found == nil {
		return nil, store.NotFound("history view", contestID+"/"+competitorID)
	}
	return found, nil
}

func (r *viewRepo) ListByContest(ctx context.Context, contestID string) ([]*models.HistoryView, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*models.HistoryView
	for _, v := range r.m.data.views {
		if v.ContestID != nil && *v.ContestID == contestID {
			out = append(out, cloneView(v))
		}
	}
	sortViews(out)
	return out, nil
}

func (r *viewRepo) ListLegacyByCompetitor(ctx context.Context, competitorID string) ([]*models.HistoryView, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*models.HistoryView
	for _, v := range r.m.data.views {
		if v.CompetitorID == competitorID && !v.IsLinked() && !v.IsSuperseded() {
			out = append(out, cloneView(v))
		}
	}
	sortViews(out)
	return out, nil
}

func sortViews(views []*models.HistoryView) {
	sort.Slice(views, func(i, j int) bool {
		if !views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].CreatedAt.Before(views[j].CreatedAt)
		}
		return views[i].ID < views[j].ID
	})
}

type pendingRepo struct{ m *Memory }

func clonePending(p models.PendingCandidate) *models.PendingCandidate {
	p.Candidates = append([]models.Candidate(nil), p.Candidates...)
	return &p
}

func (r *pendingRepo) Create(ctx context.Context, p *models.PendingCandidate) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	r.m.stamp(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	r.m.data.pending[p.ID] = *clonePending(*p)
	return nil
}

func (r *pendingRepo) Get(ctx context.Context, id string) (*models.PendingCandidate, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	p, ok := r.m.data.pending[id]
	if !ok {
		return nil, store.NotFound("pending candidate", id)
	}
	return clonePending(p), nil
}

func (r *pendingRepo) Update(ctx context.Context, p *models.PendingCandidate) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if _, ok := r.m.data.pending[p.ID]; !ok {
		return store.NotFound("pending candidate", p.ID)
	}
	p.UpdatedAt = r.m.tick()
	r.m.data.pending[p.ID] = *clonePending(*p)
	return nil
}

func (r *pendingRepo) ListPending(ctx context.Context, limit int) ([]*models.PendingCandidate, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []*models.PendingCandidate
	for _, p := range r.m.data.pending {
		if p.Status == models.PendingStatusPending {
			out = append(out, clonePending(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type provenanceRepo struct{ m *Memory }

func (r *provenanceRepo) Get(ctx context.Context, fingerprint string) (*models.RawRecordLink, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	link, ok := r.m.data.provenance[fingerprint]
	if !ok {
		return nil, store.NotFound("raw record", fingerprint)
	}
	return &link, nil
}

func (r *provenanceRepo) Upsert(ctx context.Context, link *models.RawRecordLink) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	now := r.m.tick()
	if existing, ok := r.m.data.provenance[link.Fingerprint]; ok {
		link.CreatedAt = existing.CreatedAt
	} else if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now
	r.m.data.provenance[link.Fingerprint] = *link
	return nil
}
