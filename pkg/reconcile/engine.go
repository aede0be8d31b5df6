// Package reconcile turns raw fight records into canonical competitors,
// events, contests and history views
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v5"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/confidence"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/events"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/locks"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/matching"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/metrics"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/normalizers"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/perspective"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/schema"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/store"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

// Outcome is what happened to one raw record
type Outcome struct {
	RecordID       string             `json:"record_id"`
	Fingerprint    string             `json:"fingerprint"`
	State          models.RecordState `json:"state"`
	Revalidated    bool               `json:"revalidated,omitempty"`
	Band           models.Band        `json:"band,omitempty"`
	Strategy       string             `json:"strategy,omitempty"`
	CompetitorID   string             `json:"competitor_id,omitempty"`
	OpponentID     string             `json:"opponent_id,omitempty"`
	ContestID      string             `json:"contest_id,omitempty"`
	HistoryViewID  string             `json:"history_view_id,omitempty"`
	PendingID      string             `json:"pending_id,omitempty"`
	ContestCreated bool               `json:"contest_created,omitempty"`
	Conflicts      int                `json:"conflicts,omitempty"`
}

// Engine reconciles raw records against the canonical store
type Engine struct {
	logger      ectologger.Logger
	store       *store.Store
	config      Config
	finder      *matching.Finder
	strategies  []matching.Strategy
	classifier  *confidence.Classifier
	perspective *perspective.Manager
	validator   *schema.Validator
	locker      locks.Locker
	sink        events.Sink
	parseOpts   []normalizers.ParseOption
}

type Option func(*Engine)

// WithLocker replaces the in-process locker, e.g. with locks.Redis when
// several processes reconcile against one store
func WithLocker(locker locks.Locker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithSink sets where committed domain events go
func WithSink(sink events.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithStrategies overrides the default candidate strategies
func WithStrategies(strategies ...matching.Strategy) Option {
	return func(e *Engine) { e.strategies = strategies }
}

func NewEngine(logger ectologger.Logger, st *store.Store, config Config, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reconcile config: %w", err)
	}

	e := &Engine{
		logger:      logger,
		store:       st,
		config:      config,
		classifier:  confidence.NewClassifier(config.Thresholds),
		perspective: perspective.NewManager(logger, st),
		validator:   schema.NewValidator(),
		locker:      locks.NewLocal(config.LockWait),
		sink:        events.Nop{},
		parseOpts:   []normalizers.ParseOption{normalizers.WithSingleNames(config.SingleNames...)},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.finder = matching.NewFinder(logger, st, config.Matching, e.strategies...)
	return e, nil
}

// Perspective exposes the engine's perspective manager for reads
func (e *Engine) Perspective() *perspective.Manager {
	return e.perspective
}

// ProcessRecord reconciles one raw record in its own transaction
func (e *Engine) ProcessRecord(ctx context.Context, raw models.RawRecord) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Engine.ProcessRecord")
	defer span.End()

	p, err := e.parse(ctx, raw)
	if err != nil {
		return nil, err
	}
	return e.processParsed(ctx, p)
}

func (e *Engine) processParsed(ctx context.Context, p *parsedRecord) (*Outcome, error) {
	start := time.Now()

	out, err := e.execute(ctx, p.lockKeys(), func(ctx context.Context, emit emitFunc) (*Outcome, error) {
		out := &Outcome{RecordID: p.recordID, Fingerprint: p.fingerprint}

		link, err := e.store.Provenance.Get(ctx, p.fingerprint)
		if err != nil && !store.IsNotFound(err) {
			return nil, err
		}
		if link != nil {
			return out, e.revalidate(ctx, link, out)
		}
		return out, e.apply(ctx, p, pins{}, out, emit)
	})

	outcome := "failed"
	if err == nil {
		outcome = string(out.State)
		if out.Revalidated {
			outcome = "revalidated"
		}
	}
	metrics.RecordsProcessedTotal.WithLabelValues(outcome).Inc()
	metrics.RecordDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_id": p.recordID,
		}).Warn("Failed to reconcile record")
		return nil, err
	}
	return out, nil
}

type emitFunc func(evts ...events.Event)

// execute runs fn under the entity locks and one transaction, retrying lost
// races with exponential backoff. Events are emitted only after commit.
func (e *Engine) execute(ctx context.Context, keys []string, fn func(ctx context.Context, emit emitFunc) (*Outcome, error)) (*Outcome, error) {
	operation := func() (*Outcome, error) {
		var pending []events.Event
		emit := func(evts ...events.Event) { pending = append(pending, evts...) }

		out, err := e.once(ctx, keys, func(ctx context.Context) (*Outcome, error) {
			return fn(ctx, emit)
		})
		if err != nil {
			if retryable(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}

		e.emit(ctx, pending)
		return out, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.config.RetryInitialInterval
	b.MaxInterval = e.config.RetryMaxInterval

	out, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(e.config.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.RetriesTotal.Inc()
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"keys":  keys,
				"retry": next.String(),
			}).Debug("Retrying after concurrent write")
		}),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		if retryable(err) && !errors.Is(err, ErrConcurrentWrite) {
			err = fmt.Errorf("%w: %v", ErrConcurrentWrite, err)
		}
		return nil, err
	}
	return out, nil
}

func (e *Engine) once(ctx context.Context, keys []string, fn func(ctx context.Context) (*Outcome, error)) (*Outcome, error) {
	held := &heldLocks{keys: map[string]bool{}}
	defer held.release()
	if err := e.lock(ctx, held, keys); err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, heldLocksKey{}, held)

	var out *Outcome
	err := e.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

type heldLocksKey struct{}

// heldLocks are the entity locks one attempt holds until it commits or rolls back
type heldLocks struct {
	keys    map[string]bool
	unlocks []func()
}

func (h *heldLocks) release() {
	for i := len(h.unlocks) - 1; i >= 0; i-- {
		h.unlocks[i]()
	}
}

func (e *Engine) lock(ctx context.Context, held *heldLocks, keys []string) error {
	var missing []string
	for _, key := range locks.Keys(keys...) {
		if !held.keys[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	unlock, err := e.locker.Lock(ctx, missing...)
	if err != nil {
		if errors.Is(err, locks.ErrNotAcquired) {
			return fmt.Errorf("%w: %v", ErrConcurrentWrite, err)
		}
		return err
	}
	held.unlocks = append(held.unlocks, unlock)
	for _, key := range missing {
		held.keys[key] = true
	}
	return nil
}

// lockCompetitors takes competitor-id locks once a record's sides resolve to
// existing competitors. They are held until the surrounding attempt ends.
func (e *Engine) lockCompetitors(ctx context.Context, ids ...string) error {
	held, ok := ctx.Value(heldLocksKey{}).(*heldLocks)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			keys = append(keys, competitorLockKey(id))
		}
	}
	return e.lock(ctx, held, keys)
}

func competitorLockKey(id string) string {
	return "competitor-id:" + id
}

func (e *Engine) emit(ctx context.Context, evts []events.Event) {
	if len(evts) == 0 {
		return
	}
	if err := e.sink.Emit(ctx, evts...); err != nil {
		// the canonical store is already committed; consumers catch up from it
		metrics.EventsEmittedTotal.WithLabelValues("failed").Add(float64(len(evts)))
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_count": len(evts),
		}).Error("Failed to emit events")
		return
	}
	metrics.EventsEmittedTotal.WithLabelValues("ok").Add(float64(len(evts)))
}

// revalidate checks a record that was already processed without writing anything
func (e *Engine) revalidate(ctx context.Context, link *models.RawRecordLink, out *Outcome) error {
	out.Revalidated = true
	out.State = link.State
	out.PendingID = deref(link.PendingID)
	out.CompetitorID = deref(link.CompetitorID)
	out.OpponentID = deref(link.OpponentID)
	out.ContestID = deref(link.ContestID)
	out.HistoryViewID = deref(link.HistoryViewID)

	switch link.State {
	case models.RecordStateRejected:
		return nil
	case models.RecordStatePendingReview:
		if link.PendingID == nil {
			return fmt.Errorf("%w: record %s is pending review without a candidate", ErrIntegrity, link.RawRecordID)
		}
		if _, err := e.store.Pending.Get(ctx, *link.PendingID); err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("%w: record %s points at missing pending candidate %s", ErrIntegrity, link.RawRecordID, *link.PendingID)
			}
			return err
		}
		return nil
	}

	if link.CompetitorID == nil {
		return fmt.Errorf("%w: linked record %s has no competitor", ErrIntegrity, link.RawRecordID)
	}
	if _, err := e.store.Competitors.Get(ctx, *link.CompetitorID); err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("%w: record %s is linked to missing competitor %s", ErrIntegrity, link.RawRecordID, *link.CompetitorID)
		}
		return err
	}

	if link.ContestID != nil {
		contest, err := e.store.Contests.Get(ctx, *link.ContestID)
		if err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("%w: record %s is linked to missing contest %s", ErrIntegrity, link.RawRecordID, *link.ContestID)
			}
			return err
		}
		if err := contest.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrIntegrity, err)
		}
		if !contest.Involves(*link.CompetitorID) {
			return fmt.Errorf("%w: competitor %s does not take part in contest %s", ErrIntegrity, *link.CompetitorID, contest.ID)
		}
	}

	if link.HistoryViewID != nil {
		view, err := e.store.HistoryViews.Get(ctx, *link.HistoryViewID)
		if err != nil {
			if store.IsNotFound(err) {
				return fmt.Errorf("%w: record %s is linked to missing history view %s", ErrIntegrity, link.RawRecordID, *link.HistoryViewID)
			}
			return err
		}
		if view.CompetitorID != *link.CompetitorID {
			return fmt.Errorf("%w: history view %s belongs to %s, not %s", ErrIntegrity, view.ID, view.CompetitorID, *link.CompetitorID)
		}
	}
	return nil
}

// pin fixes one side's identity from a review decision
type pin struct {
	id     string
	create bool
}

type pins struct {
	competitor *pin
	opponent   *pin
}

// sideDecision is how one name of a record resolves
type sideDecision struct {
	subject  models.Subject
	pin      *pin
	find     *matching.FindResult
	decision confidence.Decision
}

func (d *sideDecision) review() bool {
	return d.pin == nil && d.decision.Action == confidence.ActionReview
}

// knownID is the existing competitor the side resolves to, if already known
func (d *sideDecision) knownID() string {
	if d.pin != nil {
		return d.pin.id
	}
	if d.decision.Action == confidence.ActionAutoLink {
		return d.decision.Top.CompetitorID
	}
	return ""
}

// apply runs the record state machine inside the caller's transaction
func (e *Engine) apply(ctx context.Context, p *parsedRecord, pinned pins, out *Outcome, emit emitFunc) error {
	comp, err := e.decide(ctx, p, models.SubjectCompetitor, pinned.competitor, pinnedID(pinned.opponent))
	if err != nil {
		return err
	}
	out.Band = comp.decision.Band
	if comp.find != nil {
		out.Strategy = comp.find.Strategy
	}
	if comp.review() {
		return e.queue(ctx, p, comp, pinned, out, emit)
	}

	var opp *sideDecision
	if p.hasContest() {
		opp, err = e.decide(ctx, p, models.SubjectOpponent, pinned.opponent, comp.knownID())
		if err != nil {
			return err
		}
		if opp.review() {
			// the competitor side is settled now so the next review only
			// concerns the opponent
			switch {
			case comp.pin != nil && comp.pin.create:
				competitor, err := e.materialize(ctx, p, comp, emit)
				if err != nil {
					return err
				}
				pinned.competitor = &pin{id: competitor.ID}
			case comp.knownID() != "":
				pinned.competitor = &pin{id: comp.knownID()}
			}
			return e.queue(ctx, p, opp, pinned, out, emit)
		}
	}

	sides := []string{comp.knownID()}
	if opp != nil {
		sides = append(sides, opp.knownID())
	}
	if err := e.lockCompetitors(ctx, sides...); err != nil {
		return err
	}

	competitor, err := e.materialize(ctx, p, comp, emit)
	if err != nil {
		return err
	}
	out.CompetitorID = competitor.ID
	out.State = models.RecordStateAutoLinked
	if comp.pin != nil && comp.pin.create {
		out.State = models.RecordStateCreated
	}

	link := &models.RawRecordLink{
		Fingerprint:  p.fingerprint,
		RawRecordID:  p.recordID,
		Source:       optionalString(p.raw.Source),
		State:        out.State,
		CompetitorID: &competitor.ID,
		Payload:      p.raw.JSON(),
	}

	if opp == nil {
		view, err := e.recordLegacy(ctx, p, competitor)
		if err != nil {
			return err
		}
		out.HistoryViewID = view.ID
		link.HistoryViewID = &view.ID
		return e.store.Provenance.Upsert(ctx, link)
	}

	opponent, err := e.materialize(ctx, p, opp, emit)
	if err != nil {
		return err
	}
	if opponent.ID == competitor.ID {
		return fmt.Errorf("%w: record %s resolves both sides to competitor %s", ErrIntegrity, p.recordID, competitor.ID)
	}
	out.OpponentID = opponent.ID
	link.OpponentID = &opponent.ID

	event, err := e.findOrCreateEvent(ctx, p)
	if err != nil {
		return err
	}

	contest, created, err := e.findOrCreateContest(ctx, p, event, competitor, opponent, contestHint(comp, opp))
	if err != nil {
		return err
	}
	out.ContestCreated = created
	out.ContestID = contest.ID
	link.ContestID = &contest.ID

	if err := e.attachEvidence(ctx, p, contest, competitor.ID); err != nil {
		return err
	}

	projection, err := e.perspective.OnContestChanged(ctx, contest.ID)
	if err != nil {
		return err
	}
	for _, view := range projection.Views {
		if view.CompetitorID == competitor.ID {
			out.HistoryViewID = view.ID
			link.HistoryViewID = &view.ID
		}
		if view.HasConflict {
			emit(events.New(events.EventTypeViewConflict, "history_view", view.ID, view))
		}
	}
	out.Conflicts = projection.Conflicts
	metrics.ViewConflictsTotal.Add(float64(projection.Conflicts))

	contestEvent := events.EventTypeContestProjected
	if created {
		contestEvent = events.EventTypeContestCreated
	}
	emit(events.New(contestEvent, "contest", contest.ID, contest))

	return e.store.Provenance.Upsert(ctx, link)
}

// decide resolves one side of a record to a pinned identity or a classified
// candidate list
func (e *Engine) decide(ctx context.Context, p *parsedRecord, subject models.Subject, pinned *pin, otherID string) (*sideDecision, error) {
	d := &sideDecision{subject: subject, pin: pinned}
	if pinned != nil {
		return d, nil
	}

	name, _ := p.subjectName(subject)
	req := matching.FindRequest{
		Name:       name.DisplayName,
		OpponentID: otherID,
		EventName:  p.eventName,
		Date:       p.date,
		Location:   deref(p.location),
	}
	if otherID != "" {
		req.ExcludeIDs = []string{otherID}
	}
	switch subject {
	case models.SubjectCompetitor:
		if p.opponent != nil {
			req.OpponentName = p.opponent.DisplayName
		}
	case models.SubjectOpponent:
		req.OpponentName = p.name.DisplayName
	}

	found, err := e.finder.Find(ctx, req)
	if err != nil {
		return nil, err
	}
	d.find = found
	d.decision = e.classifier.Classify(found.Candidates)
	if top, ok := found.Top(); ok {
		metrics.CandidateScore.WithLabelValues(top.Strategy).Observe(top.Score)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"record_id": p.recordID,
		"subject":   subject,
		"band":      d.decision.Band,
		"action":    d.decision.Action,
		"strategy":  found.Strategy,
	}).Debug("Classified candidates")
	return d, nil
}

// materialize returns the canonical competitor for a decided side, creating
// it or recording the observed name as an alternate name when needed
func (e *Engine) materialize(ctx context.Context, p *parsedRecord, d *sideDecision, emit emitFunc) (*models.Competitor, error) {
	name, key := p.subjectName(d.subject)

	id := d.knownID()
	if id == "" {
		competitor := &models.Competitor{
			GivenName:    name.GivenName,
			FamilyName:   name.FamilyName,
			DisplayName:  name.DisplayName,
			NameKey:      key,
			IsSingleName: name.IsSingleName,
			IsActive:     true,
		}
		if err := e.store.Competitors.Create(ctx, competitor); err != nil {
			return nil, err
		}
		emit(events.New(events.EventTypeCompetitorCreated, "competitor", competitor.ID, competitor))
		d.pin = &pin{id: competitor.ID, create: true}
		return competitor, nil
	}

	competitor, err := e.store.Competitors.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !competitor.HasName(key) {
		alt := &models.AlternateName{
			CompetitorID: competitor.ID,
			Name:         name.DisplayName,
			NameKey:      key,
			Type:         models.AlternateNameSpellingVariant,
			Source:       optionalString(p.raw.Source),
		}
		if err := e.store.Competitors.AddAlternateName(ctx, alt); err != nil {
			return nil, err
		}
		competitor.AlternateNames = append(competitor.AlternateNames, *alt)
		emit(events.New(events.EventTypeAlternateNameSeen, "competitor", competitor.ID, alt))
	}
	return competitor, nil
}

// findOrCreateEvent matches events by normalized name and calendar day
func (e *Engine) findOrCreateEvent(ctx context.Context, p *parsedRecord) (*models.Event, error) {
	existing, err := e.store.Events.FindByNameKey(ctx, p.eventKey)
	if err != nil {
		return nil, err
	}

	var dateless []*models.Event
	for _, event := range existing {
		switch {
		case event.Date == nil:
			dateless = append(dateless, event)
		case p.date != nil && normalizers.Day(*event.Date).Equal(*p.date):
			return event, nil
		}
	}
	// dated records never join dateless events
	if p.date == nil {
		if len(dateless) > 0 {
			return dateless[0], nil
		}
		if len(existing) == 1 {
			return existing[0], nil
		}
	}

	event := &models.Event{
		Name:     p.eventName,
		NameKey:  p.eventKey,
		Date:     p.date,
		Location: p.location,
	}
	if err := e.store.Events.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// contestHint is the contest a contextual match pointed at, if any
func contestHint(sides ...*sideDecision) string {
	for _, d := range sides {
		if d == nil || d.pin != nil || d.decision.Top == nil {
			continue
		}
		if d.decision.Action == confidence.ActionAutoLink && d.decision.Top.ContestID != nil {
			return *d.decision.Top.ContestID
		}
	}
	return ""
}

// findOrCreateContest reuses the contest between the pair in the event before
// creating one. An existing contest only has its missing details filled in.
func (e *Engine) findOrCreateContest(ctx context.Context, p *parsedRecord, event *models.Event, competitor, opponent *models.Competitor, hint string) (*models.Contest, bool, error) {
	var contest *models.Contest
	if hint != "" {
		c, err := e.store.Contests.Get(ctx, hint)
		if err != nil && !store.IsNotFound(err) {
			return nil, false, err
		}
		if c != nil && c.IsActive && c.EventID == event.ID && c.Involves(competitor.ID) && c.Involves(opponent.ID) {
			contest = c
		}
	}
	if contest == nil {
		contests, err := e.store.Contests.ListByEvent(ctx, event.ID)
		if err != nil {
			return nil, false, err
		}
		for _, c := range contests {
			if c.Involves(competitor.ID) && c.Involves(opponent.ID) {
				contest = c
				break
			}
		}
	}

	if contest != nil {
		if fillContest(contest, p) {
			if err := e.store.Contests.Update(ctx, contest); err != nil {
				return nil, false, err
			}
		}
		return contest, false, nil
	}

	contest = &models.Contest{
		EventID:       event.ID,
		CompetitorAID: competitor.ID,
		CompetitorBID: opponent.ID,
		ResultA:       p.result,
		ResultB:       p.result.Complement(),
		Method:        p.method,
		EndingRound:   p.round,
		EndingTime:    p.endingTime,
		IsTitleFight:  p.titleFight,
		WeightClass:   p.weightClass,
		IsActive:      true,
	}
	if err := contest.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	if err := e.store.Contests.Create(ctx, contest); err != nil {
		return nil, false, err
	}

	for _, side := range []*models.Competitor{competitor, opponent} {
		result, _, _ := contest.Side(side.ID)
		if err := e.store.Competitors.AdjustRecord(ctx, side.ID, result, 1); err != nil {
			return nil, false, err
		}
		side.FightRecord.Tally(result, 1)
	}
	return contest, true, nil
}

// fillContest copies details the contest lacks from the record
func fillContest(c *models.Contest, p *parsedRecord) bool {
	changed := false
	if c.Method == nil && p.method != nil {
		c.Method = p.method
		changed = true
	}
	if c.EndingRound == nil && p.round != nil {
		c.EndingRound = p.round
		changed = true
	}
	if c.EndingTime == nil && p.endingTime != nil {
		c.EndingTime = p.endingTime
		changed = true
	}
	if c.WeightClass == nil && p.weightClass != nil {
		c.WeightClass = p.weightClass
		changed = true
	}
	if !c.IsTitleFight && p.titleFight {
		c.IsTitleFight = true
		changed = true
	}
	return changed
}

// attachEvidence stores the record's account of the contest on the
// competitor's view so projection can diff it against the contest
func (e *Engine) attachEvidence(ctx context.Context, p *parsedRecord, contest *models.Contest, competitorID string) error {
	view, err := e.store.HistoryViews.GetByContestAndCompetitor(ctx, contest.ID, competitorID)
	if err != nil && !store.IsNotFound(err) {
		return err
	}
	if view != nil {
		if view.RawRecordID != nil {
			return nil
		}
		view.Snapshot = p.snapshot()
		view.RawRecordID = &p.recordID
		return e.store.HistoryViews.Update(ctx, view)
	}

	legacy, err := e.perspective.LegacyMatch(ctx, contest.ID, competitorID)
	if err != nil {
		return err
	}
	if legacy != nil {
		return nil
	}

	_, opponentID, _ := contest.Side(competitorID)
	return e.store.HistoryViews.Create(ctx, &models.HistoryView{
		CompetitorID: competitorID,
		ContestID:    &contest.ID,
		OpponentID:   &opponentID,
		Snapshot:     p.snapshot(),
		RawRecordID:  &p.recordID,
	})
}

// recordLegacy keeps a record without contest context as an unlinked view
func (e *Engine) recordLegacy(ctx context.Context, p *parsedRecord, competitor *models.Competitor) (*models.HistoryView, error) {
	view := &models.HistoryView{
		CompetitorID: competitor.ID,
		Snapshot:     p.snapshot(),
		RawRecordID:  &p.recordID,
	}
	if err := e.store.HistoryViews.Create(ctx, view); err != nil {
		return nil, err
	}
	return view, nil
}

// queue parks the record for review on the ambiguous side
func (e *Engine) queue(ctx context.Context, p *parsedRecord, d *sideDecision, pinned pins, out *Outcome, emit emitFunc) error {
	name := p.raw.RawName
	if d.subject == models.SubjectOpponent {
		name = deref(p.raw.RawOpponentName)
	}

	pending := &models.PendingCandidate{
		Fingerprint:           p.fingerprint,
		Subject:               d.subject,
		RawName:               name,
		RawDate:               p.raw.RawDate,
		RawEvent:              p.raw.RawEventName,
		RawRecord:             p.raw,
		Candidates:            d.find.Candidates,
		Band:                  d.decision.Band,
		SuggestedCompetitorID: d.decision.Suggestion,
		PinnedCompetitorID:    pinnedIDPtr(pinned.competitor),
		PinnedOpponentID:      pinnedIDPtr(pinned.opponent),
		Status:                models.PendingStatusPending,
	}
	if err := e.store.Pending.Create(ctx, pending); err != nil {
		return err
	}

	out.State = models.RecordStatePendingReview
	out.Band = d.decision.Band
	out.PendingID = pending.ID
	metrics.PendingReviewTotal.WithLabelValues(string(d.subject), string(d.decision.Band)).Inc()
	emit(events.New(events.EventTypeRecordQueued, "pending_candidate", pending.ID, pending))

	return e.store.Provenance.Upsert(ctx, &models.RawRecordLink{
		Fingerprint: p.fingerprint,
		RawRecordID: p.recordID,
		Source:      optionalString(p.raw.Source),
		State:       models.RecordStatePendingReview,
		PendingID:   &pending.ID,
		Payload:     p.raw.JSON(),
	})
}

func pinnedID(p *pin) string {
	if p == nil {
		return ""
	}
	return p.id
}

func pinnedIDPtr(p *pin) *string {
	if p == nil || p.id == "" {
		return nil
	}
	id := p.id
	return &id
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
