package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/normalizers"
)

// parsedRecord is a raw record after normalization
type parsedRecord struct {
	raw         models.RawRecord
	recordID    string
	fingerprint string

	name    normalizers.ParsedName
	nameKey string

	opponent    *normalizers.ParsedName
	opponentKey string

	result      models.Result
	eventName   string
	eventKey    string
	date        *time.Time
	location    *string
	method      *string
	round       *int
	endingTime  *string
	weightClass *string
	titleFight  bool
}

// parse validates and normalizes a raw record. Malformed optional fields
// degrade to absent; only an unusable name or result rejects the record.
func (e *Engine) parse(ctx context.Context, raw models.RawRecord) (*parsedRecord, error) {
	if err := e.validator.Validate(raw).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{"record_id": raw.RecordID()})

	p := &parsedRecord{
		raw:         raw,
		recordID:    raw.RecordID(),
		fingerprint: raw.Fingerprint(),
	}
	p.result, _ = models.ParseResult(raw.RawResult)

	p.name = normalizers.ParseName(raw.RawName, e.parseOpts...)
	if p.name.Degraded {
		log.WithFields(map[string]any{"raw_name": raw.RawName, "reason": p.name.Reason}).Warn("Degraded name parse")
	}
	p.nameKey = normalizers.NameKey(p.name.DisplayName)
	if p.nameKey == "" {
		return nil, fmt.Errorf("%w: name %q has no usable characters", ErrInvalidRecord, raw.RawName)
	}

	if opp := normalizers.CleanText(raw.RawOpponentName); opp != nil {
		parsed := normalizers.ParseName(*opp, e.parseOpts...)
		if key := normalizers.NameKey(parsed.DisplayName); key != "" {
			if parsed.Degraded {
				log.WithFields(map[string]any{"raw_opponent_name": *opp, "reason": parsed.Reason}).Debug("Degraded opponent name parse")
			}
			p.opponent = &parsed
			p.opponentKey = key
		}
	}
	if p.opponent != nil && p.opponentKey == p.nameKey {
		return nil, fmt.Errorf("%w: competitor and opponent are both %q", ErrInvalidRecord, p.name.DisplayName)
	}

	if ev := normalizers.CleanText(raw.RawEventName); ev != nil {
		p.eventName = *ev
		p.eventKey = normalizers.TextKey(*ev)
	}
	if raw.RawDate != nil && strings.TrimSpace(*raw.RawDate) != "" {
		if d, ok := normalizers.ParseDate(*raw.RawDate); ok {
			p.date = &d
		} else {
			log.WithFields(map[string]any{"raw_date": *raw.RawDate}).Debug("Ignoring unparseable date")
		}
	}
	p.location = normalizers.CleanText(raw.RawLocation)
	p.method = normalizers.CleanText(raw.RawMethod)
	p.weightClass = normalizers.CleanText(raw.RawWeightClass)
	if raw.RawRound != nil {
		if n, ok := normalizers.ParseRound(*raw.RawRound); ok {
			p.round = &n
		}
	}
	if raw.RawTime != nil {
		if t, ok := normalizers.ParseFightTime(*raw.RawTime); ok {
			p.endingTime = &t
		}
	}
	if raw.RawTitleFight != nil {
		p.titleFight = *raw.RawTitleFight
	}
	return p, nil
}

// hasContest reports whether the record carries enough context to place it
// in a canonical contest
func (p *parsedRecord) hasContest() bool {
	return p.opponent != nil && p.eventKey != ""
}

// contestKey is shared by both sides' records of the same contest
func (p *parsedRecord) contestKey() string {
	if !p.hasContest() {
		return ""
	}
	pair := []string{p.nameKey, p.opponentKey}
	sort.Strings(pair)
	day := ""
	if p.date != nil {
		day = p.date.Format("2006-01-02")
	}
	return "contest:" + p.eventKey + "|" + day + "|" + pair[0] + "|" + pair[1]
}

// groupKey places records that must be reconciled in order on one worker
func (p *parsedRecord) groupKey() string {
	if key := p.contestKey(); key != "" {
		return key
	}
	return "record:" + p.fingerprint
}

// lockKeys serialize records that may create or tally the same competitor.
// Names lock on their family name so spelling variants of one person queue
// behind each other.
func (p *parsedRecord) lockKeys() []string {
	keys := []string{blockKey(p.name, p.nameKey)}
	if p.opponent != nil {
		keys = append(keys, blockKey(*p.opponent, p.opponentKey))
	}
	if key := p.contestKey(); key != "" {
		keys = append(keys, key)
	}
	return keys
}

func blockKey(name normalizers.ParsedName, nameKey string) string {
	key := normalizers.NameKey(name.FamilyName)
	if key == "" {
		key = normalizers.NameKey(name.GivenName)
	}
	if key == "" {
		key = nameKey
	}
	return "competitor-block:" + key
}

func (p *parsedRecord) subjectName(subject models.Subject) (normalizers.ParsedName, string) {
	if subject == models.SubjectOpponent {
		return *p.opponent, p.opponentKey
	}
	return p.name, p.nameKey
}

// snapshot is the record's own account of the contest, kept as evidence
func (p *parsedRecord) snapshot() models.ViewFields {
	fields := models.ViewFields{
		EventName: p.eventName,
		EventDate: p.date,
		Location:  deref(p.location),
		Method:    deref(p.method),
		Result:    p.result,
		Round:     p.round,
		Time:      deref(p.endingTime),
	}
	if p.opponent != nil {
		fields.OpponentName = p.opponent.DisplayName
	}
	return fields
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
