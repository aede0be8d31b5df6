package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/events"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

const (
	mergeCompetitor = `
		MERGE (c:Competitor {id: $id})
		SET c.display_name = $display_name,
			c.name_key = $name_key,
			c.is_active = $is_active`

	addAlias = `
		MERGE (c:Competitor {id: $id})
		SET c.aliases = CASE
			WHEN c.aliases IS NULL THEN [$alias]
			WHEN $alias IN c.aliases THEN c.aliases
			ELSE c.aliases + $alias END`

	mergeContest = `
		MERGE (k:Contest {id: $id})
		SET k.event_id = $event_id,
			k.method = $method,
			k.ending_round = $ending_round,
			k.is_title_fight = $is_title_fight,
			k.is_active = $is_active
		MERGE (a:Competitor {id: $a_id})
		MERGE (b:Competitor {id: $b_id})
		MERGE (a)-[ra:COMPETED_IN]->(k)
		SET ra.result = $result_a
		MERGE (b)-[rb:COMPETED_IN]->(k)
		SET rb.result = $result_b
		MERGE (a)-[f:FOUGHT {contest_id: $id}]->(b)`

	retireContest = `
		MATCH (k:Contest {id: $id})
		SET k.is_active = false, k.merged_into = $survivor_id
		WITH k
		OPTIONAL MATCH ()-[f:FOUGHT {contest_id: $id}]->()
		DELETE f`
)

// Statement is one parameterized Cypher write
type Statement struct {
	Cypher string
	Params map[string]any
}

// Projector mirrors competitor and contest events into the graph. It is an
// events.Sink, so it only sees committed state.
type Projector struct {
	client *Client
	logger ectologger.Logger
}

// NewProjector creates a new graph projector
func NewProjector(client *Client, logger ectologger.Logger) *Projector {
	return &Projector{
		client: client,
		logger: logger,
	}
}

// Emit writes every projectable event in a single graph transaction
func (p *Projector) Emit(ctx context.Context, evts ...events.Event) error {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.Emit")
	defer span.End()

	var stmts []Statement
	for _, evt := range evts {
		s, err := Statements(evt)
		if err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"event_type": evt.EventType,
				"entity_id":  evt.EntityID,
			}).Warn("Skipping undecodable event")
			continue
		}
		stmts = append(stmts, s...)
	}
	if len(stmts) == 0 {
		return nil
	}

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, s := range stmts {
			result, err := tx.Run(ctx, s.Cypher, s.Params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"statements": len(stmts),
		}).Error("Failed to project events into graph")
		return fmt.Errorf("failed to project events into graph: %w", err)
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"statements": len(stmts),
	}).Debug("Projected events into graph")
	return nil
}

// Statements translates one event into Cypher writes. Events the graph does
// not model yield nothing.
func Statements(evt events.Event) ([]Statement, error) {
	switch evt.EventType {
	case events.EventTypeCompetitorCreated:
		var c models.Competitor
		if err := evt.Decode(&c); err != nil {
			return nil, err
		}
		return []Statement{{Cypher: mergeCompetitor, Params: map[string]any{
			"id":           c.ID,
			"display_name": c.DisplayName,
			"name_key":     c.NameKey,
			"is_active":    c.IsActive,
		}}}, nil

	case events.EventTypeAlternateNameSeen:
		var alt models.AlternateName
		if err := evt.Decode(&alt); err != nil {
			return nil, err
		}
		return []Statement{{Cypher: addAlias, Params: map[string]any{
			"id":    alt.CompetitorID,
			"alias": alt.Name,
		}}}, nil

	case events.EventTypeContestCreated, events.EventTypeContestProjected:
		var k models.Contest
		if err := evt.Decode(&k); err != nil {
			return nil, err
		}
		return []Statement{{Cypher: mergeContest, Params: map[string]any{
			"id":             k.ID,
			"event_id":       k.EventID,
			"method":         optional(k.Method),
			"ending_round":   optional(k.EndingRound),
			"is_title_fight": k.IsTitleFight,
			"is_active":      k.IsActive,
			"a_id":           k.CompetitorAID,
			"b_id":           k.CompetitorBID,
			"result_a":       string(k.ResultA),
			"result_b":       string(k.ResultB),
		}}}, nil

	case events.EventTypeContestMerged:
		var m events.ContestMerge
		if err := evt.Decode(&m); err != nil {
			return nil, err
		}
		stmts := make([]Statement, 0, len(m.DuplicateIDs))
		for _, id := range m.DuplicateIDs {
			stmts = append(stmts, Statement{Cypher: retireContest, Params: map[string]any{
				"id":          id,
				"survivor_id": m.SurvivorID,
			}})
		}
		return stmts, nil
	}
	return nil, nil
}

func optional[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
