package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/events"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/models"
)

func TestStatements(t *testing.T) {
	method := "KO (head kick)"

	t.Run("competitor created", func(t *testing.T) {
		stmts, err := Statements(events.New(events.EventTypeCompetitorCreated, "competitor", "c1", &models.Competitor{
			ID: "c1", DisplayName: "Jon Jones", NameKey: "jon jones", IsActive: true,
		}))
		require.NoError(t, err)
		require.Len(t, stmts, 1)
		assert.Equal(t, mergeCompetitor, stmts[0].Cypher)
		assert.Equal(t, "Jon Jones", stmts[0].Params["display_name"])
		assert.Equal(t, true, stmts[0].Params["is_active"])
	})

	t.Run("alternate name", func(t *testing.T) {
		stmts, err := Statements(events.New(events.EventTypeAlternateNameSeen, "competitor", "c1", &models.AlternateName{
			CompetitorID: "c1", Name: "Bones Jones",
		}))
		require.NoError(t, err)
		require.Len(t, stmts, 1)
		assert.Equal(t, map[string]any{"id": "c1", "alias": "Bones Jones"}, stmts[0].Params)
	})

	t.Run("contest", func(t *testing.T) {
		for _, eventType := range []events.EventType{events.EventTypeContestCreated, events.EventTypeContestProjected} {
			stmts, err := Statements(events.New(eventType, "contest", "k1", &models.Contest{
				ID: "k1", EventID: "e1", CompetitorAID: "a", CompetitorBID: "b",
				ResultA: models.ResultWin, ResultB: models.ResultLoss, Method: &method, IsActive: true,
			}))
			require.NoError(t, err)
			require.Len(t, stmts, 1)
			assert.Equal(t, mergeContest, stmts[0].Cypher)
			assert.Equal(t, method, stmts[0].Params["method"])
			assert.Nil(t, stmts[0].Params["ending_round"])
			assert.Equal(t, "win", stmts[0].Params["result_a"])
			assert.Equal(t, "loss", stmts[0].Params["result_b"])
		}
	})

	t.Run("contest merged retires every duplicate", func(t *testing.T) {
		stmts, err := Statements(events.New(events.EventTypeContestMerged, "contest", "k1", events.ContestMerge{
			SurvivorID: "k1", DuplicateIDs: []string{"k2", "k3"},
		}))
		require.NoError(t, err)
		require.Len(t, stmts, 2)
		assert.Equal(t, "k3", stmts[1].Params["id"])
		assert.Equal(t, "k1", stmts[1].Params["survivor_id"])
	})

	t.Run("events the graph does not model", func(t *testing.T) {
		stmts, err := Statements(events.New(events.EventTypeRecordQueued, "pending_candidate", "p1", nil))
		require.NoError(t, err)
		assert.Empty(t, stmts)
	})

	t.Run("undecodable payload", func(t *testing.T) {
		evt := events.New(events.EventTypeCompetitorCreated, "competitor", "c1", nil)
		evt.Data = []byte(`[1,2]`)
		_, err := Statements(evt)
		assert.Error(t, err)
	})
}
