package knowledge

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/docchat/config"
	"github.com/fabfab/docchat/database"
	"github.com/fabfab/docchat/session"
)

func TestExchangeParams(t *testing.T) {
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	params := exchangeParams(session.Exchange{
		ID:        "ex-1",
		SessionID: "s-1",
		Question:  "Where?",
		Outcome:   session.OutcomeAnswered,
		StartedAt: started,
	})

	assert.Equal(t, "s-1", params["session_id"])
	assert.Equal(t, "ex-1", params["exchange_id"])
	assert.Equal(t, "answered", params["outcome"])
	assert.Equal(t, started.UTC(), params["started_at"])
}

func TestCitationParamsSkipsBlankNames(t *testing.T) {
	params := citationParams(session.Exchange{
		ID:        "ex-1",
		Citations: []session.Citation{{DisplayName: "a.md"}, {DisplayName: ""}, {DisplayName: "b.md"}},
	})

	require.Len(t, params, 2)
	assert.Equal(t, "a.md", params[0]["name"])
	assert.Equal(t, 0, params[0]["position"])
	assert.Equal(t, "b.md", params[1]["name"])
	assert.Equal(t, 2, params[1]["position"])
}

func TestGraphRequiresDriver(t *testing.T) {
	g := NewGraph(nil)
	require.Error(t, g.Record(context.Background(), session.Exchange{}))
	_, err := g.MostCited(context.Background(), 5)
	require.Error(t, err)
}

func TestGraphRecordIntegration(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run database integration tests")
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	require.NoError(t, err)
	defer func() {
		if closeErr := driver.Close(ctx); closeErr != nil {
			t.Errorf("failed to close neo4j driver: %v", closeErr)
		}
	}()

	g := NewGraph(driver)
	name := "integration-" + uuid.NewString() + ".md"
	for i := 0; i < 2; i++ {
		require.NoError(t, g.Record(ctx, session.Exchange{
			ID:        uuid.NewString(),
			SessionID: uuid.NewString(),
			Question:  "q",
			Outcome:   session.OutcomeAnswered,
			Citations: []session.Citation{{DisplayName: name}},
			StartedAt: time.Now(),
		}))
	}

	docs, err := g.MostCited(ctx, 1000)
	require.NoError(t, err)
	var found bool
	for _, doc := range docs {
		if doc.Name == name {
			found = true
			assert.Equal(t, int64(2), doc.Count)
		}
	}
	assert.True(t, found)
}
