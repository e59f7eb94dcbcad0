// Package knowledge mirrors answered exchanges into a Neo4j graph linking
// sessions, the questions they asked and the documents the answers cited.
package knowledge

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/docchat/session"
)

// CitedDocument is a document together with how many answers cited it.
type CitedDocument struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

type Graph struct {
	driver neo4j.DriverWithContext
}

func NewGraph(driver neo4j.DriverWithContext) *Graph {
	return &Graph{driver: driver}
}

var _ session.Recorder = (*Graph)(nil)

// Record stores the exchange and its citations. Exchanges without citations
// are still linked to their session.
func (g *Graph) Record(ctx context.Context, exchange session.Exchange) error {
	if g.driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}

	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (s:Session {id: $session_id})
			MERGE (e:Exchange {id: $exchange_id})
			SET e.question = $question,
			    e.outcome = $outcome,
			    e.started_at = $started_at
			MERGE (s)-[:ASKED]->(e)
		`, exchangeParams(exchange)); err != nil {
			return nil, fmt.Errorf("upsert exchange node: %w", err)
		}

		for _, params := range citationParams(exchange) {
			if _, err := tx.Run(ctx, `
				MATCH (e:Exchange {id: $exchange_id})
				MERGE (d:Document {name: $name})
				MERGE (e)-[:CITED {position: $position}]->(d)
			`, params); err != nil {
				return nil, fmt.Errorf("link cited document: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

// MostCited returns the documents cited by the most exchanges.
func (g *Graph) MostCited(ctx context.Context, limit int) ([]CitedDocument, error) {
	if g.driver == nil {
		return nil, fmt.Errorf("neo4j driver is nil")
	}
	if limit <= 0 {
		limit = 10
	}

	sess := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `
		MATCH (:Exchange)-[:CITED]->(d:Document)
		RETURN d.name AS name, count(*) AS cited
		ORDER BY cited DESC, name ASC
		LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("query cited documents: %w", err)
	}

	docs := make([]CitedDocument, 0, limit)
	for result.Next(ctx) {
		record := result.Record()
		name, _, err := neo4j.GetRecordValue[string](record, "name")
		if err != nil {
			return nil, fmt.Errorf("read document name: %w", err)
		}
		count, _, err := neo4j.GetRecordValue[int64](record, "cited")
		if err != nil {
			return nil, fmt.Errorf("read citation count: %w", err)
		}
		docs = append(docs, CitedDocument{Name: name, Count: count})
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func exchangeParams(exchange session.Exchange) map[string]any {
	return map[string]any{
		"session_id":  exchange.SessionID,
		"exchange_id": exchange.ID,
		"question":    exchange.Question,
		"outcome":     string(exchange.Outcome),
		"started_at":  exchange.StartedAt.UTC(),
	}
}

func citationParams(exchange session.Exchange) []map[string]any {
	params := make([]map[string]any, 0, len(exchange.Citations))
	for idx, citation := range exchange.Citations {
		if citation.DisplayName == "" {
			continue
		}
		params = append(params, map[string]any{
			"exchange_id": exchange.ID,
			"name":        citation.DisplayName,
			"position":    idx,
		})
	}
	return params
}
