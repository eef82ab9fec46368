//go:build !neo4j

package store

import (
	"context"
	"errors"
)

// NewNeo4jDriver is unavailable without the neo4j build tag.
func NewNeo4jDriver(context.Context, string, string, string) (Neo4jDriver, error) {
	return nil, errors.New("neo4j support not included; rebuild with -tags neo4j")
}
