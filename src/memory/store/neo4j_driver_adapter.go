//go:build neo4j

package store

import (
	"context"

	neo4j "github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// NewNeo4jDriver connects to uri with basic auth and verifies connectivity.
func NewNeo4jDriver(ctx context.Context, uri, username, password string) (Neo4jDriver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return WrapNeo4jDriver(driver), nil
}

// WrapNeo4jDriver adapts the official driver to Neo4jDriver.
func WrapNeo4jDriver(driver neo4j.DriverWithContext) Neo4jDriver {
	if driver == nil {
		return nil
	}
	return &neo4jDriverAdapter{driver: driver}
}

type neo4jDriverAdapter struct {
	driver neo4j.DriverWithContext
}

func (d *neo4jDriverAdapter) NewSession(ctx context.Context, config Neo4jSessionConfig) (Neo4jSession, error) {
	cfg := neo4j.SessionConfig{DatabaseName: config.DatabaseName, AccessMode: neo4j.AccessModeRead}
	if config.AccessMode == AccessModeWrite {
		cfg.AccessMode = neo4j.AccessModeWrite
	}
	return &neo4jSessionAdapter{session: d.driver.NewSession(ctx, cfg)}, nil
}

func (d *neo4jDriverAdapter) Close(ctx context.Context) error { return d.driver.Close(ctx) }

type neo4jSessionAdapter struct {
	session neo4j.SessionWithContext
}

func (s *neo4jSessionAdapter) Run(ctx context.Context, query string, params map[string]any) (Neo4jResult, error) {
	res, err := s.session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return &neo4jResultAdapter{result: res}, nil
}

func (s *neo4jSessionAdapter) Close(ctx context.Context) error { return s.session.Close(ctx) }

type neo4jResultAdapter struct {
	result neo4j.ResultWithContext
}

func (r *neo4jResultAdapter) Next(ctx context.Context) bool { return r.result.Next(ctx) }

func (r *neo4jResultAdapter) Record() Neo4jRecord {
	rec := r.result.Record()
	if rec == nil {
		return nil
	}
	return rec
}

func (r *neo4jResultAdapter) Err() error { return r.result.Err() }

// Close drains the result so the session can be reused.
func (r *neo4jResultAdapter) Close(ctx context.Context) error {
	_, err := r.result.Consume(ctx)
	return err
}
