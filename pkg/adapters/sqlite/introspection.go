package sqlite

import (
	"github.com/aretw0/introspection"
)

// StoreState exposes the connection pool for observability.
type StoreState struct {
	DSN             string `json:"dsn"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	WaitCount       int64  `json:"wait_count"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	stats := s.db.Stats()
	return StoreState{
		DSN:             s.dsn,
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		WaitCount:       stats.WaitCount,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "local-store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
