package postgres

import (
	"github.com/crewboard/crewboard-backend/config"
)

// DSN returns the lib/pq connection string for cfg.
func DSN(cfg *config.DatabaseConfig) string {
	return cfg.MigrationDSN()
}
