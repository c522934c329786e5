// Package backend opens the store.Store selected by the settings.
package backend

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wricardo/tank-tactics/game/config"
	"github.com/wricardo/tank-tactics/game/store"
	"github.com/wricardo/tank-tactics/game/store/memory"
	"github.com/wricardo/tank-tactics/game/store/sqlstore"
)

// Open opens the SQL store for sqlite and postgres drivers and the memory
// store otherwise, restoring its snapshot when SnapshotPath is set
func Open(ctx context.Context, s *config.Settings, log logrus.FieldLogger) (store.Store, error) {
	switch s.StoreDriver {
	case config.DriverSQLite, config.DriverPostgres:
		d, err := sqlstore.ParseDialect(s.StoreDriver)
		if err != nil {
			return nil, err
		}
		return sqlstore.Open(ctx, d, s.StoreDSN, log)
	default:
		opts := []memory.Option{memory.WithLogger(log)}
		if s.SnapshotPath != "" {
			snap, err := memory.NewSnapshot(s.SnapshotPath)
			if err != nil {
				return nil, err
			}
			opts = append(opts, memory.WithSnapshot(snap))
		}
		return memory.New(opts...)
	}
}
