// Package cmd provides shared construction helpers for the command-line
// entrypoints.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/driptide/driptide/pkg/store"
	"github.com/driptide/driptide/pkg/store/file"
	"github.com/driptide/driptide/pkg/store/postgres"
)

// NewStore selects the store implementation from the database URL: postgres
// URLs get the PostgreSQL store, anything else is treated as a filesystem
// root for the file store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (store.Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		st, err := postgres.NewStore(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres store: %w", err)
		}

		return st, nil
	default:
		root := strings.TrimPrefix(databaseURL, "file://")

		return file.NewStore(root), nil
	}
}
