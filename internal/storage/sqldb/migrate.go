package sqldb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/scrypster/familytree/internal/storage"
)

// Migrate applies pending SQL migrations from dir in files. A database whose
// relations table already has the metadata column and no migration history
// was created from the current schema, so it is baselined instead.
// The metadata capability is re-probed afterwards.
func (s *DB) Migrate(ctx context.Context, files fs.FS, dir string) (int, error) {
	mgr, err := storage.NewMigrationManager(s.db, files, dir, s.dialect.NumberedPlaceholders)
	if err != nil {
		return 0, err
	}

	if _, err := mgr.Version(); errors.Is(err, storage.ErrNoMigration) && s.readMetadata.Load() {
		s.logger.Info(s.dialect.Name + ": schema is current, recording migration baseline")
		return 0, mgr.Baseline()
	}

	applied, err := mgr.Up()
	if err != nil {
		return applied, err
	}

	ok, err := s.SupportsMetadata(ctx)
	if err != nil {
		return applied, fmt.Errorf("%s: failed to re-probe metadata column: %w", s.dialect.Name, err)
	}
	s.readMetadata.Store(ok)

	if applied > 0 {
		s.logger.Info(s.dialect.Name+": migrations applied", "count", applied)
	}
	return applied, nil
}
