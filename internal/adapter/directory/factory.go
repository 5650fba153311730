package directory

import (
	"fmt"

	"github.com/thushan/flowgate/internal/config"
	"github.com/thushan/flowgate/internal/core/ports"
)

// Directories bundles both directories with whatever closes their store.
type Directories struct {
	Backends  ports.BackendDirectory
	Frontends ports.FrontendDirectory
	close     func() error
}

func (d *Directories) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

func New(cfg config.DirectoryConfig) (*Directories, error) {
	switch cfg.Store {
	case config.StoreMemory, "":
		backends := NewMemoryBackendDirectory()
		return &Directories{
			Backends:  backends,
			Frontends: NewMemoryFrontendDirectory(backends),
		}, nil
	case config.StoreSQLite:
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		backends := NewSQLiteBackendDirectory(db)
		return &Directories{
			Backends:  backends,
			Frontends: NewSQLiteFrontendDirectory(db, backends),
			close: func() error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown directory store %q", cfg.Store)
	}
}
