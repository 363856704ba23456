// Package reference loads every reference data set the navigator needs,
// once, before the first request is served.
package reference

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/pcsguide/internal/config"
	"github.com/ehr/pcsguide/internal/domain/bodysystem"
	"github.com/ehr/pcsguide/internal/domain/checklist"
	"github.com/ehr/pcsguide/internal/domain/pcsindex"
	"github.com/ehr/pcsguide/internal/domain/pcstables"
	"github.com/ehr/pcsguide/internal/domain/resolver"
)

// Bundle is the loaded, read-only reference data. Optional parts are nil
// when their files are not present.
type Bundle struct {
	Index       *pcsindex.Index
	Tables      *pcstables.Store
	Devices     *resolver.DeviceResolver
	BodyParts   *resolver.BodyPartResolver
	BodySystems *bodysystem.Map
	Checklists  *checklist.Provider
}

// Load reads the index, the tables and the optional key files in parallel.
// When repo is non-nil the tables are read from it instead of the XML file.
// A failure on the index, the tables or a present body-system file aborts
// the load.
func Load(ctx context.Context, cfg *config.Config, repo pcstables.Repository, logger zerolog.Logger) (*Bundle, error) {
	b := &Bundle{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ix, err := pcsindex.LoadFile(cfg.IndexXML, logger)
		if err != nil {
			return err
		}
		b.Index = ix
		return nil
	})

	g.Go(func() error {
		if repo == nil {
			store, err := pcstables.LoadFile(cfg.TablesXML, logger)
			if err != nil {
				return err
			}
			b.Tables = store
			return nil
		}
		tables, err := repo.LoadTables(gctx)
		if err != nil {
			return fmt.Errorf("load tables from database: %w", err)
		}
		b.Tables = pcstables.NewStore(tables)
		logger.Info().Int("tables", b.Tables.Len()).Msg("tables loaded from database")
		return nil
	})

	g.Go(func() error {
		b.Devices = resolver.LoadDevice(present(cfg.DeviceKeyJSON), present(cfg.DeviceAggJSON), logger)
		b.BodyParts = resolver.LoadBodyPart(present(cfg.BodyPartKeyJSON), logger)
		return nil
	})

	g.Go(func() error {
		path := present(cfg.BodySystemsJSON)
		if path == "" {
			logger.Info().Msg("body system map not present, skipping")
			return nil
		}
		m, err := bodysystem.LoadFile(path)
		if err != nil {
			return err
		}
		b.BodySystems = m
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	paths := map[string]string{}
	if p := present(cfg.DebridementJSON); p != "" {
		paths[checklist.Debridement] = p
	}
	if p := present(cfg.AneurysmJSON); p != "" {
		paths[checklist.AneurysmRepair] = p
	}
	b.Checklists = checklist.NewProvider(paths, logger)

	if b.BodySystems != nil {
		b.BodySystems.CheckTables(b.Tables.Tables(), logger)
	}

	logger.Info().
		Int("main_terms", b.Index.MainTermCount()).
		Int("tables", b.Tables.Len()).
		Bool("device_resolver", b.Devices != nil).
		Bool("body_part_resolver", b.BodyParts != nil).
		Int("checklists", len(paths)).
		Msg("reference data ready")
	return b, nil
}

// present returns path when a file exists there, and "" otherwise.
func present(path string) string {
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	return path
}
