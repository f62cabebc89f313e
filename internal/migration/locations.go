package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zoea-africa/v2-migrate/internal/source"
)

// runCountries walks the legacy countries table and get-or-creates the V2
// row for each known code. The tables are tiny; this phase runs on the
// caller's goroutine.
func (m *Migrator) runCountries(ctx context.Context, res *PhaseResult) error {
	return m.src.ForEachCountry(ctx, func(c *source.LegacyCountry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := m.locations.ResolveCountry(ctx, c.CountryID); err != nil {
			m.markFailed("countries", res, c.CountryID, "resolve country", err)
			return nil
		}
		m.markMigrated("countries", res)
		return nil
	})
}

// runCities crosses the legacy locations table with every country id that
// venues actually reference, mirroring how listings will look cities up
// later. Unknown location codes resolve to nothing and count as migrated.
func (m *Migrator) runCities(ctx context.Context, res *PhaseResult) error {
	countryIDs, err := m.src.DistinctVenueCountryIDs(ctx)
	if err != nil {
		return fmt.Errorf("list venue countries: %w", err)
	}
	if len(countryIDs) == 0 {
		m.logger.Warn("No venue countries found, cities phase is a no-op")
		return nil
	}

	return m.src.ForEachLocation(ctx, func(l *source.LegacyLocation) error {
		for _, countryID := range countryIDs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := m.locations.ResolveCity(ctx, l.LocationID, countryID); err != nil {
				m.markFailed("cities", res, l.LocationID, "resolve city", err)
				continue
			}
			m.markMigrated("cities", res)
		}
		return nil
	})
}

// logIssues emits one warning line listing the cleaner's findings for a
// record, matching the per-record diagnostic style of the rest of the run.
func (m *Migrator) logIssues(phase string, legacyID int64, issues []string) {
	if len(issues) == 0 {
		return
	}
	m.logger.Warn("Data issues found",
		zap.String("phase", phase),
		zap.Int64("legacy_id", legacyID),
		zap.Strings("issues", issues))
}
