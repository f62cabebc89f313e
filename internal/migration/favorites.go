package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zoea-africa/v2-migrate/internal/source"
	"github.com/zoea-africa/v2-migrate/internal/target"
)

func (m *Migrator) runFavorites(ctx context.Context, res *PhaseResult) error {
	total, err := m.src.CountRows(ctx, "favorites")
	if err != nil {
		return fmt.Errorf("count favorites: %w", err)
	}
	bar := m.progressBar(total)
	defer finish(bar)

	// The legacy table holds duplicate (user, venue) pairs; only the first
	// occurrence in scan order is migrated. Tracked on the feed goroutine,
	// which is the only one walking the cursor.
	seen := make(map[[2]int64]bool)

	return m.pool(ctx, func(submit func(func())) error {
		return m.src.ForEachFavorite(ctx, func(f *source.LegacyFavorite) error {
			key := [2]int64{f.UserID, f.VenueID}
			if seen[key] {
				tick(bar)
				m.markSkipped("favorites", res, f.FavoriteID)
				return ctx.Err()
			}
			seen[key] = true

			submit(func() {
				defer tick(bar)
				m.migrateFavorite(ctx, f, res)
			})
			return ctx.Err()
		})
	})
}

func (m *Migrator) migrateFavorite(ctx context.Context, f *source.LegacyFavorite, res *PhaseResult) {
	existing, err := m.store.FavoriteByLegacyID(ctx, f.FavoriteID)
	if err != nil {
		m.markFailed("favorites", res, f.FavoriteID, "legacy id lookup", err)
		return
	}
	if existing != nil {
		m.markSkipped("favorites", res, f.FavoriteID)
		return
	}

	user, err := m.store.UserByLegacyID(ctx, f.UserID)
	if err != nil {
		m.markFailed("favorites", res, f.FavoriteID, "user lookup", err)
		return
	}
	if user == nil {
		m.markFailed("favorites", res, f.FavoriteID,
			fmt.Sprintf("user %d not migrated", f.UserID), nil)
		return
	}

	listing, err := m.store.ListingByLegacyID(ctx, f.VenueID)
	if err != nil {
		m.markFailed("favorites", res, f.FavoriteID, "listing lookup", err)
		return
	}
	if listing == nil {
		m.markFailed("favorites", res, f.FavoriteID,
			fmt.Sprintf("listing for venue %d not migrated", f.VenueID), nil)
		return
	}

	// The same pair may already exist from app usage after launch; adopt it
	// by attaching the legacy id instead of violating the unique pair.
	pair, err := m.store.FavoriteByUserAndListing(ctx, user.ID, listing.ID)
	if err != nil {
		m.markFailed("favorites", res, f.FavoriteID, "pair lookup", err)
		return
	}
	if pair != nil {
		if pair.LegacyID == nil {
			// A lost attach race means another record claimed the pair;
			// either way the pair is present, which is all this phase owes.
			if _, err := m.store.AttachFavoriteLegacyID(ctx, pair.ID, f.FavoriteID); err != nil {
				m.markFailed("favorites", res, f.FavoriteID, "attach legacy id", err)
				return
			}
		}
		m.markMigrated("favorites", res)
		return
	}

	fav := &target.Favorite{
		LegacyID:  &f.FavoriteID,
		UserID:    user.ID,
		ListingID: listing.ID,
	}
	if err := m.store.CreateFavorite(ctx, fav); err != nil {
		m.markFailed("favorites", res, f.FavoriteID, "create favorite", err)
		return
	}

	m.logger.Info("Migrated favorite",
		zap.Int64("legacy_id", f.FavoriteID),
		zap.String("favorite_id", fav.ID))
	m.markMigrated("favorites", res)
}
