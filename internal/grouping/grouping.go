// Package grouping decides how a legacy owner's venues fold into V2
// merchant profiles. The strategy is picked once at startup; every venue
// then resolves to exactly one profile through a get-or-create keyed by
// the strategy's grouping attribute.
package grouping

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zoea-africa/v2-migrate/internal/location"
	"github.com/zoea-africa/v2-migrate/internal/refdata"
	"github.com/zoea-africa/v2-migrate/internal/source"
	"github.com/zoea-africa/v2-migrate/internal/target"
)

// Strategy selects the venue-to-profile fold.
type Strategy string

const (
	// OnePerVenue creates a dedicated profile per venue, keyed by business name.
	OnePerVenue Strategy = "one_per_venue"
	// GroupByCategory shares a profile between an owner's venues of the same
	// business type.
	GroupByCategory Strategy = "group_by_category"
	// SinglePerUser folds all of an owner's venues into one profile.
	SinglePerUser Strategy = "single_per_user"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case OnePerVenue, GroupByCategory, SinglePerUser:
		return Strategy(s), nil
	case "":
		return OnePerVenue, nil
	}
	return "", fmt.Errorf("unknown grouping strategy %q", s)
}

// Grouper resolves merchant profiles for venues under one strategy.
type Grouper struct {
	store     *target.Store
	locations *location.Mapper
	tables    *refdata.Tables
	strategy  Strategy
	logger    *zap.Logger
}

func New(store *target.Store, locations *location.Mapper, tables *refdata.Tables, strategy Strategy, logger *zap.Logger) *Grouper {
	return &Grouper{
		store:     store,
		locations: locations,
		tables:    tables,
		strategy:  strategy,
		logger:    logger.With(zap.String("component", "grouper")),
	}
}

// ProfileFor returns the merchant profile the venue's listing should hang
// off, creating it on first sight. Migrated profiles are created approved
// and verified; the businesses were already live on the legacy platform.
func (g *Grouper) ProfileFor(ctx context.Context, ownerID string, v *source.LegacyVenue) (*target.MerchantProfile, error) {
	switch g.strategy {
	case GroupByCategory:
		businessType := ""
		if v.CategoryID.Valid {
			businessType = g.tables.BusinessType(v.CategoryID.Int64)
		}
		if businessType == "" {
			// No type to group on; fall back to a per-venue profile.
			return g.byName(ctx, ownerID, v, g.businessName(v))
		}
		existing, err := g.store.MerchantProfileByUserAndType(ctx, ownerID, businessType)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		name := truncate(g.businessName(v)+" (Business)", 255)
		return g.create(ctx, ownerID, v, name, &businessType)

	case SinglePerUser:
		existing, err := g.store.FirstMerchantProfileByUser(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		return g.create(ctx, ownerID, v, g.businessName(v), nil)

	default:
		return g.byName(ctx, ownerID, v, g.businessName(v))
	}
}

func (g *Grouper) byName(ctx context.Context, ownerID string, v *source.LegacyVenue, name string) (*target.MerchantProfile, error) {
	existing, err := g.store.MerchantProfileByUserAndName(ctx, ownerID, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return g.create(ctx, ownerID, v, name, nil)
}

func (g *Grouper) create(ctx context.Context, ownerID string, v *source.LegacyVenue, name string, businessType *string) (*target.MerchantProfile, error) {
	now := time.Now()
	profile := &target.MerchantProfile{
		UserID:             ownerID,
		BusinessName:       truncate(name, 255),
		BusinessType:       businessType,
		BusinessEmail:      truncPtr(v.Email, 255),
		BusinessPhone:      truncPtr(v.Phone, 20),
		Website:            truncPtr(v.Website, 500),
		RegistrationStatus: "approved",
		IsVerified:         true,
		SubmittedAt:        &now,
		VerifiedAt:         &now,
	}

	if v.CountryID.Valid {
		countryID, err := g.locations.ResolveCountry(ctx, v.CountryID.Int64)
		if err != nil {
			return nil, fmt.Errorf("resolve country for venue %d: %w", v.VenueID, err)
		}
		if countryID != "" {
			profile.CountryID = &countryID
			if v.LocationID.Valid {
				cityID, err := g.locations.ResolveCity(ctx, v.LocationID.Int64, v.CountryID.Int64)
				if err != nil {
					return nil, fmt.Errorf("resolve city for venue %d: %w", v.VenueID, err)
				}
				if cityID != "" {
					profile.CityID = &cityID
				}
			}
		}
	}

	if err := g.store.CreateMerchantProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("create merchant profile for venue %d: %w", v.VenueID, err)
	}
	g.logger.Info("Created merchant profile",
		zap.String("business_name", profile.BusinessName),
		zap.String("user_id", ownerID),
		zap.String("strategy", string(g.strategy)))
	return profile, nil
}

// businessName prefers the venue's own name and never returns empty.
func (g *Grouper) businessName(v *source.LegacyVenue) string {
	if v.Name.Valid && v.Name.String != "" {
		return truncate(v.Name.String, 255)
	}
	return fmt.Sprintf("Business %d", v.VenueID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncPtr(ns sql.NullString, n int) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := truncate(ns.String, n)
	return &t
}
