// Package location resolves legacy numeric country and location codes into
// canonical V2 country and city rows, creating them on first use. Both
// resolvers are idempotent: find by natural key first, create only if absent.
package location

import (
	"context"

	"go.uber.org/zap"

	"github.com/zoea-africa/v2-migrate/internal/refdata"
	"github.com/zoea-africa/v2-migrate/internal/target"
)

// Mapper performs country/city get-or-create against the target store.
type Mapper struct {
	store  *target.Store
	tables *refdata.Tables
	logger *zap.Logger
}

func NewMapper(store *target.Store, tables *refdata.Tables, logger *zap.Logger) *Mapper {
	return &Mapper{
		store:  store,
		tables: tables,
		logger: logger.With(zap.String("component", "location_mapper")),
	}
}

// ResolveCountry returns the V2 country id for a legacy country code,
// creating the country with canonical defaults when the target store does
// not have it yet. Unknown legacy codes return "" and are logged, not fatal.
func (m *Mapper) ResolveCountry(ctx context.Context, legacyCode int64) (string, error) {
	info, ok := m.tables.CountryByLegacyCode(legacyCode)
	if !ok {
		m.logger.Warn("Unknown legacy country code", zap.Int64("country_id", legacyCode))
		return "", nil
	}

	existing, err := m.store.CountryByCode(ctx, info.Code)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	country := &target.Country{
		Name:            info.Name,
		Code:            info.Code,
		Code2:           info.Code2,
		DefaultLanguage: "en",
		CurrencyCode:    info.Currency,
		PhoneCode:       info.PhoneCode,
		IsActive:        true,
	}
	if err := m.store.CreateCountry(ctx, country); err != nil {
		if target.IsDuplicateKey(err) {
			// Lost a get-or-create race with another worker; the row is
			// there now.
			existing, findErr := m.store.CountryByCode(ctx, info.Code)
			if findErr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return "", err
	}

	m.logger.Info("Created country",
		zap.String("code", info.Code),
		zap.String("id", country.ID))
	return country.ID, nil
}

// ResolveCity returns the V2 city id for a legacy (location, country) pair,
// scoped under the resolved country and keyed by a slug of the canonical
// location name. Unknown codes return "" and are logged.
func (m *Mapper) ResolveCity(ctx context.Context, legacyLocationCode, legacyCountryCode int64) (string, error) {
	name, ok := m.tables.LocationName(legacyLocationCode)
	if !ok {
		m.logger.Warn("Unknown legacy location code", zap.Int64("location_id", legacyLocationCode))
		return "", nil
	}

	countryID, err := m.ResolveCountry(ctx, legacyCountryCode)
	if err != nil || countryID == "" {
		return "", err
	}

	slug := Slugify(name)

	existing, err := m.store.CityBySlug(ctx, countryID, slug)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	city := &target.City{
		CountryID: countryID,
		Name:      name,
		Slug:      slug,
		IsActive:  true,
	}
	if err := m.store.CreateCity(ctx, city); err != nil {
		if target.IsDuplicateKey(err) {
			existing, findErr := m.store.CityBySlug(ctx, countryID, slug)
			if findErr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return "", err
	}

	m.logger.Info("Created city",
		zap.String("slug", slug),
		zap.String("country_id", countryID),
		zap.String("id", city.ID))
	return city.ID, nil
}
