package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/zoea-africa/v2-migrate/internal/clean"
	"github.com/zoea-africa/v2-migrate/internal/location"
	"github.com/zoea-africa/v2-migrate/internal/media"
	"github.com/zoea-africa/v2-migrate/internal/source"
	"github.com/zoea-africa/v2-migrate/internal/target"
)

// defaultOperatingHours is used when the legacy working_hours column holds
// free text instead of a weekly schedule.
const defaultOperatingHours = `{"monday":{"open":"09:00","close":"18:00","closed":false},` +
	`"tuesday":{"open":"09:00","close":"18:00","closed":false},` +
	`"wednesday":{"open":"09:00","close":"18:00","closed":false},` +
	`"thursday":{"open":"09:00","close":"18:00","closed":false},` +
	`"friday":{"open":"09:00","close":"18:00","closed":false},` +
	`"saturday":{"open":"09:00","close":"18:00","closed":false},` +
	`"sunday":{"open":"09:00","close":"18:00","closed":false}}`

// runVenues processes venues owner by owner so an owner's merchant profiles
// exist before their listings. Ownership groups are independent of each
// other and fan out to the pool.
func (m *Migrator) runVenues(ctx context.Context, res *PhaseResult) error {
	byOwner := make(map[int64][]*source.LegacyVenue)
	var owners []int64
	err := m.src.ForEachVenue(ctx, func(v *source.LegacyVenue) error {
		if _, seen := byOwner[v.UserID]; !seen {
			owners = append(owners, v.UserID)
		}
		byOwner[v.UserID] = append(byOwner[v.UserID], v)
		return ctx.Err()
	})
	if err != nil {
		return err
	}

	var total int64
	for _, vs := range byOwner {
		total += int64(len(vs))
	}
	bar := m.progressBar(total)
	defer finish(bar)

	return m.pool(ctx, func(submit func(func())) error {
		for _, ownerID := range owners {
			ownerID := ownerID
			venues := byOwner[ownerID]
			submit(func() {
				m.migrateOwnerVenues(ctx, ownerID, venues, res, bar)
			})
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Migrator) migrateOwnerVenues(ctx context.Context, ownerID int64, venues []*source.LegacyVenue, res *PhaseResult, bar *pb.ProgressBar) {
	owner, synthesized := m.ensureOwner(ctx, ownerID, venues)
	// A venue is never dropped: with no owner at all the listing still goes
	// in, parked inactive with no merchant attached.
	forceInactive := synthesized || owner == nil

	for _, v := range venues {
		func() {
			defer tick(bar)

			existing, err := m.store.ListingByLegacyID(ctx, v.VenueID)
			if err != nil {
				m.markFailed("venues", res, v.VenueID, "legacy id lookup", err)
				return
			}
			if existing != nil {
				m.markSkipped("venues", res, v.VenueID)
				return
			}

			var merchantID *string
			if owner != nil {
				profile, err := m.grouper.ProfileFor(ctx, owner.ID, v)
				if err != nil {
					m.logger.Warn("Merchant profile unavailable, listing goes in without one",
						zap.Int64("venue_id", v.VenueID),
						zap.Error(err))
				} else {
					merchantID = &profile.ID
				}
			}

			if err := m.migrateVenueToListing(ctx, v, merchantID, forceInactive); err != nil {
				m.markFailed("venues", res, v.VenueID, "create listing", err)
				return
			}
			m.markMigrated("venues", res)
		}()
	}
}

// ensureOwner finds the venue owner's V2 account, synthesizing one from
// venue data when the legacy users table never had the row. The second
// return reports whether synthesis happened.
func (m *Migrator) ensureOwner(ctx context.Context, ownerID int64, venues []*source.LegacyVenue) (*target.User, bool) {
	owner, err := m.store.UserByLegacyID(ctx, ownerID)
	if err != nil {
		m.logger.Error("Owner lookup failed", zap.Int64("legacy_user_id", ownerID), zap.Error(err))
		return nil, false
	}
	if owner != nil {
		return owner, false
	}

	m.logger.Warn("Venue owner missing, synthesizing from venue data",
		zap.Int64("legacy_user_id", ownerID))

	// Prefer the venue with the most usable identity data.
	seed := venues[0]
	for _, v := range venues {
		if v.Name.Valid && (v.Phone.Valid || v.Email.Valid) {
			seed = v
			break
		}
		if (v.Name.Valid || v.Phone.Valid || v.Email.Valid) && !(seed.Name.Valid || seed.Phone.Valid || seed.Email.Valid) {
			seed = v
		}
	}

	if owner := m.ownerFromVenue(ctx, ownerID, seed); owner != nil {
		m.metrics.RecordOwnerSynthesized()
		return owner, true
	}

	// Venue data was unusable too; last resort is a bare placeholder that
	// at least anchors the merchant relationship.
	minimal := &target.User{
		LegacyID:         &ownerID,
		FullName:         fmt.Sprintf("Business Owner %d", ownerID),
		PasswordHash:     m.defaultHash(),
		PasswordMigrated: true,
		Roles:            roleMerchant,
		IsActive:         false,
	}
	outcome, err := m.resolver.CreateUser(ctx, minimal)
	if err != nil {
		m.logger.Error("Failed to create minimal owner",
			zap.Int64("legacy_user_id", ownerID),
			zap.Error(err))
		return nil, false
	}
	m.metrics.RecordOwnerSynthesized()
	return outcome.User, true
}

// ownerFromVenue builds an inactive merchant account out of the venue's own
// contact columns.
func (m *Migrator) ownerFromVenue(ctx context.Context, ownerID int64, v *source.LegacyVenue) *target.User {
	name := strings.TrimSpace(v.Name.String)
	if name == "" {
		name = fmt.Sprintf("Business %d", ownerID)
	}
	first, last := splitName(name)

	var phone *string
	if normalized := clean.NormalizePhone(v.Phone.String, m.tables.Defaults.PhonePrefix[:3]); normalized != "" {
		phone = &normalized
	}
	var email *string
	if e := strings.TrimSpace(v.Email.String); e != "" {
		email = &e
	}

	user := &target.User{
		LegacyID:         &ownerID,
		Email:            email,
		PhoneNumber:      phone,
		FirstName:        first,
		LastName:         last,
		FullName:         name,
		PasswordHash:     m.defaultHash(),
		PasswordMigrated: true,
		Roles:            roleMerchant,
		IsActive:         false,
	}
	outcome, err := m.resolver.CreateUser(ctx, user)
	if err != nil {
		m.logger.Error("Failed to create owner from venue data",
			zap.Int64("legacy_user_id", ownerID),
			zap.Error(err))
		return nil
	}
	return outcome.User
}

// migrateVenueToListing writes the listing cascade (listing, geo update,
// image links) in one transaction so a partial venue is never visible.
func (m *Migrator) migrateVenueToListing(ctx context.Context, v *source.LegacyVenue, merchantID *string, forceInactive bool) error {
	name := strings.TrimSpace(v.Name.String)
	if name == "" {
		name = fmt.Sprintf("Venue %d", v.VenueID)
	}

	var countryID, cityID *string
	if v.CountryID.Valid {
		id, err := m.locations.ResolveCountry(ctx, v.CountryID.Int64)
		if err != nil {
			return fmt.Errorf("resolve country: %w", err)
		}
		if id != "" {
			countryID = &id
			if v.LocationID.Valid {
				cid, err := m.locations.ResolveCity(ctx, v.LocationID.Int64, v.CountryID.Int64)
				if err != nil {
					return fmt.Errorf("resolve city: %w", err)
				}
				if cid != "" {
					cityID = &cid
				}
			}
		}
	}

	slug := venueSlug(v, name)
	hours := operatingHours(v.WorkingHours.String)
	status := listingStatus(v, forceInactive)

	var price *float64
	if v.Price.Valid {
		if p, err := strconv.ParseFloat(strings.TrimSpace(v.Price.String), 64); err == nil {
			price = &p
		}
	}
	var rating float64
	if v.Rating.Valid {
		if r, err := strconv.ParseFloat(strings.TrimSpace(v.Rating.String), 64); err == nil {
			rating = r / 5.0
		}
	}
	var reviewCount int
	if v.Reviews.Valid {
		reviewCount = int(v.Reviews.Int64)
	}

	return m.store.WithTransaction(ctx, func(tx *target.Store) error {
		var primaryImageID *string
		if v.Image.Valid {
			id, err := m.verifier.CreateFromLegacyPath(ctx, tx, v.Image.String, media.Options{
				AltText:  name,
				Category: "venue",
			})
			if err != nil {
				return err
			}
			primaryImageID = id
		}

		listing := &target.Listing{
			LegacyID:         &v.VenueID,
			MerchantID:       merchantID,
			Name:             trunc(name, 255),
			Slug:             slug,
			Description:      truncNullable(v.About.String, 5000),
			ShortDescription: truncNullable(v.About.String, 500),
			CountryID:        countryID,
			CityID:           cityID,
			Address:          truncNullable(v.Address.String, 500),
			MinPrice:         price,
			MaxPrice:         price,
			Currency:         m.tables.Defaults.Currency,
			ContactPhone:     truncNullable(v.Phone.String, 20),
			ContactEmail:     truncNullable(v.Email.String, 255),
			Website:          truncNullable(v.Website.String, 500),
			OperatingHours:   hours,
			Rating:           rating,
			ReviewCount:      reviewCount,
			Status:           status,
			CreatedAt:        legacyTime(v.TimeAdded, time.Now()),
		}
		if err := tx.CreateListing(ctx, listing); err != nil {
			return fmt.Errorf("create listing: %w", err)
		}

		if lat, lng, ok := clean.Coordinates(v.Coordinates.String); ok {
			point := fmt.Sprintf("POINT(%g %g)", lng, lat)
			if err := tx.SetListingLocation(ctx, listing.ID, point); err != nil {
				return fmt.Errorf("set listing location: %w", err)
			}
		}

		if primaryImageID != nil {
			if err := tx.CreateListingImage(ctx, &target.ListingImage{
				ListingID: listing.ID,
				MediaID:   *primaryImageID,
				IsPrimary: true,
				SortOrder: 0,
			}); err != nil {
				return fmt.Errorf("link primary image: %w", err)
			}
		}

		if v.BannerURL.Valid {
			bannerID, err := m.verifier.CreateFromLegacyPath(ctx, tx, v.BannerURL.String, media.Options{
				AltText:  name + " banner",
				Category: "venue",
			})
			if err != nil {
				return err
			}
			if bannerID != nil {
				if err := tx.CreateListingImage(ctx, &target.ListingImage{
					ListingID: listing.ID,
					MediaID:   *bannerID,
					IsPrimary: false,
					SortOrder: 1,
				}); err != nil {
					return fmt.Errorf("link banner image: %w", err)
				}
			}
		}

		m.logger.Info("Migrated venue",
			zap.Int64("venue_id", v.VenueID),
			zap.String("listing_id", listing.ID),
			zap.String("status", status))
		return nil
	})
}

// RunRepair re-runs the venue cascade for a single legacy owner, used when
// one owner's listings failed in a prior full run. The owner must already
// exist in the target store.
func (m *Migrator) RunRepair(ctx context.Context, legacyUserID int64) (*PhaseResult, error) {
	owner, err := m.store.UserByLegacyID(ctx, legacyUserID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, fmt.Errorf("legacy user %d not found in target store, run the users phase first", legacyUserID)
	}

	venues, err := m.src.VenuesByOwner(ctx, legacyUserID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Repair run",
		zap.Int64("legacy_user_id", legacyUserID),
		zap.Int("venues", len(venues)))

	res := &PhaseResult{}
	for _, v := range venues {
		existing, err := m.store.ListingByLegacyID(ctx, v.VenueID)
		if err != nil {
			m.markFailed("venues", res, v.VenueID, "legacy id lookup", err)
			continue
		}
		if existing != nil {
			m.markSkipped("venues", res, v.VenueID)
			continue
		}

		var merchantID *string
		if profile, err := m.grouper.ProfileFor(ctx, owner.ID, v); err == nil {
			merchantID = &profile.ID
		}
		if err := m.migrateVenueToListing(ctx, v, merchantID, false); err != nil {
			m.markFailed("venues", res, v.VenueID, "create listing", err)
			continue
		}
		m.markMigrated("venues", res)
	}
	return res, nil
}

func (m *Migrator) defaultHash() string {
	hash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		// bcrypt only fails on an invalid cost, which is constant here.
		panic(err)
	}
	return string(hash)
}

func venueSlug(v *source.LegacyVenue, name string) string {
	if v.Code.Valid && strings.TrimSpace(v.Code.String) != "" {
		return trunc(strings.TrimSpace(v.Code.String), 255)
	}
	if s := location.Slugify(name); s != "" {
		return trunc(s, 255)
	}
	return fmt.Sprintf("venue-%d", v.VenueID)
}

// operatingHours keeps the column when it already holds JSON and otherwise
// substitutes a standard 09:00-18:00 week.
func operatingHours(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return &s
	}
	def := defaultOperatingHours
	return &def
}

func listingStatus(v *source.LegacyVenue, forceInactive bool) string {
	hasGoodData := v.Name.Valid && strings.TrimSpace(v.Name.String) != "" &&
		(v.Phone.Valid || v.Email.Valid)
	if forceInactive || !hasGoodData {
		return target.StatusInactive
	}
	if v.Status.String == "active" {
		return target.StatusActive
	}
	return target.StatusPendingReview
}

func splitName(full string) (first, last *string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return nil, nil
	}
	f := parts[0]
	first = &f
	if len(parts) > 1 {
		l := strings.Join(parts[1:], " ")
		last = &l
	}
	return first, last
}

func trunc(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func truncNullable(s string, n int) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t := trunc(s, n)
	return &t
}
