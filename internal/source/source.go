// Package source owns the single connection to the legacy V1 database and
// streams full-table reads for each entity class. Rows are decoded into typed
// structs with nullable columns preserved; cleaning happens downstream.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// DB wraps the legacy connection. It is owned exclusively by the extractor:
// workers never touch it directly, they receive decoded rows.
type DB struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to the legacy store with bounded retries. The legacy host is
// often a long-lived MariaDB box that takes a moment to accept connections
// after restarts, so a connect failure is retried before being surfaced as a
// fatal run abort.
func Open(ctx context.Context, driver, dsn string, retries int, backoff time.Duration, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}

	// One connection: full-table cursors are sequential per phase and the
	// legacy box does not tolerate connection storms.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	var pingErr error
	for attempt := 1; attempt <= retries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr = db.PingContext(pingCtx)
		cancel()

		if pingErr == nil {
			logger.Info("Connected to legacy database",
				zap.String("driver", driver),
				zap.Int("attempt", attempt))
			return &DB{db: db, logger: logger}, nil
		}

		logger.Warn("Legacy database not reachable, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", retries),
			zap.Error(pingErr))

		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	db.Close()
	return nil, fmt.Errorf("legacy database unreachable after %d attempts: %w", retries, pingErr)
}

func (s *DB) Close() error {
	return s.db.Close()
}

// LegacyUser is one row of the V1 users table.
type LegacyUser struct {
	UserID         int64
	Email          sql.NullString
	Phone          sql.NullString
	FirstName      sql.NullString
	LastName       sql.NullString
	Gender         sql.NullString
	Location       sql.NullString
	Age            sql.NullString
	Password       sql.NullString
	Status         sql.NullString
	AccountType    sql.NullString
	RegDate        sql.NullString
	ProfilePicture sql.NullString
	ProfileCover   sql.NullString
	CountryCode    sql.NullString
}

// LegacyVenue is one row of the V1 venues table.
type LegacyVenue struct {
	VenueID      int64
	UserID       int64
	Name         sql.NullString
	Code         sql.NullString
	CategoryID   sql.NullInt64
	Email        sql.NullString
	Phone        sql.NullString
	Website      sql.NullString
	CountryID    sql.NullInt64
	LocationID   sql.NullInt64
	Coordinates  sql.NullString
	About        sql.NullString
	Address      sql.NullString
	Price        sql.NullString
	Rating       sql.NullString
	Reviews      sql.NullInt64
	Status       sql.NullString
	Image        sql.NullString
	BannerURL    sql.NullString
	WorkingHours sql.NullString
	TimeAdded    sql.NullString
}

// LegacyBooking is one row of the V1 bookings table. Dates are read as text
// because the legacy store holds '0000-00-00' sentinels that fail time.Time
// decoding; downstream parsing repairs them.
type LegacyBooking struct {
	BookingID         int64
	UserID            int64
	VenueID           int64
	BookingNo         sql.NullString
	Status            sql.NullString
	CheckinDate       sql.NullString
	CheckoutDate      sql.NullString
	Adults            sql.NullInt64
	Children          sql.NullInt64
	AdditionalRequest sql.NullString
	PaymentStatus     sql.NullString
	BookingTime       sql.NullString
}

// LegacyReview is one row of the V1 reviews table.
type LegacyReview struct {
	ReviewID   int64
	UserID     int64
	VenueID    int64
	Rating     sql.NullString
	Review     sql.NullString
	Status     sql.NullString
	ReviewTime sql.NullString
}

// LegacyFavorite is one row of the V1 favorites table.
type LegacyFavorite struct {
	FavoriteID int64
	UserID     int64
	VenueID    int64
}

// LegacyCountry is one row of the V1 countries table.
type LegacyCountry struct {
	CountryID int64
	Name      sql.NullString
}

// LegacyLocation is one row of the V1 locations table.
type LegacyLocation struct {
	LocationID int64
	Name       sql.NullString
}

const userColumns = `user_id, user_email, user_phone, user_fname, user_lname,
	user_gender, user_location, user_age, user_password, user_status,
	account_type, user_reg_date, user_profile_picture, user_profile_cover,
	country_code`

// ForEachUser streams every legacy user through fn. The cursor holds one row
// in memory at a time; an error from fn stops the scan.
func (s *DB) ForEachUser(ctx context.Context, fn func(*LegacyUser) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY user_id`)
	if err != nil {
		return fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u LegacyUser
		if err := rows.Scan(
			&u.UserID, &u.Email, &u.Phone, &u.FirstName, &u.LastName,
			&u.Gender, &u.Location, &u.Age, &u.Password, &u.Status,
			&u.AccountType, &u.RegDate, &u.ProfilePicture, &u.ProfileCover,
			&u.CountryCode,
		); err != nil {
			return fmt.Errorf("scan user row: %w", err)
		}
		if err := fn(&u); err != nil {
			return err
		}
	}
	return rows.Err()
}

const venueColumns = `venue_id, user_id, venue_name, venue_code, category_id,
	venue_email, venue_phone, venue_website, country_id, location_id,
	venue_coordinates, venue_about, venue_address, venue_price, venue_rating,
	venue_reviews, venue_status, venue_image, banner_url, working_hours,
	time_added`

func scanVenue(rows *sql.Rows) (*LegacyVenue, error) {
	var v LegacyVenue
	if err := rows.Scan(
		&v.VenueID, &v.UserID, &v.Name, &v.Code, &v.CategoryID,
		&v.Email, &v.Phone, &v.Website, &v.CountryID, &v.LocationID,
		&v.Coordinates, &v.About, &v.Address, &v.Price, &v.Rating,
		&v.Reviews, &v.Status, &v.Image, &v.BannerURL, &v.WorkingHours,
		&v.TimeAdded,
	); err != nil {
		return nil, fmt.Errorf("scan venue row: %w", err)
	}
	return &v, nil
}

// ForEachVenue streams every legacy venue through fn, ordered by owner so
// downstream grouping sees one owner's venues contiguously.
func (s *DB) ForEachVenue(ctx context.Context, fn func(*LegacyVenue) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+venueColumns+` FROM venues ORDER BY user_id, venue_id`)
	if err != nil {
		return fmt.Errorf("query venues: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return rows.Err()
}

// VenuesByOwner returns one legacy owner's venues, used by the single-user
// repair run.
func (s *DB) VenuesByOwner(ctx context.Context, userID int64) ([]*LegacyVenue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+venueColumns+` FROM venues WHERE user_id = ? ORDER BY venue_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query venues for user %d: %w", userID, err)
	}
	defer rows.Close()

	var venues []*LegacyVenue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		venues = append(venues, v)
	}
	return venues, rows.Err()
}

// DistinctVenueCountryIDs lists the country codes actually referenced by
// venues; the cities phase only materializes city rows under those.
func (s *DB) DistinctVenueCountryIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT country_id FROM venues WHERE country_id IS NOT NULL ORDER BY country_id`)
	if err != nil {
		return nil, fmt.Errorf("query venue countries: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan country id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ForEachCountry streams the legacy countries table.
func (s *DB) ForEachCountry(ctx context.Context, fn func(*LegacyCountry) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT country_id, name FROM countries ORDER BY country_id`)
	if err != nil {
		return fmt.Errorf("query countries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c LegacyCountry
		if err := rows.Scan(&c.CountryID, &c.Name); err != nil {
			return fmt.Errorf("scan country row: %w", err)
		}
		if err := fn(&c); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ForEachLocation streams the legacy locations table.
func (s *DB) ForEachLocation(ctx context.Context, fn func(*LegacyLocation) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT location_id, location_name FROM locations ORDER BY location_id`)
	if err != nil {
		return fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l LegacyLocation
		if err := rows.Scan(&l.LocationID, &l.Name); err != nil {
			return fmt.Errorf("scan location row: %w", err)
		}
		if err := fn(&l); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ForEachBooking streams the legacy bookings table.
func (s *DB) ForEachBooking(ctx context.Context, fn func(*LegacyBooking) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT booking_id, user_id, venue_id, booking_no, booking_status,
		       checkin_date, checkout_date, adults, children,
		       additional_request, payment_status, booking_time
		FROM bookings ORDER BY booking_id`)
	if err != nil {
		return fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var b LegacyBooking
		if err := rows.Scan(
			&b.BookingID, &b.UserID, &b.VenueID, &b.BookingNo, &b.Status,
			&b.CheckinDate, &b.CheckoutDate, &b.Adults, &b.Children,
			&b.AdditionalRequest, &b.PaymentStatus, &b.BookingTime,
		); err != nil {
			return fmt.Errorf("scan booking row: %w", err)
		}
		if err := fn(&b); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ForEachReview streams the legacy reviews table.
func (s *DB) ForEachReview(ctx context.Context, fn func(*LegacyReview) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT review_id, user_id, venue_id, rating, review, review_status, review_time
		FROM reviews ORDER BY review_id`)
	if err != nil {
		return fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r LegacyReview
		if err := rows.Scan(
			&r.ReviewID, &r.UserID, &r.VenueID, &r.Rating, &r.Review,
			&r.Status, &r.ReviewTime,
		); err != nil {
			return fmt.Errorf("scan review row: %w", err)
		}
		if err := fn(&r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ForEachFavorite streams the legacy favorites table.
func (s *DB) ForEachFavorite(ctx context.Context, fn func(*LegacyFavorite) error) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT favorite_id, user_id, venue_id FROM favorites ORDER BY favorite_id`)
	if err != nil {
		return fmt.Errorf("query favorites: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f LegacyFavorite
		if err := rows.Scan(&f.FavoriteID, &f.UserID, &f.VenueID); err != nil {
			return fmt.Errorf("scan favorite row: %w", err)
		}
		if err := fn(&f); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountRows reports the row count of one legacy table, used to size progress
// bars. Table names come from a fixed internal set, never from input.
func (s *DB) CountRows(ctx context.Context, table string) (int64, error) {
	switch table {
	case "users", "venues", "bookings", "reviews", "favorites", "countries", "locations":
	default:
		return 0, fmt.Errorf("unknown legacy table %q", table)
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
