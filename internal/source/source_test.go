package source

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// legacySchema mirrors the V1 tables closely enough for cursor tests.
const legacySchema = `
CREATE TABLE users (
	user_id INTEGER PRIMARY KEY,
	user_email TEXT, user_phone TEXT, user_fname TEXT, user_lname TEXT,
	user_gender TEXT, user_location TEXT, user_age TEXT, user_password TEXT,
	user_status TEXT, account_type TEXT, user_reg_date TEXT,
	user_profile_picture TEXT, user_profile_cover TEXT, country_code TEXT
);
CREATE TABLE venues (
	venue_id INTEGER PRIMARY KEY,
	user_id INTEGER, venue_name TEXT, venue_code TEXT, category_id INTEGER,
	venue_email TEXT, venue_phone TEXT, venue_website TEXT,
	country_id INTEGER, location_id INTEGER, venue_coordinates TEXT,
	venue_about TEXT, venue_address TEXT, venue_price TEXT, venue_rating TEXT,
	venue_reviews INTEGER, venue_status TEXT, venue_image TEXT,
	banner_url TEXT, working_hours TEXT, time_added TEXT
);
CREATE TABLE bookings (
	booking_id INTEGER PRIMARY KEY,
	user_id INTEGER, venue_id INTEGER, booking_no TEXT, booking_status TEXT,
	checkin_date TEXT, checkout_date TEXT, adults INTEGER, children INTEGER,
	additional_request TEXT, payment_status TEXT, booking_time TEXT
);
CREATE TABLE reviews (
	review_id INTEGER PRIMARY KEY,
	user_id INTEGER, venue_id INTEGER, rating TEXT, review TEXT,
	review_status TEXT, review_time TEXT
);
CREATE TABLE favorites (
	favorite_id INTEGER PRIMARY KEY,
	user_id INTEGER, venue_id INTEGER
);
CREATE TABLE countries (country_id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE locations (location_id INTEGER PRIMARY KEY, location_name TEXT);
`

func openFixture(t *testing.T) *DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "legacy.db")

	raw, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	_, err = raw.Exec(legacySchema)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := Open(context.Background(), "sqlite3", dsn, 1, time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func (s *DB) exec(t *testing.T, query string, args ...any) {
	t.Helper()
	_, err := s.db.Exec(query, args...)
	require.NoError(t, err)
}

func TestOpenRetriesThenFails(t *testing.T) {
	// A bogus mysql endpoint is unreachable; Open must exhaust retries and
	// return an error rather than hang.
	start := time.Now()
	_, err := Open(context.Background(), "mysql",
		"root:pw@tcp(127.0.0.1:1)/nope?timeout=100ms", 2, 10*time.Millisecond, zap.NewNop())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestForEachUserStreamsAllRows(t *testing.T) {
	db := openFixture(t)
	for i := 1; i <= 3; i++ {
		db.exec(t, `INSERT INTO users (user_id, user_email, user_phone) VALUES (?, ?, ?)`,
			i, fmt.Sprintf("u%d@example.com", i), nil)
	}

	var seen []int64
	err := db.ForEachUser(context.Background(), func(u *LegacyUser) error {
		seen = append(seen, u.UserID)
		if u.UserID == 2 {
			assert.Equal(t, "u2@example.com", u.Email.String)
			assert.False(t, u.Phone.Valid)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, seen)
}

func TestForEachUserStopsOnCallbackError(t *testing.T) {
	db := openFixture(t)
	db.exec(t, `INSERT INTO users (user_id) VALUES (1)`)
	db.exec(t, `INSERT INTO users (user_id) VALUES (2)`)

	calls := 0
	err := db.ForEachUser(context.Background(), func(u *LegacyUser) error {
		calls++
		return fmt.Errorf("stop here")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestVenueCursorAndOwnerLookup(t *testing.T) {
	db := openFixture(t)
	db.exec(t, `INSERT INTO venues (venue_id, user_id, venue_name, country_id, location_id, venue_coordinates)
		VALUES (7, 1, 'Anda Lounge', 1, 1, '-1.95,30.06')`)
	db.exec(t, `INSERT INTO venues (venue_id, user_id, venue_name, country_id) VALUES (8, 2, 'Kivu Bar', 3)`)

	var order []int64
	err := db.ForEachVenue(context.Background(), func(v *LegacyVenue) error {
		order = append(order, v.VenueID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, order)

	mine, err := db.VenuesByOwner(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Anda Lounge", mine[0].Name.String)
	assert.Equal(t, "-1.95,30.06", mine[0].Coordinates.String)
	assert.False(t, mine[0].Phone.Valid)

	ids, err := db.DistinctVenueCountryIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestBookingDatesStayRaw(t *testing.T) {
	db := openFixture(t)
	db.exec(t, `INSERT INTO bookings (booking_id, user_id, venue_id, checkin_date, booking_status)
		VALUES (5, 1, 7, '0000-00-00', 'Booked')`)

	err := db.ForEachBooking(context.Background(), func(b *LegacyBooking) error {
		// The sentinel date must survive extraction untouched so the
		// writer can repair it.
		assert.Equal(t, "0000-00-00", b.CheckinDate.String)
		assert.Equal(t, "Booked", b.Status.String)
		return nil
	})
	require.NoError(t, err)
}

func TestCountRows(t *testing.T) {
	db := openFixture(t)
	db.exec(t, `INSERT INTO countries (country_id, name) VALUES (1, 'Rwanda')`)
	db.exec(t, `INSERT INTO countries (country_id, name) VALUES (3, 'Uganda')`)

	n, err := db.CountRows(context.Background(), "countries")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = db.CountRows(context.Background(), "users; DROP TABLE users")
	assert.Error(t, err)
}
