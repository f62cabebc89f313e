package migration

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zoea-africa/v2-migrate/internal/config"
	"github.com/zoea-africa/v2-migrate/internal/refdata"
	"github.com/zoea-africa/v2-migrate/internal/source"
	"github.com/zoea-africa/v2-migrate/internal/target"
)

const fixtureSchema = `
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

var fixtureData = []string{
	`INSERT INTO countries VALUES (1, 'Rwanda'), (5, 'Kenya')`,
	`INSERT INTO locations VALUES (1, 'Kigali'), (2, 'Musanze')`,

	// 1: clean merchant account. 2: email stored in the phone column.
	// 3: duplicate of 1's email with its own phone. 4: nothing usable.
	`INSERT INTO users (user_id, user_email, user_phone, user_fname, user_lname,
		user_status, account_type, user_age, user_reg_date, country_code) VALUES
		(1, 'alice@example.com', '0788111222', 'Alice', 'K', 'active', 'Merchant', '33', '2021-05-10 10:00:00', '250'),
		(2, NULL, 'bob@example.com', 'Bob', NULL, 'active', 'User', 'yes', '2021-06-01', '250'),
		(3, 'alice@example.com', '0788333444', 'Carla', 'M', 'active', 'User', NULL, NULL, '250'),
		(4, NULL, NULL, NULL, NULL, 'inactive', 'User', NULL, NULL, '250')`,

	// 10: healthy active venue. 11: owner 999 never existed in users.
	// 12: no name and no contact, same owner as 10.
	`INSERT INTO venues (venue_id, user_id, venue_name, category_id, venue_phone,
		country_id, location_id, venue_coordinates, venue_about, venue_price,
		venue_rating, venue_reviews, venue_status, working_hours, time_added) VALUES
		(10, 1, 'Kigali Heights', 5, '0788111222', 1, 1, '-1.95, 30.06',
		 'Rooftop restaurant with a view', '12000', '20', 7, 'active', '9-5 daily', '2020-03-01 09:00:00'),
		(11, 999, 'Ghost Bar', 26, '0788999888', 1, 1, NULL, NULL, NULL, NULL, NULL, 'active', NULL, NULL),
		(12, 1, NULL, NULL, NULL, 1, 2, 'not-coords', NULL, NULL, NULL, NULL, 'inactive', NULL, NULL)`,

	// 100 is healthy with a zero checkout date; 101 points at a venue that
	// never existed.
	`INSERT INTO bookings (booking_id, user_id, venue_id, booking_no, booking_status,
		checkin_date, checkout_date, adults, children, payment_status, booking_time) VALUES
		(100, 1, 10, '', 'Booked', '2022-01-05', '0000-00-00', 2, 1, 'Paid', '2022-01-01 08:00:00'),
		(101, 2, 9999, 'BK-X', 'Pending', NULL, NULL, 1, 0, 'Unpaid', NULL)`,

	// 201 holds a phone number where the text should be.
	`INSERT INTO reviews (review_id, user_id, venue_id, rating, review, review_status, review_time) VALUES
		(200, 1, 10, '4', 'Great place', 'Approved', '2022-02-01 12:00:00'),
		(201, 2, 10, '9', '0788 123 456', '', NULL)`,

	// 300/301 are the same pair twice.
	`INSERT INTO favorites (favorite_id, user_id, venue_id) VALUES
		(300, 1, 10), (301, 1, 10), (302, 2, 10)`,
}

func testConfig() *config.Config {
	return &config.Config{
		Workers:          1,
		GroupingStrategy: "one_per_venue",
		// Connection refused immediately; asset probes fail fast and the
		// parent records still migrate.
		AssetBaseURL:    "http://127.0.0.1:1/",
		AssetTimeoutSec: 1,
		Progress:        false,
	}
}

func newMigrator(t *testing.T, cfg *config.Config) (*Migrator, *target.Store) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "legacy.db")
	raw, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	_, err = raw.Exec(fixtureSchema)
	require.NoError(t, err)
	for _, stmt := range fixtureData {
		_, err = raw.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, raw.Close())

	src, err := source.Open(context.Background(), "sqlite3", dsn, 1, time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	store, err := target.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tables, err := refdata.Load("")
	require.NoError(t, err)

	m, err := New(cfg, src, store, tables, NewCollector(prometheus.NewRegistry()), zap.NewNop())
	require.NoError(t, err)
	return m, store
}

func TestFullRun(t *testing.T) {
	m, store := newMigrator(t, testConfig())
	ctx := context.Background()

	report, err := m.Run(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 2, report.Phase("countries").Success())
	assert.EqualValues(t, 2, report.Phase("cities").Success())
	assert.EqualValues(t, 4, report.Phase("users").Success())
	assert.EqualValues(t, 3, report.Phase("venues").Success())
	assert.EqualValues(t, 1, report.Phase("bookings").Success())
	assert.EqualValues(t, 1, report.Phase("bookings").Failed())
	assert.EqualValues(t, 2, report.Phase("reviews").Success())
	assert.EqualValues(t, 3, report.Phase("favorites").Success())
	assert.EqualValues(t, 1, report.Phase("favorites").Skipped())

	for _, phase := range config.AllPhases {
		assert.Equal(t, StateCompleted, m.PhaseState(phase), phase)
	}

	// Never-drop: every legacy user and venue has a target row, plus the
	// synthesized owner for venue 11.
	users, err := store.Count(ctx, &target.User{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, users)
	listings, err := store.Count(ctx, &target.Listing{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, listings)
}

func TestFullRunWithWorkerPool(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 4
	m, store := newMigrator(t, cfg)
	ctx := context.Background()

	report, err := m.Run(ctx)
	require.NoError(t, err)

	// Identical totals to the single-worker run: the pool changes scheduling,
	// never outcomes.
	assert.EqualValues(t, 4, report.Phase("users").Success())
	assert.EqualValues(t, 3, report.Phase("venues").Success())
	assert.EqualValues(t, 1, report.Phase("bookings").Success())
	assert.EqualValues(t, 1, report.Phase("bookings").Failed())
	assert.EqualValues(t, 2, report.Phase("reviews").Success())
	assert.EqualValues(t, 3, report.Phase("favorites").Success())
	assert.Zero(t, report.Phase("users").Failed())
	assert.Zero(t, report.Phase("venues").Failed())

	users, err := store.Count(ctx, &target.User{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, users)
	favorites, err := store.Count(ctx, &target.Favorite{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, favorites)

	// Every legacy id still resolves; a worker race must never eat a mapping.
	for _, legacyID := range []int64{1, 2, 3, 4, 999} {
		u, err := store.UserByLegacyID(ctx, legacyID)
		require.NoError(t, err)
		require.NotNil(t, u, "legacy user %d lost its mapping", legacyID)
	}

	// A pooled rerun creates nothing and reports the same totals.
	second, err := m.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, second.Phase("users").Skipped())
	assert.EqualValues(t, 3, second.Phase("venues").Skipped())
	usersAfter, err := store.Count(ctx, &target.User{})
	require.NoError(t, err)
	assert.Equal(t, users, usersAfter)
}

func TestRunIsIdempotent(t *testing.T) {
	m, store := newMigrator(t, testConfig())
	ctx := context.Background()

	first, err := m.Run(ctx)
	require.NoError(t, err)

	counts := func() map[string]int64 {
		out := map[string]int64{}
		for name, model := range map[string]any{
			"users": &target.User{}, "listings": &target.Listing{},
			"bookings": &target.Booking{}, "reviews": &target.Review{},
			"favorites": &target.Favorite{}, "profiles": &target.MerchantProfile{},
			"countries": &target.Country{}, "cities": &target.City{},
		} {
			n, err := store.Count(ctx, model)
			require.NoError(t, err)
			out[name] = n
		}
		return out
	}
	before := counts()

	second, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, counts(), "second run must create nothing")

	// Re-running for already-present legacy ids still counts as success.
	assert.Equal(t, first.Phase("users").Success(), second.Phase("users").Success())
	assert.EqualValues(t, 4, second.Phase("users").Skipped())
	assert.EqualValues(t, 3, second.Phase("venues").Skipped())
}

func TestEveryUserHasContact(t *testing.T) {
	m, store := newMigrator(t, testConfig())
	_, err := m.Run(context.Background())
	require.NoError(t, err)

	var users []target.User
	require.NoError(t, store.DB.Find(&users).Error)
	for _, u := range users {
		assert.True(t, u.Email != nil || u.PhoneNumber != nil,
			"user %s has neither email nor phone", u.FullName)
	}
}

func TestUserDataRepairs(t *testing.T) {
	m, store := newMigrator(t, testConfig())
	ctx := context.Background()
	_, err := m.Run(ctx)
	require.NoError(t, err)

	// Email that lived in the phone column landed in the email column.
	bob, err := store.UserByLegacyID(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, bob)
	require.NotNil(t, bob.Email)
	assert.Equal(t, "bob@example.com", *bob.Email)
	assert.Nil(t, bob.PhoneNumber)
	assert.Nil(t, bob.Age) // the "yes" age is repaired to null

	// The duplicate email was dropped, the row still exists with its phone.
	carla, err := store.UserByLegacyID(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, carla)
	assert.Nil(t, carla.Email)
	require.NotNil(t, carla.PhoneNumber)
	assert.Equal(t, "250788333444", *carla.PhoneNumber)

	// A contactless record got the deterministic placeholder and is parked
	// inactive.
	ghost, err := store.UserByLegacyID(ctx, 4)
	require.NoError(t, err)
	require.NotNil(t, ghost)
	require.NotNil(t, ghost.PhoneNumber)
	assert.Equal(t, "250999000004", *ghost.PhoneNumber)
	assert.False(t, ghost.IsActive)
	assert.Equal(t, "User 0004", ghost.FullName) // named after the placeholder phone tail

	alice, err := store.UserByLegacyID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.True(t, alice.IsActive)
	assert.Equal(t, "merchant", alice.Roles)
	require.NotNil(t, alice.Age)
	assert.Equal(t, 33, *alice.Age)
	assert.True(t, alice.PasswordMigrated)
	assert.NotEmpty(t, alice.PasswordHash)
}

func TestVenueCascade(t *testing.T) {
	m, store := newMigrator(t, testConfig())
	ctx := context.Background()
	_, err := m.Run(ctx)
	require.NoError(t, err)

	listing, err := store.ListingByLegacyID(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, listing)
	assert.Equal(t, "Kigali Heights", listing.Name)
	assert.Equal(t, "kigali-heights", listing.Slug)
	assert.Equal(t, target.StatusActive, listing.Status)
	require.NotNil(t, listing.MerchantID)
	require.NotNil(t, listing.Location)
	assert.Equal(t, "POINT(30.06 -1.95)", *listing.Location)
	require.NotNil(t, listing.MinPrice)
	assert.InDelta(t, 12000, *listing.MinPrice, 0.001)
	assert.InDelta(t, 4.0, listing.Rating, 0.001) // 20 on the legacy 0-25 scale
	assert.Equal(t, 7, listing.ReviewCount)
	require.NotNil(t, listing.CountryID)
	require.NotNil(t, listing.CityID)

	// Free-text hours produce the standard week.
	require.NotNil(t, listing.OperatingHours)
	assert.Contains(t, *listing.OperatingHours, `"monday"`)

	// The unnamed contactless venue still exists, parked inactive.
	bare, err := store.ListingByLegacyID(ctx, 12)
	require.NoError(t, err)
	require.NotNil(t, bare)
	assert.Equal(t, "Venue 12", bare.Name)
	assert.Equal(t, target.StatusInactive, bare.Status)
	assert.Nil(t, bare.Location) // malformed coordinates rejected
}

func TestMissingOwnerIsSynthesized(t *testing.T) {
	m, store := newMigrator(t, testConfig())
	ctx := context.Background()
	_, err := m.Run(ctx)
	require.NoError(t, err)

	owner, err := store.UserByLegacyID(ctx, 999)
	require.NoError(t, err)
	require.NotNil(t, owner, "owner must be synthesized from venue data")
	assert.Equal(t, "Ghost Bar", owner.FullName)
	assert.False(t, owner.IsActive)
	assert.Equal(t, "merchant", owner.Roles)

	// The listing exists but is forced inactive because its owner is
	// synthetic.
	listing, err := store.ListingByLegacyID(ctx, 11)
	require.NoError(t, err)
	require.NotNil(t, listing)
	assert.Equal(t, target.StatusInactive, listing.Status)
	require.NotNil(t, listing.MerchantID)
}

func TestBookingRepairs(t *testing.T) {
	m, store := newMigrator(t, testConfig())
	ctx := context.Background()
	_, err := m.Run(ctx)
	require.NoError(t, err)

	b, err := store.BookingByLegacyID(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, target.BookingConfirmed, b.Status)
	assert.Equal(t, target.PaymentCompleted, b.PaymentStatus)
	require.NotNil(t, b.CheckInDate)
	assert.Nil(t, b.CheckOutDate, "zero date must repair to null")
	assert.Equal(t, 3, b.GuestCount)
	assert.Equal(t, 2, b.Adults)
	assert.Equal(t, 1, b.Children)
	assert.Contains(t, b.BookingNumber, "BK-100-")

	// The orphan booking was counted as failed, not written.
	orphan, err := store.BookingByLegacyID(ctx, 101)
	require.NoError(t, err)
	assert.Nil(t, orphan)
}

func TestReviewRepairs(t *testing.T) {
	m, store := newMigrator(t, testConfig())
	ctx := context.Background()
	_, err := m.Run(ctx)
	require.NoError(t, err)

	good, err := store.ReviewByLegacyID(ctx, 200)
	require.NoError(t, err)
	require.NotNil(t, good)
	assert.InDelta(t, 4, good.Rating, 0.001)
	assert.Equal(t, "Great place", good.Content)
	assert.Equal(t, target.ReviewApproved, good.Status)

	repaired, err := store.ReviewByLegacyID(ctx, 201)
	require.NoError(t, err)
	require.NotNil(t, repaired)
	assert.InDelta(t, 5, repaired.Rating, 0.001) // out-of-range default
	assert.Equal(t, "No comment", repaired.Content)
	assert.Equal(t, target.ReviewPending, repaired.Status)
}

func TestFavoritesDeduplicated(t *testing.T) {
	m, store := newMigrator(t, testConfig())
	ctx := context.Background()
	_, err := m.Run(ctx)
	require.NoError(t, err)

	n, err := store.Count(ctx, &target.Favorite{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestCancelledContextReturnsPartialReport(t *testing.T) {
	m, _ := newMigrator(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := m.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report, "partial report must survive cancellation")
	assert.Zero(t, report.Phase("users").Success())
}

func TestPhaseSubsetRunsInOrder(t *testing.T) {
	cfg := testConfig()
	cfg.Phases = []string{"users", "countries"}
	m, store := newMigrator(t, cfg)
	ctx := context.Background()

	report, err := m.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"countries", "users"}, report.Phases())

	n, err := store.Count(ctx, &target.Listing{})
	require.NoError(t, err)
	assert.Zero(t, n, "venues phase must not run")
	assert.Equal(t, StateNotStarted, m.PhaseState("venues"))
}

func TestRepairRun(t *testing.T) {
	m, store := newMigrator(t, testConfig())
	ctx := context.Background()
	_, err := m.Run(ctx)
	require.NoError(t, err)

	// Simulate a prior partial failure by removing one of owner 1's
	// listings, then repair just that owner.
	require.NoError(t, store.DB.Where("legacy_id = ?", 10).Delete(&target.Listing{}).Error)

	res, err := m.RunRepair(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Success())
	assert.EqualValues(t, 1, res.Skipped())
	assert.Zero(t, res.Failed())

	restored, err := store.ListingByLegacyID(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, target.StatusActive, restored.Status)
}

func TestRepairRunRequiresMigratedOwner(t *testing.T) {
	m, _ := newMigrator(t, testConfig())

	_, err := m.RunRepair(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users phase")
}
