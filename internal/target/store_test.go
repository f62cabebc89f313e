package target

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }
func i64Ptr(i int64) *int64   { return &i }

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "dsn")
	assert.Error(t, err)
}

func TestUserUniqueConstraints(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u1 := &User{LegacyID: i64Ptr(1), Email: strPtr("a@b.com"), PhoneNumber: strPtr("250788111222"), FullName: "A"}
	require.NoError(t, store.CreateUser(ctx, u1))
	assert.NotEmpty(t, u1.ID)

	// Duplicate email is a duplicate-key error, not a silent overwrite.
	err := store.CreateUser(ctx, &User{Email: strPtr("a@b.com"), FullName: "B"})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	// Duplicate phone likewise.
	err = store.CreateUser(ctx, &User{PhoneNumber: strPtr("250788111222"), FullName: "C"})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	// Duplicate legacy id likewise.
	err = store.CreateUser(ctx, &User{LegacyID: i64Ptr(1), FullName: "D", PhoneNumber: strPtr("250788000009")})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	// A user must carry at least one contact field.
	err = store.CreateUser(ctx, &User{LegacyID: i64Ptr(2), FullName: "NoContact"})
	require.Error(t, err)
	assert.False(t, IsDuplicateKey(err))

	// Nil email/phone do not collide with each other.
	require.NoError(t, store.CreateUser(ctx, &User{FullName: "E", PhoneNumber: strPtr("250788000001")}))
	require.NoError(t, store.CreateUser(ctx, &User{FullName: "F", PhoneNumber: strPtr("250788000002")}))
}

func TestFindersReturnNilWhenAbsent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u, err := store.UserByLegacyID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, u)

	l, err := store.ListingByLegacyID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, l)

	c, err := store.CountryByCode(ctx, "RWA")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestAttachUserLegacyID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u := &User{Email: strPtr("owner@b.com"), FullName: "Owner"}
	require.NoError(t, store.CreateUser(ctx, u))

	attached, err := store.AttachUserLegacyID(ctx, u.ID, 77)
	require.NoError(t, err)
	assert.True(t, attached)

	got, err := store.UserByLegacyID(ctx, 77)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
}

func TestAttachUserLegacyIDClaimsRowOnlyOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	u := &User{Email: strPtr("shared@b.com"), FullName: "Shared"}
	require.NoError(t, store.CreateUser(ctx, u))

	attached, err := store.AttachUserLegacyID(ctx, u.ID, 1)
	require.NoError(t, err)
	assert.True(t, attached)

	// A second claimant loses; the first mapping must survive.
	attached, err = store.AttachUserLegacyID(ctx, u.ID, 2)
	require.NoError(t, err)
	assert.False(t, attached)

	first, err := store.UserByLegacyID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, u.ID, first.ID)

	second, err := store.UserByLegacyID(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestAttachFavoriteLegacyIDClaimsRowOnlyOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	f := &Favorite{UserID: "u1", ListingID: "l1"}
	require.NoError(t, store.CreateFavorite(ctx, f))

	attached, err := store.AttachFavoriteLegacyID(ctx, f.ID, 300)
	require.NoError(t, err)
	assert.True(t, attached)

	attached, err = store.AttachFavoriteLegacyID(ctx, f.ID, 301)
	require.NoError(t, err)
	assert.False(t, attached)

	got, err := store.FavoriteByLegacyID(ctx, 300)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, f.ID, got.ID)
}

func TestListingLocationFollowUpUpdate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	l := &Listing{LegacyID: i64Ptr(7), Name: "Anda Lounge", Slug: "anda-lounge", Status: StatusActive, Currency: "RWF"}
	require.NoError(t, store.CreateListing(ctx, l))
	assert.Nil(t, l.Location)

	require.NoError(t, store.SetListingLocation(ctx, l.ID, "POINT(30.06 -1.95)"))

	got, err := store.ListingByLegacyID(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got.Location)
	assert.Equal(t, "POINT(30.06 -1.95)", *got.Location)
}

func TestCityUniquePerCountrySlug(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rwanda := &Country{Name: "Rwanda", Code: "RWA"}
	require.NoError(t, store.CreateCountry(ctx, rwanda))
	uganda := &Country{Name: "Uganda", Code: "UGA"}
	require.NoError(t, store.CreateCountry(ctx, uganda))

	require.NoError(t, store.CreateCity(ctx, &City{CountryID: rwanda.ID, Name: "Kigali", Slug: "kigali"}))

	// Same slug under the same country collides.
	err := store.CreateCity(ctx, &City{CountryID: rwanda.ID, Name: "Kigali", Slug: "kigali"})
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	// Same slug under a different country is fine.
	require.NoError(t, store.CreateCity(ctx, &City{CountryID: uganda.ID, Name: "Kigali", Slug: "kigali"}))
}

func TestWithTransactionRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.WithTransaction(ctx, func(tx *Store) error {
		if err := tx.CreateUser(ctx, &User{FullName: "Ghost", PhoneNumber: strPtr("250788999999")}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	n, err := store.Count(ctx, &User{})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestIsDuplicateKey(t *testing.T) {
	assert.False(t, IsDuplicateKey(nil))
	assert.False(t, IsDuplicateKey(assert.AnError))
}
