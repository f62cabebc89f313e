package target

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the V2 GORM connection pool. It is safe for concurrent use;
// the pool is shared across migration workers.
type Store struct {
	DB *gorm.DB
}

// Open connects to the V2 store and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported target driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true, // unique violations surface as gorm.ErrDuplicatedKey
	})
	if err != nil {
		return nil, fmt.Errorf("open target database: %w", err)
	}

	// SQLite serializes writers anyway, and a pooled :memory: DSN would give
	// every connection its own empty database.
	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&Country{}, &City{}, &User{}, &Media{}, &MerchantProfile{},
		&Listing{}, &ListingImage{}, &Booking{}, &Review{}, &Favorite{},
	); err != nil {
		return nil, fmt.Errorf("migrate target schema: %w", err)
	}

	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTransaction runs fn against a transactional Store. A record's whole
// cascade goes through one of these so a crash never leaves a half-written
// entity visible.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx})
	})
}

// IsDuplicateKey reports whether err is a unique-constraint violation. GORM's
// TranslateError covers the common cases; the raw MySQL 1062 and SQLite
// message checks catch errors raised outside GORM's create paths.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// notFoundAsNil converts gorm.ErrRecordNotFound into a nil result so callers
// can use the get-or-create pattern without error juggling.
func notFoundAsNil(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// Countries and cities

func (s *Store) CountryByCode(ctx context.Context, code string) (*Country, error) {
	var c Country
	err := s.DB.WithContext(ctx).Where("code = ?", code).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

func (s *Store) CreateCountry(ctx context.Context, c *Country) error {
	return s.DB.WithContext(ctx).Create(c).Error
}

func (s *Store) CityBySlug(ctx context.Context, countryID, slug string) (*City, error) {
	var c City
	err := s.DB.WithContext(ctx).Where("country_id = ? AND slug = ?", countryID, slug).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &c, err
}

func (s *Store) CreateCity(ctx context.Context, c *City) error {
	return s.DB.WithContext(ctx).Create(c).Error
}

// Users

func (s *Store) UserByLegacyID(ctx context.Context, legacyID int64) (*User, error) {
	var u User
	err := s.DB.WithContext(ctx).Where("legacy_id = ?", legacyID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &u, err
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &u, err
}

func (s *Store) UserByPhone(ctx context.Context, phone string) (*User, error) {
	var u User
	err := s.DB.WithContext(ctx).Where("phone_number = ?", phone).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &u, err
}

func (s *Store) CreateUser(ctx context.Context, u *User) error {
	return s.DB.WithContext(ctx).Create(u).Error
}

// AttachUserLegacyID stamps a legacy id onto an already-existing user row,
// merging a legacy duplicate into it instead of creating a new row. The
// update only lands while the row is still unclaimed; a concurrent worker
// may have attached its own legacy id since the caller looked. Returns
// whether this call claimed the row.
func (s *Store) AttachUserLegacyID(ctx context.Context, userID string, legacyID int64) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&User{}).
		Where("id = ? AND legacy_id IS NULL", userID).
		Update("legacy_id", legacyID)
	return res.RowsAffected > 0, res.Error
}

// Media

func (s *Store) CreateMedia(ctx context.Context, m *Media) error {
	return s.DB.WithContext(ctx).Create(m).Error
}

// Merchant profiles

func (s *Store) MerchantProfileByUserAndName(ctx context.Context, userID, businessName string) (*MerchantProfile, error) {
	var m MerchantProfile
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND business_name = ?", userID, businessName).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &m, err
}

func (s *Store) MerchantProfileByUserAndType(ctx context.Context, userID, businessType string) (*MerchantProfile, error) {
	var m MerchantProfile
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND business_type = ?", userID, businessType).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &m, err
}

func (s *Store) FirstMerchantProfileByUser(ctx context.Context, userID string) (*MerchantProfile, error) {
	var m MerchantProfile
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at ASC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &m, err
}

func (s *Store) CreateMerchantProfile(ctx context.Context, m *MerchantProfile) error {
	return s.DB.WithContext(ctx).Create(m).Error
}

// Listings

func (s *Store) ListingByLegacyID(ctx context.Context, legacyID int64) (*Listing, error) {
	var l Listing
	err := s.DB.WithContext(ctx).Where("legacy_id = ?", legacyID).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &l, err
}

func (s *Store) CreateListing(ctx context.Context, l *Listing) error {
	return s.DB.WithContext(ctx).Create(l).Error
}

// SetListingLocation applies the geographic point via a follow-up update;
// geometry is not part of the primary insert contract.
func (s *Store) SetListingLocation(ctx context.Context, listingID, point string) error {
	return s.DB.WithContext(ctx).Model(&Listing{}).
		Where("id = ?", listingID).
		Update("location", point).Error
}

func (s *Store) CreateListingImage(ctx context.Context, li *ListingImage) error {
	return s.DB.WithContext(ctx).Create(li).Error
}

// Bookings, reviews, favorites

func (s *Store) BookingByLegacyID(ctx context.Context, legacyID int64) (*Booking, error) {
	var b Booking
	err := s.DB.WithContext(ctx).Where("legacy_id = ?", legacyID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &b, err
}

func (s *Store) CreateBooking(ctx context.Context, b *Booking) error {
	return s.DB.WithContext(ctx).Create(b).Error
}

func (s *Store) ReviewByLegacyID(ctx context.Context, legacyID int64) (*Review, error) {
	var r Review
	err := s.DB.WithContext(ctx).Where("legacy_id = ?", legacyID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &r, err
}

func (s *Store) CreateReview(ctx context.Context, r *Review) error {
	return s.DB.WithContext(ctx).Create(r).Error
}

func (s *Store) FavoriteByLegacyID(ctx context.Context, legacyID int64) (*Favorite, error) {
	var f Favorite
	err := s.DB.WithContext(ctx).Where("legacy_id = ?", legacyID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &f, err
}

func (s *Store) FavoriteByUserAndListing(ctx context.Context, userID, listingID string) (*Favorite, error) {
	var f Favorite
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND listing_id = ?", userID, listingID).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &f, err
}

// AttachFavoriteLegacyID adopts a pre-existing favorite pair by stamping the
// legacy id onto it, but only while the row is still unclaimed. Returns
// whether this call claimed the row.
func (s *Store) AttachFavoriteLegacyID(ctx context.Context, favoriteID string, legacyID int64) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&Favorite{}).
		Where("id = ? AND legacy_id IS NULL", favoriteID).
		Update("legacy_id", legacyID)
	return res.RowsAffected > 0, res.Error
}

func (s *Store) CreateFavorite(ctx context.Context, f *Favorite) error {
	return s.DB.WithContext(ctx).Create(f).Error
}

// Count reports the number of rows for a model, used by the idempotence
// checks and the run summary.
func (s *Store) Count(ctx context.Context, model any) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(model).Count(&n).Error
	return n, err
}
