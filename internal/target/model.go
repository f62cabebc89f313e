// Package target is the V2 datastore layer. Models mirror the platform
// schema the rest of the system reads; every migrated entity carries a
// nullable legacy id with a unique index, which is the idempotency key for
// the whole migration.
package target

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Listing statuses.
const (
	StatusDraft         = "draft"
	StatusPendingReview = "pending_review"
	StatusActive        = "active"
	StatusInactive      = "inactive"
)

// Booking statuses.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingCompleted = "completed"
)

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
)

// Review statuses.
const (
	ReviewPending  = "pending"
	ReviewApproved = "approved"
)

// Country is a canonical V2 country row, keyed by ISO alpha-3 code.
type Country struct {
	ID              string `gorm:"primaryKey;size:36"`
	Name            string `gorm:"size:100;not null"`
	Code            string `gorm:"uniqueIndex;size:3;not null"` // ISO alpha-3
	Code2           string `gorm:"size:2"`                      // ISO alpha-2
	DefaultLanguage string `gorm:"size:10"`
	CurrencyCode    string `gorm:"size:3"`
	PhoneCode       string `gorm:"size:8"`
	IsActive        bool
	CreatedAt       time.Time
}

func (c *Country) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// City belongs to a country and is addressed by (country, slug).
type City struct {
	ID           string `gorm:"primaryKey;size:36"`
	CountryID    string `gorm:"size:36;index:idx_cities_country_slug,unique;not null"`
	Name         string `gorm:"size:100;not null"`
	Slug         string `gorm:"size:100;index:idx_cities_country_slug,unique;not null"`
	IsActive     bool
	ListingCount int
	EventCount   int
	CreatedAt    time.Time
}

func (c *City) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// User is a platform account. The schema requires at least one contact
// channel; email and phone are each unique when present.
type User struct {
	ID                 string  `gorm:"primaryKey;size:36"`
	LegacyID           *int64  `gorm:"uniqueIndex"`
	Email              *string `gorm:"uniqueIndex;size:255;check:chk_users_contact,email IS NOT NULL OR phone_number IS NOT NULL"`
	PhoneNumber        *string `gorm:"uniqueIndex;size:32"`
	FirstName          *string `gorm:"size:100"`
	LastName           *string `gorm:"size:100"`
	FullName           string  `gorm:"size:200;not null"`
	Gender             *string `gorm:"size:20"`
	Address            *string `gorm:"size:255"`
	Age                *int
	PasswordHash       string  `gorm:"size:100"`
	LegacyPasswordHash *string `gorm:"size:100"`
	PasswordMigrated   bool
	Roles              string `gorm:"size:100"` // comma separated
	IsActive           bool
	ProfileImageID     *string `gorm:"size:36"`
	BackgroundImageID  *string `gorm:"size:36"`
	CreatedAt          time.Time
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Media is a pointer record; migrated assets stay on the legacy host and are
// referenced by absolute URL with a provenance tag.
type Media struct {
	ID              string `gorm:"primaryKey;size:36"`
	URL             string `gorm:"size:500;not null"`
	MediaType       string `gorm:"size:20"`
	FileName        string `gorm:"size:255"`
	StorageProvider string `gorm:"size:32"`
	AltText         string `gorm:"size:255"`
	Title           string `gorm:"size:255"`
	Category        string `gorm:"size:50"`
	CreatedAt       time.Time
}

func (m *Media) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// MerchantProfile groups a user's listings under one business identity.
type MerchantProfile struct {
	ID                 string  `gorm:"primaryKey;size:36"`
	UserID             string  `gorm:"size:36;index;not null"`
	BusinessName       string  `gorm:"size:255;not null"`
	BusinessType       *string `gorm:"size:32"`
	BusinessEmail      *string `gorm:"size:255"`
	BusinessPhone      *string `gorm:"size:20"`
	Website            *string `gorm:"size:500"`
	CountryID          *string `gorm:"size:36"`
	CityID             *string `gorm:"size:36"`
	RegistrationStatus string  `gorm:"size:20"`
	IsVerified         bool
	SubmittedAt        *time.Time
	VerifiedAt         *time.Time
	CreatedAt          time.Time
}

func (m *MerchantProfile) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Listing is the V2 projection of a legacy venue. Location holds a WKT
// point, POINT(lng lat), applied by a follow-up update after creation.
type Listing struct {
	ID               string  `gorm:"primaryKey;size:36"`
	LegacyID         *int64  `gorm:"uniqueIndex"`
	MerchantID       *string `gorm:"size:36;index"`
	Name             string  `gorm:"size:255;not null"`
	Slug             string  `gorm:"size:255;index"`
	Description      *string `gorm:"type:text"`
	ShortDescription *string `gorm:"size:500"`
	CountryID        *string `gorm:"size:36"`
	CityID           *string `gorm:"size:36"`
	Address          *string `gorm:"size:500"`
	Location         *string `gorm:"size:64"`
	MinPrice         *float64
	MaxPrice         *float64
	Currency         string  `gorm:"size:3"`
	ContactPhone     *string `gorm:"size:20"`
	ContactEmail     *string `gorm:"size:255"`
	Website          *string `gorm:"size:500"`
	OperatingHours   *string `gorm:"type:text"` // JSON weekly schedule
	Rating           float64
	ReviewCount      int
	Status           string `gorm:"size:20;index"`
	CreatedAt        time.Time
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// ListingImage links a listing to media in primary/secondary order.
type ListingImage struct {
	ID        string `gorm:"primaryKey;size:36"`
	ListingID string `gorm:"size:36;index;not null"`
	MediaID   string `gorm:"size:36;not null"`
	IsPrimary bool
	SortOrder int
	CreatedAt time.Time
}

func (li *ListingImage) BeforeCreate(tx *gorm.DB) error {
	if li.ID == "" {
		li.ID = uuid.NewString()
	}
	return nil
}

// Booking references its user and listing by V2 id.
type Booking struct {
	ID              string `gorm:"primaryKey;size:36"`
	LegacyID        *int64 `gorm:"uniqueIndex"`
	UserID          string `gorm:"size:36;index;not null"`
	ListingID       string `gorm:"size:36;index;not null"`
	BookingNumber   string `gorm:"size:64;not null"`
	Status          string `gorm:"size:20"`
	CheckInDate     *time.Time
	CheckOutDate    *time.Time
	GuestCount      int
	Adults          int
	Children        int
	SpecialRequests *string `gorm:"type:text"`
	TotalAmount     float64
	Currency        string `gorm:"size:3"`
	PaymentStatus   string `gorm:"size:20"`
	CreatedAt       time.Time
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// Review carries a 1-5 rating and moderated content.
type Review struct {
	ID        string `gorm:"primaryKey;size:36"`
	LegacyID  *int64 `gorm:"uniqueIndex"`
	UserID    string `gorm:"size:36;index;not null"`
	ListingID string `gorm:"size:36;index;not null"`
	Rating    float64
	Content   string `gorm:"type:text"`
	Status    string `gorm:"size:20"`
	CreatedAt time.Time
}

func (r *Review) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Favorite is unique per (user, listing).
type Favorite struct {
	ID        string `gorm:"primaryKey;size:36"`
	LegacyID  *int64 `gorm:"uniqueIndex"`
	UserID    string `gorm:"size:36;index:idx_favorites_user_listing,unique;not null"`
	ListingID string `gorm:"size:36;index:idx_favorites_user_listing,unique;not null"`
	CreatedAt time.Time
}

func (f *Favorite) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}
