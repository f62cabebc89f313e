package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zoea-africa/v2-migrate/internal/source"
	"github.com/zoea-africa/v2-migrate/internal/target"
)

func (m *Migrator) runBookings(ctx context.Context, res *PhaseResult) error {
	total, err := m.src.CountRows(ctx, "bookings")
	if err != nil {
		return fmt.Errorf("count bookings: %w", err)
	}
	bar := m.progressBar(total)
	defer finish(bar)

	return m.pool(ctx, func(submit func(func())) error {
		return m.src.ForEachBooking(ctx, func(b *source.LegacyBooking) error {
			submit(func() {
				defer tick(bar)
				m.migrateBooking(ctx, b, res)
			})
			return ctx.Err()
		})
	})
}

func (m *Migrator) migrateBooking(ctx context.Context, b *source.LegacyBooking, res *PhaseResult) {
	existing, err := m.store.BookingByLegacyID(ctx, b.BookingID)
	if err != nil {
		m.markFailed("bookings", res, b.BookingID, "legacy id lookup", err)
		return
	}
	if existing != nil {
		m.markSkipped("bookings", res, b.BookingID)
		return
	}

	user, err := m.store.UserByLegacyID(ctx, b.UserID)
	if err != nil {
		m.markFailed("bookings", res, b.BookingID, "user lookup", err)
		return
	}
	if user == nil {
		m.markFailed("bookings", res, b.BookingID,
			fmt.Sprintf("user %d not migrated", b.UserID), nil)
		return
	}

	listing, err := m.store.ListingByLegacyID(ctx, b.VenueID)
	if err != nil {
		m.markFailed("bookings", res, b.BookingID, "listing lookup", err)
		return
	}
	if listing == nil {
		m.markFailed("bookings", res, b.BookingID,
			fmt.Sprintf("listing for venue %d not migrated", b.VenueID), nil)
		return
	}

	var checkIn, checkOut *time.Time
	if t, ok := parseLegacyDate(b.CheckinDate.String); ok {
		checkIn = &t
	}
	if t, ok := parseLegacyDate(b.CheckoutDate.String); ok {
		checkOut = &t
	}

	adults := int(b.Adults.Int64)
	children := int(b.Children.Int64)
	guestCount := adults + children
	if adults == 0 {
		adults = 1
	}

	bookingNumber := strings.TrimSpace(b.BookingNo.String)
	if bookingNumber == "" {
		bookingNumber = fmt.Sprintf("BK-%d-%d", b.BookingID, time.Now().UnixMilli())
	}

	paymentStatus := target.PaymentPending
	if b.PaymentStatus.String == "Paid" {
		paymentStatus = target.PaymentCompleted
	}

	booking := &target.Booking{
		LegacyID:        &b.BookingID,
		UserID:          user.ID,
		ListingID:       listing.ID,
		BookingNumber:   bookingNumber,
		Status:          bookingStatus(b.Status.String),
		CheckInDate:     checkIn,
		CheckOutDate:    checkOut,
		GuestCount:      guestCount,
		Adults:          adults,
		Children:        children,
		SpecialRequests: truncNullable(b.AdditionalRequest.String, 5000),
		TotalAmount:     0, // the legacy schema never stored an amount
		Currency:        m.tables.Defaults.Currency,
		PaymentStatus:   paymentStatus,
		CreatedAt:       legacyTime(b.BookingTime, time.Now()),
	}
	if err := m.store.CreateBooking(ctx, booking); err != nil {
		m.markFailed("bookings", res, b.BookingID, "create booking", err)
		return
	}

	m.logger.Info("Migrated booking",
		zap.Int64("legacy_id", b.BookingID),
		zap.String("booking_id", booking.ID))
	m.markMigrated("bookings", res)
}

// bookingStatus maps the legacy free-text status by keyword. "Booked" was
// the V1 confirmation wording.
func bookingStatus(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "booked"), strings.Contains(s, "confirmed"):
		return target.BookingConfirmed
	case strings.Contains(s, "cancel"):
		return target.BookingCancelled
	case strings.Contains(s, "complete"):
		return target.BookingCompleted
	default:
		return target.BookingPending
	}
}
