package migration

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zoea-africa/v2-migrate/internal/source"
	"github.com/zoea-africa/v2-migrate/internal/target"
)

// Some legacy reviews hold a phone number where the text should be.
var phoneShapedReview = regexp.MustCompile(`^[\d\s+\-()]+$`)

const emptyReviewContent = "No comment"

func (m *Migrator) runReviews(ctx context.Context, res *PhaseResult) error {
	total, err := m.src.CountRows(ctx, "reviews")
	if err != nil {
		return fmt.Errorf("count reviews: %w", err)
	}
	bar := m.progressBar(total)
	defer finish(bar)

	return m.pool(ctx, func(submit func(func())) error {
		return m.src.ForEachReview(ctx, func(r *source.LegacyReview) error {
			submit(func() {
				defer tick(bar)
				m.migrateReview(ctx, r, res)
			})
			return ctx.Err()
		})
	})
}

func (m *Migrator) migrateReview(ctx context.Context, r *source.LegacyReview, res *PhaseResult) {
	existing, err := m.store.ReviewByLegacyID(ctx, r.ReviewID)
	if err != nil {
		m.markFailed("reviews", res, r.ReviewID, "legacy id lookup", err)
		return
	}
	if existing != nil {
		m.markSkipped("reviews", res, r.ReviewID)
		return
	}

	user, err := m.store.UserByLegacyID(ctx, r.UserID)
	if err != nil {
		m.markFailed("reviews", res, r.ReviewID, "user lookup", err)
		return
	}
	if user == nil {
		m.markFailed("reviews", res, r.ReviewID,
			fmt.Sprintf("user %d not migrated", r.UserID), nil)
		return
	}

	listing, err := m.store.ListingByLegacyID(ctx, r.VenueID)
	if err != nil {
		m.markFailed("reviews", res, r.ReviewID, "listing lookup", err)
		return
	}
	if listing == nil {
		m.markFailed("reviews", res, r.ReviewID,
			fmt.Sprintf("listing for venue %d not migrated", r.VenueID), nil)
		return
	}

	status := target.ReviewPending
	if strings.EqualFold(strings.TrimSpace(r.Status.String), "approved") {
		status = target.ReviewApproved
	}

	review := &target.Review{
		LegacyID:  &r.ReviewID,
		UserID:    user.ID,
		ListingID: listing.ID,
		Rating:    reviewRating(r.Rating.String),
		Content:   reviewContent(r.Review.String),
		Status:    status,
		CreatedAt: legacyTime(r.ReviewTime, time.Now()),
	}
	if err := m.store.CreateReview(ctx, review); err != nil {
		m.markFailed("reviews", res, r.ReviewID, "create review", err)
		return
	}

	m.logger.Info("Migrated review",
		zap.Int64("legacy_id", r.ReviewID),
		zap.String("review_id", review.ID))
	m.markMigrated("reviews", res)
}

// reviewRating parses the legacy string rating, defaulting out-of-range and
// unparseable values to 5.
func reviewRating(raw string) float64 {
	r, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || r < 1 || r > 5 {
		return 5
	}
	return r
}

// reviewContent drops phone-shaped text, which the legacy review form let
// through, and substitutes the neutral placeholder.
func reviewContent(raw string) string {
	text := strings.TrimSpace(raw)
	if text != "" && len(text) < 20 && phoneShapedReview.MatchString(text) {
		text = ""
	}
	if text == "" {
		return emptyReviewContent
	}
	return text
}
