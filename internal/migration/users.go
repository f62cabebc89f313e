package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/zoea-africa/v2-migrate/internal/clean"
	"github.com/zoea-africa/v2-migrate/internal/media"
	"github.com/zoea-africa/v2-migrate/internal/resolve"
	"github.com/zoea-africa/v2-migrate/internal/source"
	"github.com/zoea-africa/v2-migrate/internal/target"
)

// Every migrated account gets this password and a forced change on first
// login. The legacy hashes are unusable, the scheme was never documented.
const defaultPassword = "Pass123"

const (
	roleMerchant = "merchant"
	roleExplorer = "explorer"
)

func (m *Migrator) runUsers(ctx context.Context, res *PhaseResult) error {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash default password: %w", err)
	}

	total, err := m.src.CountRows(ctx, "users")
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	bar := m.progressBar(total)
	defer finish(bar)

	return m.pool(ctx, func(submit func(func())) error {
		return m.src.ForEachUser(ctx, func(u *source.LegacyUser) error {
			submit(func() {
				defer tick(bar)
				m.migrateUser(ctx, u, string(passwordHash), res)
			})
			return ctx.Err()
		})
	})
}

func (m *Migrator) migrateUser(ctx context.Context, u *source.LegacyUser, passwordHash string, res *PhaseResult) {
	existing, err := m.store.UserByLegacyID(ctx, u.UserID)
	if err != nil {
		m.markFailed("users", res, u.UserID, "legacy id lookup", err)
		return
	}
	if existing != nil {
		m.markSkipped("users", res, u.UserID)
		return
	}

	cleaned := clean.User(clean.Input{
		LegacyID:    u.UserID,
		Email:       u.Email.String,
		Phone:       u.Phone.String,
		FirstName:   u.FirstName.String,
		LastName:    u.LastName.String,
		CountryCode: u.CountryCode.String,
	}, m.tables.Defaults.PhonePrefix)
	m.logIssues("users", u.UserID, cleaned.Issues)

	roles := roleExplorer
	if u.AccountType.String == "Merchant" {
		roles = roleMerchant
	}

	profileImageID := m.userImage(ctx, u.ProfilePicture.String, cleaned.FullName)
	backgroundImageID := m.userImage(ctx, u.ProfileCover.String, cleaned.FullName)

	hasName := cleaned.FirstName != nil || cleaned.LastName != nil
	active := hasName && cleaned.HasValidContact && u.Status.String == "active"

	user := &target.User{
		LegacyID:           &u.UserID,
		Email:              cleaned.Email,
		PhoneNumber:        cleaned.PhoneNumber,
		FirstName:          cleaned.FirstName,
		LastName:           cleaned.LastName,
		FullName:           cleaned.FullName,
		Gender:             nullableStr(u.Gender.String),
		Address:            nullableStr(u.Location.String),
		Age:                clean.Age(u.Age.String),
		PasswordHash:       passwordHash,
		LegacyPasswordHash: nullableStr(u.Password.String),
		PasswordMigrated:   true,
		Roles:              roles,
		IsActive:           active,
		ProfileImageID:     profileImageID,
		BackgroundImageID:  backgroundImageID,
		CreatedAt:          legacyTime(u.RegDate, time.Now()),
	}

	outcome, err := m.resolver.CreateUser(ctx, user)
	if err != nil {
		m.markFailed("users", res, u.UserID, "create user", err)
		return
	}
	if outcome.Rung != resolve.RungDirect && outcome.Rung != resolve.RungMerged {
		m.metrics.RecordDegradation(outcome.Rung)
	}
	m.logger.Info("Migrated user",
		zap.Int64("legacy_id", u.UserID),
		zap.String("user_id", outcome.User.ID),
		zap.String("rung", outcome.Rung))
	m.markMigrated("users", res)
}

// userImage records a profile asset when present and reachable; a missing
// image never fails the user.
func (m *Migrator) userImage(ctx context.Context, path, altText string) *string {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	id, err := m.verifier.CreateFromLegacyPath(ctx, m.store, path, media.Options{
		AltText:  altText,
		Category: "profile",
	})
	if err != nil {
		m.logger.Warn("Profile image not recorded", zap.String("path", path), zap.Error(err))
		return nil
	}
	return id
}

func nullableStr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
