// Package resolve creates target users despite unique-constraint collisions
// on email and phone. The ladder tries an ordered list of named strategies,
// each strictly less faithful than the previous, and only moves down on a
// uniqueness violation. The final rung is collision-free by construction, so
// a record can only fail on a real connectivity fault.
package resolve

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zoea-africa/v2-migrate/internal/clean"
	"github.com/zoea-africa/v2-migrate/internal/target"
)

// Rung names, in descending fidelity.
const (
	RungMerged      = "merged"
	RungDirect      = "direct"
	RungEmailNull   = "email_null"
	RungSynthesized = "synthesized"
)

// Outcome reports how a record got into the target store.
type Outcome struct {
	User   *target.User
	Rung   string
	Merged bool // attached the legacy id to a pre-existing row instead of creating
}

// Resolver runs the retry ladder against a target store.
type Resolver struct {
	store       *target.Store
	phonePrefix string
	logger      *zap.Logger
	steps       []step
}

type step struct {
	name  string
	apply func(ctx context.Context, base *target.User) (*target.User, error)
}

func New(store *target.Store, phonePrefix string, logger *zap.Logger) *Resolver {
	r := &Resolver{
		store:       store,
		phonePrefix: phonePrefix,
		logger:      logger.With(zap.String("component", "conflict_resolver")),
	}
	r.steps = []step{
		{name: RungDirect, apply: r.direct},
		{name: RungEmailNull, apply: r.emailNull},
		{name: RungSynthesized, apply: r.synthesized},
	}
	return r
}

// CreateUser lands the prepared user in the target store. base must carry a
// non-nil LegacyID; its contact fields are the cleaner's output. The ladder
// terminates in a created or merged row; an error here is a non-uniqueness
// fault and counts as a genuine failure.
func (r *Resolver) CreateUser(ctx context.Context, base *target.User) (*Outcome, error) {
	if base.LegacyID == nil {
		return nil, fmt.Errorf("resolver requires a legacy id")
	}
	legacyID := *base.LegacyID

	// The target schema requires at least one contact field. The cleaner
	// normally guarantees that, but a caller may hand us a bare record.
	if base.Email == nil && base.PhoneNumber == nil {
		phone := clean.PlaceholderPhone(r.phonePrefix, legacyID)
		base.PhoneNumber = &phone
	}

	// Proactive duplicate checks before the first create. A match without a
	// legacy id is an unmigrated duplicate of this very record: merge by
	// attaching the legacy id. A match with a different legacy id forces a
	// mutation of the incoming record instead.
	if base.PhoneNumber != nil {
		existing, err := r.store.UserByPhone(ctx, *base.PhoneNumber)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			// A concurrent worker may claim the row between the lookup and
			// the attach; only an attach that actually landed is a merge.
			if existing.LegacyID == nil {
				attached, err := r.store.AttachUserLegacyID(ctx, existing.ID, legacyID)
				if err != nil {
					return nil, err
				}
				if attached {
					r.logger.Info("Merged legacy user into existing row",
						zap.Int64("legacy_id", legacyID),
						zap.String("user_id", existing.ID),
						zap.String("matched_on", "phone"))
					return &Outcome{User: existing, Rung: RungMerged, Merged: true}, nil
				}
			}
			suffixed := fmt.Sprintf("%s_%d", *base.PhoneNumber, legacyID)
			base.PhoneNumber = &suffixed
			r.logger.Warn("Duplicate phone, suffixing",
				zap.Int64("legacy_id", legacyID),
				zap.String("phone", suffixed))
		}
	}

	if base.Email != nil {
		existing, err := r.store.UserByEmail(ctx, *base.Email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.LegacyID == nil {
				attached, err := r.store.AttachUserLegacyID(ctx, existing.ID, legacyID)
				if err != nil {
					return nil, err
				}
				if attached {
					r.logger.Info("Merged legacy user into existing row",
						zap.Int64("legacy_id", legacyID),
						zap.String("user_id", existing.ID),
						zap.String("matched_on", "email"))
					return &Outcome{User: existing, Rung: RungMerged, Merged: true}, nil
				}
			}
			r.logger.Warn("Duplicate email, dropping email for incoming record",
				zap.Int64("legacy_id", legacyID),
				zap.String("email", *base.Email))
			base.Email = nil
			if base.PhoneNumber == nil {
				phone := clean.PlaceholderPhone(r.phonePrefix, legacyID)
				base.PhoneNumber = &phone
			}
		}
	}

	var lastErr error
	for _, s := range r.steps {
		candidate, err := s.apply(ctx, base)
		if err != nil {
			return nil, err
		}

		if err := r.store.CreateUser(ctx, candidate); err != nil {
			if target.IsDuplicateKey(err) {
				lastErr = err
				r.logger.Warn("Uniqueness violation, descending retry ladder",
					zap.Int64("legacy_id", legacyID),
					zap.String("rung", s.name),
					zap.Error(err))
				continue
			}
			return nil, err
		}

		if s.name != RungDirect {
			r.logger.Warn("User created with degraded contact data",
				zap.Int64("legacy_id", legacyID),
				zap.String("rung", s.name))
		}
		return &Outcome{User: candidate, Rung: s.name}, nil
	}

	// Unreachable while the synthesized rung stays collision-free; keep the
	// error anyway so a broken invariant is loud.
	return nil, fmt.Errorf("retry ladder exhausted for legacy user %d: %w", legacyID, lastErr)
}

// direct attempts the record as cleaned.
func (r *Resolver) direct(ctx context.Context, base *target.User) (*target.User, error) {
	u := *base
	u.ID = ""
	return &u, nil
}

// emailNull gives up the email and keeps the best available unique phone.
// Rows landing here carry synthetic contact data, so they are parked
// inactive for review.
func (r *Resolver) emailNull(ctx context.Context, base *target.User) (*target.User, error) {
	u := *base
	u.ID = ""
	u.Email = nil
	u.IsActive = false

	phone := clean.PlaceholderPhone(r.phonePrefix, *base.LegacyID)
	if base.PhoneNumber != nil {
		phone = *base.PhoneNumber
	}
	existing, err := r.store.UserByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		phone = fmt.Sprintf("%s_%d", phone, *base.LegacyID)
	}
	u.PhoneNumber = &phone
	return &u, nil
}

// synthesized abandons both contact fields and derives the phone purely from
// the legacy id, unique by construction.
func (r *Resolver) synthesized(ctx context.Context, base *target.User) (*target.User, error) {
	u := *base
	u.ID = ""
	u.Email = nil
	u.IsActive = false

	phone := clean.PlaceholderPhone(r.phonePrefix, *base.LegacyID)
	existing, err := r.store.UserByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// Another record ended up holding this user's placeholder (eg via a
		// suffix path); extend with the legacy id, which no other record
		// can produce.
		phone = fmt.Sprintf("%s_%d", phone, *base.LegacyID)
	}
	u.PhoneNumber = &phone
	return &u, nil
}
