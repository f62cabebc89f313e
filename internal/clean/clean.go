// Package clean repairs raw legacy user records. The legacy forms wrote
// whatever the browser sent: emails in the phone column, control bytes in
// names, six-digit phone numbers. Cleaning is pure, never fails, and always
// yields a record with at least one contact channel.
package clean

import (
	"fmt"
	"strconv"
	"strings"
)

// Issue tags recorded for auditability.
const (
	IssueEmailInPhoneField   = "email_in_phone_field"
	IssuePlaceholderPhone    = "generated_placeholder_phone"
	IssueCorruptedPhone      = "corrupted_phone_removed"
	IssueInvalidEmailFormat  = "invalid_email_format"
	IssueInvalidPhoneLength  = "invalid_phone_length"
	IssueNoContact           = "generated_placeholder_phone_no_contact"
	IssuePlaceholderName     = "generated_placeholder_name"
)

// Input is the user-shaped projection of one legacy row.
type Input struct {
	LegacyID    int64
	Email       string
	Phone       string
	FirstName   string
	LastName    string
	CountryCode string // legacy per-user dialing prefix, e.g. "250"
}

// Cleaned is the sanitized, semantically valid result.
type Cleaned struct {
	Email           *string
	PhoneNumber     *string
	FirstName       *string
	LastName        *string
	FullName        string
	HasValidContact bool
	Issues          []string
}

// User runs the cleaning decision tree over one legacy user. The phonePrefix
// is the regional prefix used to synthesize deterministic placeholder phones.
func User(in Input, phonePrefix string) Cleaned {
	var out Cleaned

	rawEmail := Sanitize(in.Email)
	rawPhone := Sanitize(in.Phone)

	switch {
	case rawPhone != "" && strings.Contains(rawPhone, "@"):
		// Email value stored in the phone column.
		out.Issues = append(out.Issues, IssueEmailInPhoneField)

		switch {
		case rawEmail == "":
			out.Email = ptr(rawPhone)
		case rawEmail == rawPhone:
			out.Email = ptr(rawEmail)
			out.PhoneNumber = ptr(PlaceholderPhone(phonePrefix, in.LegacyID))
			out.Issues = append(out.Issues, IssuePlaceholderPhone)
		default:
			out.Email = ptr(rawEmail)
			out.Issues = append(out.Issues, IssueCorruptedPhone)
		}

	default:
		if rawEmail != "" {
			out.Email = ptr(rawEmail)
			if !strings.Contains(rawEmail, "@") {
				out.Issues = append(out.Issues, IssueInvalidEmailFormat)
			}
		}

		if rawPhone != "" && rawPhone != "0" {
			countryCode := Sanitize(in.CountryCode)
			if countryCode == "" {
				countryCode = "250"
			}
			if phone := NormalizePhone(rawPhone, countryCode); phone != "" {
				out.PhoneNumber = ptr(phone)
			} else {
				out.Issues = append(out.Issues, IssueInvalidPhoneLength)
			}
		}
	}

	// At least one contact value must survive.
	if out.Email == nil && out.PhoneNumber == nil {
		out.PhoneNumber = ptr(PlaceholderPhone(phonePrefix, in.LegacyID))
		out.Issues = append(out.Issues, IssueNoContact)
	}

	// Names.
	if first := Sanitize(in.FirstName); first != "" {
		out.FirstName = ptr(first)
	}
	if last := Sanitize(in.LastName); last != "" {
		out.LastName = ptr(last)
	}

	switch {
	case out.FirstName != nil || out.LastName != nil:
		parts := make([]string, 0, 2)
		if out.FirstName != nil {
			parts = append(parts, *out.FirstName)
		}
		if out.LastName != nil {
			parts = append(parts, *out.LastName)
		}
		out.FullName = strings.TrimSpace(strings.Join(parts, " "))
	case out.Email != nil:
		local, _, _ := strings.Cut(*out.Email, "@")
		if local == "" {
			local = fmt.Sprintf("User %d", in.LegacyID)
		}
		out.FullName = local
		out.Issues = append(out.Issues, IssuePlaceholderName)
	case out.PhoneNumber != nil:
		p := *out.PhoneNumber
		if len(p) >= 4 {
			p = p[len(p)-4:]
		}
		out.FullName = "User " + p
		out.Issues = append(out.Issues, IssuePlaceholderName)
	default:
		out.FullName = fmt.Sprintf("User %d", in.LegacyID)
		out.Issues = append(out.Issues, IssuePlaceholderName)
	}

	out.HasValidContact = out.Email != nil || out.PhoneNumber != nil
	return out
}

// Sanitize strips NUL bytes and C0 control characters (tab, newline and
// carriage return survive and are handled by the trim) and trims surrounding
// whitespace.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 0x7F || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// NormalizePhone strips non-digit characters (a leading + survives),
// requires at least 8 remaining digits, and prepends the country code when
// neither a + nor the code itself is present. Empty means unusable.
func NormalizePhone(raw, countryCode string) string {
	plus := strings.HasPrefix(strings.TrimSpace(raw), "+")
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 8 {
		return ""
	}
	if plus {
		return "+" + d
	}
	if strings.HasPrefix(d, countryCode) {
		return d
	}
	return countryCode + strings.TrimLeft(d, "0")
}

// PlaceholderPhone synthesizes a deterministic phone from a legacy id:
// the regional prefix followed by the id zero-padded to 6 digits. Unique by
// construction for ids below one million, which covers the legacy key space.
func PlaceholderPhone(prefix string, legacyID int64) string {
	return fmt.Sprintf("%s%06d", prefix, legacyID)
}

// Age repairs the legacy free-text age column: "yes", blanks and
// out-of-range values become nil.
func Age(raw string) *int {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "yes") {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 150 {
		return nil
	}
	return &n
}

func ptr(s string) *string { return &s }

// Coordinates parses the legacy free-text "lat, lng" column. Anything that
// is not two finite numbers inside valid geographic ranges is rejected.
func Coordinates(raw string) (lat, lng float64, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, 0, false
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLng != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}
