package invariant

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/Kapral67/FamilyDirectory-sub001/store"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().\-]{2,}$`)

// ValidateMember checks a member's attributes. All problems are reported,
// each wrapping ErrValidation.
func ValidateMember(m store.Member) error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...))
	}

	if strings.TrimSpace(m.FirstName) == "" {
		invalid("first name is required")
	}
	if strings.TrimSpace(m.LastName) == "" {
		invalid("last name is required")
	}

	birthday, err := time.Parse(store.DateLayout, m.Birthday)
	if err != nil {
		invalid("birthday %q must be formatted %s", m.Birthday, store.DateLayout)
	}
	if m.Deathday != "" {
		deathday, err := time.Parse(store.DateLayout, m.Deathday)
		switch {
		case err != nil:
			invalid("deathday %q must be formatted %s", m.Deathday, store.DateLayout)
		case !birthday.IsZero() && deathday.Before(birthday):
			invalid("deathday %s is before birthday %s", m.Deathday, m.Birthday)
		}
	}

	if m.Email != "" {
		if addr, err := mail.ParseAddress(m.Email); err != nil || addr.Address != strings.TrimSpace(m.Email) {
			invalid("email %q is not a bare address", m.Email)
		}
	}

	for kind, number := range m.Phones {
		if strings.TrimSpace(kind) == "" {
			invalid("phone type is required")
		}
		if !phonePattern.MatchString(number) {
			invalid("phone %s %q is not a phone number", kind, number)
		}
	}

	for i, line := range m.Address {
		if strings.TrimSpace(line) == "" {
			invalid("address line %d is blank", i+1)
		}
	}

	return errors.Join(errs...)
}
