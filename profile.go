package identity

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is the region used to parse phone numbers submitted
// without a country prefix.
var DefaultPhoneRegion = "US"

// Profile is the optional sub-record carried by an Identity. The auth core
// stores it and stamps the avatar into issued claims; the remaining fields are
// opaque to authorization decisions.
type Profile struct {
	AvatarURL string `json:"avatar_url,omitempty"`
	Phone     string `json:"phone_number,omitempty"`
	Locale    string `json:"locale,omitempty"`
}

// NormalizePhone parses a raw phone number and formats it as E.164 so lookups
// are stable regardless of input formatting. An empty input is passed through.
func NormalizePhone(raw, region string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if region == "" {
		region = DefaultPhoneRegion
	}

	parsed, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryValidation, "invalid phone number").
			WithCode(goerrors.CodeBadRequest)
	}

	if !phonenumbers.IsValidNumber(parsed) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"region": region})
	}

	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// ApplyProfile copies profile fields onto the user record, normalizing the
// phone number. Empty fields leave the existing values untouched.
func ApplyProfile(user *User, profile Profile) error {
	if user == nil {
		return nil
	}

	if profile.AvatarURL != "" {
		user.AvatarURL = profile.AvatarURL
	}

	if profile.Locale != "" {
		user.Locale = profile.Locale
	}

	if profile.Phone != "" {
		phone, err := NormalizePhone(profile.Phone, regionFromLocale(user.Locale))
		if err != nil {
			return err
		}
		user.Phone = phone
	}

	return nil
}

func regionFromLocale(locale string) string {
	// Locales are stored as language or language-REGION tags; only the region
	// part is meaningful for phone parsing.
	if len(locale) == 5 && (locale[2] == '-' || locale[2] == '_') {
		return locale[3:]
	}
	return DefaultPhoneRegion
}
