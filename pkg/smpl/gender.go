package smpl

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownGender is returned for gender tags other than female, male and neutral.
var ErrUnknownGender = errors.New("unknown gender")

// Gender selects the gendered body model and its coefficient tables.
type Gender string

// Supported genders.
const (
	Female  Gender = "female"
	Male    Gender = "male"
	Neutral Gender = "neutral"
)

// ParseGender parses a gender tag, ignoring case and surrounding whitespace.
func ParseGender(s string) (Gender, error) {
	switch g := Gender(strings.ToLower(strings.TrimSpace(s))); g {
	case Female, Male, Neutral:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGender, s)
	}
}

// GenderFromName derives the gender from an object name such as
// "SMPLX-mesh-female". "female" is checked before "male" since it contains it.
func GenderFromName(name string) (Gender, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, string(Female)):
		return Female, nil
	case strings.Contains(lower, string(Male)):
		return Male, nil
	case strings.Contains(lower, string(Neutral)):
		return Neutral, nil
	default:
		return "", fmt.Errorf("%w: cannot derive gender from %q", ErrUnknownGender, name)
	}
}
