// Package profile holds the personal and medical details a patient keeps
// next to their readings.
package profile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// maxFieldLen bounds every free text field, in runes.
const maxFieldLen = 2000

// ErrInvalidProfile is returned when an update fails validation.
var ErrInvalidProfile = errors.New("invalid profile")

// Personal is the contact section of a profile.
type Personal struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	EmergencyContact string `json:"emergencyContact"`
}

// Medical is the medical history section of a profile. Age, Height (cm) and
// Weight (kg) are kept as entered; when set they must be positive numbers.
type Medical struct {
	Age           string `json:"age"`
	Gender        string `json:"gender"`
	Height        string `json:"height"`
	Weight        string `json:"weight"`
	Conditions    string `json:"conditions"`
	Medications   string `json:"medications"`
	Allergies     string `json:"allergies"`
	FamilyHistory string `json:"familyHistory"`
	Lifestyle     string `json:"lifestyle"`
}

// Profile is one patient's record. Email is the account email and cannot be
// changed through a profile update.
type Profile struct {
	Email     string    `json:"email"`
	Personal  Personal  `json:"personal"`
	Medical   Medical   `json:"medical"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// New returns the empty profile of an account.
func New(email, displayName string) Profile {
	return Profile{Email: email, Personal: Personal{Name: strings.TrimSpace(displayName)}}
}

// Normalize returns p with surrounding whitespace removed from every field.
func (p Personal) Normalize() Personal {
	return Personal{
		Name:             strings.TrimSpace(p.Name),
		Phone:            strings.TrimSpace(p.Phone),
		Address:          strings.TrimSpace(p.Address),
		EmergencyContact: strings.TrimSpace(p.EmergencyContact),
	}
}

// Validate checks field lengths.
func (p Personal) Validate() error {
	return checkLengths(map[string]string{
		"name":             p.Name,
		"phone":            p.Phone,
		"address":          p.Address,
		"emergencyContact": p.EmergencyContact,
	})
}

// Normalize returns m with surrounding whitespace removed from every field.
func (m Medical) Normalize() Medical {
	return Medical{
		Age:           strings.TrimSpace(m.Age),
		Gender:        strings.TrimSpace(m.Gender),
		Height:        strings.TrimSpace(m.Height),
		Weight:        strings.TrimSpace(m.Weight),
		Conditions:    strings.TrimSpace(m.Conditions),
		Medications:   strings.TrimSpace(m.Medications),
		Allergies:     strings.TrimSpace(m.Allergies),
		FamilyHistory: strings.TrimSpace(m.FamilyHistory),
		Lifestyle:     strings.TrimSpace(m.Lifestyle),
	}
}

// Validate checks field lengths and the numeric fields.
func (m Medical) Validate() error {
	if err := checkLengths(map[string]string{
		"gender":        m.Gender,
		"conditions":    m.Conditions,
		"medications":   m.Medications,
		"allergies":     m.Allergies,
		"familyHistory": m.FamilyHistory,
		"lifestyle":     m.Lifestyle,
	}); err != nil {
		return err
	}
	if m.Age != "" {
		age, err := strconv.Atoi(m.Age)
		if err != nil || age < 0 || age > 150 {
			return fmt.Errorf("%w: age must be a whole number between 0 and 150", ErrInvalidProfile)
		}
	}
	for name, v := range map[string]string{"height": m.Height, "weight": m.Weight} {
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || !(f > 0) || f > 1000 {
			return fmt.Errorf("%w: %s must be a positive number", ErrInvalidProfile, name)
		}
	}
	return nil
}

func checkLengths(fields map[string]string) error {
	for name, v := range fields {
		if utf8.RuneCountInString(v) > maxFieldLen {
			return fmt.Errorf("%w: %s is longer than %d characters", ErrInvalidProfile, name, maxFieldLen)
		}
	}
	return nil
}
