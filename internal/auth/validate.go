// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nyaruka/phonenumbers"
	"github.com/samber/oops"
)

// Registration field constraints.
const (
	MinNameLength     = 3
	MaxNameLength     = 150
	MinPasswordLength = 8
	MaxPasswordLength = 64
	MaxPhoneLength    = 32
	MaxEmailLength    = 254
)

// Registration is a signup request as received from a client.
type Registration struct {
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks every field and returns a *ValidationError (wrapped with
// code AUTH_VALIDATION_FAILED) listing all failures, or nil.
func (r Registration) Validate() error {
	verr := &ValidationError{}

	if err := ValidateName(r.Name); err != nil {
		verr.add("name", err.Error())
	}
	if r.Age <= 0 {
		verr.add("age", "age must be a positive integer")
	}
	if _, err := NormalizePhone(r.Phone); err != nil {
		verr.add("phone", err.Error())
	}
	if _, err := NormalizeEmail(r.Email); err != nil {
		verr.add("email", err.Error())
	}
	if err := ValidatePassword(r.Password); err != nil {
		verr.add("password", err.Error())
	}

	return verr.orNil()
}

// normalized returns the registration with name trimmed, phone in +digits
// form and email lower-cased. Call only after Validate succeeds.
func (r Registration) normalized() Registration {
	out := r
	out.Name = strings.TrimSpace(r.Name)
	out.Phone, _ = NormalizePhone(r.Phone)
	out.Email, _ = NormalizeEmail(r.Email)
	return out
}

// ValidateName checks a display name's length after trimming.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	switch {
	case n == 0:
		return oops.Code("AUTH_INVALID_NAME").Errorf("name cannot be empty")
	case n < MinNameLength:
		return oops.Code("AUTH_INVALID_NAME").
			With("min", MinNameLength).
			Errorf("name must be at least %d characters", MinNameLength)
	case n > MaxNameLength:
		return oops.Code("AUTH_INVALID_NAME").
			With("max", MaxNameLength).
			Errorf("name must be at most %d characters", MaxNameLength)
	}
	return nil
}

// NormalizePhone checks that phone is a valid number in international
// format and returns it as "+" followed by its digits (E.164).
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", oops.Code("AUTH_INVALID_PHONE").Errorf("phone cannot be empty")
	}
	if len(phone) > MaxPhoneLength {
		return "", oops.Code("AUTH_INVALID_PHONE").
			With("max", MaxPhoneLength).
			Errorf("phone must be at most %d characters", MaxPhoneLength)
	}
	// No default region: numbers must carry their country code.
	num, err := phonenumbers.Parse(phone, "")
	if err != nil {
		return "", oops.Code("AUTH_INVALID_PHONE").Wrapf(err, "phone is not a valid international number")
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", oops.Code("AUTH_INVALID_PHONE").Errorf("phone is not a valid number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// NormalizeEmail trims and lower-cases an email address after checking it
// parses as a bare RFC 5322 address with a dotted domain.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return "", oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", oops.Code("AUTH_INVALID_EMAIL").Errorf("email is not a valid address")
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || !strings.Contains(email[at+1:], ".") {
		return "", oops.Code("AUTH_INVALID_EMAIL").Errorf("email is not a valid address")
	}
	return strings.ToLower(email), nil
}

// ValidatePassword enforces the password policy: 8 to 64 characters with
// at least one digit, one lowercase letter, one uppercase letter and one
// symbol. Underscore counts as a word character, not a symbol.
func ValidatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return oops.Code("AUTH_WEAK_PASSWORD").
			With("min", MinPasswordLength).
			With("max", MaxPasswordLength).
			Errorf("password must be between %d and %d characters", MinPasswordLength, MaxPasswordLength)
	}

	var hasDigit, hasLower, hasUpper, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case r != '_' && !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	switch {
	case !hasDigit:
		return oops.Code("AUTH_WEAK_PASSWORD").Errorf("password must contain at least one digit")
	case !hasLower:
		return oops.Code("AUTH_WEAK_PASSWORD").Errorf("password must contain at least one lowercase letter")
	case !hasUpper:
		return oops.Code("AUTH_WEAK_PASSWORD").Errorf("password must contain at least one uppercase letter")
	case !hasSymbol:
		return oops.Code("AUTH_WEAK_PASSWORD").Errorf("password must contain at least one symbol")
	}
	return nil
}
