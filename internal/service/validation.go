package service

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
)

var (
	cpfPattern   = regexp.MustCompile(`^\d{3}\.\d{3}\.\d{3}-\d{2}$`)
	phonePattern = regexp.MustCompile(`^\(\d{2}\)\s\d{4,5}-\d{4}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

func validateEmail(field, email string) error {
	if !emailPattern.MatchString(email) {
		return &domain.ErrValidation{Field: field, Message: "must be a valid e-mail address"}
	}
	return nil
}

func validateLength(field, value string, min, max int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	if n < min {
		return &domain.ErrValidation{Field: field, Message: fmt.Sprintf("must be at least %d characters", min)}
	}
	if max > 0 && n > max {
		return &domain.ErrValidation{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}

func validateRange(field string, v, min, max float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < min || v > max {
		return &domain.ErrValidation{Field: field, Message: fmt.Sprintf("must be between %g and %g", min, max)}
	}
	return nil
}

// normalizePage clamps page and limit to the accepted window.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// normalizeSort keeps sortBy only when whitelisted and defaults the order to desc.
func normalizeSort(columns map[string]string, sortBy, sortOrder string) (string, string, error) {
	if sortBy != "" {
		if _, ok := columns[sortBy]; !ok {
			return "", "", &domain.ErrValidation{Field: "sortBy", Message: "unsupported sort field " + sortBy}
		}
	}
	switch strings.ToLower(sortOrder) {
	case "", domain.SortDesc:
		return sortBy, domain.SortDesc, nil
	case domain.SortAsc:
		return sortBy, domain.SortAsc, nil
	}
	return "", "", &domain.ErrValidation{Field: "sortOrder", Message: "must be asc or desc"}
}
