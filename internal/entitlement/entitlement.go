// Package entitlement decides whether the host may create more of a kind of
// resource. The lifecycle manager asks it before creating a context for a
// site it has not seen.
package entitlement

import (
	"errors"
	"fmt"
)

// KindSite is the entitlement kind checked before a new site context is created.
const KindSite = "site"

// ErrQuotaExceeded indicates the requested count is over the configured limit.
var ErrQuotaExceeded = errors.New("quota exceeded")

// QuotaValidator enforces a maximum count per kind. A limit of zero, or a
// kind with no limit, is unlimited.
type QuotaValidator struct {
	limits map[string]int
}

// NewQuotaValidator returns a validator with the given per-kind limits.
func NewQuotaValidator(limits map[string]int) *QuotaValidator {
	l := make(map[string]int, len(limits))
	for k, v := range limits {
		l[k] = v
	}
	return &QuotaValidator{limits: l}
}

// Validate returns ErrQuotaExceeded when count is above the limit for kind.
// count is the total that would exist after the creation.
func (q *QuotaValidator) Validate(kind string, count int) error {
	limit := q.limits[kind]
	if limit <= 0 || count <= limit {
		return nil
	}
	return fmt.Errorf("entitlement: %s count %d over limit %d: %w", kind, count, limit, ErrQuotaExceeded)
}
