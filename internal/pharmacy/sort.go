package pharmacy

import (
	"slices"
	"strconv"
	"time"

	"qms/patient-client/internal/models"
)

// createdAt returns the creation time of p, falling back to the timestamp
// embedded in the first four bytes of a 24 hex digit object id.
func createdAt(p models.Prescription) time.Time {
	if p.CreatedAt != nil && !p.CreatedAt.IsZero() {
		return *p.CreatedAt
	}
	if len(p.ID) != 24 {
		return time.Time{}
	}
	secs, err := strconv.ParseUint(p.ID[:8], 16, 32)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0).UTC()
}

// SortNewestFirst orders prescriptions by creation time, newest first. Equal
// times keep their input order.
func SortNewestFirst(list []models.Prescription) {
	slices.SortStableFunc(list, func(a, b models.Prescription) int {
		return createdAt(b).Compare(createdAt(a))
	})
}
