package tracker

import "github.com/MwailaCoding/storefront/internal/backend"

// CheckStatusChange reports whether next differs from prev in a way the
// customer should be told about. The first load never counts. Only the
// status and the update timestamp are compared.
func CheckStatusChange(next, prev *backend.OrderDetail) bool {
	if prev == nil || next == nil {
		return false
	}
	if next.Status != prev.Status {
		return true
	}
	if next.UpdatedAt != nil && prev.UpdatedAt != nil && *next.UpdatedAt != *prev.UpdatedAt {
		return true
	}
	return false
}
