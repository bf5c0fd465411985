package service

import "repairmarket/internal/models"

// CanBid applies the bidding eligibility gate: the request must still
// accept bids, the technician must not already hold a bid on it, and the
// technician must be approved with an active account.
//
// This is a pure predicate over a snapshot. Eligibility can change
// between check and write under concurrent access, so the duplicate and
// request-status rules are re-checked atomically by the store when the
// bid is persisted.
func CanBid(req models.RepairRequest, tech models.Technician, hasExistingBid bool) error {
	if !req.Status.AcceptsBids() {
		return models.ErrRequestClosed
	}
	if hasExistingBid {
		return models.ErrDuplicateBid
	}
	if tech.Profile == nil || !tech.Profile.IsApproved || !tech.User.IsActive {
		return models.ErrNotEligible
	}
	return nil
}
