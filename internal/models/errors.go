package models

import "errors"

var (
	ErrNoUser           = errors.New("provided user does not exist")
	ErrNoRequest        = errors.New("requested repair request does not exist")
	ErrNoBid            = errors.New("requested bid does not exist")
	ErrNoNotification   = errors.New("requested notification does not exist")
	ErrForbidden        = errors.New("provided user does not have permission for this operation")
	ErrNotEligible      = errors.New("technician is not approved or account is inactive")
	ErrDuplicateBid     = errors.New("technician has already placed a bid on this repair request")
	ErrBidProcessed     = errors.New("bid has already been processed")
	ErrRequestClosed    = errors.New("repair request is no longer accepting bids")
	ErrRequestFinalized = errors.New("repair request can no longer be changed")
	ErrStaleRequest     = errors.New("repair request was modified concurrently")
	ErrNotAssigned      = errors.New("repair request has no assigned technician yet")
	ErrBadTransition    = errors.New("requested status change is not allowed")
	ErrInvalidEstimate  = errors.New("estimated time format is not recognized")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrUnavailable      = errors.New("storage is temporarily unavailable")
)
