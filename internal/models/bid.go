package models

import "time"

type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
)

func ValidBidStatus(s BidStatus) bool {
	switch s {
	case BidPending, BidAccepted, BidRejected, BidWithdrawn:
		return true
	default:
		return false
	}
}

type BidPart struct {
	Name     string  `json:"name"`
	Cost     float64 `json:"cost"`
	Warranty string  `json:"warranty,omitempty"`
}

type Warranty struct {
	DurationMonths int    `json:"duration"`
	Terms          string `json:"terms,omitempty"`
}

// BidValidity is the advisory lifetime of a bid. Expiry is display-only
// and never enforced by a scheduler.
const BidValidity = 48 * time.Hour

type Bid struct {
	Id              string     `json:"id"`
	RepairRequestId string     `json:"repairRequestId"`
	TechnicianId    string     `json:"technicianId"`
	Amount          float64    `json:"amount"`
	EstimatedTime   Estimate   `json:"estimatedTime"`
	Description     string     `json:"description"`
	PartsIncluded   []BidPart  `json:"partsIncluded,omitempty"`
	Warranty        *Warranty  `json:"warranty,omitempty"`
	Message         string     `json:"message,omitempty"`
	Status          BidStatus  `json:"status"`
	ValidUntil      time.Time  `json:"validUntil"`
	RejectReason    string     `json:"rejectReason,omitempty"`
	AcceptedAt      *time.Time `json:"acceptedAt,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"-"`
}

// Expired reports whether the bid's advisory validity window has passed.
func (b Bid) Expired(now time.Time) bool {
	return b.Status == BidPending && now.After(b.ValidUntil)
}
