package service

import (
	"context"
	"fmt"
	"time"

	"repairmarket/internal/models"
)

type NewBid struct {
	RepairRequestId string
	TechnicianId    string
	Amount          float64
	EstimatedTime   string
	Description     string
	PartsIncluded   []models.BidPart
	Warranty        *models.Warranty
	Message         string
}

// CreateBid places a pending bid on behalf of a technician. The request
// flips from open to bidding as a side effect, and the owning customer
// is notified.
func (s *Service) CreateBid(ctx context.Context, in NewBid) (models.Bid, error) {
	tech, ok, err := s.store.TechnicianByID(ctx, in.TechnicianId)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.CreateBid: %w", err)
	}
	if !ok {
		return models.Bid{}, fmt.Errorf("service.Service.CreateBid: %w: %s", models.ErrNoUser, in.TechnicianId)
	}
	if tech.User.Role != models.RoleTechnician {
		return models.Bid{}, fmt.Errorf("service.Service.CreateBid: only technicians can create bids: %w", models.ErrForbidden)
	}

	req, ok, err := s.store.RequestByID(ctx, in.RepairRequestId)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.CreateBid: %w", err)
	}
	if !ok {
		return models.Bid{}, fmt.Errorf("service.Service.CreateBid: %w: %s", models.ErrNoRequest, in.RepairRequestId)
	}

	hasBid, err := s.store.HasBid(ctx, req.Id, tech.User.Id)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.CreateBid: %w", err)
	}
	if err := CanBid(req, tech, hasBid); err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.CreateBid: %w", err)
	}

	if in.Amount <= 0 {
		return models.Bid{}, fmt.Errorf("service.Service.CreateBid: %w", models.ErrInvalidAmount)
	}
	estimate, err := models.ParseEstimate(in.EstimatedTime)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.CreateBid: %w", err)
	}

	bid, err := s.store.AddBid(ctx, models.Bid{
		RepairRequestId: req.Id,
		TechnicianId:    tech.User.Id,
		Amount:          in.Amount,
		EstimatedTime:   estimate,
		Description:     in.Description,
		PartsIncluded:   in.PartsIncluded,
		Warranty:        in.Warranty,
		Message:         in.Message,
		Status:          models.BidPending,
		ValidUntil:      time.Now().Add(models.BidValidity),
	})
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.CreateBid: %w", err)
	}

	s.notifier.Notify(ctx, req.CustomerId, models.NotifyNewBid,
		"New Bid Received",
		fmt.Sprintf("You received a new bid of PKR %.0f for your repair request", bid.Amount),
		models.NotificationData{RepairRequestId: req.Id, BidId: bid.Id})

	return bid, nil
}

// AcceptBid resolves the bidding round for a request: the chosen bid is
// accepted, the request is assigned to its technician and every sibling
// pending bid is rejected, all as one atomic store operation.
func (s *Service) AcceptBid(ctx context.Context, bidId, customerId string) (models.Bid, error) {
	bid, err := s.bidByID(ctx, bidId)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.AcceptBid: %w", err)
	}

	req, err := s.requestByID(ctx, bid.RepairRequestId)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.AcceptBid: %w", err)
	}
	if req.CustomerId != customerId {
		return models.Bid{}, fmt.Errorf("service.Service.AcceptBid: %w", models.ErrForbidden)
	}
	if bid.Status != models.BidPending {
		return models.Bid{}, fmt.Errorf("service.Service.AcceptBid: %w", models.ErrBidProcessed)
	}

	// The store re-checks both guards under lock; a concurrent accept on
	// a competing bid makes this call fail with ErrBidProcessed.
	accepted, rejected, err := s.store.AcceptBid(ctx, bid.Id)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.AcceptBid: %w", err)
	}

	s.notifier.Notify(ctx, accepted.TechnicianId, models.NotifyBidAccepted,
		"Bid Accepted!",
		fmt.Sprintf("Your bid of PKR %.0f has been accepted", accepted.Amount),
		models.NotificationData{RepairRequestId: req.Id, BidId: accepted.Id})

	for _, loser := range rejected {
		s.notifier.Notify(ctx, loser.TechnicianId, models.NotifyBidRejected,
			"Bid Rejected",
			fmt.Sprintf("Your bid of PKR %.0f has been rejected", loser.Amount),
			models.NotificationData{RepairRequestId: req.Id, BidId: loser.Id})
	}

	return accepted, nil
}

// RejectBid declines a single pending bid. Sibling bids are untouched.
func (s *Service) RejectBid(ctx context.Context, bidId, customerId, reason string) error {
	bid, err := s.bidByID(ctx, bidId)
	if err != nil {
		return fmt.Errorf("service.Service.RejectBid: %w", err)
	}

	req, err := s.requestByID(ctx, bid.RepairRequestId)
	if err != nil {
		return fmt.Errorf("service.Service.RejectBid: %w", err)
	}
	if req.CustomerId != customerId {
		return fmt.Errorf("service.Service.RejectBid: %w", models.ErrForbidden)
	}
	if bid.Status != models.BidPending {
		return fmt.Errorf("service.Service.RejectBid: %w", models.ErrBidProcessed)
	}

	rejected, err := s.store.MarkBidRejected(ctx, bid.Id, reason)
	if err != nil {
		return fmt.Errorf("service.Service.RejectBid: %w", err)
	}

	s.notifier.Notify(ctx, rejected.TechnicianId, models.NotifyBidRejected,
		"Bid Rejected",
		fmt.Sprintf("Your bid of PKR %.0f has been rejected", rejected.Amount),
		models.NotificationData{RepairRequestId: req.Id, BidId: rejected.Id})

	return nil
}

// WithdrawBid lets the bid's author pull a still-pending bid.
func (s *Service) WithdrawBid(ctx context.Context, bidId, technicianId string) (models.Bid, error) {
	bid, err := s.bidByID(ctx, bidId)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.WithdrawBid: %w", err)
	}
	if bid.TechnicianId != technicianId {
		return models.Bid{}, fmt.Errorf("service.Service.WithdrawBid: %w", models.ErrForbidden)
	}
	if bid.Status != models.BidPending {
		return models.Bid{}, fmt.Errorf("service.Service.WithdrawBid: %w", models.ErrBidProcessed)
	}

	withdrawn, err := s.store.MarkBidWithdrawn(ctx, bid.Id)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.WithdrawBid: %w", err)
	}
	return withdrawn, nil
}

// RequestBids lists all bids on a request, visible to the owning
// customer, technicians with a bid on it and admins. Sort is by amount
// or creation time.
func (s *Service) RequestBids(ctx context.Context, requestId, userId, sortBy, order string) ([]models.Bid, error) {
	user, err := s.userByID(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.RequestBids: %w", err)
	}

	req, err := s.requestByID(ctx, requestId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.RequestBids: %w", err)
	}
	switch user.Role {
	case models.RoleCustomer:
		if req.CustomerId != user.Id {
			return nil, fmt.Errorf("service.Service.RequestBids: %w", models.ErrForbidden)
		}
	case models.RoleTechnician:
		hasBid, err := s.store.HasBid(ctx, req.Id, user.Id)
		if err != nil {
			return nil, fmt.Errorf("service.Service.RequestBids: %w", err)
		}
		if !hasBid {
			return nil, fmt.Errorf("service.Service.RequestBids: %w", models.ErrForbidden)
		}
	}

	bids, err := s.store.Bids(ctx, BidFilter{
		RepairRequestId: req.Id,
		SortBy:          sortBy,
		Order:           order,
	})
	if err != nil {
		return nil, fmt.Errorf("service.Service.RequestBids: %w", err)
	}
	return bids, nil
}

// TechnicianBids lists a technician's own bids, optionally by status.
func (s *Service) TechnicianBids(ctx context.Context, technicianId string, status models.BidStatus, limit, offset int) ([]models.Bid, error) {
	bids, err := s.store.Bids(ctx, BidFilter{
		TechnicianId: technicianId,
		Status:       status,
		SortBy:       "createdAt",
		Order:        "desc",
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, fmt.Errorf("service.Service.TechnicianBids: %w", err)
	}
	return bids, nil
}
