package service

import (
	"context"
	"fmt"

	"repairmarket/internal/models"
)

// Store is the persistence boundary of the lifecycle engine. Conditional
// updates (accept, reject, withdraw, complete) are atomic on the store
// side: a guard that no longer holds returns the matching sentinel error
// instead of applying the write.
type Store interface {
	UserByID(ctx context.Context, id string) (models.User, bool, error)
	TechnicianByID(ctx context.Context, userId string) (models.Technician, bool, error)
	SetTechnicianApproval(ctx context.Context, userId string, approved bool) (models.TechnicianProfile, error)

	AddRequest(ctx context.Context, req models.RepairRequest) (models.RepairRequest, error)
	RequestByID(ctx context.Context, id string) (models.RepairRequest, bool, error)
	Requests(ctx context.Context, f RequestFilter) ([]models.RepairRequest, error)
	RequestsNear(ctx context.Context, lon, lat, radiusMeters float64, f RequestFilter) ([]models.RepairRequest, error)
	// UpdateRequest writes the request back guarded on prev, the status
	// the caller read its snapshot at. A concurrent transition fails the
	// write with ErrStaleRequest so a stale snapshot can never regress
	// the request.
	UpdateRequest(ctx context.Context, req models.RepairRequest, prev models.RequestStatus) error
	DeleteRequest(ctx context.Context, id string) error

	// AddBid persists a pending bid and flips the parent request from
	// open to bidding in the same transaction. The (request, technician)
	// uniqueness constraint is enforced here, not by a pre-check.
	AddBid(ctx context.Context, bid models.Bid) (models.Bid, error)
	BidByID(ctx context.Context, id string) (models.Bid, bool, error)
	HasBid(ctx context.Context, requestId, technicianId string) (bool, error)
	Bids(ctx context.Context, f BidFilter) ([]models.Bid, error)

	// AcceptBid atomically accepts the bid, binds the parent request to
	// its technician and rejects every sibling pending bid. The rejected
	// siblings are returned for notification. Exactly one concurrent
	// accept per request can succeed; losers get ErrBidProcessed.
	AcceptBid(ctx context.Context, bidId string) (models.Bid, []models.Bid, error)
	MarkBidRejected(ctx context.Context, bidId, reason string) (models.Bid, error)
	MarkBidWithdrawn(ctx context.Context, bidId string) (models.Bid, error)

	// CompleteRequest marks the request completed, creates its transaction
	// if none exists yet and advances the request to paid. The returned
	// bool reports whether a transaction was created by this call.
	CompleteRequest(ctx context.Context, requestId string, tr models.Transaction) (models.RepairRequest, bool, error)

	AddNotification(ctx context.Context, n models.Notification) (models.Notification, error)
	Notifications(ctx context.Context, userId string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userId, notificationId string) (models.Notification, error)
}

// Notifier is the fire-and-forget sink for lifecycle events. Delivery
// failures never surface to the caller.
type Notifier interface {
	Notify(ctx context.Context, userId string, typ models.NotificationType, title, message string, data models.NotificationData)
}

type RequestFilter struct {
	CustomerId string
	Statuses   []models.RequestStatus
	IssueType  models.IssueType
	Limit      int
	Offset     int
}

type BidFilter struct {
	RepairRequestId string
	TechnicianId    string
	Status          models.BidStatus
	SortBy          string
	Order           string
	Limit           int
	Offset          int
}

type Service struct {
	store    Store
	notifier Notifier
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

//// Service

func (s *Service) userByID(ctx context.Context, id string) (models.User, error) {
	user, ok, err := s.store.UserByID(ctx, id)
	if err != nil {
		return models.User{}, fmt.Errorf("service.Service.userByID: %w", err)
	}
	if !ok {
		return models.User{}, fmt.Errorf("service.Service.userByID: %w: %s", models.ErrNoUser, id)
	}
	return user, nil
}

func (s *Service) requestByID(ctx context.Context, id string) (models.RepairRequest, error) {
	req, ok, err := s.store.RequestByID(ctx, id)
	if err != nil {
		return models.RepairRequest{}, fmt.Errorf("service.Service.requestByID: %w", err)
	}
	if !ok {
		return models.RepairRequest{}, fmt.Errorf("service.Service.requestByID: %w: %s", models.ErrNoRequest, id)
	}
	return req, nil
}

func (s *Service) bidByID(ctx context.Context, id string) (models.Bid, error) {
	bid, ok, err := s.store.BidByID(ctx, id)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service.Service.bidByID: %w", err)
	}
	if !ok {
		return models.Bid{}, fmt.Errorf("service.Service.bidByID: %w: %s", models.ErrNoBid, id)
	}
	return bid, nil
}
