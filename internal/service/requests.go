package service

import (
	"context"
	"fmt"
	"time"

	"repairmarket/internal/models"
)

// RequestExpiry is the default lifetime of an open repair request.
const RequestExpiry = 7 * 24 * time.Hour

type NewRequest struct {
	CustomerId      string
	Title           string
	Description     string
	DeviceInfo      models.DeviceInfo
	IssueType       models.IssueType
	Images          []models.RequestImage
	Urgency         models.Urgency
	PreferredBudget *models.Budget
	Location        models.Location
}

func (s *Service) CreateRequest(ctx context.Context, in NewRequest) (models.RepairRequest, error) {
	customer, err := s.userByID(ctx, in.CustomerId)
	if err != nil {
		return models.RepairRequest{}, fmt.Errorf("service.Service.CreateRequest: %w", err)
	}

	urgency := in.Urgency
	if len(urgency) == 0 {
		urgency = models.UrgencyMedium
	}

	req, err := s.store.AddRequest(ctx, models.RepairRequest{
		CustomerId:      customer.Id,
		Title:           in.Title,
		Description:     in.Description,
		DeviceInfo:      in.DeviceInfo,
		IssueType:       in.IssueType,
		Images:          in.Images,
		Urgency:         urgency,
		PreferredBudget: in.PreferredBudget,
		Location:        in.Location,
		Status:          models.RequestOpen,
		ExpiresAt:       time.Now().Add(RequestExpiry),
	})
	if err != nil {
		return models.RepairRequest{}, fmt.Errorf("service.Service.CreateRequest: %w", err)
	}
	return req, nil
}

func (s *Service) GetRequest(ctx context.Context, id, userId string) (models.RepairRequest, error) {
	user, err := s.userByID(ctx, userId)
	if err != nil {
		return models.RepairRequest{}, fmt.Errorf("service.Service.GetRequest: %w", err)
	}

	req, err := s.requestByID(ctx, id)
	if err != nil {
		return models.RepairRequest{}, fmt.Errorf("service.Service.GetRequest: %w", err)
	}
	if user.Role == models.RoleCustomer && req.CustomerId != user.Id {
		return models.RepairRequest{}, fmt.Errorf("service.Service.GetRequest: %w", models.ErrForbidden)
	}
	return req, nil
}

type RequestListing struct {
	Status    models.RequestStatus
	IssueType models.IssueType
	RadiusKm  float64
	Limit     int
	Offset    int
}

// ListRequests returns requests scoped by the caller's role. Customers
// see their own requests. Technicians see open/bidding work near them,
// limited by their service radius; a technician without usable
// coordinates falls back to the unfiltered listing rather than failing.
func (s *Service) ListRequests(ctx context.Context, userId string, q RequestListing) ([]models.RepairRequest, error) {
	user, err := s.userByID(ctx, userId)
	if err != nil {
		return nil, fmt.Errorf("service.Service.ListRequests: %w", err)
	}

	filter := RequestFilter{
		IssueType: q.IssueType,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	if len(q.Status) > 0 {
		filter.Statuses = []models.RequestStatus{q.Status}
	}

	switch user.Role {
	case models.RoleCustomer:
		filter.CustomerId = user.Id
		reqs, err := s.store.Requests(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("service.Service.ListRequests: %w", err)
		}
		return reqs, nil

	case models.RoleTechnician:
		if len(filter.Statuses) == 0 {
			filter.Statuses = []models.RequestStatus{models.RequestOpen, models.RequestBidding}
		}

		tech, ok, err := s.store.TechnicianByID(ctx, user.Id)
		if err != nil {
			return nil, fmt.Errorf("service.Service.ListRequests: %w", err)
		}

		if ok && tech.Profile != nil && user.HasCoordinates() {
			radiusKm := tech.Profile.ServiceRadiusKm
			if radiusKm <= 0 {
				radiusKm = q.RadiusKm
			}
			if radiusKm <= 0 {
				radiusKm = 10
			}
			reqs, err := s.store.RequestsNear(ctx, *user.Longitude, *user.Latitude, radiusKm*1000, filter)
			if err != nil {
				return nil, fmt.Errorf("service.Service.ListRequests: %w", err)
			}
			return reqs, nil
		}

		// no profile or no usable location: unfiltered listing
		reqs, err := s.store.Requests(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("service.Service.ListRequests: %w", err)
		}
		return reqs, nil

	case models.RoleAdmin:
		reqs, err := s.store.Requests(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("service.Service.ListRequests: %w", err)
		}
		return reqs, nil
	}

	return nil, fmt.Errorf("service.Service.ListRequests: %w", models.ErrForbidden)
}

// RequestChanges carries a partial update. Nil fields are untouched.
// Amount and PaymentMethod are only read when the change completes the
// request and its transaction must be created.
type RequestChanges struct {
	Title         *string
	Description   *string
	Urgency       *models.Urgency
	Status        *models.RequestStatus
	Amount        float64
	PaymentMethod models.PaymentMethod
}

// UpdateRequest applies field edits and forward-only status moves.
// Authorized for the owning customer or the assigned technician;
// cancellation is owner-only. A move to completed delegates to
// CompleteRequest so the transaction side effect stays in one place.
func (s *Service) UpdateRequest(ctx context.Context, id, userId string, changes RequestChanges) (models.RepairRequest, error) {
	req, err := s.requestByID(ctx, id)
	if err != nil {
		return models.RepairRequest{}, fmt.Errorf("service.Service.UpdateRequest: %w", err)
	}

	if req.CustomerId != userId && req.AssignedTechnician != userId {
		return models.RepairRequest{}, fmt.Errorf("service.Service.UpdateRequest: %w", models.ErrForbidden)
	}
	if req.Status == models.RequestCancelled || req.Status == models.RequestPaid {
		return models.RepairRequest{}, fmt.Errorf("service.Service.UpdateRequest: %w", models.ErrRequestFinalized)
	}
	prev := req.Status

	if changes.Status != nil && *changes.Status != req.Status {
		target := *changes.Status
		if !models.ValidRequestTransition(req.Status, target) {
			return models.RepairRequest{}, fmt.Errorf("service.Service.UpdateRequest: %s -> %s: %w", req.Status, target, models.ErrBadTransition)
		}
		switch target {
		case models.RequestCompleted:
			return s.CompleteRequest(ctx, id, userId, Completion{
				Amount:        changes.Amount,
				PaymentMethod: changes.PaymentMethod,
			})
		case models.RequestCancelled:
			if req.CustomerId != userId {
				return models.RepairRequest{}, fmt.Errorf("service.Service.UpdateRequest: %w", models.ErrForbidden)
			}
		}
		req.Status = target
	}

	if changes.Title != nil {
		req.Title = *changes.Title
	}
	if changes.Description != nil {
		req.Description = *changes.Description
	}
	if changes.Urgency != nil {
		req.Urgency = *changes.Urgency
	}

	if err := s.store.UpdateRequest(ctx, req, prev); err != nil {
		return models.RepairRequest{}, fmt.Errorf("service.Service.UpdateRequest: %w", err)
	}
	return req, nil
}

type Completion struct {
	Amount        float64
	PaymentMethod models.PaymentMethod
}

// CompleteRequest finishes an assigned job: the request is marked
// completed, its transaction is created exactly once and the status
// advances to paid. Repeating the call never creates a second
// transaction.
func (s *Service) CompleteRequest(ctx context.Context, requestId, userId string, comp Completion) (models.RepairRequest, error) {
	req, err := s.requestByID(ctx, requestId)
	if err != nil {
		return models.RepairRequest{}, fmt.Errorf("service.Service.CompleteRequest: %w", err)
	}

	if req.CustomerId != userId && req.AssignedTechnician != userId {
		return models.RepairRequest{}, fmt.Errorf("service.Service.CompleteRequest: %w", models.ErrForbidden)
	}
	if len(req.AssignedTechnician) == 0 {
		return models.RepairRequest{}, fmt.Errorf("service.Service.CompleteRequest: %w", models.ErrNotAssigned)
	}

	method := comp.PaymentMethod
	if len(method) == 0 {
		method = models.PaymentCash
	}

	req, created, err := s.store.CompleteRequest(ctx, req.Id, models.Transaction{
		RepairRequestId: req.Id,
		CustomerId:      req.CustomerId,
		TechnicianId:    req.AssignedTechnician,
		Amount:          comp.Amount,
		Currency:        "PKR",
		Type:            models.TransactionRepairPayment,
		Status:          models.TransactionCompleted,
		PaymentMethod:   method,
	})
	if err != nil {
		return models.RepairRequest{}, fmt.Errorf("service.Service.CompleteRequest: %w", err)
	}

	if created {
		s.notifier.Notify(ctx, req.AssignedTechnician, models.NotifyJobCompleted,
			"Job Completed",
			"The repair has been marked completed and payment was recorded",
			models.NotificationData{RepairRequestId: req.Id})
	}

	return req, nil
}

// DeleteRequest removes a request that has not been assigned yet.
func (s *Service) DeleteRequest(ctx context.Context, id, userId string) error {
	req, err := s.requestByID(ctx, id)
	if err != nil {
		return fmt.Errorf("service.Service.DeleteRequest: %w", err)
	}
	if req.CustomerId != userId {
		return fmt.Errorf("service.Service.DeleteRequest: %w", models.ErrForbidden)
	}
	if !req.Status.AcceptsBids() {
		return fmt.Errorf("service.Service.DeleteRequest: %w", models.ErrRequestFinalized)
	}

	if err := s.store.DeleteRequest(ctx, req.Id); err != nil {
		return fmt.Errorf("service.Service.DeleteRequest: %w", err)
	}
	return nil
}

// ApproveTechnician flips a technician profile's approval flag. Admin
// only.
func (s *Service) ApproveTechnician(ctx context.Context, adminId, technicianUserId string, approve bool) (models.TechnicianProfile, error) {
	admin, err := s.userByID(ctx, adminId)
	if err != nil {
		return models.TechnicianProfile{}, fmt.Errorf("service.Service.ApproveTechnician: %w", err)
	}
	if admin.Role != models.RoleAdmin {
		return models.TechnicianProfile{}, fmt.Errorf("service.Service.ApproveTechnician: %w", models.ErrForbidden)
	}

	profile, err := s.store.SetTechnicianApproval(ctx, technicianUserId, approve)
	if err != nil {
		return models.TechnicianProfile{}, fmt.Errorf("service.Service.ApproveTechnician: %w", err)
	}

	if approve {
		s.notifier.Notify(ctx, technicianUserId, models.NotifyProfileApproved,
			"Profile Approved",
			"Your technician profile has been approved, you can now bid on repair requests",
			models.NotificationData{})
	} else {
		s.notifier.Notify(ctx, technicianUserId, models.NotifyProfileRejected,
			"Profile Rejected",
			"Your technician profile has been rejected",
			models.NotificationData{})
	}

	return profile, nil
}
