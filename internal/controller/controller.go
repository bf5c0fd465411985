package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"repairmarket/internal/auth"
	"repairmarket/internal/models"
	"repairmarket/internal/service"
)

type Service interface {
	CreateRequest(ctx context.Context, in service.NewRequest) (models.RepairRequest, error)
	GetRequest(ctx context.Context, id, userId string) (models.RepairRequest, error)
	ListRequests(ctx context.Context, userId string, q service.RequestListing) ([]models.RepairRequest, error)
	UpdateRequest(ctx context.Context, id, userId string, changes service.RequestChanges) (models.RepairRequest, error)
	CompleteRequest(ctx context.Context, requestId, userId string, comp service.Completion) (models.RepairRequest, error)
	DeleteRequest(ctx context.Context, id, userId string) error

	CreateBid(ctx context.Context, in service.NewBid) (models.Bid, error)
	AcceptBid(ctx context.Context, bidId, customerId string) (models.Bid, error)
	RejectBid(ctx context.Context, bidId, customerId, reason string) error
	WithdrawBid(ctx context.Context, bidId, technicianId string) (models.Bid, error)
	RequestBids(ctx context.Context, requestId, userId, sortBy, order string) ([]models.Bid, error)
	TechnicianBids(ctx context.Context, technicianId string, status models.BidStatus, limit, offset int) ([]models.Bid, error)

	Notifications(ctx context.Context, userId string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userId, notificationId string) (models.Notification, error)

	ApproveTechnician(ctx context.Context, adminId, technicianUserId string, approve bool) (models.TechnicianProfile, error)
}

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

//// Requests

// GET /api/ping
func (c *Controller) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// POST /api/requests/new
func (c *Controller) NewRequest(w http.ResponseWriter, r *http.Request) {
	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewRequestReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := c.service.CreateRequest(r.Context(), service.NewRequest{
		CustomerId:      auth.UserID(r.Context()),
		Title:           req.Title,
		Description:     req.Description,
		DeviceInfo:      req.DeviceInfo,
		IssueType:       req.IssueType,
		Images:          req.Images,
		Urgency:         req.Urgency,
		PreferredBudget: req.PreferredBudget,
		Location:        req.Location,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, created)
}

// GET /api/requests
func (c *Controller) GetRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := c.getQueryInt(query, "limit")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'limit' query parameter: "+query.Get("limit"))
		return
	}

	offset, err := c.getQueryInt(query, "offset")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'offset' query parameter: "+query.Get("offset"))
		return
	}

	status := models.RequestStatus(query.Get("status"))
	if len(status) > 0 && !models.ValidRequestStatus(status) {
		c.errorResponse(w, http.StatusBadRequest, "invalid status supplied: "+string(status))
		return
	}

	issueType := models.IssueType(query.Get("issue_type"))
	if len(issueType) > 0 && !models.ValidIssueType(issueType) {
		c.errorResponse(w, http.StatusBadRequest, "invalid issue type supplied: "+string(issueType))
		return
	}

	var radiusKm float64
	if str := query.Get("radius_km"); len(str) > 0 {
		radiusKm, err = strconv.ParseFloat(str, 64)
		if err != nil || radiusKm < 0 {
			c.errorResponse(w, http.StatusBadRequest, "invalid value of 'radius_km' query parameter: "+str)
			return
		}
	}

	requests, err := c.service.ListRequests(r.Context(), auth.UserID(r.Context()), service.RequestListing{
		Status:    status,
		IssueType: issueType,
		RadiusKm:  radiusKm,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, requests)
}

// GET /api/requests/{requestId}
func (c *Controller) GetRequest(w http.ResponseWriter, r *http.Request) {
	requestId := r.PathValue("requestId")
	if len(requestId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty requestId supplied")
		return
	}

	req, err := c.service.GetRequest(r.Context(), requestId, auth.UserID(r.Context()))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, req)
}

// PATCH /api/requests/{requestId}
func (c *Controller) EditRequest(w http.ResponseWriter, r *http.Request) {
	requestId := r.PathValue("requestId")
	if len(requestId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty requestId supplied")
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}
	changes, err := ParseRequestChangeReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := c.service.UpdateRequest(r.Context(), requestId, auth.UserID(r.Context()), changes)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, req)
}

// PUT /api/requests/{requestId}/complete
func (c *Controller) CompleteRequest(w http.ResponseWriter, r *http.Request) {
	requestId := r.PathValue("requestId")
	if len(requestId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty requestId supplied")
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}
	comp, err := ParseCompletionReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := c.service.CompleteRequest(r.Context(), requestId, auth.UserID(r.Context()), comp)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, req)
}

// DELETE /api/requests/{requestId}
func (c *Controller) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	requestId := r.PathValue("requestId")
	if len(requestId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty requestId supplied")
		return
	}

	err := c.service.DeleteRequest(r.Context(), requestId, auth.UserID(r.Context()))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

//// Bids

// POST /api/bids/new
func (c *Controller) NewBid(w http.ResponseWriter, r *http.Request) {
	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}

	req, err := ParseNewBidReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	bid, err := c.service.CreateBid(r.Context(), service.NewBid{
		RepairRequestId: req.RepairRequestId,
		TechnicianId:    auth.UserID(r.Context()),
		Amount:          req.Amount,
		EstimatedTime:   req.EstimatedTime,
		Description:     req.Description,
		PartsIncluded:   req.PartsIncluded,
		Warranty:        req.Warranty,
		Message:         req.Message,
	})
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, bid)
}

// GET /api/bids/my
func (c *Controller) MyBids(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := c.getQueryInt(query, "limit")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'limit' query parameter: "+query.Get("limit"))
		return
	}

	offset, err := c.getQueryInt(query, "offset")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'offset' query parameter: "+query.Get("offset"))
		return
	}

	status := models.BidStatus(query.Get("status"))
	if len(status) > 0 && !models.ValidBidStatus(status) {
		c.errorResponse(w, http.StatusBadRequest, "invalid status supplied: "+string(status))
		return
	}

	bids, err := c.service.TechnicianBids(r.Context(), auth.UserID(r.Context()), status, limit, offset)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, bids)
}

// GET /api/bids/{requestId}/list
func (c *Controller) RequestBids(w http.ResponseWriter, r *http.Request) {
	requestId := r.PathValue("requestId")
	if len(requestId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty requestId supplied")
		return
	}

	query := r.URL.Query()
	sortBy := query.Get("sort_by")
	if len(sortBy) > 0 && sortBy != "amount" && sortBy != "createdAt" {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'sort_by' query parameter: "+sortBy)
		return
	}
	order := query.Get("order")
	if len(order) > 0 && order != "asc" && order != "desc" {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'order' query parameter: "+order)
		return
	}

	bids, err := c.service.RequestBids(r.Context(), requestId, auth.UserID(r.Context()), sortBy, order)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, bids)
}

// PUT /api/bids/{bidId}/accept
func (c *Controller) AcceptBid(w http.ResponseWriter, r *http.Request) {
	bidId := r.PathValue("bidId")
	if len(bidId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty bidId supplied")
		return
	}

	bid, err := c.service.AcceptBid(r.Context(), bidId, auth.UserID(r.Context()))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, bid)
}

// PUT /api/bids/{bidId}/reject
func (c *Controller) RejectBid(w http.ResponseWriter, r *http.Request) {
	bidId := r.PathValue("bidId")
	if len(bidId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty bidId supplied")
		return
	}

	data, err := c.readBody(r.Body)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not read request body")
		return
	}
	reason, err := ParseRejectReq(data)
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	err = c.service.RejectBid(r.Context(), bidId, auth.UserID(r.Context()), reason)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/bids/{bidId}/withdraw
func (c *Controller) WithdrawBid(w http.ResponseWriter, r *http.Request) {
	bidId := r.PathValue("bidId")
	if len(bidId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty bidId supplied")
		return
	}

	bid, err := c.service.WithdrawBid(r.Context(), bidId, auth.UserID(r.Context()))
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, bid)
}

//// Notifications

// GET /api/notifications
func (c *Controller) GetNotifications(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := c.getQueryInt(query, "limit")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'limit' query parameter: "+query.Get("limit"))
		return
	}

	offset, err := c.getQueryInt(query, "offset")
	if err != nil {
		c.errorResponse(w, http.StatusBadRequest, "invalid value of 'offset' query parameter: "+query.Get("offset"))
		return
	}

	unreadOnly := query.Get("unread") == "true"

	notifications, err := c.service.Notifications(r.Context(), auth.UserID(r.Context()), unreadOnly, limit, offset)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, notifications)
}

// PUT /api/notifications/{notificationId}/read
func (c *Controller) ReadNotification(w http.ResponseWriter, r *http.Request) {
	notificationId := r.PathValue("notificationId")
	if len(notificationId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty notificationId supplied")
		return
	}

	n, err := c.service.MarkNotificationRead(r.Context(), auth.UserID(r.Context()), notificationId)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, n)
}

//// Technicians

// PUT /api/technicians/{userId}/approve
func (c *Controller) ApproveTechnician(w http.ResponseWriter, r *http.Request) {
	userId := r.PathValue("userId")
	if len(userId) == 0 {
		c.errorResponse(w, http.StatusBadRequest, "empty userId supplied")
		return
	}

	approve := r.URL.Query().Get("approve") != "false"

	profile, err := c.service.ApproveTechnician(r.Context(), auth.UserID(r.Context()), userId, approve)
	if err != nil {
		c.serviceErrorResponse(w, err)
		return
	}

	c.marshalResponse(w, profile)
}

// Service

type ErrorResponse struct {
	Reason string `json:"reason"`
}

func (c *Controller) getQueryInt(query url.Values, key string) (int, error) {
	strs, ok := query[key]
	if ok && len(strs) > 0 {
		return strconv.Atoi(strs[0])
	}
	return 0, nil
}

func (c *Controller) errorResponse(w http.ResponseWriter, status int, text string) {
	w.WriteHeader(status)

	data, err := json.Marshal(ErrorResponse{Reason: text})
	if err != nil {
		log.Printf("controller.Controller.errorResponse: %s", err)
		return
	}

	_, err = w.Write(data)
	if err != nil {
		log.Printf("controller.Controller.errorResponse: %s", err)
		return
	}
}

func (c *Controller) serviceErrorResponse(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNoUser):
		c.errorResponse(w, http.StatusUnauthorized, "user does not exist or is not allowed to act")
	case errors.Is(err, models.ErrForbidden):
		c.errorResponse(w, http.StatusForbidden, "user has no permission for requested action")
	case errors.Is(err, models.ErrNotEligible):
		c.errorResponse(w, http.StatusForbidden, "technician profile is not approved or account is inactive")
	case errors.Is(err, models.ErrNoRequest):
		c.errorResponse(w, http.StatusNotFound, "requested repair request does not exist or is inaccessible")
	case errors.Is(err, models.ErrNoBid):
		c.errorResponse(w, http.StatusNotFound, "requested bid does not exist or is inaccessible")
	case errors.Is(err, models.ErrNoNotification):
		c.errorResponse(w, http.StatusNotFound, "requested notification does not exist or is inaccessible")
	case errors.Is(err, models.ErrDuplicateBid):
		c.errorResponse(w, http.StatusConflict, "a bid from this technician already exists on this repair request")
	case errors.Is(err, models.ErrBidProcessed):
		c.errorResponse(w, http.StatusConflict, "requested bid has already been accepted, rejected or withdrawn")
	case errors.Is(err, models.ErrRequestClosed):
		c.errorResponse(w, http.StatusConflict, "repair request is no longer accepting bids")
	case errors.Is(err, models.ErrRequestFinalized):
		c.errorResponse(w, http.StatusConflict, "repair request is finalized and can no longer be changed")
	case errors.Is(err, models.ErrStaleRequest):
		c.errorResponse(w, http.StatusConflict, "repair request was modified concurrently, retry the update")
	case errors.Is(err, models.ErrNotAssigned):
		c.errorResponse(w, http.StatusConflict, "repair request has no assigned technician yet")
	case errors.Is(err, models.ErrBadTransition):
		c.errorResponse(w, http.StatusBadRequest, "requested status change is not allowed")
	case errors.Is(err, models.ErrInvalidEstimate):
		c.errorResponse(w, http.StatusBadRequest, "estimated time format is not recognized")
	case errors.Is(err, models.ErrInvalidAmount):
		c.errorResponse(w, http.StatusBadRequest, "amount must be greater than zero")
	case errors.Is(err, models.ErrUnavailable):
		c.errorResponse(w, http.StatusServiceUnavailable, "storage is temporarily unavailable, retry later")
	default:
		log.Println("controller:", err)
		c.errorResponse(w, http.StatusInternalServerError, "internal server error: "+err.Error())
	}
}

func (c *Controller) marshalResponse(w http.ResponseWriter, data any) {
	d, err := json.Marshal(data)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not marshal response data")
		return
	}

	_, err = w.Write(d)
	if err != nil {
		c.errorResponse(w, http.StatusInternalServerError, "could not write response data")
		return
	}
}

func (c *Controller) readBody(src io.ReadCloser) ([]byte, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	src.Close()
	return data, nil
}
