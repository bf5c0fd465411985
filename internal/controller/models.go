package controller

import (
	"encoding/json"
	"fmt"

	"repairmarket/internal/models"
	"repairmarket/internal/service"
)

// New repair request

type NewRequestReq struct {
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	DeviceInfo      models.DeviceInfo     `json:"deviceInfo"`
	IssueType       models.IssueType      `json:"issueType"`
	Images          []models.RequestImage `json:"images"`
	Urgency         models.Urgency        `json:"urgency"`
	PreferredBudget *models.Budget        `json:"preferredBudget"`
	Location        models.Location       `json:"location"`
}

func ParseNewRequestReq(data []byte) (*NewRequestReq, error) {
	t := &NewRequestReq{}

	err := json.Unmarshal(data, t)
	if err != nil {
		return nil, err
	}

	if len(t.Title) == 0 {
		return nil, fmt.Errorf("empty title supplied")
	}
	if !models.ValidIssueType(t.IssueType) {
		return nil, fmt.Errorf("invalid issue type supplied: %s", string(t.IssueType))
	}
	if len(t.Urgency) > 0 && !models.ValidUrgency(t.Urgency) {
		return nil, fmt.Errorf("invalid urgency supplied: %s, should be one of: %s, %s, %s",
			string(t.Urgency), models.UrgencyLow, models.UrgencyMedium, models.UrgencyHigh)
	}
	if len(t.DeviceInfo.Brand) == 0 || len(t.DeviceInfo.Model) == 0 {
		return nil, fmt.Errorf("device brand and model are required")
	}
	if t.PreferredBudget != nil && (t.PreferredBudget.Min < 0 || t.PreferredBudget.Max < t.PreferredBudget.Min) {
		return nil, fmt.Errorf("invalid preferred budget supplied")
	}

	if err = checkLengthLimit(t.Title, "Title", 100); err != nil {
		return nil, err
	}
	if err = checkLengthLimit(t.Description, "Description", 2000); err != nil {
		return nil, err
	}
	if err = checkLengthLimit(t.Location.Address, "Address", 500); err != nil {
		return nil, err
	}

	return t, nil
}

// Edit repair request

func ParseRequestChangeReq(data []byte) (service.RequestChanges, error) {
	changes := service.RequestChanges{}
	vals := make(map[string]interface{})

	err := json.Unmarshal(data, &vals)
	if err != nil {
		return changes, err
	}

	str, ok, err := checkRequestField(vals, "title", 100)
	if err != nil {
		return changes, err
	}
	if ok {
		title := str
		changes.Title = &title
	}

	str, ok, err = checkRequestField(vals, "description", 2000)
	if err != nil {
		return changes, err
	}
	if ok {
		description := str
		changes.Description = &description
	}

	str, ok, err = checkRequestField(vals, "urgency", 100)
	if err != nil {
		return changes, err
	}
	if ok {
		urgency := models.Urgency(str)
		if !models.ValidUrgency(urgency) {
			return changes, fmt.Errorf("invalid urgency supplied: %s", str)
		}
		changes.Urgency = &urgency
	}

	str, ok, err = checkRequestField(vals, "status", 100)
	if err != nil {
		return changes, err
	}
	if ok {
		status := models.RequestStatus(str)
		if !models.ValidRequestStatus(status) {
			return changes, fmt.Errorf("invalid status supplied: %s", str)
		}
		changes.Status = &status
	}

	if val, ok := vals["amount"]; ok {
		amount, ok := val.(float64)
		if !ok {
			return changes, fmt.Errorf("invalid type of 'amount' field")
		}
		changes.Amount = amount
	}

	str, ok, err = checkRequestField(vals, "paymentMethod", 100)
	if err != nil {
		return changes, err
	}
	if ok {
		method := models.PaymentMethod(str)
		if !models.ValidPaymentMethod(method) {
			return changes, fmt.Errorf("invalid payment method supplied: %s", str)
		}
		changes.PaymentMethod = method
	}

	return changes, nil
}

// Complete repair request

type CompletionReq struct {
	Amount        float64              `json:"amount"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
}

func ParseCompletionReq(data []byte) (service.Completion, error) {
	t := CompletionReq{}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &t); err != nil {
			return service.Completion{}, err
		}
	}

	if t.Amount < 0 {
		return service.Completion{}, fmt.Errorf("invalid amount supplied")
	}
	if len(t.PaymentMethod) > 0 && !models.ValidPaymentMethod(t.PaymentMethod) {
		return service.Completion{}, fmt.Errorf("invalid payment method supplied: %s", string(t.PaymentMethod))
	}

	return service.Completion{Amount: t.Amount, PaymentMethod: t.PaymentMethod}, nil
}

// New bid

type NewBidReq struct {
	RepairRequestId string           `json:"repairRequestId"`
	Amount          float64          `json:"amount"`
	EstimatedTime   string           `json:"estimatedTime"`
	Description     string           `json:"description"`
	PartsIncluded   []models.BidPart `json:"partsIncluded"`
	Warranty        *models.Warranty `json:"warranty"`
	Message         string           `json:"message"`
}

func ParseNewBidReq(data []byte) (*NewBidReq, error) {
	t := &NewBidReq{}

	err := json.Unmarshal(data, t)
	if err != nil {
		return nil, err
	}

	if len(t.RepairRequestId) == 0 {
		return nil, fmt.Errorf("empty repairRequestId supplied")
	}
	if t.Amount <= 0 {
		return nil, fmt.Errorf("amount must be greater than zero")
	}
	if len(t.EstimatedTime) == 0 {
		return nil, fmt.Errorf("empty estimatedTime supplied")
	}

	if err = checkLengthLimit(t.RepairRequestId, "RepairRequestId", 100); err != nil {
		return nil, err
	}
	if err = checkLengthLimit(t.EstimatedTime, "EstimatedTime", 100); err != nil {
		return nil, err
	}
	if err = checkLengthLimit(t.Description, "Description", 2000); err != nil {
		return nil, err
	}
	if err = checkLengthLimit(t.Message, "Message", 500); err != nil {
		return nil, err
	}

	return t, nil
}

// Reject bid

type RejectReq struct {
	Reason string `json:"reason"`
}

func ParseRejectReq(data []byte) (string, error) {
	t := RejectReq{}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &t); err != nil {
			return "", err
		}
	}

	if err := checkLengthLimit(t.Reason, "Reason", 500); err != nil {
		return "", err
	}

	return t.Reason, nil
}

// Service

func checkLengthLimit(str, fieldName string, limit int) error {
	if len(str) > limit {
		return fmt.Errorf("field '%s' exceeds length limit: %d / %d", fieldName, len(str), limit)
	}
	return nil
}

func checkRequestField(vals map[string]interface{}, key string, lengthLimit int) (string, bool, error) {
	val, ok := vals[key]
	if !ok {
		return "", false, nil
	}

	str, ok := val.(string)
	if !ok {
		return "", false, fmt.Errorf("invalid type of '%s' field", key)
	}

	if err := checkLengthLimit(str, key, lengthLimit); err != nil {
		return "", false, err
	}

	return str, true, nil
}
