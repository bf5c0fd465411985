package models

import "time"

type RequestStatus string

const (
	RequestOpen       RequestStatus = "open"
	RequestBidding    RequestStatus = "bidding"
	RequestAssigned   RequestStatus = "assigned"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestPaid       RequestStatus = "paid"
	RequestCancelled  RequestStatus = "cancelled"
)

func ValidRequestStatus(s RequestStatus) bool {
	switch s {
	case RequestOpen, RequestBidding, RequestAssigned, RequestInProgress,
		RequestCompleted, RequestPaid, RequestCancelled:
		return true
	default:
		return false
	}
}

// ValidRequestTransition reports whether a repair request may move from
// one status to another. Progression is strictly forward; cancellation is
// terminal and only reachable before work starts.
func ValidRequestTransition(from, to RequestStatus) bool {
	if from == to {
		return true
	}
	switch to {
	case RequestBidding:
		return from == RequestOpen
	case RequestAssigned:
		return from == RequestOpen || from == RequestBidding
	case RequestInProgress:
		return from == RequestAssigned
	case RequestCompleted:
		return from == RequestAssigned || from == RequestInProgress
	case RequestPaid:
		return from == RequestCompleted
	case RequestCancelled:
		return from == RequestOpen || from == RequestBidding || from == RequestAssigned
	default:
		return false
	}
}

// AcceptsBids reports whether new bids may still be placed.
func (s RequestStatus) AcceptsBids() bool {
	return s == RequestOpen || s == RequestBidding
}

type IssueType string

const (
	IssueScreen   IssueType = "screen"
	IssueBattery  IssueType = "battery"
	IssueCharging IssueType = "charging"
	IssueCamera   IssueType = "camera"
	IssueSpeaker  IssueType = "speaker"
	IssueSoftware IssueType = "software"
	IssueOther    IssueType = "other"
)

func ValidIssueType(t IssueType) bool {
	switch t {
	case IssueScreen, IssueBattery, IssueCharging, IssueCamera,
		IssueSpeaker, IssueSoftware, IssueOther:
		return true
	default:
		return false
	}
}

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

func ValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	default:
		return false
	}
}

type DeviceInfo struct {
	Brand        string `json:"brand"`
	Model        string `json:"model"`
	Color        string `json:"color,omitempty"`
	PurchaseYear int    `json:"purchaseYear,omitempty"`
}

type RequestImage struct {
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

type Budget struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Location struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Address   string  `json:"address"`
}

type RepairRequest struct {
	Id                 string         `json:"id"`
	CustomerId         string         `json:"customerId"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	DeviceInfo         DeviceInfo     `json:"deviceInfo"`
	IssueType          IssueType      `json:"issueType"`
	Images             []RequestImage `json:"images,omitempty"`
	Urgency            Urgency        `json:"urgency"`
	PreferredBudget    *Budget        `json:"preferredBudget,omitempty"`
	Location           Location       `json:"location"`
	Status             RequestStatus  `json:"status"`
	AcceptedBid        string         `json:"acceptedBid,omitempty"`
	AssignedTechnician string         `json:"assignedTechnician,omitempty"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
	ExpiresAt          time.Time      `json:"expiresAt"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"-"`
}
