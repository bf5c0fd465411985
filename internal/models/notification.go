package models

import "time"

type NotificationType string

const (
	NotifyNewBid          NotificationType = "new_bid"
	NotifyBidAccepted     NotificationType = "bid_accepted"
	NotifyBidRejected     NotificationType = "bid_rejected"
	NotifyJobCompleted    NotificationType = "job_completed"
	NotifyPaymentReceived NotificationType = "payment_received"
	NotifyProfileApproved NotificationType = "profile_approved"
	NotifyProfileRejected NotificationType = "profile_rejected"
)

// NotificationData links a notification back to the entities it concerns.
type NotificationData struct {
	RepairRequestId string `json:"repairRequestId,omitempty"`
	BidId           string `json:"bidId,omitempty"`
}

type Notification struct {
	Id        string           `json:"id"`
	UserId    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      NotificationData `json:"data"`
	IsRead    bool             `json:"isRead"`
	ReadAt    *time.Time       `json:"readAt,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}
