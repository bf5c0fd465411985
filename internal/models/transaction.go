package models

import "time"

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionRefunded  TransactionStatus = "refunded"
)

type TransactionType string

const (
	TransactionRepairPayment TransactionType = "repair_payment"
	TransactionRefund        TransactionType = "refund"
)

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentJazzCash     PaymentMethod = "jazzcash"
	PaymentEasypaisa    PaymentMethod = "easypaisa"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCard         PaymentMethod = "card"
)

func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentCash, PaymentJazzCash, PaymentEasypaisa, PaymentBankTransfer, PaymentCard:
		return true
	default:
		return false
	}
}

type Transaction struct {
	Id              string            `json:"id"`
	RepairRequestId string            `json:"repairRequestId"`
	CustomerId      string            `json:"customerId"`
	TechnicianId    string            `json:"technicianId"`
	Amount          float64           `json:"amount"`
	Currency        string            `json:"currency"`
	Type            TransactionType   `json:"type"`
	Status          TransactionStatus `json:"status"`
	PaymentMethod   PaymentMethod     `json:"paymentMethod"`
	Reference       string            `json:"reference"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"-"`
}
