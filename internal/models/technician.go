package models

import "time"

type TechnicianProfile struct {
	Id              string     `json:"id"`
	UserId          string     `json:"userId"`
	Experience      int        `json:"experience"`
	Specializations []string   `json:"specializations"`
	ServiceRadiusKm float64    `json:"serviceRadius"`
	RatingAverage   float64    `json:"ratingAverage"`
	RatingCount     int        `json:"ratingCount"`
	PriceMin        float64    `json:"priceMin"`
	PriceMax        float64    `json:"priceMax"`
	IsApproved      bool       `json:"isApproved"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"-"`
}

// Technician is the read-side composition of a user and its profile.
// Profile is nil for users that never registered as technicians.
type Technician struct {
	User    User               `json:"user"`
	Profile *TechnicianProfile `json:"profile,omitempty"`
}
