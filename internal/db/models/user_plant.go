package models

import "time"

// Approval states of a plant onboarding request.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// UserPlant is a plant submitted for onboarding. Staff approve or reject it;
// a rejection may carry a reason.
type UserPlant struct {
	ID              int64      `db:"id" json:"id"`
	UID             string     `db:"uid" json:"uid"`
	Name            string     `db:"name" json:"name"`
	Description     *string    `db:"description" json:"description"`
	Type            string     `db:"type" json:"type"`
	Capacity        float64    `db:"capacity" json:"capacity"`
	OwnerName       string     `db:"owner_name" json:"owner_name"`
	OwnerEmail      string     `db:"owner_email" json:"owner_email"`
	OwnerPhone      string     `db:"owner_phone" json:"owner_phone"`
	Address         string     `db:"address" json:"address"`
	City            string     `db:"city" json:"city"`
	State           string     `db:"state" json:"state"`
	PostalCode      string     `db:"postal_code" json:"postal_code"`
	Country         string     `db:"country" json:"country"`
	Latitude        *float64   `db:"latitude" json:"latitude"`
	Longitude       *float64   `db:"longitude" json:"longitude"`
	ApprovalStatus  string     `db:"approval_status" json:"approval_status"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approved_at"`
	ApprovedBy      *int64     `db:"approved_by" json:"approved_by"`
	RejectionReason *string    `db:"rejection_reason" json:"rejection_reason"`
	CreatedBy       *int64     `db:"created_by" json:"created_by"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}
