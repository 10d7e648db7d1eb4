// Package inquiry is the sample collaborator behind the gatekeeper: public
// sales inquiries submitted from the site and listed in the admin area.
package inquiry

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusClosed    Status = "closed"
)

type Inquiry struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	VehicleID string    `json:"vehicleId,omitempty"`
	Message   string    `json:"message"`
	Status    Status    `json:"status"`
	SourceIP  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Filter selects a page of inquiries, newest first.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}

// Page is one page of a listing.
type Page struct {
	Items []Inquiry `json:"items"`
	Total int       `json:"total"`
}

// SubmitRequest is the public form payload.
type SubmitRequest struct {
	Name      string `json:"name" validate:"required,notblank,max=120"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"omitempty,max=40"`
	Company   string `json:"company" validate:"omitempty,max=120"`
	VehicleID string `json:"vehicleId" validate:"omitempty,max=64"`
	Message   string `json:"message" validate:"required,notblank,max=4000"`
}

func (r *SubmitRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Company = strings.TrimSpace(r.Company)
	r.VehicleID = strings.TrimSpace(r.VehicleID)
	r.Message = strings.TrimSpace(r.Message)
}

// ListQuery is the admin listing query string.
type ListQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=new contacted closed"`
	Page   int    `query:"page" validate:"omitempty,min=1"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

// Filter converts the query into a store filter with defaults applied.
func (q *ListQuery) Filter() Filter {
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	page := max(q.Page, 1)
	return Filter{Status: Status(q.Status), Limit: limit, Offset: (page - 1) * limit}
}
