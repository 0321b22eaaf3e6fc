package customers

import (
	"net/mail"
	"strings"
	"time"
)

// Status is the lifecycle state of a customer record.
type Status string

const (
	StatusLead     Status = "lead"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	switch s {
	case StatusLead, StatusActive, StatusInactive:
		return true
	}
	return false
}

// Source records where a customer first came from.
type Source string

const (
	SourceContactForm Source = "contact_form"
	SourceChatWidget  Source = "chat_widget"
	SourceManual      Source = "manual"
	SourcePortal      Source = "portal"
)

func (s Source) Valid() bool {
	switch s {
	case SourceContactForm, SourceChatWidget, SourceManual, SourcePortal:
		return true
	}
	return false
}

// Customer is a lead or client of the consultancy.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Company   string    `json:"company"`
	Status    Status    `json:"status"`
	Source    Source    `json:"source"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateCustomerRequest represents the request body for creating a customer
type CreateCustomerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Status  Status `json:"status"`
	Source  Source `json:"source"`
	Notes   string `json:"notes"`
}

// Normalize trims input and fills in defaults.
func (r *CreateCustomerRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = normalizeEmail(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Company = strings.TrimSpace(r.Company)
	r.Notes = strings.TrimSpace(r.Notes)
	if r.Status == "" {
		r.Status = StatusLead
	}
	if r.Source == "" {
		r.Source = SourceManual
	}
}

// Validate validates the create customer request
func (r *CreateCustomerRequest) Validate() error {
	if r.Name == "" {
		return ErrInvalidName
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	if r.Email != "" && !validEmail(r.Email) {
		return ErrInvalidEmail
	}
	if !r.Status.Valid() {
		return ErrInvalidStatus
	}
	if !r.Source.Valid() {
		return ErrInvalidSource
	}
	return nil
}

// UpdateCustomerRequest is a partial update.
type UpdateCustomerRequest struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Company *string `json:"company,omitempty"`
	Status  *Status `json:"status,omitempty"`
	Notes   *string `json:"notes,omitempty"`
}

// Apply copies the set fields onto c and validates the result.
func (r *UpdateCustomerRequest) Apply(c *Customer) error {
	if r.Name != nil {
		c.Name = strings.TrimSpace(*r.Name)
	}
	if r.Email != nil {
		c.Email = normalizeEmail(*r.Email)
	}
	if r.Phone != nil {
		c.Phone = strings.TrimSpace(*r.Phone)
	}
	if r.Company != nil {
		c.Company = strings.TrimSpace(*r.Company)
	}
	if r.Status != nil {
		c.Status = *r.Status
	}
	if r.Notes != nil {
		c.Notes = strings.TrimSpace(*r.Notes)
	}

	if c.Name == "" {
		return ErrInvalidName
	}
	if c.Email == "" && c.Phone == "" {
		return ErrMissingContact
	}
	if c.Email != "" && !validEmail(c.Email) {
		return ErrInvalidEmail
	}
	if !c.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// ContactRequest is the public contact form payload.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
	Message string `json:"message"`
}

// ListFilter narrows admin customer listings.
type ListFilter struct {
	Status Status
	Search string
	Limit  int
	Offset int
}

// ListResult is a page of customers plus the unpaged total.
type ListResult struct {
	Customers []*Customer `json:"customers"`
	Total     int         `json:"total"`
	Limit     int         `json:"limit"`
	Offset    int         `json:"offset"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, ".")
}

// ValidEmail is exported for the chat bot's email stage.
func ValidEmail(email string) bool {
	return validEmail(normalizeEmail(email))
}
