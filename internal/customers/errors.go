package customers

import "errors"

var (
	// ErrInvalidName is returned when the name is invalid
	ErrInvalidName = errors.New("name is required")

	// ErrMissingContact is returned when both email and phone are missing
	ErrMissingContact = errors.New("either email or phone is required")

	// ErrInvalidEmail is returned when the email cannot be parsed
	ErrInvalidEmail = errors.New("email address is invalid")

	// ErrInvalidStatus is returned for an unknown customer status
	ErrInvalidStatus = errors.New("status must be one of lead, active, inactive")

	// ErrInvalidSource is returned for an unknown lead source
	ErrInvalidSource = errors.New("source must be one of contact_form, chat_widget, manual, portal")

	// ErrCustomerNotFound is returned when a customer is not found
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrDuplicateEmail is returned when another customer already uses the email
	ErrDuplicateEmail = errors.New("a customer with this email already exists")
)

// IsValidationError reports whether err should be surfaced as a 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrMissingContact) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidSource)
}
