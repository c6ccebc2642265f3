package appointments

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotBooked is returned when a mutation would alter a slot that is already booked.
	ErrSlotBooked = errors.New("appointments: time slot already booked")

	// ErrSlotExists is returned when another row already occupies the instant.
	ErrSlotExists = errors.New("appointments: time slot already exists")

	// ErrNotFound is returned when no appointment matches the id
	ErrNotFound = errors.New("appointments: appointment not found")
)

// ValidationError reports a request field that is missing or malformed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s is invalid", e.Field)
}

func requiredField(field string) error {
	return &ValidationError{Field: field, Message: field + " is required"}
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf("%s %s", field, reason)}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
