package alarm

import "errors"

// Validation errors. They are returned to the caller of a mutation and
// leave the store unchanged.
var (
	ErrDuplicateName = errors.New("alarm: name already exists")
	ErrNotFound      = errors.New("alarm: not found")
	ErrPastTime      = errors.New("alarm: trigger time is not in the future")
	ErrEmptyName     = errors.New("alarm: name is empty")
	ErrBadPolicy     = errors.New("alarm: invalid recurrence")
)

// ErrStaleFiring is returned to the firing controller when the alarm was
// removed or re-armed after its timer popped.
var ErrStaleFiring = errors.New("alarm: firing no longer matches the active alarm")

// IsValidation reports whether err is one of the user-facing validation errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPastTime) ||
		errors.Is(err, ErrEmptyName) ||
		errors.Is(err, ErrBadPolicy)
}
