package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrLocationNotFound is returned when a location does not exist in the store.
	// For a sync job it means the location was deleted and the job must stop.
	ErrLocationNotFound = errors.New("location not found")

	// ErrLocationExists is returned when a location with the same name or coordinates is already stored.
	ErrLocationExists = errors.New("location with the same name or coordinates already exists")

	// ErrInvalidLocation is returned for malformed names or out-of-range coordinates.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrNoData is returned when neither the store nor the source has any record to choose from.
	ErrNoData = errors.New("no weather data available")

	// ErrTimeRange is returned when the requested time is outside the current day.
	ErrTimeRange = errors.New("time must be within the current day")

	// ErrTransientSource marks source failures worth retrying on the next cycle
	// (network errors, timeouts, rate limiting, 5xx, open circuit).
	ErrTransientSource = errors.New("weather source temporarily unavailable")

	// ErrPermanentSource marks source failures that retrying will not fix
	// (missing credentials, rejected request, undecodable payload).
	ErrPermanentSource = errors.New("weather source request failed")
)

// MergeError is returned when the store fails while a merge is being applied.
// None of the merge's writes are committed.
type MergeError struct {
	LocationID int64
	Err        error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge records for location %d: %v", e.LocationID, e.Err)
}

func (e *MergeError) Unwrap() error {
	return e.Err
}

// IsSourceError reports whether err came from the external source.
func IsSourceError(err error) bool {
	return errors.Is(err, ErrTransientSource) || errors.Is(err, ErrPermanentSource)
}
