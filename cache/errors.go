package cache

import "fmt"

// InvalidateError is returned when neither the generation bump nor the delete
// of an invalidated key went through, usually a backend outage. The stale
// entry may still be served until it expires.
type InvalidateError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	return fmt.Sprintf("cache: invalidate %q: bump: %v; delete: %v", e.Key, e.BumpErr, e.DelErr)
}

func (e *InvalidateError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.BumpErr, e.DelErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
