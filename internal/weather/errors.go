package weather

import "fmt"

// FetchError is returned by clients when a data request fails.
// Message carries the text reported by the provider, if any.
type FetchError struct {
	Provider   string
	StatusCode int
	Message    string
	// NotFound is set when the provider does not know the requested place.
	NotFound bool
	Err      error
}

func (e *FetchError) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	default:
		return e.Provider + ": fetch failed"
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
