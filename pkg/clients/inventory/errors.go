package inventory

import "fmt"

// FetchErrorKind classifies why a snapshot could not be fetched.
type FetchErrorKind string

const (
	KindNetwork FetchErrorKind = "network"
	KindServer  FetchErrorKind = "server"
	KindDecode  FetchErrorKind = "decode"
)

// FetchError is returned by FetchSnapshot for every failure.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inventory fetch %s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("inventory fetch %s error: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
