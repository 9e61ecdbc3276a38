package wunderground

import "fmt"

// The four failure kinds a fetch-and-convert cycle can produce. All are
// terminal for the cycle; callers decide whether to retry. A nil observation
// with a nil error ("station has no data") is deliberately not an error.

// CredentialError reports that an API key could not be obtained.
type CredentialError struct {
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch api key: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch api key: %s", e.Reason)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// TransportError reports a failed observation request: connection error,
// timeout, or a non-success status from the remote service.
type TransportError struct {
	StationID string
	Status    int // 0 when the request never completed
	Err       error
}

func (e *TransportError) Error() string {
	if e.Status != 0 && e.Err != nil {
		return fmt.Sprintf("fetch observation %s: status %d: %v", e.StationID, e.Status, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("fetch observation %s: status %d", e.StationID, e.Status)
	}
	return fmt.Sprintf("fetch observation %s: %v", e.StationID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a response body that could not be interpreted as the
// expected JSON envelope at all, as distinct from a well-formed payload with
// semantically invalid fields (ValidationError).
type DecodeError struct {
	StationID string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode observation %s: %v", e.StationID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ValidationError reports a structurally valid payload whose named field is
// missing, unparseable or outside its plausible physical range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid observation field %s: %s", e.Field, e.Reason)
}
