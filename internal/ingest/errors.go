package ingest

import (
	"errors"
	"fmt"
)

// Reason codes surfaced to clients when an asset reaches FAILED.
const (
	ReasonUnsupportedFormat = "unsupported_format"
	ReasonFileTooLarge      = "file_too_large"
	ReasonCorruptFile       = "corrupt_file"
	ReasonRetriesExhausted  = "retries_exhausted"
)

// ErrNotOwner is returned when a mutation is attempted by an identity
// that does not own the asset.
var ErrNotOwner = errors.New("ingest: not the asset owner")

// ErrInvalidCaptionLanguage is returned when a submission carries a
// caption language that is not a valid BCP-47 tag.
var ErrInvalidCaptionLanguage = errors.New("ingest: invalid caption language")

// ErrNotResubmittable is returned when re-submission is attempted on an
// asset that is not FAILED.
var ErrNotResubmittable = errors.New("ingest: only failed videos can be re-submitted")

// PermanentError marks a processing failure that retrying cannot fix
// (corrupt file, unsupported codec, over size limit). Anything else is
// treated as transient and retried with backoff.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("permanent processing error: %s", e.Reason)
	}
	return fmt.Sprintf("permanent processing error: %s: %v", e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError with a client-facing reason code.
func Permanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

// PermanentReason extracts the reason code when err is permanent.
func PermanentReason(err error) (string, bool) {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return perm.Reason, true
	}
	return "", false
}
