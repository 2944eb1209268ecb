// Package domain holds the worker's event handlers and their failure
// classification.
package domain

import "errors"

// ErrPermanent matches, through errors.Is, any failure wrapped by Permanent.
var ErrPermanent = errors.New("permanent delivery failure")

// deadLetter keeps the original message while also matching ErrPermanent.
type deadLetter struct{ err error }

func (d deadLetter) Error() string {
	return d.err.Error()
}

func (d deadLetter) Unwrap() []error {
	return []error{d.err, ErrPermanent}
}

// Permanent marks a failure that no retry can fix, such as a 4xx webhook
// response or an unparseable payload. The worker dead-letters it at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return deadLetter{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked by
// Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
