package errorz

import "errors"

// DependencyError signals that a call to an external dependency (cache,
// database, email provider) failed. These are never retried.
type DependencyError struct {
	Dependency string
	Err        error
}

// Dependency wraps err in a DependencyError. It returns nil if err is nil,
// and err itself if it already is a DependencyError.
func Dependency(name string, err error) error {
	if err == nil {
		return nil
	}

	var dErr DependencyError
	if errors.As(err, &dErr) {
		return err
	}

	return DependencyError{
		Dependency: name,
		Err:        err,
	}
}

func (e DependencyError) Error() string {
	return e.Dependency + ": " + e.Err.Error()
}

func (e DependencyError) Unwrap() error {
	return e.Err
}
