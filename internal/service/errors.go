package service

// HTTPError carries the status code the api layer answers a failed use case with.
type HTTPError struct {
	StatusCode int
	Wrapped    error
}

func (e *HTTPError) Error() string {
	return e.Wrapped.Error()
}

func (e *HTTPError) Unwrap() error {
	return e.Wrapped
}

func httpError(statusCode int, err error) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Wrapped:    err,
	}
}
