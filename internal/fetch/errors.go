package fetch

import "errors"

var (
	// ErrServiceNotFound is returned when the service directory has no usable
	// entry for the requested service.
	ErrServiceNotFound = errors.New("service not found in service directory")

	// ErrEmptyResponse is recorded when a server answers with a blank body.
	ErrEmptyResponse = errors.New("empty response")

	// ErrBadStatus is recorded for any non-2xx response.
	ErrBadStatus = errors.New("unexpected HTTP status")

	// ErrDownloadFailed is returned when streaming a file to disk fails.
	ErrDownloadFailed = errors.New("download failed")

	// ErrWebPage is returned when a file request is answered with an HTML
	// page, such as a login wall or an interstitial.
	ErrWebPage = errors.New("server returned a web page instead of a file")
)
