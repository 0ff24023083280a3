package tmdb

import "fmt"

// unexpectedErrorMessage is used when TMDB fails a request
// without telling us why.
const unexpectedErrorMessage = "An unexpected error occurred"

type (
	tmdbError struct {
		StatusCode    int    `json:"status_code"`
		StatusMessage string `json:"status_message"`
	}

	// TransportError indicates the request never completed: the network was
	// unreachable, the request timed out, or the context was cancelled.
	TransportError struct {
		Path string
		Err  error
	}

	// UpstreamError indicates TMDB responded, but reported a failure (or
	// responded with content we could not understand). The Message is the
	// human readable status message supplied by TMDB, where available.
	UpstreamError struct {
		HttpCode int
		TmdbCode int
		Message  string
	}

	// NotFoundError indicates TMDB has no entity with the requested ID.
	NotFoundError struct {
		ID string
	}

	// IllegalRequestError indicates the caller asked for something which
	// cannot be sent to TMDB (blank query, page zero, ...).
	IllegalRequestError struct{ reason string }
)

func (err *TransportError) Error() string {
	return fmt.Sprintf("failed to communicate with TMDB (GET %s): %s", err.Path, err.Err)
}
func (err *TransportError) Unwrap() error { return err.Err }

func (err *UpstreamError) Error() string {
	if err.Message == "" {
		return unexpectedErrorMessage
	}

	return err.Message
}

// Detail includes the HTTP and TMDB status codes alongside the message,
// for logging.
func (err *UpstreamError) Detail() string {
	return fmt.Sprintf("request failure (HTTP %d, TMDB code %d): %s", err.HttpCode, err.TmdbCode, err.Error())
}

func (err *NotFoundError) Error() string {
	return fmt.Sprintf("movie %s could not be found", err.ID)
}

func (err *IllegalRequestError) Error() string {
	return fmt.Sprintf("illegal request because %s", err.reason)
}
