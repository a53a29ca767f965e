package worker

import "github.com/rotisserie/eris"

var (
	// ErrNoNewInput means every fetched document was already processed, even
	// at the maximum fetch limit. The coordinator job fails with this error.
	ErrNoNewInput = eris.New("worker: no new documents from source")

	// ErrSourceUnavailable means the document source could not be reached
	// after the retry budget was exhausted.
	ErrSourceUnavailable = eris.New("worker: document source unavailable")
)
