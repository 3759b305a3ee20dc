package scraper

import "errors"

var (
	// ErrUnknownAction is returned when a message carries an action type
	// the consuming scraper does not handle.
	ErrUnknownAction = errors.New("unknown action type for this scraper")

	// ErrEmptyQuery is returned when a scrape request has no usable query.
	ErrEmptyQuery = errors.New("scrape request has an empty query")
)
