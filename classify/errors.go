package classify

import "errors"

var (
	// ErrAnalyzerRequired is returned when a classifier is built without an analyzer.
	ErrAnalyzerRequired = errors.New("analyzer required")
)
