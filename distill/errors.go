package distill

import "errors"

var (
	// ErrGeneratorRequired is returned when no generation model is supplied.
	ErrGeneratorRequired = errors.New("generator is required")

	// ErrClassifierRequired is returned when no classification model is supplied.
	ErrClassifierRequired = errors.New("classifier is required")

	// ErrEmptyResponse is returned when a model answers with nothing.
	ErrEmptyResponse = errors.New("model returned an empty response")
)
