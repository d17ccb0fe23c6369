package cv

import "errors"

// Matching errors. All of them are recoverable results.
var (
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")
	ErrNeedleTooLarge    = errors.New("needle image larger than haystack image")
	ErrStrideTooLarge    = errors.New("stride exceeds haystack pixel count")
	ErrNoMatchFound      = errors.New("no match found")
	ErrInvalidImage      = errors.New("invalid image provided")
)

// Provider errors
var (
	ErrCapture = errors.New("screen capture failed")
	ErrSave    = errors.New("image save failed")
)
