package rename

import "errors"

var (
	ErrFileNotFound = errors.New("file not found")
	ErrDirNotFound  = errors.New("directory not found")
	// ErrIncomplete means the label did not yield both a site and an artifact number.
	ErrIncomplete   = errors.New("incomplete detection")
	ErrTargetExists = errors.New("target already exists")
)
