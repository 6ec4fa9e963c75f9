package ocr

import "errors"

// ErrInvalidSitePattern is returned by NewDetector when the configured site pattern does not compile.
var ErrInvalidSitePattern = errors.New("invalid site pattern")

// ErrUnknownPreprocess is returned for a preprocessing mode other than light or heavy.
var ErrUnknownPreprocess = errors.New("unknown preprocess mode")
