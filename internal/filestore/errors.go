package filestore

import "errors"

// Sentinel errors surfaced by the filestore.
var (
	ErrIntegrityMismatch   = errors.New("uploaded content does not match declared size or etag")
	ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")
	ErrNotAZipFile         = errors.New("file is not a zip archive")
	ErrEntryMissing        = errors.New("entry not found in zip archive")
	ErrAlreadyComplete     = errors.New("file upload already completed")
	ErrNotComplete         = errors.New("file upload not completed")
)
