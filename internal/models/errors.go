package models

import "errors"

var (
	ErrDuplicateName       = errors.New("duplicate file name")
	ErrFileTooLarge        = errors.New("file too large")
	ErrExtensionNotAllowed = errors.New("file extension not allowed")

	ErrUnsupported = errors.New("unsupported file type")
	ErrExtraction  = errors.New("extraction failed")
	ErrTimeout     = errors.New("extraction timed out")
	ErrLoad        = errors.New("dependency could not be loaded")

	ErrNotFound    = errors.New("file not found")
	ErrNotTaskFile = errors.New("file is not a task file")
	ErrTaskParse   = errors.New("task payload could not be parsed")
)
