package pipeline

import "errors"

// Per-contract fatal errors. Each aborts the pipeline for one contract only
var (
	ErrInvalidAddress        = errors.New("invalid address")
	ErrMissingLibraryAddress = errors.New("missing library address")
	ErrLinkReferenceTooLong  = errors.New("link reference too long")
	ErrNoSuchAccount         = errors.New("no such account")
	ErrConnectorUnavailable  = errors.New("blockchain connector unavailable")
	ErrMissingArguments      = errors.New("missing constructor arguments")
)
