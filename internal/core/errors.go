package core

import "errors"

var (
	// Source errors
	ErrMalformedRecord     = errors.New("shtdecode: malformed capture record")
	ErrUnsupportedFormat   = errors.New("shtdecode: unsupported capture format")
	ErrUnsupportedLinkType = errors.New("shtdecode: unsupported pcap link type")

	// Sink errors
	ErrSinkClosed      = errors.New("shtdecode: sink closed")
	ErrUnsupportedSink = errors.New("shtdecode: unsupported sink type")

	// Configuration errors
	ErrConfigInvalid = errors.New("shtdecode: invalid configuration")
)
