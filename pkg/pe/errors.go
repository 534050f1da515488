package pe

import "errors"

var (
	// ErrNotPEImage is returned for inputs without the MS-DOS magic. Callers
	// probing arbitrary files should skip them.
	ErrNotPEImage = errors.New("not a PE image")

	ErrMalformedPEFile          = errors.New("malformed PE file")
	ErrMalformedOptionalHeader  = errors.New("malformed optional header")
	ErrInvalidMetadataSignature = errors.New("invalid CLI metadata signature")
	ErrMalformedMetadata        = errors.New("malformed CLI metadata root")

	ErrInvalidVersionInfoSignature = errors.New("invalid VS_FIXEDFILEINFO signature")

	// Only CodeView debug records in the PDB 7.0 (RSDS) layout are understood.
	ErrUnsupportedDebugFormat    = errors.New("unsupported debug directory format")
	ErrUnsupportedCodeViewFormat = errors.New("unsupported CodeView format")

	ErrResourceTreeTooDeep = errors.New("resource directory tree too deep")
)

var errUnterminatedString = errors.New("unterminated UTF-16 string")
