package keyimport

import "errors"

var (
	// ErrInvalidPassphrase means the MAC did not verify: usually a wrong
	// passphrase.
	ErrInvalidPassphrase = errors.New("keyimport: invalid passphrase")
	// ErrInvalidData means the export is not well formed.
	ErrInvalidData = errors.New("keyimport: invalid data")
	// ErrOther covers everything else, including failures of the importer.
	ErrOther = errors.New("keyimport: import failed")
)

// Result classifies the outcome of an import for presentation.
type Result int

const (
	Success Result = iota
	InvalidPassphrase
	InvalidData
	OtherError
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case InvalidPassphrase:
		return "invalid_passphrase"
	case InvalidData:
		return "invalid_data"
	}
	return "other_error"
}

// ResultOf maps an error from this package to a Result.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrInvalidPassphrase):
		return InvalidPassphrase
	case errors.Is(err, ErrInvalidData):
		return InvalidData
	}
	return OtherError
}
