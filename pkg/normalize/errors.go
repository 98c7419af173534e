package normalize

import (
	"github.com/pkg/errors"
)

// ErrUnsupportedInput marks inbound content the agent cannot turn into a turn.
var ErrUnsupportedInput = errors.New("unsupported input")

// UnsupportedDocumentTypeError is returned for attachments with an unknown extension.
type UnsupportedDocumentTypeError struct {
	Extension string
	FileName  string
}

func (e *UnsupportedDocumentTypeError) Error() string {
	if e.Extension == "" {
		return "unsupported document type: file " + e.FileName + " has no extension"
	}
	return "unsupported document type: " + e.Extension
}

func (e *UnsupportedDocumentTypeError) Is(target error) bool {
	return target == ErrUnsupportedInput
}

// IsUnsupported reports whether err means the message content cannot be handled.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedInput)
}
