package docmerge

import (
	"errors"
	"fmt"
)

// ErrTemplate matches every failure returned by Merge
var ErrTemplate = errors.New("template processing error")

var (
	ErrContentMissing  = errors.New("content entry not found in archive")
	ErrArchiveTooLarge = errors.New("archive exceeds size limit")
	ErrTooManyEntries  = errors.New("archive has too many entries")
	ErrUnsafePath      = errors.New("archive entry escapes workspace")
	ErrUnsupportedMode = errors.New("archive entry is not a regular file")
)

// TemplateError wraps the cause of a failed merge with the step that failed
type TemplateError struct {
	Op  string
	Err error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTemplate, e.Op, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// Is reports ErrTemplate as well as the wrapped cause
func (e *TemplateError) Is(target error) bool {
	return target == ErrTemplate
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TemplateError
	if errors.As(err, &te) {
		return err
	}
	return &TemplateError{Op: op, Err: err}
}
