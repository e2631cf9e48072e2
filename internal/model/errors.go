package model

import (
	"errors"
	"fmt"
)

// ErrIntegrity marks rows rejected at write time.
var ErrIntegrity = errors.New("integrity violation")

func integrityError(msg string) error {
	return fmt.Errorf("%w: %s", ErrIntegrity, msg)
}

func IntegrityErrorf(format string, args ...any) error {
	return integrityError(fmt.Sprintf(format, args...))
}
