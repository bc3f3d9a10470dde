package schema

import (
	"errors"
	"fmt"
)

var (
	ErrSchemaValidation      = errors.New("schema: validation failed")
	ErrUnsupportedDomainType = errors.New("schema: unsupported domain type")
	ErrFieldNotFound         = errors.New("schema: field not found")
	ErrSchemaFrozen          = fmt.Errorf("%w: schema is frozen", ErrSchemaValidation)
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaValidation, fmt.Sprintf(format, args...))
}
