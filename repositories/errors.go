package repositories

import (
	"errors"
	"fmt"

	"telemetry-server/entities"

	"gorm.io/gorm"
)

// translate maps gorm errors onto the shared error kinds.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return entities.Errorf(entities.ErrNotFound, "%s not found", what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return entities.Errorf(entities.ErrConflict, "%s already exists", what)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return entities.Errorf(entities.ErrNotFound, "%s references a missing row", what)
	}
	return fmt.Errorf("%s: %w", what, err)
}
