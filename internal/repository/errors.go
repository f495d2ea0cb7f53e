package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound indicates no record exists for the requested key.
var ErrNotFound = errors.New("record not found")

// ErrPersistence indicates the backing store was unreachable or rejected a write.
var ErrPersistence = errors.New("persistence failure")

func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistence) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
