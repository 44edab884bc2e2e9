package repository

import "errors"

// Ошибки уровня репозитория
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate нарушение уникальности (код карты в рамках бизнеса)
	ErrDuplicate = errors.New("duplicate record")

	// ErrVersionConflict версия записи изменилась между чтением и записью
	ErrVersionConflict = errors.New("version conflict")

	// ErrStatusConflict платеж уже не находится в ожидаемом статусе
	ErrStatusConflict = errors.New("status conflict")
)
