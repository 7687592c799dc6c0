package db

import (
	"errors"

	sqlite3 "github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrForeignKey = errors.New("foreign key constraint violated")
)

func IsUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	if sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}

	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func IsForeignKeyConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrConstraint &&
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// translateConstraintError maps constraint failures onto the package
// sentinels and leaves other errors untouched.
func translateConstraintError(err error) error {
	switch {
	case IsUniqueConstraintError(err):
		return ErrDuplicate
	case IsForeignKeyConstraintError(err):
		return ErrForeignKey
	default:
		return err
	}
}
