package generator

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType reports a native or driver type outside the
	// supported set. Generation aborts rather than guessing a mapping.
	ErrUnsupportedType = errors.New("unsupported database type")

	// ErrInvalidName reports an identifier that normalizes to empty.
	ErrInvalidName = errors.New("invalid attribute name")

	// ErrUnknownFunctionShape reports a function whose declared return
	// kind is not scalar or table valued.
	ErrUnknownFunctionShape = errors.New("unknown function return shape")

	// ErrDryRun reports a failed schema-only probe of a stored procedure.
	ErrDryRun = errors.New("dry run failed")

	// ErrUnsupportedCommandShape reports a raw SQL command asked to
	// declare a result shape; no discovery mechanism exists for those.
	ErrUnsupportedCommandShape = errors.New("unsupported command shape")
)

func errUnsupportedType(name string) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedType, name)
}

func errInvalidName(raw string) error {
	return fmt.Errorf("%w: %q normalizes to empty", ErrInvalidName, raw)
}

func errUnknownFunctionShape(qualified, objectType string) error {
	return fmt.Errorf("%w: %s has object type %q", ErrUnknownFunctionShape, qualified, objectType)
}

func errDryRun(qualified string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDryRun, qualified, err)
}
