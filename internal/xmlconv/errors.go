package xmlconv

import (
	"errors"
	"fmt"
)

// ErrConversion is matched by ConversionError.
var ErrConversion = errors.New("xmlconv: conversion failed")

// ConversionError reports that both engines rejected the input.
type ConversionError struct {
	PrimaryErr  error
	FallbackErr error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("xml to json conversion failed: primary: %v; fallback: %v", e.PrimaryErr, e.FallbackErr)
}

// Is matches ErrConversion.
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

// Unwrap exposes both engine errors.
func (e *ConversionError) Unwrap() []error {
	return []error{e.PrimaryErr, e.FallbackErr}
}
