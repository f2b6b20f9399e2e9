// Package storage provides Writer adapters and utilities for the expiring-cache library.
//
// This package contains adapters such as SilentErrorWriter, which wraps any Writer
// implementation to silently handle errors, and FunctionsWriter, which allows building
// custom writer implementations using function callbacks.
//
// This package also defines common error types for writer operations:
// ErrWrite and ErrDelete.
package storage
