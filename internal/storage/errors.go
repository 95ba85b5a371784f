// Package storage implements the world-level persistence surface: world
// and player metadata, entity records, the auto-save coordinator,
// offline validation/recovery, and on-demand backups. It sits on top of
// internal/world/region, which owns the chunk-level on-disk format.
package storage

import "errors"

var (
	ErrBadMagic             = errors.New("storage: bad file magic")
	ErrUnsupportedVersion   = errors.New("storage: unsupported file version")
	ErrPayloadSizeMismatch  = errors.New("storage: payload size mismatch")
	ErrTruncatedString      = errors.New("storage: truncated length-prefixed string")
	ErrNotFound             = errors.New("storage: world metadata not found")
	ErrUnknownEntityKind    = errors.New("storage: unknown entity kind")
)
