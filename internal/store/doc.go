// Package store defines interfaces for persistence dependencies: the
// transaction runner used by batch upserts and the import run repository.
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
