// Package types defines the Store and Backend contracts, the persisted
// Envelope format, field specifications, accessors, configuration, and the
// standard errors shared by every keepstate package.
//
// The Registry in package registry depends only on these contracts; concrete
// stores live in internal/memory and internal/sqlite and are opened through
// package store.
package types
