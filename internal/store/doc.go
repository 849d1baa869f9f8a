// Package store defines the persistence interfaces of the engine and
// the sentinel errors shared by all store implementations. Concrete
// implementations live under internal/platform.
package store
