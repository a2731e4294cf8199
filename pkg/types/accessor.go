package types

// Accessor is a bound capability over an owner's fields. The Registry reads
// and writes registered fields only through it and never holds the owner
// itself.
type Accessor interface {
	// Get returns the current value of name. ok is false when the field is
	// absent.
	Get(name string) (value any, ok bool)

	// Set replaces the value of name. A nil value clears the field.
	Set(name string, value any) error
}
