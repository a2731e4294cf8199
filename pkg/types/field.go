package types

import "time"

// FieldSpec describes one field passed to Registry.Register. It is a closed
// set of variants: Bare, WithDefault and WithExpiry.
type FieldSpec interface {
	FieldName() string
	isFieldSpec()
}

// Bare registers a field with no default and no expiration.
type Bare struct {
	Name string
}

// WithDefault registers a field that recovers to Value when nothing usable is
// stored. A falsy Value (nil, false, numeric zero, "") means no default.
type WithDefault struct {
	Name  string
	Value any
}

// WithExpiry registers a field whose saved snapshot expires TTL after the
// save. A TTL <= 0 disables expiration.
type WithExpiry struct {
	Name  string
	Value any
	TTL   time.Duration
}

func (f Bare) FieldName() string        { return f.Name }
func (f WithDefault) FieldName() string { return f.Name }
func (f WithExpiry) FieldName() string  { return f.Name }

func (Bare) isFieldSpec()        {}
func (WithDefault) isFieldSpec() {}
func (WithExpiry) isFieldSpec()  {}

// Fields is shorthand for a list of Bare specs.
func Fields(names ...string) []FieldSpec {
	specs := make([]FieldSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, Bare{Name: name})
	}
	return specs
}
