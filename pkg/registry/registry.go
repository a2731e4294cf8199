package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"time"

	"github.com/mesh-intelligence/keepstate/internal/merge"
	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// Registry maps key names to registrations and moves their fields between
// the owning instances and a Store. Every operation holds the registry lock
// until it completes.
type Registry struct {
	mu      sync.Mutex
	store   types.Store
	cfg     config
	mapping map[string]*registration
}

// registration binds an accessor to its persisted fields. Fields are fixed
// at registration time.
type registration struct {
	instance types.Accessor
	fields   []field
}

type field struct {
	name  string
	value any           // default; nil means none
	ttl   time.Duration // 0 means no expiration
}

// New creates a Registry writing to store.
func New(store types.Store, opts ...Option) *Registry {
	return &Registry{
		store:   store,
		cfg:     applyOptions(opts),
		mapping: map[string]*registration{},
	}
}

// Namespace returns the prefix prepended to every field name.
func (r *Registry) Namespace() string {
	return r.cfg.namespace
}

// StorageKey returns the store key used for a field name.
func (r *Registry) StorageKey(fieldName string) string {
	return r.cfg.namespace + fieldName
}

// Register binds instance under keyName with the given field specs. It does
// not save or recover; call RecoverState afterwards to load stored values.
//
// Returns ErrInvalidKeyName for an empty key name, ErrDuplicateKey when the
// key name is already in use, and ErrInvalidField for a nil accessor or an
// invalid spec. On error the registry is unchanged.
func (r *Registry) Register(instance types.Accessor, keyName string, specs ...types.FieldSpec) error {
	if keyName == "" {
		return types.ErrInvalidKeyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.mapping[keyName]; ok {
		return fmt.Errorf("%w: %q", types.ErrDuplicateKey, keyName)
	}
	if instance == nil {
		return fmt.Errorf("%w: nil accessor for %q", types.ErrInvalidField, keyName)
	}

	fields, err := compileFields(specs)
	if err != nil {
		return fmt.Errorf("register %q: %w", keyName, err)
	}

	r.mapping[keyName] = &registration{instance: instance, fields: fields}
	r.cfg.logger.Debug("registered", "key_name", keyName, "fields", len(fields))
	return nil
}

// Registered reports whether keyName has been registered.
func (r *Registry) Registered(keyName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.mapping[keyName]
	return ok
}

// Fields returns the field names registered under keyName in registration
// order.
func (r *Registry) Fields(keyName string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.lookup(keyName)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(reg.fields))
	for i, f := range reg.fields {
		names[i] = f.name
	}
	return names, nil
}

// SaveState writes every registered field of keyName to the store. A field
// whose current value is absent or nil has its stored entry removed instead.
func (r *Registry) SaveState(keyName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.lookup(keyName)
	if err != nil {
		return err
	}

	now := r.cfg.now()
	for _, f := range reg.fields {
		if err := r.saveField(reg, f, now); err != nil {
			return fmt.Errorf("save %q field %q: %w", keyName, f.name, err)
		}
	}
	r.cfg.logger.Debug("state saved", "key_name", keyName, "fields", len(reg.fields))
	return nil
}

// RecoverState loads every registered field of keyName from the store and
// applies it to the instance. Missing, expired or corrupt entries fall back
// to the field's default. Expired entries are left in the store.
func (r *Registry) RecoverState(keyName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.recoverLocked(keyName)
}

// ResetState recovers keyName and then clears its stored entries. Because
// recovery runs first, still-live saved values are applied before the store
// is wiped; use ResetToDefaults to restore registered defaults instead.
func (r *Registry) ResetState(keyName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.recoverLocked(keyName); err != nil {
		return err
	}
	return r.clearLocked(keyName)
}

// ResetToDefaults applies every field's registered default without reading
// the store, then clears the stored entries of keyName.
func (r *Registry) ResetToDefaults(keyName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.lookup(keyName)
	if err != nil {
		return err
	}
	for _, f := range reg.fields {
		if err := r.applyDefault(reg, f); err != nil {
			return fmt.Errorf("reset %q field %q: %w", keyName, f.name, err)
		}
	}
	return r.clearLocked(keyName)
}

// ClearStorage removes the stored entries of every field of keyName. The
// instance is not touched.
func (r *Registry) ClearStorage(keyName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.clearLocked(keyName)
}

// PruneExpired removes stored entries of keyName that have expired or cannot
// be decoded, and returns how many were removed.
func (r *Registry) PruneExpired(keyName string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.lookup(keyName)
	if err != nil {
		return 0, err
	}

	now := r.cfg.now()
	removed := 0
	for _, f := range reg.fields {
		key := r.StorageKey(f.name)
		raw, ok, err := r.store.Get(key)
		if err != nil {
			return removed, fmt.Errorf("prune %q field %q: %w", keyName, f.name, err)
		}
		if !ok {
			continue
		}
		if env, err := types.DecodeEnvelope(raw); err == nil && env.Live(now) {
			continue
		}
		if err := r.store.Remove(key); err != nil {
			return removed, fmt.Errorf("prune %q field %q: %w", keyName, f.name, err)
		}
		removed++
	}
	if removed > 0 {
		r.cfg.logger.Debug("pruned expired entries", "key_name", keyName, "removed", removed)
	}
	return removed, nil
}

// lookup returns the registration for keyName. The caller must hold r.mu.
func (r *Registry) lookup(keyName string) (*registration, error) {
	reg, ok := r.mapping[keyName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrNotRegistered, keyName)
	}
	return reg, nil
}

func (r *Registry) saveField(reg *registration, f field, now time.Time) error {
	key := r.StorageKey(f.name)
	current, ok := reg.instance.Get(f.name)
	if !ok || merge.IsNil(current) {
		return r.store.Remove(key)
	}

	var expireAt time.Time
	if f.ttl > 0 {
		expireAt = now.Add(f.ttl)
	}
	env, err := types.NewEnvelope(current, expireAt)
	if err != nil {
		return err
	}
	encoded, err := env.Encode()
	if err != nil {
		return err
	}
	return r.store.Set(key, encoded)
}

func (r *Registry) recoverLocked(keyName string) error {
	reg, err := r.lookup(keyName)
	if err != nil {
		return err
	}

	now := r.cfg.now()
	for _, f := range reg.fields {
		if err := r.recoverField(keyName, reg, f, now); err != nil {
			return fmt.Errorf("recover %q field %q: %w", keyName, f.name, err)
		}
	}
	r.cfg.logger.Debug("state recovered", "key_name", keyName, "fields", len(reg.fields))
	return nil
}

func (r *Registry) recoverField(keyName string, reg *registration, f field, now time.Time) error {
	key := r.StorageKey(f.name)
	raw, ok, err := r.store.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return r.applyDefault(reg, f)
	}

	env, err := types.DecodeEnvelope(raw)
	if err != nil {
		r.cfg.logger.Warn("ignoring corrupt entry", "key_name", keyName, "key", key, "error", err)
		return r.applyDefault(reg, f)
	}
	if !env.Live(now) {
		r.cfg.logger.Debug("entry expired", "key_name", keyName, "key", key, "expire", env.Expire)
		return r.applyDefault(reg, f)
	}

	current, _ := reg.instance.Get(f.name)
	value, err := decodeLike(env.Value, current)
	if err != nil {
		r.cfg.logger.Warn("ignoring undecodable entry", "key_name", keyName, "key", key, "error", err)
		return r.applyDefault(reg, f)
	}

	err = r.apply(reg, f.name, value)
	if errors.Is(err, types.ErrTypeMismatch) {
		r.cfg.logger.Warn("stored value does not fit field", "key_name", keyName, "key", key, "error", err)
		return r.applyDefault(reg, f)
	}
	return err
}

// applyDefault applies a field's default. A default assigned outright is
// cloned so later in-place recoveries cannot mutate the registered value.
func (r *Registry) applyDefault(reg *registration, f field) error {
	current, _ := reg.instance.Get(f.name)
	if merge.Identical(current, f.value) {
		return nil
	}
	return r.apply(reg, f.name, merge.Clone(f.value))
}

// apply is the merge rule: identical values are left alone, a live map or
// pointer receives a structural copy, anything else is replaced.
func (r *Registry) apply(reg *registration, name string, incoming any) error {
	current, _ := reg.instance.Get(name)
	if merge.Identical(current, incoming) {
		return nil
	}
	if merge.Mergeable(current) && !merge.IsNil(incoming) {
		err := r.cfg.copier.CopyInto(current, incoming)
		if err == nil {
			return nil
		}
		if !errors.Is(err, merge.ErrIncompatible) {
			return err
		}
		r.cfg.logger.Debug("replacing field with incompatible shape", "field", name, "error", err)
	}
	return reg.instance.Set(name, incoming)
}

func (r *Registry) clearLocked(keyName string) error {
	reg, err := r.lookup(keyName)
	if err != nil {
		return err
	}
	for _, f := range reg.fields {
		if err := r.store.Remove(r.StorageKey(f.name)); err != nil {
			return fmt.Errorf("clear %q field %q: %w", keyName, f.name, err)
		}
	}
	r.cfg.logger.Debug("storage cleared", "key_name", keyName, "fields", len(reg.fields))
	return nil
}

// compileFields validates specs and turns them into field records. A field
// name repeated in specs replaces its earlier record.
func compileFields(specs []types.FieldSpec) ([]field, error) {
	fields := make([]field, 0, len(specs))
	index := make(map[string]int, len(specs))

	for i, spec := range specs {
		var f field
		switch s := spec.(type) {
		case types.Bare:
			f = field{name: s.Name}
		case types.WithDefault:
			f = field{name: s.Name, value: defaultValue(s.Value)}
		case types.WithExpiry:
			f = field{name: s.Name, value: defaultValue(s.Value), ttl: max(s.TTL, 0)}
		case nil:
			return nil, fmt.Errorf("%w: spec %d is nil", types.ErrInvalidField, i)
		default:
			return nil, fmt.Errorf("%w: spec %d has unsupported type %T", types.ErrInvalidField, i, spec)
		}
		if f.name == "" {
			return nil, fmt.Errorf("%w: spec %d has an empty name", types.ErrInvalidField, i)
		}

		if at, ok := index[f.name]; ok {
			fields[at] = f
			continue
		}
		index[f.name] = len(fields)
		fields = append(fields, f)
	}
	return fields, nil
}

// defaultValue drops falsy defaults: nil, false, numeric zero, NaN and the
// empty string all mean "no default".
func defaultValue(v any) any {
	if merge.IsNil(v) {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if rv.IsZero() {
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if f := rv.Float(); f == 0 || math.IsNaN(f) {
			return nil
		}
	}
	return v
}

// decodeLike decodes raw into a fresh value of current's dynamic type so typed
// fields keep their types. When current is nil, or raw does not fit that
// type, the generic JSON representation is returned and the accessor decides.
func decodeLike(raw json.RawMessage, current any) (any, error) {
	if current != nil {
		ptr := reflect.New(reflect.TypeOf(current))
		if err := json.Unmarshal(raw, ptr.Interface()); err == nil {
			return ptr.Elem().Interface(), nil
		}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
