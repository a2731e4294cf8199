// Package registry implements the State Registry: owning services register a
// subset of their fields under a unique key name, then save, recover, reset
// or clear those fields against a Backend Store.
//
// A Registry is an explicit object. Construct one at application start and
// pass it to every service that persists state:
//
//	reg := registry.New(store, registry.WithNamespace("shop"))
//	err := reg.Register(registry.MapAccessor(cart), "cart",
//	    types.Bare{Name: "items"},
//	    types.WithExpiry{Name: "coupon", TTL: 30 * time.Minute},
//	)
//	err = reg.RecoverState("cart")
//	...
//	err = reg.SaveState("cart")
//
// Each field is persisted under namespace+field as an Envelope. On recovery
// a live map or pointer field is updated in place so references held by
// callers keep seeing the recovered data; other fields are replaced.
package registry
