// Package scope resolves which store is active for a caller.
//
// A Registry has a root scope bound to a store (the process wide store by
// default). Nested scopes are created with Child:
//
//	reg := scope.NewRegistry(nil)
//	editor := reg.Root().Child("editor", store.SeedFrom(
//		store.P("draft", "title"),
//	))
//	panel := editor.Child("panel", nil) // shares the store of editor
//
//	reg.Current(panel.Path()) == editor.Store() // true
//
// A scope without seed values forwards to the store of its parent. A scope
// with seed values owns a new store holding the parent's values overlaid with
// the seed, with independent subscribers and interceptors.
package scope
