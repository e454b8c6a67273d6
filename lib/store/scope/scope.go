package scope

import (
	"github.com/ValentinKolb/rKV/lib/key"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("scope")

// Registry tracks named scopes and resolves the store that is active for a
// given scope path.
//
// Thread-safety: All methods are safe for concurrent use.
type Registry struct {
	root   *Scope
	scopes *xsync.MapOf[key.Key, *Scope]
}

// Scope is a named store binding. A scope either shares the store of its
// parent or owns an independent store seeded from the parent.
type Scope struct {
	registry *Registry
	parent   *Scope
	name     string
	path     key.Key
	store    *store.Store
	own      bool
}

// NewRegistry creates a registry whose root scope is bound to root.
// A nil root binds the process wide store (store.Default).
func NewRegistry(root *store.Store) *Registry {
	if root == nil {
		root = store.Default()
	}
	r := &Registry{
		scopes: xsync.NewMapOf[key.Key, *Scope](),
	}
	r.root = &Scope{
		registry: r,
		store:    root,
		own:      true,
	}
	return r
}

// Root returns the root scope. Its path is the empty key.
func (r *Registry) Root() *Scope {
	return r.root
}

// Lookup returns the scope registered for path.
func (r *Registry) Lookup(path key.Key) (*Scope, bool) {
	if path == "" {
		return r.root, true
	}
	return r.scopes.Load(path)
}

// Current resolves the store that is active at path: the store of the nearest
// enclosing registered scope, else the root store. Malformed paths resolve to
// the root store.
func (r *Registry) Current(path key.Key) *store.Store {
	segments, err := key.Decode(path)
	if err != nil {
		Logger.Debugf("resolving malformed scope path %q to the root store", path)
		return r.root.store
	}
	for i := len(segments); i > 0; i-- {
		if sc, ok := r.scopes.Load(key.Encode(segments[:i]...)); ok {
			return sc.store
		}
	}
	return r.root.store
}

// Len returns the number of registered scopes, the root scope excluded.
func (r *Registry) Len() int {
	return r.scopes.Size()
}

// --------------------------------------------------------------------------
// Scope
// --------------------------------------------------------------------------

// Child creates and registers a nested scope.
//
// Without seed values the child shares the store of sc, writes through either
// scope are visible to both. With seed values the child owns a new store that
// holds the current values of sc overlaid with the seed (seed values win on
// collision) and has its own subscribers and interceptors.
//
// Creating a child with a path that is already registered replaces the
// existing scope.
func (sc *Scope) Child(name string, seed store.Snapshot) *Scope {
	child := &Scope{
		registry: sc.registry,
		parent:   sc,
		name:     name,
		path:     sc.path + key.Encode(name),
		store:    sc.store,
	}

	if len(seed) > 0 {
		s := store.New()
		s.SetAll(sc.store.Snapshot())
		s.SetAll(seed)
		child.store = s
		child.own = true
	}

	if _, loaded := sc.registry.scopes.LoadAndStore(child.path, child); loaded {
		Logger.Debugf("scope %q replaced", child.path)
	}
	return child
}

// Store returns the store bound to the scope.
func (sc *Scope) Store() *store.Store {
	return sc.store
}

// Owned reports whether the scope owns its store instead of sharing the
// store of an ancestor.
func (sc *Scope) Owned() bool {
	return sc.own
}

// Name returns the name of the scope, empty for the root scope.
func (sc *Scope) Name() string {
	return sc.name
}

// Parent returns the enclosing scope, nil for the root scope.
func (sc *Scope) Parent() *Scope {
	return sc.parent
}

// Path returns the canonical key built from the names of all enclosing scopes.
func (sc *Scope) Path() key.Key {
	return sc.path
}

// Intercept registers fn as interceptor on the store of the scope and returns
// a function that removes it again.
func (sc *Scope) Intercept(fn store.Interceptor) (release func()) {
	h := sc.store.RegisterInterceptor(fn)
	return func() {
		sc.store.UnregisterInterceptor(h)
	}
}

// Release removes the scope and all scopes nested in it from the registry.
// The stores stay usable for anyone still holding them. Releasing the root
// scope is a no-op.
func (sc *Scope) Release() {
	if sc.parent == nil {
		return
	}
	sc.registry.scopes.Compute(sc.path, func(old *Scope, loaded bool) (*Scope, bool) {
		// keep a registration that replaced sc in the meantime
		return old, !loaded || old == sc
	})
	sc.registry.scopes.Range(func(path key.Key, nested *Scope) bool {
		if path != sc.path && path.HasPrefix(sc.path) && nested.isDescendantOf(sc) {
			sc.registry.scopes.Delete(path)
		}
		return true
	})
}

func (sc *Scope) isDescendantOf(ancestor *Scope) bool {
	for p := sc.parent; p != nil; p = p.parent {
		if p == ancestor {
			return true
		}
	}
	return false
}
