package pipeline

import (
	"context"
	"sync"

	"taxietl/internal/blocks"
	"taxietl/internal/etlerr"
	"taxietl/internal/objectstore"
	"taxietl/internal/warehouse"
)

// StoreOpener yields the object store when a step first needs it, so a
// missing or broken block fails the step that uses it.
type StoreOpener func(ctx context.Context) (objectstore.Store, error)

// LoaderOpener yields a warehouse loader when the load step starts. The
// pipeline closes the loader when the step ends.
type LoaderOpener func(ctx context.Context) (warehouse.Loader, error)

// Registry returns the block registry, loading it on first use.
type Registry func() (*blocks.Registry, error)

// LazyRegistry reads path once, on the first call.
func LazyRegistry(path string, getenv func(string) string) Registry {
	var (
		once sync.Once
		reg  *blocks.Registry
		err  error
	)
	return func() (*blocks.Registry, error) {
		once.Do(func() { reg, err = blocks.Load(path, getenv) })
		return reg, err
	}
}

// BlockStore opens the named object-store block. An unreadable registry is
// reported as StorageUnavailableError.
func BlockStore(reg Registry, name string) StoreOpener {
	return func(ctx context.Context) (objectstore.Store, error) {
		r, err := reg()
		if err != nil {
			return nil, &etlerr.Error{Kind: etlerr.KindStorageUnavailable, Op: "blocks.load", Err: err}
		}
		blk, err := r.ObjectStore(name)
		if err != nil {
			return nil, err
		}
		return objectstore.Open(ctx, blk)
	}
}

// BlockLoader opens the named credentials block. An unreadable registry is
// reported as AuthError.
func BlockLoader(reg Registry, name, project string) LoaderOpener {
	return func(ctx context.Context) (warehouse.Loader, error) {
		r, err := reg()
		if err != nil {
			return nil, &etlerr.Error{Kind: etlerr.KindAuth, Op: "blocks.load", Err: err}
		}
		cred, err := r.Credentials(name)
		if err != nil {
			return nil, err
		}
		return warehouse.Open(ctx, cred, project)
	}
}

// StaticStore always returns s.
func StaticStore(s objectstore.Store) StoreOpener {
	return func(context.Context) (objectstore.Store, error) { return s, nil }
}

// StaticLoader always returns l.
func StaticLoader(l warehouse.Loader) LoaderOpener {
	return func(context.Context) (warehouse.Loader, error) { return l, nil }
}
