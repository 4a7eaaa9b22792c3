package core

import "context"

// StateStore keeps small string values for extension modules.
// Each module works in its own namespace.
type StateStore interface {
	Get(ctx context.Context, namespace, key string) (value string, ok bool, err error)
	Set(ctx context.Context, namespace, key, value string) error
	Delete(ctx context.Context, namespace, key string) (deleted bool, err error)
	Close() error
}
