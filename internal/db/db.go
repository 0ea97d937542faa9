package db

import (
	"context"
	"time"
)

// Store is the key-value facade combining all sub-interfaces.
type Store interface {
	Pinger
	HashStore
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides hash-based key-value operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Index is the tensor search index facade. Feed and query traffic flows
// through sessions; the index itself only owns the endpoint configuration.
type Index interface {
	Pinger
	Sessioner
	Close()
}

// Sessioner opens bounded index sessions.
type Sessioner interface {
	OpenSession(ctx context.Context, opts SessionOptions) (Session, error)
}

// Session is a scoped, connection-bounded channel to the index. Every
// operation is limited both by its own ctx and by the session deadline.
// Close must be called on every exit path; it is safe to call twice.
type Session interface {
	Put(ctx context.Context, doc *DocumentPut) error
	Query(ctx context.Context, q *Query) (*QueryResult, error)
	Close() error
}

// SessionOptions bound a session.
type SessionOptions struct {
	Connections int
	Timeout     time.Duration
}

// Deployer uploads an application package to the index config server.
type Deployer interface {
	Deploy(ctx context.Context, schema *SchemaDefinition) error
}
