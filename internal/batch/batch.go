// Package batch memoises per-user lookups for the length of one logical
// operation. A batch is opened with Do and lives in the context; values
// are only cached while a batch for their user is open.
package batch

import (
	"context"
	"fmt"
	"sync"
)

// Key identifies a memoised call.
type Key struct {
	Op     string
	UserID string
	Args   string
}

// NewKey formats args into the key so callers can pass ids directly.
func NewKey(op, userID string, args ...any) Key {
	k := Key{Op: op, UserID: userID}
	if len(args) > 0 {
		k.Args = fmt.Sprint(args...)
	}
	return k
}

// Ender is implemented by cached values that want a hook when the
// outermost batch for their user exits successfully.
type Ender interface {
	EndBatch(ctx context.Context) error
}

type scope struct {
	mu     sync.Mutex
	depth  int
	values map[Key]any
	order  []Key
}

func (s *scope) get(k Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[k]
	return v, ok
}

func (s *scope) put(k Key, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[k]; !ok {
		s.order = append(s.order, k)
	}
	s.values[k] = v
}

func (s *scope) enders() []Ender {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Ender
	for _, k := range s.order {
		if e, ok := s.values[k].(Ender); ok {
			out = append(out, e)
		}
	}
	return out
}

type registry struct {
	mu     sync.Mutex
	scopes map[string]*scope
}

func (r *registry) enter(userID string) *scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scopes[userID]
	if !ok {
		s = &scope{values: make(map[Key]any)}
		r.scopes[userID] = s
	}
	s.depth++
	return s
}

func (r *registry) exit(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scopes[userID]
	if !ok {
		return
	}
	s.depth--
	if s.depth <= 0 {
		delete(r.scopes, userID)
	}
}

func (r *registry) lookup(userID string) *scope {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scopes[userID]
}

type ctxKey struct{}

func fromContext(ctx context.Context) *registry {
	r, _ := ctx.Value(ctxKey{}).(*registry)
	return r
}

// Do runs fn inside a batch for userID. Batches nest; when the outermost
// one returns without error every cached Ender is called in insertion
// order. The cache is dropped on every exit path of the outermost batch.
func Do(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	reg := fromContext(ctx)
	if reg == nil {
		reg = &registry{scopes: make(map[string]*scope)}
		ctx = context.WithValue(ctx, ctxKey{}, reg)
	}

	s := reg.enter(userID)
	outermost := s.depth == 1
	defer reg.exit(userID)

	if err := fn(ctx); err != nil {
		return err
	}
	if !outermost {
		return nil
	}

	for _, e := range s.enders() {
		if err := e.EndBatch(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Memoise returns the cached result for key, calling load on a miss. Outside
// a batch for key.UserID load runs every time. Errors are not cached.
func Memoise[T any](ctx context.Context, key Key, load func(ctx context.Context) (T, error)) (T, error) {
	s := fromContext(ctx).lookup(key.UserID)
	if s == nil {
		return load(ctx)
	}

	if v, ok := s.get(key); ok {
		return v.(T), nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	s.put(key, v)
	return v, nil
}

// Depth reports how many batches for userID are open in ctx.
func Depth(ctx context.Context, userID string) int {
	s := fromContext(ctx).lookup(userID)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.depth
}
