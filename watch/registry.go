package watch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/viant/watchdb/change"
	"github.com/viant/watchdb/record"
)

// Predicate decides whether a changed object is of interest. obj is nil when
// only the id of the changed object is known.
type Predicate func(id int64, obj record.Reader) bool

// Notification lists the ids of one collection a coarse watcher matched in
// a committed transaction.
type Notification struct {
	TxnID      string
	Collection string
	IDs        []int64
}

// Batch holds the change details of one collection in a committed
// transaction, in write order.
type Batch struct {
	TxnID      string          `json:"txnId"`
	Collection string          `json:"collection"`
	Changes    []change.Detail `json:"changes"`
}

type watcher struct {
	id        uint64
	objectID  *int64
	predicate Predicate
	coarse    func(Notification)
	detailed  func(Batch)
	stopped   atomic.Bool
}

func (w *watcher) matches(id int64, obj record.Reader) bool {
	switch {
	case w.objectID != nil:
		return *w.objectID == id
	case w.predicate == nil, obj == nil:
		return true
	}
	return w.predicate(id, obj)
}

// Handle cancels a registration.
type Handle struct {
	watchers *CollectionWatchers
	watcher  *watcher
	once     sync.Once
}

// Stop deregisters the watcher. It is safe to call more than once.
func (h *Handle) Stop() {
	h.once.Do(func() { h.watchers.remove(h.watcher) })
}

// CollectionWatchers holds the watchers of one collection.
type CollectionWatchers struct {
	name          string
	mu            sync.RWMutex
	coarse        []*watcher
	detailed      []*watcher
	coarseCount   atomic.Int32
	detailedCount atomic.Int32
}

func (c *CollectionWatchers) Name() string { return c.name }

// HasWatchers reports whether any coarse or detailed watcher is registered.
func (c *CollectionWatchers) HasWatchers() bool {
	return c.coarseCount.Load() > 0 || c.detailedCount.Load() > 0
}

// HasCoarseWatchers reports whether any coarse watcher is registered.
func (c *CollectionWatchers) HasCoarseWatchers() bool { return c.coarseCount.Load() > 0 }

// HasDetailedWatchers reports whether any detailed watcher is registered.
func (c *CollectionWatchers) HasDetailedWatchers() bool { return c.detailedCount.Load() > 0 }

// Counts returns the number of coarse and detailed watchers.
func (c *CollectionWatchers) Counts() (coarse, detailed int) {
	return int(c.coarseCount.Load()), int(c.detailedCount.Load())
}

func (c *CollectionWatchers) add(w *watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.detailed != nil {
		c.detailed = append(c.detailed, w)
		c.detailedCount.Add(1)
		return
	}
	c.coarse = append(c.coarse, w)
	c.coarseCount.Add(1)
}

func (c *CollectionWatchers) remove(w *watcher) {
	w.stopped.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.detailed != nil {
		c.detailed = without(c.detailed, w)
		c.detailedCount.Store(int32(len(c.detailed)))
		return
	}
	c.coarse = without(c.coarse, w)
	c.coarseCount.Store(int32(len(c.coarse)))
}

func (c *CollectionWatchers) coarseWatchers() []*watcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.coarse
}

func (c *CollectionWatchers) detailedWatchers() []*watcher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detailed
}

func without(list []*watcher, w *watcher) []*watcher {
	out := make([]*watcher, 0, len(list))
	for _, candidate := range list {
		if candidate != w {
			out = append(out, candidate)
		}
	}
	return out
}

// Registry is the watcher registry of one instance.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]*CollectionWatchers
	nextID      atomic.Uint64
	logger      logrus.FieldLogger
}

// NewRegistry creates an empty registry. A nil logger uses the standard logger.
func NewRegistry(logger logrus.FieldLogger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{collections: make(map[string]*CollectionWatchers), logger: logger}
}

// Collection returns the watchers of name, creating the entry on first use.
func (r *Registry) Collection(name string) *CollectionWatchers {
	r.mu.RLock()
	c, ok := r.collections[name]
	r.mu.RUnlock()
	if ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.collections[name]; !ok {
		c = &CollectionWatchers{name: name}
		r.collections[name] = c
	}
	return c
}

func (r *Registry) register(collection string, w *watcher) *Handle {
	w.id = r.nextID.Add(1)
	c := r.Collection(collection)
	c.add(w)
	return &Handle{watchers: c, watcher: w}
}

// WatchCollection notifies fn of every change to collection.
func (r *Registry) WatchCollection(collection string, fn func(Notification)) *Handle {
	return r.register(collection, &watcher{coarse: fn})
}

// WatchObject notifies fn of changes to a single object.
func (r *Registry) WatchObject(collection string, id int64, fn func(Notification)) *Handle {
	return r.register(collection, &watcher{objectID: &id, coarse: fn})
}

// WatchQuery notifies fn of changes to objects matching predicate. Changes
// whose object is unknown are reported to every query watcher.
func (r *Registry) WatchQuery(collection string, predicate Predicate, fn func(Notification)) *Handle {
	return r.register(collection, &watcher{predicate: predicate, coarse: fn})
}

// WatchDetailed delivers every committed batch of collection to fn.
func (r *Registry) WatchDetailed(collection string, fn func(Batch)) *Handle {
	return r.register(collection, &watcher{detailed: fn})
}

// SubscribeDetailed is the channel form of WatchDetailed. Delivery blocks the
// committing goroutine until the batch is received or ctx is done; the
// channel is closed once ctx is done.
func (r *Registry) SubscribeDetailed(ctx context.Context, collection string, buffer int) <-chan Batch {
	ch := make(chan Batch, buffer)
	var mu sync.Mutex
	closed := false
	handle := r.WatchDetailed(collection, func(batch Batch) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- batch:
		case <-ctx.Done():
		}
	})
	go func() {
		<-ctx.Done()
		handle.Stop()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}
