package watch

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/watchdb/change"
	"github.com/viant/watchdb/metrics"
	"github.com/viant/watchdb/record"
)

type objectKey struct {
	collection string
	id         int64
}

type coarseKey struct {
	watcher uint64
	id      int64
}

type coarseEntry struct {
	watcher    *watcher
	collection string
	id         int64
}

// Stats counts what Notify delivered.
type Stats struct {
	Notifications int
	Batches       int
	Details       int
}

// ChangeSet accumulates the changes of one transaction. It is owned by the
// transaction and is not safe for concurrent use.
type ChangeSet struct {
	txnID    string
	registry *Registry
	details  []change.Detail
	recorded map[objectKey]bool
	coarse   map[coarseKey]bool
	entries  []coarseEntry
}

// NewChangeSet creates the accumulator of transaction txnID.
func NewChangeSet(registry *Registry, txnID string) *ChangeSet {
	return &ChangeSet{
		txnID:    txnID,
		registry: registry,
		recorded: make(map[objectKey]bool),
		coarse:   make(map[coarseKey]bool),
	}
}

// RegisterChange records that object id of w's collection changed, for
// every coarse watcher matching it. obj may be nil.
func (s *ChangeSet) RegisterChange(w *CollectionWatchers, id int64, obj record.Reader) {
	if !w.HasCoarseWatchers() {
		return
	}
	for _, candidate := range w.coarseWatchers() {
		key := coarseKey{watcher: candidate.id, id: id}
		if s.coarse[key] || !candidate.matches(id, obj) {
			continue
		}
		s.coarse[key] = true
		s.entries = append(s.entries, coarseEntry{watcher: candidate, collection: w.name, id: id})
	}
}

// RegisterDetailedChange appends a change detail.
func (s *ChangeSet) RegisterDetailedChange(detail change.Detail) {
	s.details = append(s.details, detail)
	s.recorded[objectKey{collection: detail.Collection, id: detail.ObjectID}] = true
}

// HasDetail reports whether a detail was recorded for the object.
func (s *ChangeSet) HasDetail(collection string, id int64) bool {
	return s.recorded[objectKey{collection: collection, id: id}]
}

// Len returns the number of pending details and coarse matches.
func (s *ChangeSet) Len() int { return len(s.details) + len(s.entries) }

// Notify delivers the pending changes and clears the set. Only the commit
// path calls it.
func (s *ChangeSet) Notify() Stats {
	var stats Stats
	entries, details := s.entries, s.details
	s.entries, s.details = nil, nil
	s.coarse = make(map[coarseKey]bool)
	s.recorded = make(map[objectKey]bool)

	var order []*watcher
	notifications := map[*watcher]*Notification{}
	for _, entry := range entries {
		n, ok := notifications[entry.watcher]
		if !ok {
			n = &Notification{TxnID: s.txnID, Collection: entry.collection}
			notifications[entry.watcher] = n
			order = append(order, entry.watcher)
		}
		n.IDs = append(n.IDs, entry.id)
	}
	for _, w := range order {
		if w.stopped.Load() {
			continue
		}
		n := *notifications[w]
		s.deliver(w, func() { w.coarse(n) })
		stats.Notifications++
	}

	var collections []string
	grouped := map[string][]change.Detail{}
	for _, detail := range details {
		if _, ok := grouped[detail.Collection]; !ok {
			collections = append(collections, detail.Collection)
		}
		grouped[detail.Collection] = append(grouped[detail.Collection], detail)
	}
	for _, name := range collections {
		changes := grouped[name]
		for _, w := range s.registry.Collection(name).detailedWatchers() {
			if w.stopped.Load() {
				continue
			}
			batch := Batch{TxnID: s.txnID, Collection: name, Changes: append([]change.Detail(nil), changes...)}
			s.deliver(w, func() { w.detailed(batch) })
			stats.Batches++
			stats.Details += len(changes)
		}
	}
	metrics.DeliveriesTotal.WithLabelValues(metrics.Coarse).Add(float64(stats.Notifications))
	metrics.DeliveriesTotal.WithLabelValues(metrics.Detailed).Add(float64(stats.Batches))
	return stats
}

func (s *ChangeSet) deliver(w *watcher, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.registry.logger.WithFields(logrus.Fields{
				"txn":     s.txnID,
				"watcher": w.id,
				"panic":   r,
			}).Warn("watcher callback panicked")
		}
	}()
	fn()
}
