package main

import (
	"strings"
	"sync"
	"time"

	"github.com/samuel/go-zookeeper/zk"
	log "github.com/sirupsen/logrus"
)

type mirrorEventKind int

const (
	mirrorInitialized mirrorEventKind = iota
	nodeAdded
	nodeUpdated
	nodeRemoved
)

func (k mirrorEventKind) String() string {
	switch k {
	case mirrorInitialized:
		return "initialized"
	case nodeAdded:
		return "added"
	case nodeUpdated:
		return "updated"
	case nodeRemoved:
		return "removed"
	}
	return "unknown"
}

// mirrorEvent is one observed mutation of a mirrored path. At is the
// wall-clock of the observation in milliseconds; for removals it is
// the only timestamp available.
type mirrorEvent struct {
	Mirror string
	Kind   mirrorEventKind
	Path   string
	Value  NodeValue
	At     int64
}

// mirrorStore is the local shadow of a ZooKeeper subtree. Writers
// diff re-reads against it; readers get per-node atomic values. No
// cross-node snapshot isolation is promised.
type mirrorStore struct {
	mu    sync.RWMutex
	nodes map[string]NodeValue
}

func newMirrorStore() *mirrorStore {
	return &mirrorStore{nodes: make(map[string]NodeValue)}
}

// set records a node value and reports what kind of change, if any,
// it amounts to.
func (s *mirrorStore) set(path string, v NodeValue) (mirrorEventKind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, present := s.nodes[path]
	s.nodes[path] = v
	if !present {
		return nodeAdded, true
	}
	if old.Version != v.Version || old.Mtime != v.Mtime {
		return nodeUpdated, true
	}
	return nodeUpdated, false
}

// removeSubtree drops a node and all of its descendants, returning
// the removed paths.
func (s *mirrorStore) removeSubtree(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make([]string, 0)
	prefix := path + "/"
	for p := range s.nodes {
		if p == path || strings.HasPrefix(p, prefix) {
			removed = append(removed, p)
			delete(s.nodes, p)
		}
	}
	return removed
}

func (s *mirrorStore) dataAt(path string) (NodeValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.nodes[path]
	return v, ok
}

// childrenOf returns the direct children of a path, keyed by child
// name.
func (s *mirrorStore) childrenOf(path string) map[string]NodeValue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := make(map[string]NodeValue)
	prefix := path + "/"
	for p, v := range s.nodes {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		name := p[len(prefix):]
		if strings.Contains(name, "/") {
			continue
		}
		r[name] = v
	}
	return r
}

func (s *mirrorStore) childNamesOf(path string) []string {
	children := s.childrenOf(path)
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	return names
}

type nodeEntry struct {
	Path  string
	Value NodeValue
}

func (s *mirrorStore) snapshot() []nodeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := make([]nodeEntry, 0, len(s.nodes))
	for p, v := range s.nodes {
		r = append(r, nodeEntry{Path: p, Value: v})
	}
	return r
}

// pathMirror keeps a mirrorStore in sync with one ZooKeeper path by
// re-arming exists and children watches. maxDepth bounds how far
// below the root it descends: 1 mirrors children and their data
// only, a negative depth mirrors the whole subtree.
type pathMirror struct {
	name     string
	conn     *zk.Conn
	root     string
	maxDepth int
	store    *mirrorStore
	events   chan<- mirrorEvent
	clock    *freshnessClock

	wake chan string
	stop chan struct{}
	once sync.Once
}

func newSubtreeMirror(name string, conn *zk.Conn, root string, events chan<- mirrorEvent, clock *freshnessClock) *pathMirror {
	return newPathMirror(name, conn, root, -1, events, clock)
}

func newChildrenMirror(name string, conn *zk.Conn, root string, events chan<- mirrorEvent, clock *freshnessClock) *pathMirror {
	return newPathMirror(name, conn, root, 1, events, clock)
}

func newPathMirror(name string, conn *zk.Conn, root string, maxDepth int, events chan<- mirrorEvent, clock *freshnessClock) *pathMirror {
	return &pathMirror{
		name:     name,
		conn:     conn,
		root:     root,
		maxDepth: maxDepth,
		store:    newMirrorStore(),
		events:   events,
		clock:    clock,
		wake:     make(chan string, 128),
		stop:     make(chan struct{}),
	}
}

// Start performs the initial synchronous load and then follows watch
// notifications until Close. A failed initial load is fatal to the
// caller.
func (m *pathMirror) Start() error {
	started := time.Now()
	if err := m.sync(m.root, m.maxDepth); err != nil {
		return err
	}

	m.emit(mirrorEvent{
		Mirror: m.name,
		Kind:   mirrorInitialized,
		Path:   m.root,
		At:     nowMillis(),
	})

	log.WithFields(log.Fields{
		"mirror": m.name,
		"path":   m.root,
	}).Debugf("Mirror synced in %v", time.Since(started))

	go m.follow()
	return nil
}

func (m *pathMirror) Close() {
	m.once.Do(func() { close(m.stop) })
}

// Resync schedules a full re-read of the mirrored path. Used after a
// ZooKeeper session is re-established.
func (m *pathMirror) Resync() {
	select {
	case m.wake <- m.root:
	case <-m.stop:
	}
}

func (m *pathMirror) follow() {
	for {
		select {
		case <-m.stop:
			return

		case path := <-m.wake:
			if err := m.sync(path, m.depthOf(path)); err != nil {
				log.WithFields(log.Fields{
					"mirror": m.name,
					"path":   path,
				}).Errorf("Problem syncing mirror! %v", err)

				// try again later rather than dropping the path
				go m.rewake(path)
			}
		}
	}
}

func (m *pathMirror) rewake(path string) {
	select {
	case <-time.After(5 * time.Second):
	case <-m.stop:
		return
	}

	select {
	case m.wake <- path:
	case <-m.stop:
	}
}

// depthOf maps an absolute path back to how much deeper the mirror
// may descend from it.
func (m *pathMirror) depthOf(path string) int {
	if m.maxDepth < 0 {
		return -1
	}
	if path == m.root {
		return m.maxDepth
	}

	rel := strings.TrimPrefix(path, m.root+"/")
	depth := m.maxDepth - (strings.Count(rel, "/") + 1)
	if depth < 0 {
		depth = 0
	}
	return depth
}

// sync re-reads one node (and, depth permitting, its children),
// diffs against the store, and emits the resulting events. Watches
// are re-armed on every pass; an exists watch also fires on data
// changes, so it doubles as the data watch.
func (m *pathMirror) sync(path string, depth int) error {
	exists, _, existCh, err := m.conn.ExistsW(path)
	if err != nil {
		return err
	}
	m.forward(path, existCh)

	if !exists {
		m.removeLocally(path)
		return nil
	}

	data, stat, err := m.conn.Get(path)
	if err == zk.ErrNoNode {
		// raced with a delete; the exists watch will fire again
		m.removeLocally(path)
		return nil
	}
	if err != nil {
		return err
	}

	value := NodeValue{Version: stat.Version, Mtime: stat.Mtime, Data: data}
	if kind, changed := m.store.set(path, value); changed {
		m.emit(mirrorEvent{
			Mirror: m.name,
			Kind:   kind,
			Path:   path,
			Value:  value,
			At:     nowMillis(),
		})
	}

	if depth == 0 {
		return nil
	}

	children, _, childCh, err := m.conn.ChildrenW(path)
	if err == zk.ErrNoNode {
		m.removeLocally(path)
		return nil
	}
	if err != nil {
		return err
	}
	m.forward(path, childCh)

	present := make(map[string]struct{}, len(children))
	for _, child := range children {
		present[child] = struct{}{}
	}

	for _, known := range m.store.childNamesOf(path) {
		if _, ok := present[known]; !ok {
			m.removeLocally(path + "/" + known)
		}
	}

	for _, child := range children {
		if err := m.sync(path+"/"+child, depth-1); err != nil {
			return err
		}
	}

	return nil
}

func (m *pathMirror) removeLocally(path string) {
	at := nowMillis()
	for _, removed := range m.store.removeSubtree(path) {
		m.emit(mirrorEvent{
			Mirror: m.name,
			Kind:   nodeRemoved,
			Path:   removed,
			At:     at,
		})
	}
}

// forward turns a one-shot ZooKeeper watch into a wake-up for the
// owning path.
func (m *pathMirror) forward(path string, ch <-chan zk.Event) {
	go func() {
		select {
		case <-ch:
		case <-m.stop:
			return
		}

		select {
		case m.wake <- path:
		case <-m.stop:
		}
	}()
}

func (m *pathMirror) emit(event mirrorEvent) {
	if m.clock != nil && event.Kind != mirrorInitialized {
		m.clock.touch()
	}

	select {
	case m.events <- event:
	case <-m.stop:
	}
}

func nowMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
