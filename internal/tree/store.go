/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package tree holds the canonical page document and the closed set of
// commands that change it.
//
// Published documents are immutable: commands path-copy the changed nodes and
// share everything else, so history entries and autosave snapshots stay valid
// while editing continues. An arena index maps every id to its live node and
// parent id for constant-time lookup.
package tree

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"pagebuilder/internal/domain"
	plog "pagebuilder/internal/log"
	"pagebuilder/internal/undo"
)

// Options configures a Store. Zero values pick defaults.
type Options struct {
	History *undo.Manager
	NewID   func() string
	MinZoom float64
	MaxZoom float64
	Logger  *slog.Logger
}

// Store owns the live document. Commands are serialized by a mutex and
// subscribers are notified after the lock is released, once per applied change.
type Store struct {
	mu      sync.Mutex
	doc     *domain.Document
	index   map[string]entry
	hist    *undo.Manager
	newID   func() string
	minZoom float64
	maxZoom float64
	log     *slog.Logger

	subMu   sync.Mutex
	subs    map[int]func(*domain.Document)
	nextSub int
}

func New(opts Options) *Store {
	if opts.History == nil {
		opts.History = undo.NewManager(undo.Config{})
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	if opts.MinZoom <= 0 {
		opts.MinZoom = 0.25
	}
	if opts.MaxZoom < opts.MinZoom {
		opts.MaxZoom = 3
	}
	if opts.Logger == nil {
		opts.Logger = plog.WithComponent("tree")
	}
	return &Store{
		doc:     domain.NewDocument(),
		index:   map[string]entry{},
		hist:    opts.History,
		newID:   opts.NewID,
		minZoom: opts.MinZoom,
		maxZoom: opts.MaxZoom,
		log:     opts.Logger,
		subs:    map[int]func(*domain.Document){},
	}
}

// Subscribe registers fn for every applied change. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(*domain.Document)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify(d *domain.Document) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(*domain.Document), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(d)
	}
}

// Snapshot returns the current document. It must be treated as read-only.
func (s *Store) Snapshot() *domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// History exposes the undo manager backing this store.
func (s *Store) History() *undo.Manager { return s.hist }

// Node returns the live node for id.
func (s *Store) Node(id string) (*domain.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	return e.node, ok
}

// Parent returns the parent id of id ("" for roots).
func (s *Store) Parent(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	return e.parentID, ok
}

// RootIndex returns the position of id in the root list, or -1.
func (s *Store) RootIndex(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok || e.parentID != "" {
		return -1
	}
	return indexOf(s.doc.Roots, id)
}

// Len returns the number of indexed nodes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

func (s *Store) CanUndo() bool { return s.hist.CanUndo() }
func (s *Store) CanRedo() bool { return s.hist.CanRedo() }

// begin starts a path-copying transaction over the live index.
func (s *Store) begin() *txn { return &txn{roots: s.doc.Roots, index: s.index} }

// commitLocked records the previous document, publishes the new one and returns it for notification.
func (s *Store) commitLocked(tx *txn, key string, edit func(d *domain.Document)) *domain.Document {
	prev := s.doc
	next := prev.ShallowCopy()
	next.Roots = tx.roots
	if edit != nil {
		edit(next)
	}
	s.hist.Record(prev, key)
	s.doc = next
	return next
}

// sessionLocked publishes a session-only change; it is not recorded in history.
func (s *Store) sessionLocked(edit func(d *domain.Document)) *domain.Document {
	next := s.doc.ShallowCopy()
	edit(next)
	s.doc = next
	return next
}

// placementLocked validates a target parent for a node of type t.
// Returns the column tag to apply (nil when the parent is not slotted) and the rejection, if any.
func (s *Store) placementLocked(t domain.BlockType, at Placement, reject Outcome) (*int, Outcome) {
	if at.ParentID == "" {
		return nil, Applied
	}
	pe, ok := s.index[at.ParentID]
	if !ok {
		return nil, reject
	}
	spec, ok := domain.ContainerSpecFor(pe.node.Type)
	if !ok || !spec.AcceptsType(t) {
		return nil, reject
	}
	if !spec.Slotted || at.Column == nil {
		return nil, Applied
	}
	if c := *at.Column; c < 0 || c >= domain.SlotCount(pe.node) {
		return nil, OutOfRange
	}
	col := *at.Column
	return &col, Applied
}

// Insert creates a node of type t with default props at the given placement.
func (s *Store) Insert(t domain.BlockType, at Placement) (string, Outcome) {
	s.mu.Lock()
	if !domain.IsKnown(t) {
		s.mu.Unlock()
		return "", RejectedInsert
	}
	col, out := s.placementLocked(t, at, RejectedInsert)
	if out != Applied {
		s.mu.Unlock()
		s.log.Debug("insert rejected", slog.String("type", string(t)), slog.String("parent", at.ParentID), slog.String("outcome", out.String()))
		return "", out
	}
	n := domain.NewNode(t, s.newID())
	if col != nil {
		n.Props = domain.WithColumn(n.Props, col)
	}
	tx := s.begin()
	tx.attach(at.ParentID, at.Index, n)
	d := s.commitLocked(tx, "", nil)
	s.mu.Unlock()
	s.log.Debug("inserted", slog.String("id", n.ID), slog.String("type", string(t)), slog.String("parent", at.ParentID))
	s.notify(d)
	return n.ID, Applied
}

// InsertTree inserts ready-made nodes (for example from a content generator) at the placement,
// in order. Every node in the given subtrees receives a fresh id. Returns the new top-level ids.
func (s *Store) InsertTree(nodes []*domain.Node, at Placement) ([]string, Outcome) {
	if len(nodes) == 0 {
		return nil, NoChange
	}
	s.mu.Lock()
	copies := make([]*domain.Node, 0, len(nodes))
	var col *int
	for _, n := range nodes {
		if n == nil {
			s.mu.Unlock()
			return nil, RejectedInsert
		}
		c, out := s.placementLocked(n.Type, at, RejectedInsert)
		if out != Applied {
			s.mu.Unlock()
			return nil, out
		}
		col = c
		cp, err := s.freshCopy(n)
		if err != nil {
			s.mu.Unlock()
			s.log.Debug("insert tree rejected", slog.String("err", err.Error()))
			return nil, RejectedInsert
		}
		copies = append(copies, cp)
	}
	tx := s.begin()
	index := clampIndex(at.Index, len(tx.childrenOf(at.ParentID)))
	ids := make([]string, 0, len(copies))
	for i, cp := range copies {
		if col != nil {
			cp.Props = domain.WithColumn(cp.Props, col)
		}
		tx.attach(at.ParentID, index+i, cp)
		for _, ch := range cp.Children {
			tx.indexSubtree(ch, cp.ID)
		}
		ids = append(ids, cp.ID)
	}
	d := s.commitLocked(tx, "", nil)
	s.mu.Unlock()
	s.notify(d)
	return ids, Applied
}

// freshCopy deep-copies n assigning new ids and checks container rules on the way.
func (s *Store) freshCopy(n *domain.Node) (*domain.Node, error) {
	if !domain.IsKnown(n.Type) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBlockType, n.Type)
	}
	c := n.Clone()
	c.ID = s.newID()
	if c.Props == nil || c.Props.Type() != c.Type {
		c.Props = domain.DefaultProps(c.Type)
	}
	if len(n.Children) > 0 {
		spec, ok := domain.ContainerSpecFor(n.Type)
		if !ok {
			return nil, fmt.Errorf("%s cannot have children", n.Type)
		}
		for i, ch := range n.Children {
			if ch == nil || !spec.AcceptsType(ch.Type) {
				return nil, fmt.Errorf("child %d not accepted by %s", i, n.Type)
			}
			cc, err := s.freshCopy(ch)
			if err != nil {
				return nil, err
			}
			c.Children[i] = cc
		}
	} else if domain.IsContainer(c.Type) {
		c.Children = []*domain.Node{}
	}
	return c, nil
}

// Update applies a props patch. A nil value deletes the key.
func (s *Store) Update(id string, patch map[string]any) Outcome {
	s.mu.Lock()
	e, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return NotFound
	}
	props, err := domain.ApplyPropsPatch(e.node.Props, patch)
	if err != nil {
		s.mu.Unlock()
		s.log.Debug("props rejected", slog.String("id", id), slog.String("err", err.Error()))
		return InvalidProps
	}
	if domain.PropsEqual(props, e.node.Props) {
		s.mu.Unlock()
		return NoChange
	}
	n := e.node.ShallowCopy()
	n.Props = props
	tx := s.begin()
	tx.replace(n)
	d := s.commitLocked(tx, "props:"+id+":"+joinKeys(patch), nil)
	s.mu.Unlock()
	s.notify(d)
	return Applied
}

// UpdateStyle writes a style patch into the layer for mode. An empty value removes the key
// from that layer so the broader layer shows through again.
func (s *Store) UpdateStyle(id string, mode domain.DeviceMode, patch map[string]string) Outcome {
	mode, err := domain.ParseDeviceMode(string(mode))
	if err != nil {
		return OutOfRange
	}
	s.mu.Lock()
	e, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return NotFound
	}
	layer := e.node.Style.Layer(mode).Clone()
	if layer == nil {
		layer = domain.StyleMap{}
	}
	changed := false
	for k, v := range patch {
		old, had := layer[k]
		switch {
		case v == "" && had:
			delete(layer, k)
			changed = true
		case v != "" && (!had || old != v):
			layer[k] = v
			changed = true
		}
	}
	if !changed {
		s.mu.Unlock()
		return NoChange
	}
	n := e.node.ShallowCopy()
	n.Style = e.node.Style.WithLayer(mode, layer)
	tx := s.begin()
	tx.replace(n)
	keys := make(map[string]any, len(patch))
	for k := range patch {
		keys[k] = nil
	}
	d := s.commitLocked(tx, "style:"+id+":"+string(mode)+":"+joinKeys(keys), nil)
	s.mu.Unlock()
	s.notify(d)
	return Applied
}

// Move re-parents id to the placement. Moving a node into itself or one of its
// descendants yields CyclicMove; a parent that does not accept the node yields RejectedMove.
// The index is interpreted after the node has been removed from its current position.
func (s *Store) Move(id string, at Placement) Outcome {
	s.mu.Lock()
	e, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return NotFound
	}
	if at.ParentID != "" {
		if _, ok := s.index[at.ParentID]; !ok {
			s.mu.Unlock()
			return NotFound
		}
	}
	tx := s.begin()
	if at.ParentID != "" && tx.isAncestor(id, at.ParentID) {
		s.mu.Unlock()
		s.log.Debug("cyclic move rejected", slog.String("id", id), slog.String("parent", at.ParentID))
		return CyclicMove
	}
	col, out := s.placementLocked(e.node.Type, at, RejectedMove)
	if out != Applied {
		s.mu.Unlock()
		return out
	}
	slotted := false
	if pe, ok := s.index[at.ParentID]; ok {
		spec, _ := domain.ContainerSpecFor(pe.node.Type)
		slotted = spec.Slotted
	}
	n := retag(e.node, col, slotted)

	oldPos := indexOf(tx.childrenOf(e.parentID), id)
	if n == e.node && e.parentID == at.ParentID {
		remaining := len(tx.childrenOf(e.parentID)) - 1
		if clampIndex(at.Index, remaining) == oldPos {
			s.mu.Unlock()
			return NoChange
		}
	}
	tx.detach(id)
	tx.attach(at.ParentID, at.Index, n)
	d := s.commitLocked(tx, "", nil)
	s.mu.Unlock()
	s.log.Debug("moved", slog.String("id", id), slog.String("from", e.parentID), slog.String("to", at.ParentID))
	s.notify(d)
	return Applied
}

// ReorderRoots moves the root at from to position to.
func (s *Store) ReorderRoots(from, to int) Outcome {
	s.mu.Lock()
	n := len(s.doc.Roots)
	if from < 0 || from >= n || to < 0 || to >= n {
		s.mu.Unlock()
		return OutOfRange
	}
	if from == to {
		s.mu.Unlock()
		return NoChange
	}
	tx := s.begin()
	node := tx.roots[from]
	tx.detach(node.ID)
	tx.attach("", to, node)
	d := s.commitLocked(tx, "", nil)
	s.mu.Unlock()
	s.notify(d)
	return Applied
}

// Delete removes id with its subtree. A selection inside the subtree is cleared.
func (s *Store) Delete(id string) Outcome {
	s.mu.Lock()
	e, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return NotFound
	}
	tx := s.begin()
	clearSel := s.doc.SelectedID != "" && tx.isAncestor(id, s.doc.SelectedID)
	tx.detach(id)
	tx.dropSubtree(e.node)
	d := s.commitLocked(tx, "", func(d *domain.Document) {
		if clearSel {
			d.SelectedID = ""
		}
	})
	s.mu.Unlock()
	s.log.Debug("deleted", slog.String("id", id))
	s.notify(d)
	return Applied
}

// Duplicate deep-copies id with fresh ids and places the copy right after the original.
func (s *Store) Duplicate(id string) (string, Outcome) {
	s.mu.Lock()
	e, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return "", NotFound
	}
	cp, err := s.freshCopy(e.node)
	if err != nil {
		s.mu.Unlock()
		return "", RejectedInsert
	}
	tx := s.begin()
	pos := indexOf(tx.childrenOf(e.parentID), id)
	tx.attach(e.parentID, pos+1, cp)
	for _, ch := range cp.Children {
		tx.indexSubtree(ch, cp.ID)
	}
	d := s.commitLocked(tx, "", nil)
	s.mu.Unlock()
	s.notify(d)
	return cp.ID, Applied
}

var errDuplicateID = errors.New("duplicate node id")

// validateForest checks ids and container rules of a complete forest.
func validateForest(nodes []*domain.Node, seen map[string]bool) error {
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			return errors.New("node without id")
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: %q", errDuplicateID, n.ID)
		}
		seen[n.ID] = true
		if !domain.IsKnown(n.Type) {
			return fmt.Errorf("%w: %q", domain.ErrUnknownBlockType, n.Type)
		}
		if len(n.Children) > 0 {
			spec, ok := domain.ContainerSpecFor(n.Type)
			if !ok {
				return fmt.Errorf("%s %q cannot have children", n.Type, n.ID)
			}
			for _, ch := range n.Children {
				if ch != nil && !spec.AcceptsType(ch.Type) {
					return fmt.Errorf("%s %q does not accept %s", n.Type, n.ID, ch.Type)
				}
			}
		}
		if err := validateForest(n.Children, seen); err != nil {
			return err
		}
	}
	return nil
}

func normalize(nodes []*domain.Node) {
	for _, n := range nodes {
		if n.Props == nil || n.Props.Type() != n.Type {
			n.Props = domain.DefaultProps(n.Type)
		}
		if n.Children == nil && domain.IsContainer(n.Type) {
			n.Children = []*domain.Node{}
		}
		normalize(n.Children)
	}
}

// ReplaceAll swaps the whole forest atomically, e.g. when resolving a conflict or
// accepting generated content. It is recorded in history. Invalid forests are rejected.
func (s *Store) ReplaceAll(roots []*domain.Node) Outcome {
	if err := validateForest(roots, map[string]bool{}); err != nil {
		s.log.Debug("replace rejected", slog.String("err", err.Error()))
		return RejectedInsert
	}
	roots = domain.CloneNodes(roots)
	if roots == nil {
		roots = []*domain.Node{}
	}
	normalize(roots)
	s.mu.Lock()
	s.index = buildIndex(roots)
	tx := &txn{roots: roots, index: s.index}
	d := s.commitLocked(tx, "", func(d *domain.Document) {
		if _, ok := s.index[d.SelectedID]; !ok {
			d.SelectedID = ""
		}
	})
	s.mu.Unlock()
	s.notify(d)
	return Applied
}

// Load installs a persisted document without recording history; both stacks are cleared.
func (s *Store) Load(doc *domain.Document) error {
	if doc == nil {
		doc = domain.NewDocument()
	}
	if err := validateForest(doc.Roots, map[string]bool{}); err != nil {
		return err
	}
	next := doc.ShallowCopy()
	next.Roots = domain.CloneNodes(doc.Roots)
	if next.Roots == nil {
		next.Roots = []*domain.Node{}
	}
	normalize(next.Roots)
	if next.DeviceMode == "" {
		next.DeviceMode = domain.Desktop
	}
	s.mu.Lock()
	if next.Zoom == 0 {
		next.Zoom = 1
	}
	next.Zoom = s.clampZoom(next.Zoom)
	s.index = buildIndex(next.Roots)
	if _, ok := s.index[next.SelectedID]; !ok {
		next.SelectedID = ""
	}
	s.doc = next
	s.hist.Clear()
	s.mu.Unlock()
	s.notify(next)
	return nil
}

// Select sets the selection; an empty id clears it.
func (s *Store) Select(id string) Outcome {
	s.mu.Lock()
	if id != "" {
		if _, ok := s.index[id]; !ok {
			s.mu.Unlock()
			return NotFound
		}
	}
	if s.doc.SelectedID == id {
		s.mu.Unlock()
		return NoChange
	}
	d := s.sessionLocked(func(d *domain.Document) { d.SelectedID = id })
	s.mu.Unlock()
	s.notify(d)
	return Applied
}

func (s *Store) SetDeviceMode(mode domain.DeviceMode) Outcome {
	mode, err := domain.ParseDeviceMode(string(mode))
	if err != nil {
		return OutOfRange
	}
	s.mu.Lock()
	if s.doc.DeviceMode == mode {
		s.mu.Unlock()
		return NoChange
	}
	d := s.sessionLocked(func(d *domain.Document) { d.DeviceMode = mode })
	s.mu.Unlock()
	s.notify(d)
	return Applied
}

// SetZoom clamps z into the configured bounds.
func (s *Store) SetZoom(z float64) Outcome {
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return OutOfRange
	}
	s.mu.Lock()
	z = s.clampZoom(z)
	if s.doc.Zoom == z {
		s.mu.Unlock()
		return NoChange
	}
	d := s.sessionLocked(func(d *domain.Document) { d.Zoom = z })
	s.mu.Unlock()
	s.notify(d)
	return Applied
}

func (s *Store) clampZoom(z float64) float64 { return math.Max(s.minZoom, math.Min(s.maxZoom, z)) }

// Undo restores the forest from before the last recorded command. Device mode and zoom
// stay as they are; a selection that no longer exists is cleared.
func (s *Store) Undo() bool { return s.swap(s.hist.Undo) }

// Redo re-applies the last undone command.
func (s *Store) Redo() bool { return s.swap(s.hist.Redo) }

func (s *Store) swap(step func(*domain.Document) (*domain.Document, bool)) bool {
	s.mu.Lock()
	cur := s.doc
	target, ok := step(cur)
	if !ok {
		s.mu.Unlock()
		return false
	}
	next := cur.ShallowCopy()
	next.Roots = target.Roots
	s.index = buildIndex(next.Roots)
	if _, ok := s.index[next.SelectedID]; !ok {
		next.SelectedID = ""
	}
	s.doc = next
	s.mu.Unlock()
	s.notify(next)
	return true
}

// retag applies the slot tag for the destination. Leaving a slotted container drops the tag.
func retag(n *domain.Node, col *int, slotted bool) *domain.Node {
	cur, tagged := domain.ColumnOf(n.Props)
	switch {
	case slotted && col != nil:
		if tagged && cur == *col {
			return n
		}
	case !slotted && tagged:
		col = nil
	default:
		return n
	}
	c := n.ShallowCopy()
	c.Props = domain.WithColumn(n.Props, col)
	return c
}

func joinKeys(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
