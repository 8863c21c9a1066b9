/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package dnd turns drag sessions into tree commands.
//
// Views report what is dragged (a palette type or an existing node) and, on
// drop, what it landed on plus the drop-zone metadata of that region. Decide
// maps the pair to at most one command using a fixed priority list:
// container drops are checked before root reordering, and type acceptance
// is checked before any command is attempted.
package dnd

import (
	"log/slog"
	"sync"

	"pagebuilder/internal/domain"
	plog "pagebuilder/internal/log"
	"pagebuilder/internal/tree"
)

// RootCanvasID is the drop target id of the page canvas itself.
const RootCanvasID = "canvas"

// Source is what a drag session carries: a palette type or an existing node id.
type Source struct {
	InsertType domain.BlockType
	NodeID     string
}

func Palette(t domain.BlockType) Source { return Source{InsertType: t} }
func Existing(id string) Source         { return Source{NodeID: id} }

// DropZone is the metadata a container view registers for a droppable region.
type DropZone struct {
	ParentID string
	Accepts  []domain.BlockType
	Index    int
	Column   *int
}

func (z *DropZone) accepts(t domain.BlockType) bool {
	for _, a := range z.Accepts {
		if a == t {
			return true
		}
	}
	return false
}

// ZoneFor builds the drop zone a container exposes, using its container rules.
func ZoneFor(n *domain.Node, index int, column *int) *DropZone {
	spec, ok := domain.ContainerSpecFor(n.Type)
	if !ok {
		return nil
	}
	return &DropZone{ParentID: n.ID, Accepts: spec.AcceptedTypes(), Index: index, Column: column}
}

// Target is what the pointer was released over. ID is the dropped-on element id
// ("" for nothing); Zone is present only for container drop regions.
type Target struct {
	ID   string
	Zone *DropZone
}

// Action is the command a drop resolves to.
type Action int

const (
	None Action = iota
	InsertInto
	InsertAtRoot
	MoveInto
	Reorder
)

func (a Action) String() string {
	switch a {
	case InsertInto:
		return "insert-into"
	case InsertAtRoot:
		return "insert-at-root"
	case MoveInto:
		return "move-into"
	case Reorder:
		return "reorder-roots"
	}
	return "none"
}

// Intent is the decided command. Reason explains a None.
type Intent struct {
	Action   Action
	Type     domain.BlockType
	NodeID   string
	ParentID string
	Index    int
	Column   *int
	From, To int
	Reason   string
}

// Reader is the lookup surface Decide needs.
type Reader interface {
	Node(id string) (*domain.Node, bool)
	RootIndex(id string) int
}

// Mutator is the command surface End applies intents through. *tree.Store satisfies it.
type Mutator interface {
	Reader
	Insert(t domain.BlockType, at tree.Placement) (string, tree.Outcome)
	Move(id string, at tree.Placement) tree.Outcome
	ReorderRoots(from, to int) tree.Outcome
}

func none(reason string) Intent { return Intent{Action: None, Reason: reason} }

// Decide resolves a drop without side effects.
func Decide(r Reader, src Source, tgt Target) Intent {
	if tgt.ID == "" && tgt.Zone == nil {
		return none("no drop target")
	}
	if src.InsertType != "" {
		if tgt.Zone != nil && tgt.Zone.accepts(src.InsertType) {
			return Intent{Action: InsertInto, Type: src.InsertType, ParentID: tgt.Zone.ParentID, Index: tgt.Zone.Index, Column: tgt.Zone.Column}
		}
		if tgt.ID == RootCanvasID {
			return Intent{Action: InsertAtRoot, Type: src.InsertType, Index: -1}
		}
		return none("palette type not accepted here")
	}
	if src.NodeID == "" {
		return none("empty drag source")
	}
	n, ok := r.Node(src.NodeID)
	if !ok {
		return none("dragged node no longer exists")
	}
	if tgt.Zone != nil && tgt.Zone.accepts(n.Type) {
		return Intent{Action: MoveInto, Type: n.Type, NodeID: n.ID, ParentID: tgt.Zone.ParentID, Index: tgt.Zone.Index, Column: tgt.Zone.Column}
	}
	if tgt.ID != "" && tgt.ID != src.NodeID {
		from, to := r.RootIndex(src.NodeID), r.RootIndex(tgt.ID)
		if from >= 0 && to >= 0 {
			return Intent{Action: Reorder, NodeID: n.ID, From: from, To: to}
		}
	}
	return none("no applicable command")
}

// Result is what a finished drag did.
type Result struct {
	Intent  Intent
	Outcome tree.Outcome
	NewID   string
}

// Interpreter runs one drag session at a time.
type Interpreter struct {
	m      Mutator
	log    *slog.Logger
	mu     sync.Mutex
	active *Source
}

func NewInterpreter(m Mutator, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = plog.WithComponent("dnd")
	}
	return &Interpreter{m: m, log: logger}
}

// Start begins a session, replacing any previous one.
func (in *Interpreter) Start(src Source) {
	in.mu.Lock()
	defer in.mu.Unlock()
	s := src
	in.active = &s
}

// Active reports the current drag source, if any.
func (in *Interpreter) Active() (Source, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.active == nil {
		return Source{}, false
	}
	return *in.active, true
}

// Over returns the intent a drop here would have, for visual feedback only.
func (in *Interpreter) Over(tgt Target) Intent {
	src, ok := in.Active()
	if !ok {
		return none("no drag in progress")
	}
	return Decide(in.m, src, tgt)
}

// Cancel ends the session without a command.
func (in *Interpreter) Cancel() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.active = nil
}

// End finishes the session and applies the decided command. No-ops are logged at debug level only.
func (in *Interpreter) End(tgt Target) Result {
	in.mu.Lock()
	src := in.active
	in.active = nil
	in.mu.Unlock()
	if src == nil {
		return Result{Intent: none("no drag in progress"), Outcome: tree.NoChange}
	}
	it := Decide(in.m, *src, tgt)
	res := Result{Intent: it, Outcome: tree.NoChange}
	switch it.Action {
	case InsertInto:
		res.NewID, res.Outcome = in.m.Insert(it.Type, tree.Placement{ParentID: it.ParentID, Index: it.Index, Column: it.Column})
	case InsertAtRoot:
		res.NewID, res.Outcome = in.m.Insert(it.Type, tree.AtRoot(-1))
	case MoveInto:
		res.Outcome = in.m.Move(it.NodeID, tree.Placement{ParentID: it.ParentID, Index: it.Index, Column: it.Column})
	case Reorder:
		res.Outcome = in.m.ReorderRoots(it.From, it.To)
	default:
		in.log.Debug("drop ignored", slog.String("reason", it.Reason), slog.String("target", tgt.ID))
		return res
	}
	if res.Outcome != tree.Applied {
		in.log.Debug("drop rejected", slog.String("action", it.Action.String()), slog.String("outcome", res.Outcome.String()))
	}
	return res
}
