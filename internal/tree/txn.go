/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package tree

import "pagebuilder/internal/domain"

// entry is one arena slot: the live node for an id and the id of its parent ("" for roots).
type entry struct {
	node     *domain.Node
	parentID string
}

// txn path-copies the forest. Every write replaces the touched node and its
// ancestors with fresh copies and keeps the arena index pointing at them.
// Untouched subtrees are shared with the previous document.
type txn struct {
	roots []*domain.Node
	index map[string]entry
}

func (tx *txn) childrenOf(parentID string) []*domain.Node {
	if parentID == "" {
		return tx.roots
	}
	return tx.index[parentID].node.Children
}

// setChildren installs a new child list for parentID and copies the path above it.
func (tx *txn) setChildren(parentID string, children []*domain.Node) {
	if parentID == "" {
		tx.roots = children
		return
	}
	p := tx.index[parentID].node.ShallowCopy()
	p.Children = children
	tx.replace(p)
}

// replace swaps in n for the node with the same id.
func (tx *txn) replace(n *domain.Node) {
	e := tx.index[n.ID]
	siblings := tx.childrenOf(e.parentID)
	out := make([]*domain.Node, len(siblings))
	copy(out, siblings)
	for i, s := range out {
		if s.ID == n.ID {
			out[i] = n
			break
		}
	}
	tx.index[n.ID] = entry{node: n, parentID: e.parentID}
	tx.setChildren(e.parentID, out)
}

// detach removes id from its parent's list and returns the position it had.
// Index entries for the subtree are kept; callers drop them or re-attach.
func (tx *txn) detach(id string) int {
	e := tx.index[id]
	siblings := tx.childrenOf(e.parentID)
	pos := indexOf(siblings, id)
	out := make([]*domain.Node, 0, len(siblings)-1)
	out = append(out, siblings[:pos]...)
	out = append(out, siblings[pos+1:]...)
	tx.setChildren(e.parentID, out)
	return pos
}

// attach inserts n (whose subtree is already indexed or gets indexed here) at index in parentID.
func (tx *txn) attach(parentID string, index int, n *domain.Node) {
	siblings := tx.childrenOf(parentID)
	index = clampIndex(index, len(siblings))
	out := make([]*domain.Node, 0, len(siblings)+1)
	out = append(out, siblings[:index]...)
	out = append(out, n)
	out = append(out, siblings[index:]...)
	tx.index[n.ID] = entry{node: n, parentID: parentID}
	tx.setChildren(parentID, out)
}

func (tx *txn) indexSubtree(n *domain.Node, parentID string) {
	tx.index[n.ID] = entry{node: n, parentID: parentID}
	for _, c := range n.Children {
		tx.indexSubtree(c, n.ID)
	}
}

func (tx *txn) dropSubtree(n *domain.Node) {
	delete(tx.index, n.ID)
	for _, c := range n.Children {
		tx.dropSubtree(c)
	}
}

// isAncestor reports whether anc is id itself or one of its ancestors. It follows
// parent links, so the cost is the depth of id.
func (tx *txn) isAncestor(anc, id string) bool {
	for cur := id; cur != ""; cur = tx.index[cur].parentID {
		if cur == anc {
			return true
		}
	}
	return false
}

func buildIndex(roots []*domain.Node) map[string]entry {
	idx := make(map[string]entry)
	tx := &txn{index: idx}
	for _, r := range roots {
		tx.indexSubtree(r, "")
	}
	return idx
}

func indexOf(list []*domain.Node, id string) int {
	for i, n := range list {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func clampIndex(i, n int) int {
	if i < 0 || i > n {
		return n
	}
	return i
}
