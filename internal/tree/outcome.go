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

// Outcome is the result of a store command. Rejections are expected results of
// user gestures and leave the document untouched.
type Outcome int

const (
	Applied Outcome = iota
	NotFound
	RejectedInsert
	CyclicMove
	RejectedMove
	OutOfRange
	InvalidProps
	NoChange
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NotFound:
		return "not-found"
	case RejectedInsert:
		return "rejected-insert"
	case CyclicMove:
		return "cyclic-move"
	case RejectedMove:
		return "rejected-move"
	case OutOfRange:
		return "out-of-range"
	case InvalidProps:
		return "invalid-props"
	case NoChange:
		return "no-change"
	}
	return "unknown"
}

// OK reports whether the command changed the document.
func (o Outcome) OK() bool { return o == Applied }

// Placement addresses a position in the forest. An empty ParentID means the root list.
// Index -1 (or anything past the end) appends. Column tags the node when the parent is slotted.
type Placement struct {
	ParentID string
	Index    int
	Column   *int
}

// AtRoot places at the given root index.
func AtRoot(index int) Placement { return Placement{Index: index} }

// Inside places as the index-th child of parentID.
func Inside(parentID string, index int) Placement { return Placement{ParentID: parentID, Index: index} }

// InColumn places into a slot of a slotted container.
func InColumn(parentID string, index, column int) Placement {
	return Placement{ParentID: parentID, Index: index, Column: &column}
}
