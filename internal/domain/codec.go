/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Persisted node record:
//
//	{ "id", "type", "props": {...}, "style": { "base", "tablet"?, "mobile"? }, "children": [...] }
//
// A page snapshot is a JSON array of root records.

type styleRecord struct {
	Base   StyleMap `json:"base"`
	Tablet StyleMap `json:"tablet,omitempty"`
	Mobile StyleMap `json:"mobile,omitempty"`
}

type nodeRecord struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Props    map[string]any  `json:"props"`
	Style    styleRecord     `json:"style"`
	Children json.RawMessage `json:"children,omitempty"`
}

// MarshalJSON writes the persisted node record.
func (n *Node) MarshalJSON() ([]byte, error) {
	base := n.Style.Base
	if base == nil {
		base = StyleMap{}
	}
	children := n.Children
	if children == nil {
		children = []*Node{}
	}
	kids, err := json.Marshal(children)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeRecord{
		ID:       n.ID,
		Type:     string(n.Type),
		Props:    PropsToMap(n.Props),
		Style:    styleRecord{Base: base, Tablet: n.Style.Tablet, Mobile: n.Style.Mobile},
		Children: kids,
	})
}

// UnmarshalJSON reads a persisted node record. Legacy type names are migrated.
func (n *Node) UnmarshalJSON(data []byte) error {
	var rec nodeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	if rec.ID == "" {
		return errors.New("node without id")
	}
	t, err := ParseBlockType(rec.Type)
	if err != nil {
		return fmt.Errorf("node %s: %w", rec.ID, err)
	}
	props, err := PropsFromMap(t, rec.Props)
	if err != nil {
		return fmt.Errorf("node %s: %w", rec.ID, err)
	}
	var children []*Node
	if len(rec.Children) > 0 && !bytes.Equal(bytes.TrimSpace(rec.Children), []byte("null")) {
		if err := json.Unmarshal(rec.Children, &children); err != nil {
			return err
		}
	}
	if len(children) > 0 && !IsContainer(t) {
		return fmt.Errorf("node %s: %s cannot have children", rec.ID, t)
	}
	if children == nil && IsContainer(t) {
		children = []*Node{}
	}
	base := rec.Style.Base
	if base == nil {
		base = StyleMap{}
	}
	*n = Node{
		ID:       rec.ID,
		Type:     t,
		Props:    props,
		Style:    Style{Base: base}.WithLayer(Tablet, rec.Style.Tablet).WithLayer(Mobile, rec.Style.Mobile),
		Children: children,
	}
	return nil
}

// MarshalRoots serializes the root list as a JSON array.
func MarshalRoots(roots []*Node) ([]byte, error) {
	if roots == nil {
		roots = []*Node{}
	}
	return json.Marshal(roots)
}

// UnmarshalRoots parses a JSON array of root records and checks id uniqueness.
func UnmarshalRoots(data []byte) ([]*Node, error) {
	var roots []*Node
	if err := json.Unmarshal(data, &roots); err != nil {
		return nil, err
	}
	if roots == nil {
		roots = []*Node{}
	}
	if err := checkForest(roots, map[string]bool{}); err != nil {
		return nil, err
	}
	return roots, nil
}

func checkForest(nodes []*Node, seen map[string]bool) error {
	for _, n := range nodes {
		if n == nil {
			return errors.New("null node record")
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		seen[n.ID] = true
		if err := checkForest(n.Children, seen); err != nil {
			return err
		}
	}
	return nil
}
