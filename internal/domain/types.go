/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"fmt"
	"strings"
)

// This file defines the page document model: an ordered forest of block nodes
// plus the editor session state that travels with it.
//
// Nodes are treated as immutable values once they are reachable from a published
// Document. Mutations build new nodes along the changed path and share the rest.

// DeviceMode selects the preview width and the style cascade depth.
type DeviceMode string

const (
	Desktop DeviceMode = "desktop"
	Tablet  DeviceMode = "tablet"
	Mobile  DeviceMode = "mobile"
)

// ParseDeviceMode accepts desktop, tablet or mobile (case-insensitive).
func ParseDeviceMode(s string) (DeviceMode, error) {
	switch DeviceMode(strings.ToLower(strings.TrimSpace(s))) {
	case Desktop:
		return Desktop, nil
	case Tablet:
		return Tablet, nil
	case Mobile:
		return Mobile, nil
	}
	return "", fmt.Errorf("unknown device mode %q", s)
}

// StyleMap is a partial CSS-like property map (camelCase keys, string values).
type StyleMap map[string]string

// Clone returns an independent copy; nil stays nil.
func (m StyleMap) Clone() StyleMap {
	if m == nil {
		return nil
	}
	c := make(StyleMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Style holds the base layer and the optional breakpoint override layers.
// Override layers only contain keys the user explicitly set.
type Style struct {
	Base   StyleMap
	Tablet StyleMap
	Mobile StyleMap
}

// Clone deep-copies all layers.
func (s Style) Clone() Style {
	return Style{Base: s.Base.Clone(), Tablet: s.Tablet.Clone(), Mobile: s.Mobile.Clone()}
}

// Layer returns the layer written by edits made in the given mode.
func (s Style) Layer(mode DeviceMode) StyleMap {
	switch mode {
	case Tablet:
		return s.Tablet
	case Mobile:
		return s.Mobile
	default:
		return s.Base
	}
}

// WithLayer returns a copy of s with the layer for mode replaced. Empty layers are stored as nil.
func (s Style) WithLayer(mode DeviceMode, layer StyleMap) Style {
	if len(layer) == 0 {
		layer = nil
	}
	out := s
	switch mode {
	case Tablet:
		out.Tablet = layer
	case Mobile:
		out.Mobile = layer
	default:
		out.Base = layer
	}
	return out
}

// Node is one block instance. Children are exclusively owned by their parent.
type Node struct {
	ID       string
	Type     BlockType
	Props    Props
	Style    Style
	Children []*Node
}

// ShallowCopy returns a new Node sharing Props, Style maps and the Children slice.
// Callers replace whatever they change.
func (n *Node) ShallowCopy() *Node {
	c := *n
	return &c
}

// Clone deep-copies the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{ID: n.ID, Type: n.Type, Style: n.Style.Clone()}
	if n.Props != nil {
		c.Props = n.Props.clone()
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.Clone()
		}
	}
	return c
}

// Walk visits n and its descendants depth-first, pre-order. Returning false skips the subtree.
func Walk(nodes []*Node, fn func(n *Node, parent *Node) bool) {
	var visit func(list []*Node, parent *Node)
	visit = func(list []*Node, parent *Node) {
		for _, n := range list {
			if fn(n, parent) {
				visit(n.Children, n)
			}
		}
	}
	visit(nodes, nil)
}

// CloneNodes deep-copies a node list.
func CloneNodes(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// Document is the page plus editor session state.
// SelectedID is a lookup key only; it never owns a node.
type Document struct {
	Roots      []*Node
	SelectedID string
	DeviceMode DeviceMode
	Zoom       float64
}

// NewDocument returns an empty desktop document at 100% zoom.
func NewDocument() *Document {
	return &Document{Roots: []*Node{}, DeviceMode: Desktop, Zoom: 1}
}

// ShallowCopy copies the Document header; Roots is shared until replaced.
func (d *Document) ShallowCopy() *Document {
	c := *d
	return &c
}

// Count returns the number of nodes in the document.
func (d *Document) Count() int {
	n := 0
	Walk(d.Roots, func(*Node, *Node) bool { n++; return true })
	return n
}
