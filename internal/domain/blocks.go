/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// BlockType is the closed vocabulary of block kinds.
type BlockType string

const (
	Button    BlockType = "Button"
	Text      BlockType = "Text"
	Heading   BlockType = "Heading"
	Image     BlockType = "Image"
	Input     BlockType = "Input"
	Container BlockType = "Container"
	Section   BlockType = "Section"
	Grid      BlockType = "Grid"
	Card      BlockType = "Card"
	Form      BlockType = "Form"
	Columns   BlockType = "Columns"
)

var ErrUnknownBlockType = errors.New("unknown block type")

// BlockTypes lists every known type in palette order.
func BlockTypes() []BlockType {
	return []BlockType{Button, Text, Heading, Image, Input, Container, Section, Grid, Card, Form, Columns}
}

// legacyTypes maps lowercase type names written by older page snapshots.
var legacyTypes = map[string]BlockType{
	"hero":   Section,
	"text":   Text,
	"image":  Image,
	"button": Button,
	"form":   Form,
}

// ParseBlockType resolves a type name, including legacy lowercase names.
func ParseBlockType(s string) (BlockType, error) {
	for _, t := range BlockTypes() {
		if string(t) == s {
			return t, nil
		}
	}
	if t, ok := legacyTypes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBlockType, s)
}

// IsLegacyType reports whether s is an old lowercase type name.
func IsLegacyType(s string) bool {
	_, ok := legacyTypes[s]
	return ok
}

// ContainerSpec describes which child types a container accepts.
// Slotted containers place children into numbered columns via CommonProps.ColumnIndex.
type ContainerSpec struct {
	Accepts map[BlockType]bool
	Slotted bool
}

// AcceptsType reports whether t may be placed inside the container.
func (c ContainerSpec) AcceptsType(t BlockType) bool { return c.Accepts[t] }

// AcceptedTypes returns the accepted set sorted by name.
func (c ContainerSpec) AcceptedTypes() []BlockType {
	out := make([]BlockType, 0, len(c.Accepts))
	for t := range c.Accepts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func acceptAllExcept(except ...BlockType) map[BlockType]bool {
	m := map[BlockType]bool{}
	for _, t := range BlockTypes() {
		m[t] = true
	}
	for _, t := range except {
		delete(m, t)
	}
	return m
}

func acceptOnly(types ...BlockType) map[BlockType]bool {
	m := map[BlockType]bool{}
	for _, t := range types {
		m[t] = true
	}
	return m
}

var containers = map[BlockType]ContainerSpec{
	Container: {Accepts: acceptAllExcept()},
	Section:   {Accepts: acceptAllExcept()},
	Card:      {Accepts: acceptAllExcept()},
	Form:      {Accepts: acceptOnly(Input, Button, Text, Heading, Container)},
	Grid:      {Accepts: acceptAllExcept(Section), Slotted: true},
	Columns:   {Accepts: acceptAllExcept(Section, Columns), Slotted: true},
}

// ContainerSpecFor returns the child rules for container types; ok is false for leaf types.
func ContainerSpecFor(t BlockType) (ContainerSpec, bool) {
	c, ok := containers[t]
	return c, ok
}

// IsContainer reports whether nodes of type t may have children.
func IsContainer(t BlockType) bool {
	_, ok := containers[t]
	return ok
}

// NewNode returns a node of type t with its default props and base style.
func NewNode(t BlockType, id string) *Node {
	n := &Node{ID: id, Type: t, Props: defaultProps(t), Style: Style{Base: defaultStyle(t)}}
	if IsContainer(t) {
		n.Children = []*Node{}
	}
	return n
}

// DefaultProps returns the palette defaults for t.
func DefaultProps(t BlockType) Props { return defaultProps(t) }

// IsKnown reports whether t belongs to the block vocabulary.
func IsKnown(t BlockType) bool {
	for _, k := range BlockTypes() {
		if k == t {
			return true
		}
	}
	return false
}

// SlotCount returns the number of columns a slotted container exposes.
func SlotCount(n *Node) int {
	switch p := n.Props.(type) {
	case *GridProps:
		return p.Columns
	case *ColumnsProps:
		return p.Count
	}
	return 0
}

func defaultProps(t BlockType) Props {
	switch t {
	case Button:
		return &ButtonProps{Text: "Click Me", Variant: "default"}
	case Text:
		return &TextProps{Text: "Edit this text"}
	case Heading:
		return &HeadingProps{Text: "Heading", Level: "h2"}
	case Image:
		return &ImageProps{Src: "https://via.placeholder.com/400x300", Alt: "Placeholder image"}
	case Input:
		return &InputProps{InputType: "text", Placeholder: "Enter text..."}
	case Grid:
		return &GridProps{Columns: 3}
	case Columns:
		return &ColumnsProps{Count: 2}
	}
	return emptyProps(t)
}

func defaultStyle(t BlockType) StyleMap {
	switch t {
	case Button:
		return StyleMap{"padding": "0.5rem 1rem", "backgroundColor": "#000000", "color": "#ffffff", "borderRadius": "0.375rem", "cursor": "pointer", "border": "none", "fontSize": "0.875rem", "fontWeight": "500"}
	case Text:
		return StyleMap{"fontSize": "1rem", "lineHeight": "1.5", "color": "#000000"}
	case Heading:
		return StyleMap{"fontSize": "1.875rem", "fontWeight": "700", "lineHeight": "1.2", "color": "#000000", "marginBottom": "1rem"}
	case Image:
		return StyleMap{"width": "100%", "height": "auto", "borderRadius": "0.5rem"}
	case Input:
		return StyleMap{"width": "100%", "padding": "0.5rem", "border": "1px solid #e2e8f0", "borderRadius": "0.375rem", "fontSize": "0.875rem"}
	case Container:
		return StyleMap{"display": "flex", "flexDirection": "column", "gap": "1rem", "padding": "1rem", "border": "1px dashed #e2e8f0", "borderRadius": "0.5rem", "minHeight": "100px"}
	case Section:
		return StyleMap{"display": "flex", "flexDirection": "column", "padding": "2rem", "backgroundColor": "#ffffff", "minHeight": "200px"}
	case Grid:
		return StyleMap{"display": "grid", "gridTemplateColumns": "repeat(3, 1fr)", "gap": "1rem", "padding": "1rem", "minHeight": "150px"}
	case Card:
		return StyleMap{"backgroundColor": "#ffffff", "border": "1px solid #e2e8f0", "borderRadius": "0.5rem", "padding": "1.5rem", "boxShadow": "0 1px 3px 0 rgb(0 0 0 / 0.1)"}
	case Form:
		return StyleMap{"display": "flex", "flexDirection": "column", "gap": "1rem", "padding": "1rem", "minHeight": "150px"}
	case Columns:
		return StyleMap{"display": "grid", "gridTemplateColumns": "repeat(2, 1fr)", "gap": "1rem"}
	}
	return StyleMap{}
}
