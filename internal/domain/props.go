/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// MaxCustomProps bounds the free-form escape hatch per node.
const MaxCustomProps = 32

var (
	ErrTooManyCustomProps = errors.New("too many custom props")
	ErrInvalidProps       = errors.New("invalid props")
)

// Props is the per-type property record. The set of implementations is closed.
type Props interface {
	Type() BlockType
	common() *CommonProps
	clone() Props
}

// CommonProps are shared by every block type.
// Custom holds keys the typed record does not know; they persist at the top level of props.
type CommonProps struct {
	ColumnIndex   *int           `json:"columnIndex,omitempty"`
	HideOnDesktop bool           `json:"hideOnDesktop,omitempty"`
	HideOnTablet  bool           `json:"hideOnTablet,omitempty"`
	HideOnMobile  bool           `json:"hideOnMobile,omitempty"`
	Custom        map[string]any `json:"-"`
}

func (c CommonProps) cloneCommon() CommonProps {
	out := c
	if c.ColumnIndex != nil {
		v := *c.ColumnIndex
		out.ColumnIndex = &v
	}
	if c.Custom != nil {
		out.Custom = make(map[string]any, len(c.Custom))
		for k, v := range c.Custom {
			out.Custom[k] = cloneValue(v)
		}
	}
	return out
}

type ButtonProps struct {
	CommonProps
	Text    string `json:"text"`
	Variant string `json:"variant,omitempty"`
	Href    string `json:"href,omitempty"`
	Size    string `json:"size,omitempty"`
}

type TextProps struct {
	CommonProps
	Text string `json:"text"`
}

type HeadingProps struct {
	CommonProps
	Text  string `json:"text"`
	Level string `json:"variant,omitempty"` // h1..h6
}

type ImageProps struct {
	CommonProps
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

type InputProps struct {
	CommonProps
	Name        string `json:"name,omitempty"`
	InputType   string `json:"type,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

type ContainerProps struct{ CommonProps }

type SectionProps struct{ CommonProps }

type CardProps struct{ CommonProps }

type FormProps struct {
	CommonProps
	Action string `json:"action,omitempty"`
	Method string `json:"method,omitempty"`
}

type GridProps struct {
	CommonProps
	Columns int `json:"columns"`
}

type ColumnsProps struct {
	CommonProps
	Count int `json:"count"`
}

func (p *ButtonProps) Type() BlockType    { return Button }
func (p *TextProps) Type() BlockType      { return Text }
func (p *HeadingProps) Type() BlockType   { return Heading }
func (p *ImageProps) Type() BlockType     { return Image }
func (p *InputProps) Type() BlockType     { return Input }
func (p *ContainerProps) Type() BlockType { return Container }
func (p *SectionProps) Type() BlockType   { return Section }
func (p *CardProps) Type() BlockType      { return Card }
func (p *FormProps) Type() BlockType      { return Form }
func (p *GridProps) Type() BlockType      { return Grid }
func (p *ColumnsProps) Type() BlockType   { return Columns }

func (c *CommonProps) common() *CommonProps { return c }

func (p *ButtonProps) clone() Props {
	c := *p
	c.CommonProps = p.cloneCommon()
	return &c
}

func (p *TextProps) clone() Props {
	c := *p
	c.CommonProps = p.cloneCommon()
	return &c
}

func (p *HeadingProps) clone() Props {
	c := *p
	c.CommonProps = p.cloneCommon()
	return &c
}

func (p *ImageProps) clone() Props {
	c := *p
	c.CommonProps = p.cloneCommon()
	return &c
}

func (p *InputProps) clone() Props {
	c := *p
	c.CommonProps = p.cloneCommon()
	return &c
}

func (p *ContainerProps) clone() Props { return &ContainerProps{p.cloneCommon()} }
func (p *SectionProps) clone() Props   { return &SectionProps{p.cloneCommon()} }
func (p *CardProps) clone() Props      { return &CardProps{p.cloneCommon()} }

func (p *FormProps) clone() Props {
	c := *p
	c.CommonProps = p.cloneCommon()
	return &c
}

func (p *GridProps) clone() Props {
	c := *p
	c.CommonProps = p.cloneCommon()
	return &c
}

func (p *ColumnsProps) clone() Props {
	c := *p
	c.CommonProps = p.cloneCommon()
	return &c
}

func (p *HeadingProps) validate() error {
	switch p.Level {
	case "", "h1", "h2", "h3", "h4", "h5", "h6":
		return nil
	}
	return fmt.Errorf("heading variant %q", p.Level)
}

func (p *GridProps) validate() error {
	if p.Columns < 1 || p.Columns > 12 {
		return fmt.Errorf("grid columns %d out of range 1..12", p.Columns)
	}
	return nil
}

func (p *ColumnsProps) validate() error {
	if p.Count < 1 || p.Count > 6 {
		return fmt.Errorf("column count %d out of range 1..6", p.Count)
	}
	return nil
}

type validator interface{ validate() error }

func emptyProps(t BlockType) Props {
	switch t {
	case Button:
		return &ButtonProps{}
	case Text:
		return &TextProps{}
	case Heading:
		return &HeadingProps{}
	case Image:
		return &ImageProps{}
	case Input:
		return &InputProps{}
	case Container:
		return &ContainerProps{}
	case Section:
		return &SectionProps{}
	case Card:
		return &CardProps{}
	case Form:
		return &FormProps{}
	case Grid:
		return &GridProps{}
	case Columns:
		return &ColumnsProps{}
	}
	return &TextProps{}
}

// CommonOf returns a copy of the shared props.
func CommonOf(p Props) CommonProps { return p.common().cloneCommon() }

// ColumnOf returns the slot index a node was tagged with.
func ColumnOf(p Props) (int, bool) {
	if p == nil || p.common().ColumnIndex == nil {
		return 0, false
	}
	return *p.common().ColumnIndex, true
}

// WithColumn returns a copy of p tagged with the given slot; nil removes the tag.
func WithColumn(p Props, col *int) Props {
	c := p.clone()
	if col == nil {
		c.common().ColumnIndex = nil
	} else {
		v := *col
		c.common().ColumnIndex = &v
	}
	return c
}

// PropsToMap flattens a record into the persisted key/value form, custom keys included.
func PropsToMap(p Props) map[string]any {
	m := map[string]any{}
	if p == nil {
		return m
	}
	data, err := json.Marshal(p)
	if err == nil {
		_ = json.Unmarshal(data, &m)
	}
	for k, v := range p.common().Custom {
		if _, known := m[k]; !known {
			m[k] = cloneValue(v)
		}
	}
	return m
}

// PropsFromMap decodes a persisted props object into the record for t.
// Values must already have the field's type; unknown keys land in Custom,
// subject to MaxCustomProps.
func PropsFromMap(t BlockType, m map[string]any) (Props, error) {
	return decodeProps(t, m, false)
}

// wholeNumbers rejects fractional numbers headed for integer fields.
func wholeNumbers(from, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return data, nil
	}
	switch from.Kind() {
	case reflect.Float32, reflect.Float64:
		f := reflect.ValueOf(data).Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("%v is not a whole number", f)
		}
	}
	return data, nil
}

// decodeProps fills the record for t from m. weak allows string/number/bool
// coercion, which only patch input needs.
func decodeProps(t BlockType, m map[string]any, weak bool) (Props, error) {
	p := emptyProps(t)
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Squash:           true,
		WeaklyTypedInput: weak,
		DecodeHook:       wholeNumbers,
		Metadata:         &md,
		Result:           p,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProps, t, err)
	}
	if len(md.Unused) > MaxCustomProps {
		return nil, fmt.Errorf("%w: %d keys (max %d)", ErrTooManyCustomProps, len(md.Unused), MaxCustomProps)
	}
	if len(md.Unused) > 0 {
		custom := make(map[string]any, len(md.Unused))
		for _, k := range md.Unused {
			custom[k] = canonicalValue(m[k])
		}
		p.common().Custom = custom
	}
	if c := p.common().ColumnIndex; c != nil && *c < 0 {
		return nil, fmt.Errorf("%w: negative columnIndex %d", ErrInvalidProps, *c)
	}
	if v, ok := p.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidProps, err)
		}
	}
	return p, nil
}

// ApplyPropsPatch overlays patch onto p and returns a new record. A nil value deletes the key.
func ApplyPropsPatch(p Props, patch map[string]any) (Props, error) {
	m := PropsToMap(p)
	for k, v := range patch {
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = v
	}
	return decodeProps(p.Type(), m, true)
}

// PropsEqual compares two records by their persisted form.
func PropsEqual(a, b Props) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Type() == b.Type() && reflect.DeepEqual(PropsToMap(a), PropsToMap(b))
}

// canonicalValue normalises a custom value to what a JSON round trip would produce.
func canonicalValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = cloneValue(x)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, x := range t {
			s[i] = cloneValue(x)
		}
		return s
	default:
		return v
	}
}
