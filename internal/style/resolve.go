/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package style computes effective block styles per device mode.
//
// The cascade is per key: tablet overrides base, mobile overrides tablet.
// A key missing from a narrower layer falls through to the broader one.
package style

import (
	"sort"

	"pagebuilder/internal/domain"
)

// Resolve returns the effective style of n under mode. The result is a fresh map.
func Resolve(n *domain.Node, mode domain.DeviceMode) domain.StyleMap {
	if n == nil {
		return domain.StyleMap{}
	}
	return Cascade(n.Style, mode)
}

// Cascade applies the override layers of s that are active for mode.
func Cascade(s domain.Style, mode domain.DeviceMode) domain.StyleMap {
	out := make(domain.StyleMap, len(s.Base)+len(s.Tablet)+len(s.Mobile))
	for k, v := range s.Base {
		out[k] = v
	}
	if mode == domain.Tablet || mode == domain.Mobile {
		for k, v := range s.Tablet {
			out[k] = v
		}
	}
	if mode == domain.Mobile {
		for k, v := range s.Mobile {
			out[k] = v
		}
	}
	return out
}

// Layer names the override layer an edit in mode writes to.
func Layer(mode domain.DeviceMode) string {
	switch mode {
	case domain.Tablet:
		return "tablet"
	case domain.Mobile:
		return "mobile"
	default:
		return "base"
	}
}

// Diff returns the keys whose effective value under mode differs from the
// value one breakpoint wider, sorted. Desktop has no wider breakpoint and
// returns nil.
func Diff(n *domain.Node, mode domain.DeviceMode) []string {
	var wider domain.DeviceMode
	switch mode {
	case domain.Tablet:
		wider = domain.Desktop
	case domain.Mobile:
		wider = domain.Tablet
	default:
		return nil
	}
	cur, prev := Resolve(n, mode), Resolve(n, wider)
	var keys []string
	for k, v := range cur {
		if pv, ok := prev[k]; !ok || pv != v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Visible evaluates the responsive visibility flags of n.
func Visible(n *domain.Node, mode domain.DeviceMode) bool {
	if n == nil || n.Props == nil {
		return true
	}
	c := domain.CommonOf(n.Props)
	switch mode {
	case domain.Tablet:
		return !c.HideOnTablet
	case domain.Mobile:
		return !c.HideOnMobile
	default:
		return !c.HideOnDesktop
	}
}

// Keys returns the sorted keys of m.
func Keys(m domain.StyleMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
