/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor

import (
	"pagebuilder/internal/shortcut"
	"pagebuilder/internal/tree"
)

// ZoomStep is the zoom change per keystroke.
const ZoomStep = 0.1

// Shortcut categories for help screens.
const (
	CategoryHistory = "History"
	CategoryEdit    = "Editing"
	CategoryView    = "View"
	CategoryFile    = "File"
)

// DefaultShortcuts returns the editor chords bound to s, in priority order.
// Redo precedes undo so Ctrl+Shift+Z is never shadowed.
func DefaultShortcuts(s *Session) []shortcut.Shortcut {
	hasSelection := func() bool { return s.Store.Snapshot().SelectedID != "" }
	deleteSelection := func() {
		if id := s.Store.Snapshot().SelectedID; id != "" {
			s.Store.Delete(id)
		}
	}
	zoomBy := func(d float64) func() {
		return func() { s.Store.SetZoom(s.Store.Snapshot().Zoom + d) }
	}
	return []shortcut.Shortcut{
		{Key: "z", Primary: true, Shift: true, Handler: func() { s.Store.Redo() }, Description: "Redo", Enabled: s.Store.CanRedo},
		{Key: "y", Primary: true, Handler: func() { s.Store.Redo() }, Description: "Redo", Enabled: s.Store.CanRedo},
		{Key: "z", Primary: true, Handler: func() { s.Store.Undo() }, Description: "Undo", Enabled: s.Store.CanUndo},
		{Key: "Delete", Handler: deleteSelection, Description: "Delete selected block", Enabled: hasSelection},
		{Key: "Backspace", Handler: deleteSelection, Description: "Delete selected block", Enabled: hasSelection},
		{Key: "d", Primary: true, Description: "Duplicate selected block", Enabled: hasSelection, Handler: func() {
			if id, out := s.Store.Duplicate(s.Store.Snapshot().SelectedID); out == tree.Applied {
				s.Store.Select(id)
			}
		}},
		{Key: "Escape", Handler: func() { s.Store.Select("") }, Description: "Clear selection", Enabled: hasSelection},
		{Key: "s", Primary: true, Handler: func() { s.Autosave.SaveNow() }, Description: "Save now", AllowInInput: true},
		{Key: "=", Primary: true, Handler: zoomBy(ZoomStep), Description: "Zoom in"},
		{Key: "-", Primary: true, Handler: zoomBy(-ZoomStep), Description: "Zoom out"},
		{Key: "0", Primary: true, Handler: func() { s.Store.SetZoom(1) }, Description: "Reset zoom"},
	}
}

// Categorize maps a default shortcut to its help-screen category.
func Categorize(sc shortcut.Shortcut) string {
	switch sc.Description {
	case "Undo", "Redo":
		return CategoryHistory
	case "Save now":
		return CategoryFile
	case "Zoom in", "Zoom out", "Reset zoom":
		return CategoryView
	}
	return CategoryEdit
}
