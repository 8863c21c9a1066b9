/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export renders pages to static formats.
package export

import (
	"fmt"
	"html"
	"html/template"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/style"
)

// Breakpoints in CSS pixels: mobile below TabletMin, desktop from DesktopMin.
const (
	TabletMin  = 768
	DesktopMin = 1024
)

// HTMLOptions controls the static page.
type HTMLOptions struct {
	Title string
	Lang  string
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
.pb-slots{display:flex;gap:1rem}
.pb-slot{flex:1 1 0;min-width:0}
{{.CSS}}</style>
</head>
<body>
{{.Body}}</body>
</html>
`))

// HTML writes doc as a standalone page. Base styles are inline; tablet and mobile
// overrides and visibility flags become media queries keyed by a per-node class.
func HTML(w io.Writer, doc *domain.Document, opt HTMLOptions) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if opt.Title == "" {
		opt.Title = "Page"
	}
	if opt.Lang == "" {
		opt.Lang = "en"
	}
	r := &htmlRenderer{classes: map[string]string{}}
	for _, n := range doc.Roots {
		r.node(n, 0)
	}
	return pageTmpl.Execute(w, struct {
		Title, Lang string
		CSS         template.CSS
		Body        template.HTML
	}{
		Title: opt.Title,
		Lang:  opt.Lang,
		CSS:   template.CSS(r.css()),
		Body:  template.HTML(r.body.String()),
	})
}

type htmlRenderer struct {
	body    strings.Builder
	classes map[string]string
	tablet  []string
	mobile  []string
	hidden  map[domain.DeviceMode][]string
	seq     int
}

func (r *htmlRenderer) class(n *domain.Node) string {
	if c, ok := r.classes[n.ID]; ok {
		return c
	}
	r.seq++
	c := "pb-" + strconv.Itoa(r.seq)
	r.classes[n.ID] = c
	return c
}

func (r *htmlRenderer) node(n *domain.Node, depth int) {
	cls := r.class(n)
	if rule := overrideRule(cls, n, domain.Tablet); rule != "" {
		r.tablet = append(r.tablet, rule)
	}
	if rule := overrideRule(cls, n, domain.Mobile); rule != "" {
		r.mobile = append(r.mobile, rule)
	}
	for _, m := range []domain.DeviceMode{domain.Desktop, domain.Tablet, domain.Mobile} {
		if !style.Visible(n, m) {
			if r.hidden == nil {
				r.hidden = map[domain.DeviceMode][]string{}
			}
			r.hidden[m] = append(r.hidden[m], "."+cls)
		}
	}

	tag, attrs, text := element(n)
	b := &r.body
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("<" + tag)
	writeAttr(b, "class", cls)
	if css := declarations(n.Style.Base, false); css != "" {
		writeAttr(b, "style", css)
	}
	for _, a := range attrs {
		switch {
		case a[0] == "required":
			b.WriteString(" required")
		case a[1] != "":
			writeAttr(b, a[0], a[1])
		}
	}
	b.WriteString(">")
	if isVoid(tag) {
		b.WriteString("\n")
		return
	}
	b.WriteString(html.EscapeString(text))
	if len(n.Children) > 0 {
		b.WriteString("\n")
		if slots := domain.SlotCount(n); slots > 0 {
			r.slots(n, slots, depth+1)
		} else {
			for _, c := range n.Children {
				r.node(c, depth+1)
			}
		}
		b.WriteString(strings.Repeat("  ", depth))
	}
	b.WriteString("</" + tag + ">\n")
}

// slots groups children by their column tag; untagged children land in the first slot.
func (r *htmlRenderer) slots(n *domain.Node, count, depth int) {
	groups := make([][]*domain.Node, count)
	for _, c := range n.Children {
		col, _ := domain.ColumnOf(c.Props)
		if col < 0 || col >= count {
			col = 0
		}
		groups[col] = append(groups[col], c)
	}
	pad := strings.Repeat("  ", depth)
	r.body.WriteString(pad + `<div class="pb-slots">` + "\n")
	for _, g := range groups {
		r.body.WriteString(pad + `  <div class="pb-slot">` + "\n")
		for _, c := range g {
			r.node(c, depth+2)
		}
		r.body.WriteString(pad + "  </div>\n")
	}
	r.body.WriteString(pad + "</div>\n")
}

func (r *htmlRenderer) css() string {
	var b strings.Builder
	if len(r.tablet) > 0 {
		fmt.Fprintf(&b, "@media (max-width: %dpx) {\n%s}\n", DesktopMin-1, strings.Join(r.tablet, ""))
	}
	if len(r.mobile) > 0 {
		fmt.Fprintf(&b, "@media (max-width: %dpx) {\n%s}\n", TabletMin-1, strings.Join(r.mobile, ""))
	}
	queries := map[domain.DeviceMode]string{
		domain.Desktop: fmt.Sprintf("(min-width: %dpx)", DesktopMin),
		domain.Tablet:  fmt.Sprintf("(min-width: %dpx) and (max-width: %dpx)", TabletMin, DesktopMin-1),
		domain.Mobile:  fmt.Sprintf("(max-width: %dpx)", TabletMin-1),
	}
	for _, m := range []domain.DeviceMode{domain.Desktop, domain.Tablet, domain.Mobile} {
		if sel := r.hidden[m]; len(sel) > 0 {
			fmt.Fprintf(&b, "@media %s {\n  %s{display:none !important}\n}\n", queries[m], strings.Join(sel, ","))
		}
	}
	return b.String()
}

// overrideRule emits the declarations mode changes relative to the next wider breakpoint.
func overrideRule(cls string, n *domain.Node, mode domain.DeviceMode) string {
	keys := style.Diff(n, mode)
	if len(keys) == 0 {
		return ""
	}
	eff := style.Resolve(n, mode)
	m := make(domain.StyleMap, len(keys))
	for _, k := range keys {
		m[k] = eff[k]
	}
	return fmt.Sprintf("  .%s{%s}\n", cls, declarations(m, true))
}

func declarations(m domain.StyleMap, important bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		v := sanitizeCSSValue(m[k])
		if v == "" {
			continue
		}
		if important {
			v += " !important"
		}
		parts = append(parts, cssProperty(k)+":"+v)
	}
	return strings.Join(parts, ";")
}

// cssProperty converts a camelCase style key to its CSS property name.
func cssProperty(k string) string {
	if strings.Contains(k, "-") {
		return strings.ToLower(k)
	}
	var b strings.Builder
	for i, r := range k {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sanitizeCSSValue drops characters that could end a declaration or rule.
func sanitizeCSSValue(v string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case ';', '{', '}', '<', '>':
			return -1
		}
		return r
	}, v))
}

func element(n *domain.Node) (string, [][2]string, string) {
	switch p := n.Props.(type) {
	case *domain.ButtonProps:
		if p.Href != "" {
			return "a", [][2]string{{"href", safeURL(p.Href)}}, p.Text
		}
		return "button", [][2]string{{"type", "button"}}, p.Text
	case *domain.TextProps:
		return "p", nil, p.Text
	case *domain.HeadingProps:
		tag := "h2"
		if len(p.Level) == 2 && p.Level[0] == 'h' && p.Level[1] >= '1' && p.Level[1] <= '6' {
			tag = p.Level
		}
		return tag, nil, p.Text
	case *domain.ImageProps:
		return "img", [][2]string{{"src", safeURL(p.Src)}, {"alt", p.Alt}}, ""
	case *domain.InputProps:
		attrs := [][2]string{{"name", p.Name}, {"type", p.InputType}, {"placeholder", p.Placeholder}}
		if p.Required {
			attrs = append(attrs, [2]string{"required", "required"})
		}
		return "input", attrs, ""
	case *domain.FormProps:
		return "form", [][2]string{{"action", safeURL(p.Action)}, {"method", p.Method}}, ""
	case *domain.SectionProps:
		return "section", nil, ""
	}
	return "div", nil, ""
}

// safeURL keeps relative and web URLs; anything else becomes "#".
func safeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "#"
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto", "tel":
		return u.String()
	}
	return "#"
}

func isVoid(tag string) bool { return tag == "img" || tag == "input" }

func writeAttr(b *strings.Builder, name, value string) {
	b.WriteString(" " + name + `="` + html.EscapeString(value) + `"`)
}
