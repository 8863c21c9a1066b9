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
	"context"
	"errors"
	"testing"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/tree"
)

func generated() []*domain.Node {
	hero := domain.NewNode(domain.Section, "g-hero")
	title := domain.NewNode(domain.Heading, "g-title")
	hero.Children = []*domain.Node{title}
	return []*domain.Node{hero, domain.NewNode(domain.Button, "g-cta")}
}

func TestGenerateReplacesPageWithoutPlacement(t *testing.T) {
	s, _ := newTestSession(t, &memSaver{})
	s.Store.Insert(domain.Text, tree.AtRoot(-1))

	g := GeneratorFunc(func(ctx context.Context, prompt string) ([]*domain.Node, error) {
		return generated(), nil
	})
	ids, out, err := s.Generate(context.Background(), g, "landing page", nil)
	if err != nil || out != tree.Applied {
		t.Fatalf("Generate: %v %v", out, err)
	}
	if len(ids) != 2 || ids[0] != "g-hero" {
		t.Fatalf("ids: %v", ids)
	}
	if n := s.Store.Len(); n != 3 {
		t.Fatalf("nodes: %d", n)
	}
	if !s.Store.Undo() || s.Store.Len() != 1 {
		t.Fatal("generation should be one undo step")
	}
}

func TestGenerateInsertsWithFreshIDs(t *testing.T) {
	s, _ := newTestSession(t, &memSaver{})
	g := GeneratorFunc(func(ctx context.Context, prompt string) ([]*domain.Node, error) {
		return generated(), nil
	})
	at := tree.AtRoot(0)
	first, out, err := s.Generate(context.Background(), g, "x", &at)
	if err != nil || out != tree.Applied {
		t.Fatalf("first: %v %v", out, err)
	}
	second, out, err := s.Generate(context.Background(), g, "x", &at)
	if err != nil || out != tree.Applied {
		t.Fatalf("second: %v %v", out, err)
	}
	for _, id := range append(first, second...) {
		if id == "g-hero" || id == "g-cta" {
			t.Fatalf("generated ids must be replaced, got %v %v", first, second)
		}
	}
	if n := s.Store.Len(); n != 6 {
		t.Fatalf("nodes: %d", n)
	}
}

func TestGenerateErrorLeavesPage(t *testing.T) {
	s, _ := newTestSession(t, &memSaver{})
	s.Store.Insert(domain.Text, tree.AtRoot(-1))
	boom := errors.New("quota")
	g := GeneratorFunc(func(ctx context.Context, prompt string) ([]*domain.Node, error) { return nil, boom })
	if _, _, err := s.Generate(context.Background(), g, "x", nil); !errors.Is(err, boom) {
		t.Fatalf("want %v, got %v", boom, err)
	}
	if s.Store.Len() != 1 {
		t.Fatal("page changed after failed generation")
	}
}
