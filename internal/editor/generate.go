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
	"fmt"
	"log/slog"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/tree"
)

// Generator produces ready-made blocks for a prompt, e.g. an AI page generator.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]*domain.Node, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) ([]*domain.Node, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) ([]*domain.Node, error) {
	return f(ctx, prompt)
}

// Generate asks g for blocks and applies them as one undoable edit. With a placement the
// blocks are inserted there under fresh ids; without one they replace the whole page.
// It returns the ids of the new top-level blocks.
func (s *Session) Generate(ctx context.Context, g Generator, prompt string, at *tree.Placement) ([]string, tree.Outcome, error) {
	nodes, err := g.Generate(ctx, prompt)
	if err != nil {
		return nil, tree.NoChange, fmt.Errorf("generate: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, tree.NoChange, err
	}
	l := s.log.With(slog.Int("blocks", len(nodes)))
	if at != nil {
		if len(nodes) == 0 {
			return nil, tree.NoChange, nil
		}
		ids, out := s.Store.InsertTree(nodes, *at)
		l.Info("generated blocks inserted", slog.String("outcome", out.String()))
		return ids, out, nil
	}
	out := s.Store.ReplaceAll(nodes)
	l.Info("generated page applied", slog.String("outcome", out.String()))
	if out != tree.Applied {
		return nil, out, nil
	}
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids, out, nil
}
