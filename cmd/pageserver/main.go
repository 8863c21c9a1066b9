/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pagebuilder/internal/backend"
	applog "pagebuilder/internal/log"
)

func main() {
	_ = godotenv.Load()
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("pageserver")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := backend.Start(ctx, backend.LoadConfig()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server stopped", slog.Any("err", err))
		stop()
		os.Exit(1)
	}
}
