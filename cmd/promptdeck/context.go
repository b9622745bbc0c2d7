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
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"promptdeck/internal/config"
	"promptdeck/internal/crash"
	"promptdeck/internal/generator"
	applog "promptdeck/internal/log"
	"promptdeck/internal/session"
	"promptdeck/internal/store"
)

// closeTimeout bounds the final flush when a command ends.
const closeTimeout = 10 * time.Second

type commandContext struct {
	configFlag   string
	stateDirFlag string
	storeFlag    string
	ephemeral    bool
	jsonOut      bool

	configOnce sync.Once
	cfg        config.AppConfig
	apiKey     string
	configErr  error
}

func (c *commandContext) ensureConfig(cmd *cobra.Command) (config.AppConfig, error) {
	c.configOnce.Do(func() {
		cfg, key, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if d := strings.TrimSpace(c.stateDirFlag); d != "" {
			cfg.Store.Dir = d
		}
		if s := strings.TrimSpace(c.storeFlag); s != "" {
			cfg.Store.Driver = strings.ToLower(s)
		}
		if c.ephemeral {
			cfg.Store.Driver = config.DriverMemory
		}
		applog.Init(applog.Options{
			Level:     cfg.Logging.Level,
			Format:    cfg.Logging.Format,
			AddSource: cfg.Logging.Source,
			File:      cfg.Logging.File,
			Output:    cmd.ErrOrStderr(),
		})
		c.cfg, c.apiKey = cfg, key
	})
	return c.cfg, c.configErr
}

// withSession opens the state directory for the duration of fn. The directory is
// locked so two processes never write the same state.
func (c *commandContext) withSession(cmd *cobra.Command, clip session.Clipboard, fn func(context.Context, *session.Session) error) (err error) {
	cfg, err := c.ensureConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	l := applog.WithComponent("cli").With(slog.String("cmd", cmd.Name()))

	if cfg.Store.Driver != config.DriverMemory && cfg.Store.Driver != config.DriverPostgres {
		lock, err := store.Lock(cfg.Store.Dir)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Unlock() }()
	}
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	gen, err := generator.New(cfg.Generator)
	if err != nil {
		_ = st.Close()
		return err
	}
	model := cfg.Generator.EffectiveModel()
	sess, err := session.Open(ctx, session.Options{
		Store:       st,
		Generator:   gen,
		Credentials: func() (string, string) { return c.apiKey, model },
		Timeout:     cfg.Generator.Timeout(),
		Clipboard:   clip,
		HistoryKeep: cfg.History.Keep,
	})
	if err != nil {
		_ = st.Close()
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if cerr := sess.Close(cctx); cerr != nil {
			l.Error("close session failed", slog.Any("err", cerr))
			if err == nil {
				err = cerr
			}
		}
	}()
	defer crash.Recover(cfg.Store.Dir, sess)

	if rerr := sess.RestoreError(); rerr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", session.Notice(rerr))
	}
	return fn(ctx, sess)
}
