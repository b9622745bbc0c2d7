/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"errors"
	"fmt"

	"promptdeck/internal/coordinator"
	"promptdeck/internal/generator"
	"promptdeck/internal/ledger"
	"promptdeck/internal/script"
	"promptdeck/internal/store"
)

// Notice turns an error into the one-line message shown to the operator.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	var (
		pe *script.ParseError
		ue *generator.UpstreamError
		se *store.StoreError
	)
	switch {
	case errors.As(err, &pe) && pe.Kind == script.KindSyntax:
		return "Invalid JSON: " + pe.Msg
	case errors.As(err, &pe):
		return "Invalid script: " + pe.Msg
	case errors.Is(err, ErrNoScript):
		return "Load a script first."
	case errors.Is(err, ledger.ErrUnknownID), errors.Is(err, coordinator.ErrUnknownEntry):
		return "No chapter with a prompt has this id."
	case errors.Is(err, ErrNothingToCopy):
		return "Nothing to copy."
	case errors.Is(err, coordinator.ErrEmptyPrompt):
		return "Enter a prompt first."
	case errors.Is(err, coordinator.ErrBusy):
		return "A generation is already running."
	case errors.Is(err, coordinator.ErrNoImage):
		return "The generator returned no image."
	case errors.As(err, &ue):
		return fmt.Sprintf("Generator error (%d): %s", ue.Status, ue.Message)
	case errors.Is(err, generator.ErrNoAPIKey):
		return "No generator API key configured. Run `promptdeck config set-key`."
	case errors.Is(err, context.DeadlineExceeded):
		return "The image generator did not answer in time."
	case errors.Is(err, coordinator.ErrTransport):
		return "Could not reach the image generator."
	case errors.Is(err, store.ErrLocked):
		return "Another promptdeck process is using this state directory."
	case errors.As(err, &se):
		return "Saving failed, changes are kept in memory: " + se.Err.Error()
	case errors.Is(err, ErrNoHistory):
		return "This store does not keep a script history."
	default:
		return err.Error()
	}
}
