/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package httpapi

import (
	"context"
	"errors"
	"net/http"

	"promptdeck/internal/coordinator"
	"promptdeck/internal/generator"
	"promptdeck/internal/ledger"
	"promptdeck/internal/script"
	"promptdeck/internal/session"
)

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var (
		pe *script.ParseError
		ue *generator.UpstreamError
	)
	switch {
	case errors.As(err, &pe):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoScript), errors.Is(err, coordinator.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrUnknownID), errors.Is(err, coordinator.ErrUnknownEntry):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNothingToCopy), errors.Is(err, coordinator.ErrEmptyPrompt):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNoHistory):
		return http.StatusNotImplemented
	case errors.Is(err, generator.ErrNoAPIKey):
		return http.StatusPreconditionFailed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &ue), errors.Is(err, coordinator.ErrNoImage), errors.Is(err, coordinator.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
