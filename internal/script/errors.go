/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package script

import (
	"errors"
	"fmt"
)

// Kind classifies parse failures.
type Kind int

const (
	// KindSyntax means the input is not well-formed JSON.
	KindSyntax Kind = iota + 1
	// KindShape means the JSON is valid but not a script document.
	KindShape
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindShape:
		return "shape"
	default:
		return "unknown"
	}
}

// Sentinels usable with errors.Is against a *ParseError.
var (
	ErrSyntax = errors.New("script: syntax error")
	ErrShape  = errors.New("script: invalid shape")
)

// ParseError reports why raw input was rejected. Offset is the byte offset of
// a syntax error when the decoder reports one, and 0 otherwise.
type ParseError struct {
	Kind   Kind
	Msg    string
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	if e.Kind == KindSyntax && e.Offset > 0 {
		return fmt.Sprintf("script: %s error at offset %d: %s", e.Kind, e.Offset, e.Msg)
	}
	return fmt.Sprintf("script: %s error: %s", e.Kind, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrSyntax:
		return e.Kind == KindSyntax
	case ErrShape:
		return e.Kind == KindShape
	}
	return false
}
