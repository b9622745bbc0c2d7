/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package coordinator

import (
	"context"

	"promptdeck/internal/imagecache"
	"promptdeck/internal/script"
)

// Task is the handle of one dispatched generation.
type Task struct {
	ID script.ID

	done chan struct{}
	ref  imagecache.ImageRef
	err  error
}

func newTask(id script.ID) *Task {
	return &Task{ID: id, done: make(chan struct{})}
}

func (t *Task) resolve(ref imagecache.ImageRef, err error) {
	t.ref, t.err = ref, err
	close(t.done)
}

// Done is closed once the generation has settled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the generation settles or ctx ends. Giving up on the wait does
// not stop the generation.
func (t *Task) Wait(ctx context.Context) (imagecache.ImageRef, error) {
	select {
	case <-t.done:
		return t.ref, t.err
	case <-ctx.Done():
		return imagecache.ImageRef{}, ctx.Err()
	}
}
