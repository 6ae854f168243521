// Copyright 2026 Chris Edwards
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package schedule

import (
	"context"
	"sync"
)

// workerPool runs discovery jobs on a fixed number of goroutines so a
// run with many candidates cannot fan out unbounded fetches.
type workerPool struct {
	work chan func()
	wg   sync.WaitGroup
	ctx  context.Context
}

func newWorkerPool(ctx context.Context, workers, queueSize int) *workerPool {
	if workers <= 0 {
		workers = 1
	}
	wp := &workerPool{
		work: make(chan func(), queueSize),
		ctx:  ctx,
	}
	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.run()
	}
	return wp
}

func (wp *workerPool) run() {
	defer wp.wg.Done()
	for {
		select {
		case job, ok := <-wp.work:
			if !ok {
				return
			}
			job()
		case <-wp.ctx.Done():
			return
		}
	}
}

// submit queues a job, blocking for backpressure when the queue is
// full. Returns the context error if the run was cancelled.
func (wp *workerPool) submit(job func()) error {
	select {
	case wp.work <- job:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// close stops accepting work and waits for in-flight jobs.
func (wp *workerPool) close() {
	close(wp.work)
	wp.wg.Wait()
}
