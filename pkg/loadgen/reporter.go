/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package loadgen

import (
	"io"
	"sync"

	queuepkg "github.com/Workiva/go-datastructures/queue"
	"github.com/valyala/bytebufferpool"
)

// default hint is 1024 lines
const defaultReporterHint = 1024

// reporterStop ends the print loop once everything queued before it is out.
type reporterStop struct{}

// Reporter prints received messages on a background goroutine, so a slow
// terminal does not hold consumers inside the channel.
type Reporter struct {
	prefix string
	out    io.Writer
	q      *queuepkg.Queue
	once   sync.Once
	done   chan struct{}
	err    error
}

// NewReporter starts a Reporter writing "<prefix><message>\n" lines to out.
func NewReporter(out io.Writer, prefix string, hint int64) *Reporter {
	if hint <= 0 {
		hint = defaultReporterHint
	}
	r := &Reporter{
		prefix: prefix,
		out:    out,
		q:      queuepkg.New(hint),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

// Print queues one message. The payload is copied. Messages printed after
// Close are dropped.
func (r *Reporter) Print(msg []byte) {
	line := make([]byte, len(msg))
	copy(line, msg)
	_ = r.q.Put(line)
}

// Println queues a preformatted line, without the prefix.
func (r *Reporter) Println(line string) {
	_ = r.q.Put(line)
}

// Close flushes queued lines and stops the Reporter. It returns the first
// write error.
func (r *Reporter) Close() error {
	r.once.Do(func() {
		if err := r.q.Put(reporterStop{}); err != nil {
			r.q.Dispose()
		}
	})
	<-r.done
	return r.err
}

func (r *Reporter) loop() {
	defer close(r.done)
	defer r.q.Dispose()
	for {
		items, err := r.q.Get(64)
		if err != nil {
			return
		}
		bb := bytebufferpool.Get()
		stop := false
		for _, item := range items {
			switch v := item.(type) {
			case []byte:
				_, _ = bb.WriteString(r.prefix)
				_, _ = bb.Write(v)
				_ = bb.WriteByte('\n')
			case string:
				_, _ = bb.WriteString(v)
				_ = bb.WriteByte('\n')
			case reporterStop:
				stop = true
			}
		}
		if bb.Len() > 0 && r.err == nil {
			_, r.err = r.out.Write(bb.B)
		}
		bytebufferpool.Put(bb)
		if stop {
			return
		}
	}
}
