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

// Package loadgen drives producers and consumers over a message channel and
// accounts for every tagged message, so losses and duplicates show up.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"
)

// EndMarker tells a consumer that no more messages follow.
const EndMarker = "__END__"

// Conn is the part of a transport the generator needs.
type Conn interface {
	Send(data []byte) error
	Receive() ([]byte, error)
}

// Config describes one run.
type Config struct {
	Producers int
	Consumers int
	// Messages is the number of messages each producer sends.
	Messages int
	// Interval paces each producer; zero sends as fast as possible.
	Interval time.Duration
}

// Report summarizes a run.
type Report struct {
	Sent       int
	Received   int
	Duplicates int
	Missing    int
	// Unexpected counts messages that are not producer tags.
	Unexpected int
	Elapsed    time.Duration
}

// OK reports whether every sent message arrived exactly once.
func (r Report) OK() bool {
	return r.Duplicates == 0 && r.Missing == 0 && r.Unexpected == 0
}

func (r Report) String() string {
	rate := 0.0
	if r.Elapsed > 0 {
		rate = float64(r.Received) / r.Elapsed.Seconds()
	}
	return fmt.Sprintf("sent:%d received:%d duplicates:%d missing:%d unexpected:%d elapsed:%s rate:%.0f msg/s",
		r.Sent, r.Received, r.Duplicates, r.Missing, r.Unexpected, r.Elapsed.Round(time.Millisecond), rate)
}

// Tag is the payload of message seq from producer id.
func Tag(id, seq int) string {
	return "P" + strconv.Itoa(id) + "-" + strconv.Itoa(seq)
}

// ParseTag is the inverse of Tag.
func ParseTag(s string) (id, seq int, ok bool) {
	rest, found := strings.CutPrefix(s, "P")
	if !found {
		return 0, 0, false
	}
	a, b, found := strings.Cut(rest, "-")
	if !found {
		return 0, 0, false
	}
	id, err1 := strconv.Atoi(a)
	seq, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil || id < 0 || seq < 0 {
		return 0, 0, false
	}
	return id, seq, true
}

// Produce sends count tagged messages for producer id, then one EndMarker
// when end is set. It returns how many tagged messages were sent.
func Produce(ctx context.Context, conn Conn, id, count int, interval time.Duration, end bool) (int, error) {
	var tick *time.Ticker
	if interval > 0 {
		tick = time.NewTicker(interval)
		defer tick.Stop()
	}
	sent := 0
	for seq := 0; seq < count; seq++ {
		if tick != nil && seq > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-tick.C:
			}
		} else if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := conn.Send([]byte(Tag(id, seq))); err != nil {
			return sent, fmt.Errorf("producer %d message %d: %w", id, seq, err)
		}
		sent++
	}
	if end {
		if err := conn.Send([]byte(EndMarker)); err != nil {
			return sent, fmt.Errorf("producer %d end marker: %w", id, err)
		}
	}
	return sent, nil
}

// Consume receives until an EndMarker arrives or Receive fails, calling fn
// for every other message. The error from Receive is returned, nil after an
// EndMarker.
func Consume(conn Conn, fn func(msg []byte)) error {
	for {
		msg, err := conn.Receive()
		if err != nil {
			return err
		}
		if string(msg) == EndMarker {
			return nil
		}
		fn(msg)
	}
}

// Tally counts received messages by tag.
type Tally struct {
	seen       cmap.ConcurrentMap[string, int]
	mu         sync.Mutex
	received   int
	unexpected int
}

// NewTally returns an empty Tally.
func NewTally() *Tally {
	return &Tally{seen: cmap.New[int]()}
}

// Add records one received message.
func (t *Tally) Add(msg []byte) {
	tag := string(msg)
	t.mu.Lock()
	t.received++
	if _, _, ok := ParseTag(tag); !ok {
		t.unexpected++
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.seen.Upsert(tag, 1, func(exist bool, inMap, n int) int {
		if exist {
			return inMap + n
		}
		return n
	})
}

// Report checks the tally against producers each sending messages tags.
func (t *Tally) Report(producers, messages int) Report {
	t.mu.Lock()
	r := Report{Received: t.received, Unexpected: t.unexpected}
	t.mu.Unlock()
	inRange := 0
	for id := 0; id < producers; id++ {
		for seq := 0; seq < messages; seq++ {
			n, ok := t.seen.Get(Tag(id, seq))
			if !ok {
				r.Missing++
				continue
			}
			inRange += n
			r.Duplicates += n - 1
		}
	}
	// well-formed tags from producers or sequences outside the run
	r.Unexpected += r.Received - r.Unexpected - inRange
	return r
}

// Bench runs producers and consumers in this process over conn on an ants
// pool. Consumers stop on end markers sent once every producer finished. If
// onMessage is not nil it sees every received message.
func Bench(ctx context.Context, conn Conn, cfg Config, onMessage func(msg []byte)) (Report, error) {
	if cfg.Producers <= 0 || cfg.Consumers <= 0 || cfg.Messages < 0 {
		return Report{}, fmt.Errorf("invalid load: %d producers, %d consumers, %d messages",
			cfg.Producers, cfg.Consumers, cfg.Messages)
	}
	pool, err := ants.NewPool(cfg.Producers+cfg.Consumers, ants.WithPreAlloc(true))
	if err != nil {
		return Report{}, err
	}
	defer pool.Release()

	tally := NewTally()
	var (
		errMu  sync.Mutex
		errs   []error
		sent   int
		pwg    sync.WaitGroup
		cwg    sync.WaitGroup
		record = func(err error) {
			errMu.Lock()
			errs = append(errs, err)
			errMu.Unlock()
		}
	)
	start := time.Now()
	for c := 0; c < cfg.Consumers; c++ {
		cwg.Add(1)
		if err := pool.Submit(func() {
			defer cwg.Done()
			if err := Consume(conn, func(msg []byte) {
				tally.Add(msg)
				if onMessage != nil {
					onMessage(msg)
				}
			}); err != nil {
				record(fmt.Errorf("consumer: %w", err))
			}
		}); err != nil {
			cwg.Done()
			return Report{}, err
		}
	}
	for p := 0; p < cfg.Producers; p++ {
		id := p
		pwg.Add(1)
		if err := pool.Submit(func() {
			defer pwg.Done()
			n, err := Produce(ctx, conn, id, cfg.Messages, cfg.Interval, false)
			errMu.Lock()
			sent += n
			errMu.Unlock()
			if err != nil {
				record(err)
			}
		}); err != nil {
			pwg.Done()
			record(err)
			break
		}
	}
	pwg.Wait()
	for c := 0; c < cfg.Consumers; c++ {
		if err := conn.Send([]byte(EndMarker)); err != nil {
			record(fmt.Errorf("end marker: %w", err))
			break
		}
	}
	cwg.Wait()

	r := tally.Report(cfg.Producers, cfg.Messages)
	r.Sent = sent
	r.Elapsed = time.Since(start)
	return r, errors.Join(errs...)
}
