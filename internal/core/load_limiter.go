package core

// load_limiter.go bounds how many datasets are parsed at once.
//
// Parsing a file and building its working table holds the whole dataset in
// memory. Each load takes a slot and gets a LoadTicket naming the file and
// its upload size, so the health endpoint can report what is in flight and
// shutdown can wait for those files to finish. When every slot is taken a
// new load waits up to maxWait before failing with ErrTooManyLoads.

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTooManyLoads is returned when all load slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyLoads = errors.New("too many concurrent loads, please try again later")

// DefaultMaxConcurrentLoads is the default limit for parallel loads.
const DefaultMaxConcurrentLoads = 5

// DefaultLoadWait is how long to wait for a slot before rejecting.
const DefaultLoadWait = 30 * time.Second

// LoadLimiter hands out a fixed number of load slots.
type LoadLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	now     func() time.Time

	mu       sync.Mutex
	inflight map[*LoadTicket]struct{}
	idle     chan struct{} // closed while nothing is in flight
}

// LoadTicket is one admitted load. Release it when the dataset is built.
type LoadTicket struct {
	File    string
	Bytes   int64
	Started time.Time

	limiter *LoadLimiter
	once    sync.Once
}

// NewLoadLimiter creates a limiter that allows at most maxConcurrent simultaneous loads.
func NewLoadLimiter(maxConcurrent int, maxWait time.Duration) *LoadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentLoads
	}
	if maxWait <= 0 {
		maxWait = DefaultLoadWait
	}
	idle := make(chan struct{})
	close(idle)
	return &LoadLimiter{
		slots:    make(chan struct{}, maxConcurrent),
		maxWait:  maxWait,
		now:      time.Now,
		inflight: make(map[*LoadTicket]struct{}),
		idle:     idle,
	}
}

// Acquire waits for a slot to load file, whose upload is size bytes.
// Caller cancellation is returned as ctx.Err(); running out of maxWait is
// ErrTooManyLoads.
func (l *LoadLimiter) Acquire(ctx context.Context, file string, size int64) (*LoadTicket, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.slots <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTooManyLoads
	}

	t := &LoadTicket{File: file, Bytes: size, Started: l.now(), limiter: l}
	l.mu.Lock()
	if len(l.inflight) == 0 {
		l.idle = make(chan struct{})
	}
	l.inflight[t] = struct{}{}
	l.mu.Unlock()
	return t, nil
}

// Release frees the ticket's slot. Extra calls are no-ops.
func (t *LoadTicket) Release() {
	t.once.Do(func() {
		l := t.limiter
		l.mu.Lock()
		delete(l.inflight, t)
		if len(l.inflight) == 0 {
			close(l.idle)
		}
		l.mu.Unlock()
		<-l.slots
	})
}

// WaitForDrain blocks until no load is in flight or ctx is done.
func (l *LoadLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlightLoad describes one running load.
type InFlightLoad struct {
	File      string `json:"file"`
	Bytes     int64  `json:"bytes"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// LoadLimiterStatus is a snapshot of the limiter's state.
type LoadLimiterStatus struct {
	Active        int            `json:"active"`
	Available     int            `json:"available"`
	MaxConcurrent int            `json:"max_concurrent"`
	BytesInFlight int64          `json:"bytes_in_flight"`
	Loads         []InFlightLoad `json:"loads,omitempty"`
}

// Status reports the running loads, oldest first.
func (l *LoadLimiter) Status() LoadLimiterStatus {
	now := l.now()

	l.mu.Lock()
	tickets := make([]*LoadTicket, 0, len(l.inflight))
	for t := range l.inflight {
		tickets = append(tickets, t)
	}
	l.mu.Unlock()

	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Started.Before(tickets[j].Started) })

	st := LoadLimiterStatus{
		Active:        len(tickets),
		Available:     cap(l.slots) - len(tickets),
		MaxConcurrent: cap(l.slots),
	}
	for _, t := range tickets {
		st.BytesInFlight += t.Bytes
		st.Loads = append(st.Loads, InFlightLoad{
			File:      t.File,
			Bytes:     t.Bytes,
			ElapsedMS: now.Sub(t.Started).Milliseconds(),
		})
	}
	return st
}
