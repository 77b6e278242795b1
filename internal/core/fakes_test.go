package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"
)

// memBlobs is an in-memory BlobStore with switchable failures.
type memBlobs struct {
	mu        sync.Mutex
	data      map[string][]byte
	created   map[string]time.Time
	seq       int
	failPut   bool
	failGet   bool
	failDel   bool
	deletes   int
	putsTotal int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: map[string][]byte{}, created: map[string]time.Time{}}
}

func (b *memBlobs) Put(ctx context.Context, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putsTotal++
	if b.failPut {
		return "", errors.New("disk full")
	}
	b.seq++
	h := fmt.Sprintf("blob-%d", b.seq)
	b.data[h] = append([]byte(nil), data...)
	b.created[h] = time.Now()
	return h, nil
}

func (b *memBlobs) Get(ctx context.Context, handle string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failGet {
		return nil, errors.New("io timeout")
	}
	d, ok := b.data[handle]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (b *memBlobs) Delete(ctx context.Context, handle string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes++
	if b.failDel {
		return errors.New("permission denied")
	}
	delete(b.data, handle)
	delete(b.created, handle)
	return nil
}

func (b *memBlobs) Sweep(ctx context.Context, olderThan time.Time, keep map[string]bool) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for h, at := range b.created {
		if at.Before(olderThan) && !keep[h] {
			delete(b.data, h)
			delete(b.created, h)
			n++
		}
	}
	return n, nil
}

func (b *memBlobs) has(handle string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[handle]
	return ok
}

func (b *memBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// memRules is an in-memory RuleStore.
type memRules struct {
	mu       sync.Mutex
	rules    []Rule
	settings Settings
	fail     bool
}

func newMemRules(rules ...Rule) *memRules {
	return &memRules{rules: rules, settings: DefaultSettings()}
}

func (r *memRules) Rules(ctx context.Context) ([]Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errors.New("connection refused")
	}
	return append([]Rule(nil), r.rules...), nil
}

func (r *memRules) Settings(ctx context.Context) (Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings, nil
}

func (r *memRules) SaveRule(ctx context.Context, rule Rule) (Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == rule.ID {
			r.rules[i] = rule
			return rule, nil
		}
	}
	r.rules = append(r.rules, rule)
	return rule, nil
}

func (r *memRules) DeleteRule(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (r *memRules) ToggleRule(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules[i].Active = active
			return nil
		}
	}
	return ErrNotFound
}

func (r *memRules) ReplaceAll(ctx context.Context, rules []Rule, settings Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append([]Rule(nil), rules...)
	r.settings = settings
	return nil
}

func (r *memRules) SaveSettings(ctx context.Context, settings Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = settings
	return nil
}

// memSnapshots is an in-memory SnapshotStore.
type memSnapshots struct {
	mu      sync.Mutex
	data    map[string]Dataset
	created map[string]time.Time
	failSav bool
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{data: map[string]Dataset{}, created: map[string]time.Time{}}
}

func (s *memSnapshots) Save(ctx context.Context, id string, ds Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSav {
		return errors.New("read-only file system")
	}
	if _, ok := s.data[id]; ok {
		return ErrSnapshotExists
	}
	s.data[id] = ds
	s.created[id] = time.Now()
	return nil
}

func (s *memSnapshots) Load(ctx context.Context, id string) (Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.data[id]
	if !ok {
		return Dataset{}, ErrNotFound
	}
	return ds, nil
}

func (s *memSnapshots) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		return ErrNotFound
	}
	delete(s.data, id)
	delete(s.created, id)
	return nil
}

func (s *memSnapshots) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, at := range s.created {
		if at.Before(olderThan) {
			delete(s.data, id)
			delete(s.created, id)
			n++
		}
	}
	return n, nil
}

func (s *memSnapshots) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[id]
	return ok
}

// invoiceDataset builds n invoice rows with a pay group column.
func invoiceDataset(n int) Dataset {
	ds := Dataset{
		Columns:        []string{"Invoice #", "Vendor", "Amount", "Pay Group"},
		GroupingColumn: "Pay Group",
		FileName:       "invoices.csv",
	}
	for i := 0; i < n; i++ {
		ds.Records = append(ds.Records, map[string]string{
			"Invoice #": "INV-" + strconv.Itoa(1000+i),
			"Vendor":    "Vendor " + strconv.Itoa(i),
			"Amount":    "$" + strconv.Itoa(10*(i+1)) + ".00",
			"Pay Group": "Standard",
		})
	}
	return ds
}

// vendorDataset is the two-row Amazon/Staples table.
func vendorDataset() Dataset {
	return Dataset{
		Columns: []string{"vendor", "amount"},
		Records: []map[string]string{
			{"vendor": "Amazon", "amount": "$100"},
			{"vendor": "Staples", "amount": "$50"},
		},
		FileName: "vendors.csv",
	}
}

type testEnv struct {
	svc       *Service
	rules     *memRules
	blobs     *memBlobs
	snapshots *memSnapshots
}

func newTestEnv(t *testing.T, rules ...Rule) *testEnv {
	t.Helper()
	env := &testEnv{
		rules:     newMemRules(rules...),
		blobs:     newMemBlobs(),
		snapshots: newMemSnapshots(),
	}
	env.svc = NewService(env.rules, env.snapshots, env.blobs, Config{
		HistoryCapacity:     DefaultHistoryCapacity,
		BulkDeleteThreshold: DefaultBulkDeleteThreshold,
	}, nil)
	return env
}

func (e *testEnv) load(t *testing.T, ds Dataset) *Session {
	t.Helper()
	sess, _, err := e.svc.Load(context.Background(), ds)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return sess
}

func rowIDs(rows []Row) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func idRange(from, to int) []int {
	var out []int
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
