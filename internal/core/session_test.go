package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_TokenChecks(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(3))

	_, err := env.svc.Resolve(ctx, "", sess.ID)
	assert.ErrorIs(t, err, ErrSession)
	assert.Equal(t, "SES001", MapError(err).Code)

	got, err := env.svc.Resolve(ctx, sess.ID, sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	got, err = env.svc.Resolve(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestResolve_MismatchEvictsBoundSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(60))
	_, err := env.svc.BulkDelete(ctx, sess, idRange(0, 55))
	require.NoError(t, err)
	require.Equal(t, 1, env.blobs.count())

	_, err = env.svc.Resolve(ctx, "someone-else", sess.ID)
	assert.ErrorIs(t, err, ErrSession)
	assert.Equal(t, "SES002", MapError(err).Code)

	assert.Equal(t, StateMissing, sess.State())
	assert.Equal(t, 0, env.blobs.count(), "history blobs freed on eviction")
	assert.True(t, env.snapshots.has(sess.ID), "snapshot survives eviction")

	_, err = env.svc.UpdateCell(ctx, sess, 56, "Vendor", "x")
	assert.ErrorIs(t, err, ErrSession)
}

func TestRehydrate_RebuildsOriginalLoad(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(4))
	original, _ := env.svc.View(ctx, sess)

	_, err := env.svc.DeleteRow(ctx, sess, 1)
	require.NoError(t, err)
	_, err = env.svc.UpdateCell(ctx, sess, 0, "Vendor", "Changed")
	require.NoError(t, err)

	env.svc.Sessions().Evict(ctx, sess.ID)
	require.Equal(t, 0, env.svc.Sessions().Live())

	again, err := env.svc.Resolve(ctx, sess.ID, sess.ID)
	require.NoError(t, err)
	assert.NotSame(t, sess, again)
	assert.Equal(t, StateReady, again.State())
	assert.Equal(t, 0, again.HistoryLen())

	view, err := env.svc.View(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, original.Rows, view.Rows)
	assert.Equal(t, original.FileName, view.FileName)
}

func TestRehydrate_NoSnapshotIsSessionError(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.Rehydrate(ctx, "never-loaded")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSession)
	assert.Equal(t, "SES003", MapError(err).Code)
	assert.Equal(t, 0, env.svc.Sessions().Live())
}

func TestRehydrate_ConcurrentRequestsShareOneSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(5))
	env.svc.Sessions().Evict(ctx, sess.ID)

	const workers = 8
	got := make([]*Session, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := env.svc.Resolve(ctx, sess.ID, "")
			if err != nil {
				t.Errorf("Resolve: %v", err)
				return
			}
			got[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, got[0], got[i])
	}
	assert.Equal(t, 1, env.svc.Sessions().Live())
}

func TestSnapshotIsNotMutatedByEdits(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, vendorDataset())

	_, err := env.svc.UpdateCell(ctx, sess, 0, "vendor", "Globex")
	require.NoError(t, err)
	_, err = env.svc.DeleteColumn(ctx, sess, "amount")
	require.NoError(t, err)

	ds, err := env.snapshots.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, vendorDataset().Records, ds.Records)
	assert.Equal(t, []string{"vendor", "amount"}, ds.Columns)
}

func TestLoad_SnapshotFailureIsStorageError(t *testing.T) {
	env := newTestEnv(t)
	env.snapshots.failSav = true

	_, _, err := env.svc.Load(context.Background(), vendorDataset())
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, 0, env.svc.Sessions().Live())
}

func TestTeardown(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sess := env.load(t, invoiceDataset(60))
	_, err := env.svc.BulkDelete(ctx, sess, idRange(0, 51))
	require.NoError(t, err)

	require.NoError(t, env.svc.Teardown(ctx, sess.ID))

	assert.False(t, env.snapshots.has(sess.ID))
	assert.Equal(t, 0, env.blobs.count())
	_, err = env.svc.Resolve(ctx, sess.ID, "")
	assert.ErrorIs(t, err, ErrSession)

	require.NoError(t, env.svc.Teardown(ctx, sess.ID), "teardown is idempotent")
}

func TestSweep_RemovesStaleArtifacts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.load(t, invoiceDataset(2))
	sess := env.load(t, invoiceDataset(60))
	_, err := env.svc.BulkDelete(ctx, sess, idRange(0, 55))
	require.NoError(t, err)

	res, err := env.svc.Sweep(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, SweepResult{}, res)

	orphan, err := env.blobs.Put(ctx, []byte("orphan"))
	require.NoError(t, err)

	res, err = env.svc.Sweep(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Snapshots)
	assert.Equal(t, 1, res.Blobs, "only the orphan goes; the live undo blob stays")
	assert.False(t, env.blobs.has(orphan))
	assert.Equal(t, 1, env.blobs.count())
}

func TestStartSweepScheduler_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.svc.StartSweepScheduler(ctx, SweepConfig{Retention: time.Hour, CheckInterval: 10 * time.Millisecond})
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
