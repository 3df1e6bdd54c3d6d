package queue

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fieldmission/internal/kv"
	"fieldmission/internal/observability"
	"fieldmission/pkg/domain"
)

// flakyStore wraps a kv.Store and fails writes or reads on demand.
type flakyStore struct {
	kv.Store
	mu       sync.Mutex
	failSet  bool
	failGet  bool
	failDel  bool
	setCalls int
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return nil, false, errors.New("disk unreadable")
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.setCalls++
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Store.Set(ctx, key, value)
}

func (f *flakyStore) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	fail := f.failDel
	f.mu.Unlock()
	if fail {
		return errors.New("disk locked")
	}
	return f.Store.Remove(ctx, key)
}

func sample(desc string) domain.Submission {
	draft := domain.FormDraft{
		SelectedAsset:     &domain.Asset{ID: "a1", Name: "Truck"},
		SelectedDriver:    &domain.Driver{ID: "d1", FirstName: "Awa", LastName: "Diop"},
		SelectedContainer: &domain.Container{ID: "c1", Name: "Bac 7"},
		Description:       desc,
		Date:              "2024-05-02",
		Location:          &domain.GeoFix{Latitude: 14.7, Longitude: -17.4},
	}
	return domain.Compose(draft, "form-1", "Collecte", domain.User{ID: "u1", CompanyOwner: "co1"})
}

func newQueue(t *testing.T, opts ...Option) (*Queue, *flakyStore) {
	t.Helper()
	store := &flakyStore{Store: kv.NewMemory()}
	q := New(store, opts...)
	require.Empty(t, q.Load(context.Background()))
	return q, store
}

func TestEnqueueAddsExactlyOneUniqueEntry(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		before := q.List()
		id, err := q.Enqueue(ctx, sample("test"))
		require.NoError(t, err)
		require.False(t, seen[id], "id reused: %s", id)
		seen[id] = true
		after := q.List()
		require.Len(t, after, len(before)+1)
		require.Equal(t, id, after[len(after)-1].ID)
		require.Equal(t, len(after), q.Count())
	}
}

func TestEnqueueTimestampsAreMonotonic(t *testing.T) {
	fixed := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	q, _ := newQueue(t, WithClock(func() time.Time { return fixed }))
	ctx := context.Background()
	_, err := q.Enqueue(ctx, sample("one"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, sample("two"))
	require.NoError(t, err)
	entries := q.List()
	require.True(t, entries[1].EnqueuedAt.After(entries[0].EnqueuedAt))
	require.Equal(t, "Collecte", entries[0].Title)
}

func TestRoundTripThroughPersistence(t *testing.T) {
	ctx := context.Background()
	q, store := newQueue(t)
	sub := sample("round trip")
	id, err := q.Enqueue(ctx, sub)
	require.NoError(t, err)

	reloaded := New(store)
	entries := reloaded.Load(ctx)
	require.Len(t, entries, 1)
	require.Equal(t, id, entries[0].ID)
	require.Equal(t, sub, entries[0].Payload)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q, store := newQueue(t)
	keep, err := q.Enqueue(ctx, sample("keep"))
	require.NoError(t, err)
	drop, err := q.Enqueue(ctx, sample("drop"))
	require.NoError(t, err)

	require.NoError(t, q.Delete(ctx, drop))
	require.Equal(t, 1, q.Count())
	writes := store.setCalls
	require.NoError(t, q.Delete(ctx, drop))
	require.Equal(t, 1, q.Count())
	require.Equal(t, writes, store.setCalls, "absent delete must not rewrite storage")
	require.NoError(t, q.Delete(ctx, "never-existed"))

	_, ok := q.Get(drop)
	require.False(t, ok)
	_, ok = q.Get(keep)
	require.True(t, ok)
	require.Len(t, New(store).Load(ctx), 1)
}

func TestClearRemovesPersistedRecord(t *testing.T) {
	ctx := context.Background()
	q, store := newQueue(t)
	_, err := q.Enqueue(ctx, sample("x"))
	require.NoError(t, err)
	require.NoError(t, q.Clear(ctx))
	require.Empty(t, q.List())
	require.Zero(t, q.Count())
	_, ok, err := store.Get(ctx, StorageKey)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdateReplacesPayloadOnly(t *testing.T) {
	ctx := context.Background()
	q, store := newQueue(t)
	id, err := q.Enqueue(ctx, sample("before"))
	require.NoError(t, err)
	original, _ := q.Get(id)

	require.NoError(t, q.UpdateDescription(ctx, id, "after"))
	updated, _ := q.Get(id)
	require.Equal(t, "after", updated.Payload.Data.Description)
	require.Equal(t, original.EnqueuedAt, updated.EnqueuedAt)
	require.Equal(t, original.Title, updated.Title)

	replacement := sample("replaced")
	require.NoError(t, q.Update(ctx, id, replacement))
	reloaded := New(store).Load(ctx)
	require.Equal(t, "replaced", reloaded[0].Payload.Data.Description)

	err = q.Update(ctx, "missing", replacement)
	require.True(t, domain.IsNotFound(err))
	require.Len(t, q.List(), 1)
}

func TestEnqueueStorageFailureLeavesMemoryUntouched(t *testing.T) {
	ctx := context.Background()
	metrics := observability.NewExpvarMetricsRecorder("")
	q, store := newQueue(t, WithMetrics(metrics))
	_, err := q.Enqueue(ctx, sample("ok"))
	require.NoError(t, err)

	store.failSet = true
	_, err = q.Enqueue(ctx, sample("lost"))
	var sErr *domain.StorageError
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, StorageKey, sErr.Key)
	require.Equal(t, 1, q.Count())

	require.Error(t, q.Delete(ctx, q.List()[0].ID))
	require.Equal(t, 1, q.Count())

	store.failDel = true
	require.Error(t, q.Clear(ctx))
	require.Equal(t, 1, q.Count())

	counts := metrics.Snapshot().Results
	require.Equal(t, int64(1), counts[observability.OpQueueEnqueue]["success"])
	require.Equal(t, int64(1), counts[observability.OpQueueEnqueue]["error"])
}

func TestLoadFailsSoft(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: kv.NewMemory()}
	require.NoError(t, store.Store.Set(ctx, StorageKey, []byte("{not json")))
	q := New(store)
	require.Empty(t, q.Load(ctx))

	store.failGet = true
	require.Empty(t, New(store).Load(ctx))
}

func TestUnreadableRecordIsNeverOverwritten(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: kv.NewMemory()}
	first := New(store)
	for _, desc := range []string{"one", "two", "three"} {
		_, err := first.Enqueue(ctx, sample(desc))
		require.NoError(t, err)
	}

	store.failGet = true
	second := New(store)
	require.Empty(t, second.Load(ctx))

	setsBefore := store.setCalls
	_, err := second.Enqueue(ctx, sample("rejected"))
	var sErr *domain.StorageError
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, "load", sErr.Op)
	require.Error(t, second.Delete(ctx, "anything"))
	require.Equal(t, setsBefore, store.setCalls, "nothing may be written while the record is unreadable")

	store.failGet = false
	_, err = second.Enqueue(ctx, sample("four"))
	require.NoError(t, err)
	require.Len(t, second.List(), 4)
	require.Len(t, New(store).Load(ctx), 4)
}

func TestLazyLoadBeforeMutation(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemory()
	first := New(store)
	_, err := first.Enqueue(ctx, sample("persisted"))
	require.NoError(t, err)

	second := New(store)
	_, err = second.Enqueue(ctx, sample("appended"))
	require.NoError(t, err)
	require.Len(t, second.List(), 2)
}

func TestConcurrentMutationsAreSerialized(t *testing.T) {
	ctx := context.Background()
	q, store := newQueue(t)
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Enqueue(ctx, sample("parallel"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, 20, q.Count())
	require.Len(t, New(store).Load(ctx), 20)
}

func TestSubscribeReceivesLatestCount(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	ch, cancel := q.Subscribe()
	_, err := q.Enqueue(ctx, sample("a"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, sample("b"))
	require.NoError(t, err)
	require.Equal(t, 2, <-ch)
	require.NoError(t, q.Clear(ctx))
	require.Equal(t, 0, <-ch)
	cancel()
	cancel()
	_, open := <-ch
	require.False(t, open)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	id, err := q.Enqueue(ctx, sample("exported"))
	require.NoError(t, err)

	var js bytes.Buffer
	require.NoError(t, q.Export(&js, FormatJSON))
	var decoded []Entry
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	require.Equal(t, id, decoded[0].ID)

	var out bytes.Buffer
	require.NoError(t, q.Export(&out, FormatCSV))
	rows, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, csvHeader, rows[0])
	require.Equal(t, id, rows[1][0])
	require.Equal(t, "Awa Diop", rows[1][9])
	require.Equal(t, "-17.4", rows[1][12])

	require.Error(t, q.Export(&out, "xml"))
}
