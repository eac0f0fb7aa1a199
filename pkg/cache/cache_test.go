package cache

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openshelf/shelfctl/pkg/library"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()

	c := New(testLogger(), cfg)
	t.Cleanup(c.Stop)

	return c
}

// countingFetcher returns a fetcher that counts invocations and can
// block until released.
func countingFetcher(value any, calls *atomic.Int32, gate chan struct{}) Fetcher {
	return func(ctx context.Context) (any, error) {
		calls.Add(1)

		if gate != nil {
			<-gate
		}

		return value, nil
	}
}

func TestQuery_ConcurrentReadsShareOneFetch(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int32

	gate := make(chan struct{})
	fetcher := countingFetcher("books-page", &calls, gate)

	const readers = 5

	var wg sync.WaitGroup

	results := make([]Result, readers)

	for i := 0; i < readers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			results[i] = c.Query(context.Background(), "books/list/_", fetcher, Options{})
		}(i)
	}

	// Give all readers time to pile up on the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent identical reads must collapse into one fetch")

	for _, res := range results {
		assert.Equal(t, StatusSuccess, res.Status)
		assert.Equal(t, "books-page", res.Data)
	}
}

func TestQuery_FreshHitSkipsNetwork(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int32

	fetcher := countingFetcher("v1", &calls, nil)

	first := c.Query(context.Background(), "books/detail/1", fetcher, Options{})
	require.Equal(t, StatusSuccess, first.Status)

	second := c.Query(context.Background(), "books/detail/1", fetcher, Options{})
	assert.Equal(t, "v1", second.Data)
	assert.False(t, second.Stale)
	assert.Equal(t, int32(1), calls.Load(), "fresh data must be served without a fetch")
}

func TestQuery_StaleWhileRevalidate(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int32

	var value atomic.Value

	value.Store("v1")

	fetcher := func(ctx context.Context) (any, error) {
		calls.Add(1)

		return value.Load(), nil
	}

	opts := Options{StaleTime: 10 * time.Millisecond}

	first := c.Query(context.Background(), "books/list/_", fetcher, opts)
	require.Equal(t, "v1", first.Data)

	time.Sleep(20 * time.Millisecond)
	value.Store("v2")

	// Stale read: served immediately from cache, refetch in background.
	second := c.Query(context.Background(), "books/list/_", fetcher, opts)
	assert.Equal(t, "v1", second.Data)
	assert.True(t, second.Stale)

	require.Eventually(t, func() bool {
		res, ok := c.Peek("books/list/_")

		return ok && res.Data == "v2" && !res.Stale
	}, time.Second, 5*time.Millisecond, "background refetch must land")

	assert.Equal(t, int32(2), calls.Load())
}

func TestQuery_AlwaysStaleDisablesReuse(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int32

	fetcher := countingFetcher("v", &calls, nil)
	opts := Options{AlwaysStale: true}

	c.Query(context.Background(), "dashboard/data", fetcher, opts)
	c.Query(context.Background(), "dashboard/data", fetcher, opts)

	require.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestQuery_DisabledStaysIdle(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int32

	fetcher := countingFetcher("v", &calls, nil)

	// Detail query with no usable id: no network, idle status.
	res := c.Query(context.Background(), BookDetailKey(0), fetcher, Options{Disabled: true})

	assert.Equal(t, StatusIdle, res.Status)
	assert.Nil(t, res.Data)
	assert.NoError(t, res.Err)
	assert.Equal(t, int32(0), calls.Load())
}

func TestQuery_ErrorKeepsPreviousData(t *testing.T) {
	c := newTestCache(t, Config{})

	var fail atomic.Bool

	fetcher := func(ctx context.Context) (any, error) {
		if fail.Load() {
			return nil, errors.New("boom")
		}

		return "good", nil
	}

	opts := Options{StaleTime: 10 * time.Millisecond}

	first := c.Query(context.Background(), "books/list/_", fetcher, opts)
	require.Equal(t, "good", first.Data)

	fail.Store(true)
	time.Sleep(20 * time.Millisecond)

	// Stale read triggers a background refetch that fails; the last
	// successful data sticks around.
	c.Query(context.Background(), "books/list/_", fetcher, opts)

	require.Eventually(t, func() bool {
		res, _ := c.Peek("books/list/_")

		return res.Status == StatusError
	}, time.Second, 5*time.Millisecond)

	res, _ := c.Peek("books/list/_")
	assert.Equal(t, "good", res.Data, "previous data is retained for display continuity")
	assert.Error(t, res.Err)
}

func TestInvalidate_PrefixMatching(t *testing.T) {
	c := newTestCache(t, Config{})

	var listCalls, detailCalls, overdueCalls atomic.Int32

	c.Query(context.Background(), "borrowings/list/_", countingFetcher("l", &listCalls, nil), Options{})
	c.Query(context.Background(), "borrowings/detail/7", countingFetcher("d", &detailCalls, nil), Options{})
	c.Query(context.Background(), "borrowings/overdue/_", countingFetcher("o", &overdueCalls, nil), Options{})

	c.Invalidate("borrowings/list")

	list, _ := c.Peek("borrowings/list/_")
	detail, _ := c.Peek("borrowings/detail/7")
	overdue, _ := c.Peek("borrowings/overdue/_")

	assert.True(t, list.Stale)
	assert.False(t, detail.Stale, "sibling families must not be invalidated")
	assert.False(t, overdue.Stale)
}

func TestKey_HasPrefixRespectsSegments(t *testing.T) {
	assert.True(t, Key("books/list/_").HasPrefix("books/list"))
	assert.True(t, Key("books/list").HasPrefix("books/list"))
	assert.True(t, Key("books/list/_").HasPrefix("books"))
	assert.False(t, Key("books/listing").HasPrefix("books/list"))
	assert.False(t, Key("borrowings/overdue/_").HasPrefix("borrowings/list"))
}

func TestSubscribe_IntervalRefetchAndUnsubscribe(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int32

	fetcher := countingFetcher("tick", &calls, nil)

	var mu sync.Mutex

	var seen []Result

	unsubscribe := c.Subscribe("dashboard/data", fetcher, Options{
		RefetchInterval: 10 * time.Millisecond,
	}, func(res Result) {
		mu.Lock()
		seen = append(seen, res)
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, time.Second, 5*time.Millisecond, "interval refetch must keep polling")

	unsubscribe()

	mu.Lock()
	countAtUnsub := len(seen)
	mu.Unlock()

	// No further callbacks after unsubscribe.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	countAfter := len(seen)
	mu.Unlock()

	assert.LessOrEqual(t, countAfter, countAtUnsub+1,
		"callbacks must stop after unsubscribe")

	// Unsubscribing twice is a no-op.
	unsubscribe()
}

func TestInvalidate_RefetchesSubscribedKeys(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int32

	fetcher := countingFetcher("books", &calls, nil)

	unsubscribe := c.Subscribe("books/list/_", fetcher, Options{}, func(Result) {})
	defer unsubscribe()

	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	c.Invalidate("books/list")

	require.Eventually(t, func() bool {
		return calls.Load() == 2
	}, time.Second, 5*time.Millisecond, "invalidation must refetch for active subscribers")
}

func TestClear_DropsEverything(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int32

	fetcher := countingFetcher("v", &calls, nil)

	c.Query(context.Background(), "books/list/_", fetcher, Options{})
	c.Clear()

	_, ok := c.Peek("books/list/_")
	assert.False(t, ok)

	c.Query(context.Background(), "books/list/_", fetcher, Options{})
	assert.Equal(t, int32(2), calls.Load(), "cleared entries must refetch")
}

func TestKeys_Canonical(t *testing.T) {
	assert.Equal(t, Key("books/detail/42"), BookDetailKey(42))
	assert.Equal(t, Key("books/list/_"), BooksListKey(library.BooksParams{}))
	assert.Equal(t,
		BooksListKey(library.BooksParams{Genre: "Fiction", Page: 2}),
		BooksListKey(library.BooksParams{Page: 2, Genre: "Fiction"}),
		"identical logical requests must map to one key")
	assert.True(t, BorrowingDetailKey(7).HasPrefix(BorrowingsDetailsKey))
	assert.True(t, OverdueBorrowingsKey(library.BorrowingsParams{}).HasPrefix(BorrowingsOverdueKey))
}
