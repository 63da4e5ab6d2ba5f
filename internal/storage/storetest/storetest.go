// Package storetest is a conformance suite every tus.DataStore must pass.
package storetest

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"resumable/pkg/tus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store configured with cfg.
type Factory func(t *testing.T, cfg tus.StoreConfig) tus.DataStore

// Config is the store configuration used throughout the suite.
func Config() tus.StoreConfig {
	return tus.StoreConfig{Path: "/files"}
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateValidatesLength", func(t *testing.T) { testCreateValidatesLength(t, newStore) })
	t.Run("WriteSequentialChunks", func(t *testing.T) { testWriteSequentialChunks(t, newStore) })
	t.Run("WriteRejectsStaleOffset", func(t *testing.T) { testWriteRejectsStaleOffset(t, newStore) })
	t.Run("WriteStopsAtLength", func(t *testing.T) { testWriteStopsAtLength(t, newStore) })
	t.Run("ConcurrentWritesSameOffset", func(t *testing.T) { testConcurrentWritesSameOffset(t, newStore) })
	t.Run("InterruptedWriteKeepsPrefix", func(t *testing.T) { testInterruptedWriteKeepsPrefix(t, newStore) })
	t.Run("RemoveIsTerminal", func(t *testing.T) { testRemoveIsTerminal(t, newStore) })
	t.Run("DeferredLength", func(t *testing.T) { testDeferredLength(t, newStore) })
	t.Run("Events", func(t *testing.T) { testEvents(t, newStore) })
	t.Run("CustomIDGenerator", func(t *testing.T) { testCustomIDGenerator(t, newStore) })
}

func create(t *testing.T, store tus.DataStore, length int64) *tus.Upload {
	t.Helper()
	upload, err := store.Create(t.Context(), tus.NewUploadSpec(length, "filename dGVzdC5iaW4="))
	require.NoError(t, err, "Create error")
	return upload
}

func readAll(t *testing.T, store tus.DataStore, id string) []byte {
	t.Helper()
	reader, ok := store.(tus.Reader)
	if !ok {
		t.Skip("store is not readable")
	}
	rc, err := reader.Read(t.Context(), id)
	require.NoError(t, err, "Read error")
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err, "reading stream")
	return data
}

func testCreateValidatesLength(t *testing.T, newStore Factory) {
	store := newStore(t, Config())

	_, err := store.Create(t.Context(), tus.UploadSpec{Length: -1})
	require.ErrorIs(t, err, tus.ErrInvalidLength, "neither length nor deferred")

	_, err = store.Create(t.Context(), tus.UploadSpec{Length: 10, LengthDeferred: true})
	require.ErrorIs(t, err, tus.ErrInvalidLength, "both length and deferred")

	upload := create(t, store, 10)
	require.NotEmpty(t, upload.ID, "id must be assigned")
	require.Zero(t, upload.Size, "new upload is empty")
	require.False(t, upload.CreatedAt.IsZero(), "created_at should be set")

	got, err := store.GetOffset(t.Context(), upload.ID)
	require.NoError(t, err, "GetOffset error")
	require.Equal(t, int64(10), got.Length, "length")
	require.Equal(t, "filename dGVzdC5iaW4=", got.Metadata, "metadata verbatim")

	other := create(t, store, 10)
	require.NotEqual(t, upload.ID, other.ID, "ids must be unique")

	_, err = store.GetOffset(t.Context(), "doesnotexist")
	require.ErrorIs(t, err, tus.ErrFileNotFound, "GetOffset on unknown id")
}

func testWriteSequentialChunks(t *testing.T, newStore Factory) {
	store := newStore(t, Config())
	upload := create(t, store, 11)

	n, err := store.Write(t.Context(), upload.ID, 0, strings.NewReader("hello "))
	require.NoError(t, err, "first Write error")
	require.Equal(t, int64(6), n, "offset after first chunk")

	n, err = store.Write(t.Context(), upload.ID, 6, strings.NewReader("world"))
	require.NoError(t, err, "second Write error")
	require.Equal(t, int64(11), n, "offset after second chunk")

	got, err := store.GetOffset(t.Context(), upload.ID)
	require.NoError(t, err, "GetOffset error")
	require.True(t, got.IsComplete(), "upload should be complete")

	require.Equal(t, "hello world", string(readAll(t, store, upload.ID)), "payload")
}

func testWriteRejectsStaleOffset(t *testing.T, newStore Factory) {
	store := newStore(t, Config())
	upload := create(t, store, 10)

	_, err := store.Write(t.Context(), upload.ID, 5, strings.NewReader("abc"))
	require.ErrorIs(t, err, tus.ErrInvalidOffset, "Write at wrong offset")

	got, err := store.GetOffset(t.Context(), upload.ID)
	require.NoError(t, err, "GetOffset error")
	require.Zero(t, got.Size, "size must be unchanged")

	_, err = store.Write(t.Context(), "doesnotexist", 0, strings.NewReader("abc"))
	require.ErrorIs(t, err, tus.ErrFileNotFound, "Write on unknown id")
}

func testWriteStopsAtLength(t *testing.T, newStore Factory) {
	store := newStore(t, Config())
	upload := create(t, store, 4)

	n, err := store.Write(t.Context(), upload.ID, 0, strings.NewReader("abcdefgh"))
	require.NoError(t, err, "Write error")
	require.Equal(t, int64(4), n, "size must not pass the length")
	require.Equal(t, "abcd", string(readAll(t, store, upload.ID)), "payload")
}

func testConcurrentWritesSameOffset(t *testing.T, newStore Factory) {
	store := newStore(t, Config())
	upload := create(t, store, 100)

	const writers = 8

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0

	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			chunk := bytes.Repeat([]byte{byte('a' + i)}, 10)
			_, err := store.Write(t.Context(), upload.ID, 0, bytes.NewReader(chunk))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, tus.ErrInvalidOffset, "losing writers must see an offset conflict")
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded, "exactly one writer may win offset 0")

	got, err := store.GetOffset(t.Context(), upload.ID)
	require.NoError(t, err, "GetOffset error")
	require.Equal(t, int64(10), got.Size, "only one chunk stored")

	data := readAll(t, store, upload.ID)
	require.Len(t, data, 10, "payload length")
	require.Equal(t, bytes.Repeat(data[:1], 10), data, "payload must come from a single writer")
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func testInterruptedWriteKeepsPrefix(t *testing.T, newStore Factory) {
	store := newStore(t, Config())
	upload := create(t, store, 20)

	broken := errors.New("connection reset")
	n, err := store.Write(t.Context(), upload.ID, 0, &failingReader{data: []byte("12345"), err: broken})
	require.Error(t, err, "interrupted Write should fail")

	got, getErr := store.GetOffset(t.Context(), upload.ID)
	require.NoError(t, getErr, "GetOffset error")
	require.LessOrEqual(t, got.Size, int64(5), "size must not run ahead of received bytes")
	require.Equal(t, n, got.Size, "returned offset must match the record")

	rest := "1234567890abcdefghij"[got.Size:]
	n, err = store.Write(t.Context(), upload.ID, got.Size, strings.NewReader(rest))
	require.NoError(t, err, "resumed Write error")
	require.Equal(t, int64(20), n, "resumed upload completes")
	require.Equal(t, "1234567890abcdefghij"[:got.Size]+rest, string(readAll(t, store, upload.ID)), "payload after resume")
}

func testRemoveIsTerminal(t *testing.T, newStore Factory) {
	store := newStore(t, Config())
	upload := create(t, store, 3)

	_, err := store.Write(t.Context(), upload.ID, 0, strings.NewReader("abc"))
	require.NoError(t, err, "Write error")

	require.NoError(t, store.Remove(t.Context(), upload.ID), "Remove error")
	require.ErrorIs(t, store.Remove(t.Context(), upload.ID), tus.ErrFileNotFound, "second Remove")

	_, err = store.GetOffset(t.Context(), upload.ID)
	require.ErrorIs(t, err, tus.ErrFileNotFound, "GetOffset after Remove")

	_, err = store.Write(t.Context(), upload.ID, 3, strings.NewReader(""))
	require.ErrorIs(t, err, tus.ErrFileNotFound, "Write after Remove")

	if reader, ok := store.(tus.Reader); ok {
		_, err = reader.Read(t.Context(), upload.ID)
		require.ErrorIs(t, err, tus.ErrFileNotFound, "Read after Remove")
	}
}

func testDeferredLength(t *testing.T, newStore Factory) {
	store := newStore(t, Config())

	declarer, ok := store.(tus.LengthDeclarer)
	if !ok {
		t.Skip("store cannot declare lengths")
	}

	upload, err := store.Create(t.Context(), tus.NewDeferredUploadSpec(""))
	require.NoError(t, err, "Create error")
	require.True(t, upload.LengthDeferred, "deferred flag")

	n, err := store.Write(t.Context(), upload.ID, 0, strings.NewReader("abc"))
	require.NoError(t, err, "Write without a length error")
	require.Equal(t, int64(3), n, "offset")

	require.ErrorIs(t, declarer.DeclareLength(t.Context(), upload.ID, 2), tus.ErrInvalidLength, "length below size")
	require.NoError(t, declarer.DeclareLength(t.Context(), upload.ID, 6), "DeclareLength error")
	require.ErrorIs(t, declarer.DeclareLength(t.Context(), upload.ID, 7), tus.ErrInvalidLength, "length is write-once")

	got, err := store.GetOffset(t.Context(), upload.ID)
	require.NoError(t, err, "GetOffset error")
	require.False(t, got.LengthDeferred, "deferred flag cleared")
	require.Equal(t, int64(6), got.Length, "declared length")

	n, err = store.Write(t.Context(), upload.ID, 3, strings.NewReader("defxyz"))
	require.NoError(t, err, "Write error")
	require.Equal(t, int64(6), n, "write stops at the declared length")
}

func testEvents(t *testing.T, newStore Factory) {
	store := newStore(t, Config())

	var mu sync.Mutex
	var events []tus.Event
	record := func(ev tus.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}

	store.On(tus.EventUploadCreated, 1, record)
	store.On(tus.EventUploadComplete, 1, record)
	store.On(tus.EventFileDeleted, 1, record)

	upload := create(t, store, 4)
	_, err := store.Write(t.Context(), upload.ID, 0, strings.NewReader("ab"))
	require.NoError(t, err, "Write error")
	_, err = store.Write(t.Context(), upload.ID, 2, strings.NewReader("cd"))
	require.NoError(t, err, "Write error")
	require.NoError(t, store.Remove(t.Context(), upload.ID), "Remove error")

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, events, 3, "events raised")
	require.Equal(t, tus.EventUploadCreated, events[0].Kind, "first event")
	require.Equal(t, tus.EventUploadComplete, events[1].Kind, "second event")
	require.Equal(t, int64(4), events[1].Upload.Size, "complete event carries the upload")
	require.Equal(t, tus.EventFileDeleted, events[2].Kind, "third event")
	require.Equal(t, upload.ID, events[2].ID, "deleted id")

	store.Off(tus.EventUploadCreated, 1)
	create(t, store, 1)
	require.Len(t, events, 3, "no events after Off")
}

func testCustomIDGenerator(t *testing.T, newStore Factory) {
	cfg := Config()
	next := 0
	cfg.IDGenerator = func() string {
		next++
		return strings.Repeat("x", 30) + string(rune('0'+next)) + "z"
	}

	store := newStore(t, cfg)
	upload := create(t, store, 1)
	require.Equal(t, strings.Repeat("x", 30)+"1z", upload.ID, "generated id")
}
