package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/aiorch/internal/journal"
	"github.com/BaSui01/aiorch/types"
)

// fakeStore 记录最后一次查询条件
type fakeStore struct {
	entries []journal.Entry
	err     error
	last    journal.Filter
}

func (f *fakeStore) Recent(_ context.Context, filter journal.Filter) ([]journal.Entry, error) {
	f.last = filter
	return f.entries, f.err
}

func (f *fakeStore) ByRequest(_ context.Context, id string) ([]journal.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []journal.Entry
	for _, e := range f.entries {
		if e.RequestID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func sampleEntries() []journal.Entry {
	now := time.Now().UTC()
	return []journal.Entry{
		{ID: 2, RequestID: "req-2", AgentType: "summarizer", Status: "error", ErrorKind: "timeout_error", CreatedAt: now},
		{ID: 1, RequestID: "req-1", AgentType: "scorer", Status: "success", Attempts: 1, CreatedAt: now.Add(-time.Second)},
	}
}

func TestHandleRecent(t *testing.T) {
	store := &fakeStore{entries: sampleEntries()}
	h := NewResultsHandler(store, nil)

	w := httptest.NewRecorder()
	h.HandleRecent(w, httptest.NewRequest(http.MethodGet, "/v1/results?agent_type=scorer&status=success&limit=20", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeResponse(t, w).Data.([]any), 2)
	assert.Equal(t, journal.Filter{AgentType: "scorer", Status: types.StatusSuccess, Limit: 20}, store.last)
}

func TestHandleRecent_BadQuery(t *testing.T) {
	h := NewResultsHandler(&fakeStore{}, nil)

	for _, query := range []string{"status=pending", "limit=0", "limit=ten"} {
		t.Run(query, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.HandleRecent(w, httptest.NewRequest(http.MethodGet, "/v1/results?"+query, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleRecent_StoreError(t *testing.T) {
	h := NewResultsHandler(&fakeStore{err: errors.New("db gone")}, nil)

	w := httptest.NewRecorder()
	h.HandleRecent(w, httptest.NewRequest(http.MethodGet, "/v1/results", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.NotContains(t, resp.Error.Message, "db gone")
}

func TestHandleByRequest(t *testing.T) {
	h := NewResultsHandler(&fakeStore{entries: sampleEntries()}, nil)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/results/req-2", nil)
	r.SetPathValue("id", "req-2")
	h.HandleByRequest(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	list := decodeResponse(t, w).Data.([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "timeout_error", list[0].(map[string]any)["error_kind"])

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/v1/results/nope", nil)
	r.SetPathValue("id", "nope")
	h.HandleByRequest(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
