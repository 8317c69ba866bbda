package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-file-drop/internal/store"
)

func TestFiles_UnknownTask(t *testing.T) {
	s := newTestServer(t, store.NewMemoryStore(), Config{})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/uploadfiles/T9", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, codeNotFound, body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestFiles_ReturnsEveryRecord(t *testing.T) {
	mem := store.NewMemoryStore()
	_, err := mem.InsertAll(context.Background(), []store.FileRecord{
		{TaskID: "T1", Filename: "a.txt", Data: []byte("a")},
		{TaskID: "T1", Filename: "b.txt", Data: []byte("b")},
		{TaskID: "T1", Filename: "c.txt", Data: []byte("c")},
		{TaskID: "T2", Filename: "a.txt", Data: []byte("other")},
	})
	require.NoError(t, err)
	s := newTestServer(t, mem, Config{})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/uploadfiles/T1", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var got filesResp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Len(t, got.Files, 3)
	for _, f := range got.Files {
		assert.Equal(t, "T1", f.TaskID)
	}
	assert.NotContains(t, rr.Body.String(), "objectKey")
}

func TestFiles_EscapedTaskID(t *testing.T) {
	mem := store.NewMemoryStore()
	_, err := mem.InsertAll(context.Background(), []store.FileRecord{{TaskID: "a/b", Filename: "x"}})
	require.NoError(t, err)
	s := newTestServer(t, mem, Config{})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/uploadfiles/a%2Fb", nil))
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestFiles_OpaqueTaskIDsRoundTrip(t *testing.T) {
	mem := store.NewMemoryStore()
	_, err := mem.InsertAll(context.Background(), []store.FileRecord{{TaskID: "aA", Filename: "other.txt"}})
	require.NoError(t, err)
	s := newTestServer(t, mem, Config{})

	for _, id := range []string{"50%", "a%41", "%zz", "a b", "a/b", "a/%2F", " "} {
		t.Run(id, func(t *testing.T) {
			rr := serve(s, multipartRequest(t, id, testFile{name: "f.txt", body: id}))
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			rr = serve(s, httptest.NewRequest(http.MethodGet, "/uploadfiles/"+url.PathEscape(id), nil))
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			var got filesResp
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			require.Len(t, got.Files, 1)
			assert.Equal(t, id, got.Files[0].TaskID)
			assert.Equal(t, "f.txt", got.Files[0].Filename)
		})
	}
}

func TestTaskIDParam(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"/uploadfiles/T1", "T1"},
		{"/uploadfiles/50%25", "50%"},
		{"/uploadfiles/a%2541", "a%41"},
		{"/uploadfiles/a%20b", "a b"},
		{"/uploadfiles/a%2Fb", "a/b"},
		{"/uploadfiles/a%2F%2541", "a/%41"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var got string
			r := chi.NewRouter()
			r.Get("/uploadfiles/{taskId}", func(w http.ResponseWriter, req *http.Request) {
				var err error
				got, err = taskIDParam(req)
				require.NoError(t, err)
			})
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFiles_StorageFailure(t *testing.T) {
	s := newTestServer(t, brokenStore{}, Config{})

	rr := serve(s, httptest.NewRequest(http.MethodGet, "/uploadfiles/T1", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, codeStorageFailure, decodeBody(t, rr)["error"])
}
