package blob

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPStoreReadReturnsPayload(testContext *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ts") == "" {
			testContext.Errorf("expected cache-busting query parameter")
		}
		if r.Header.Get("Authorization") != "Bearer read-token" {
			testContext.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"id":"m-1"}`))
	}))
	defer testServer.Close()

	store, err := NewHTTPStore(HTTPStoreConfig{
		BaseURL:   testServer.URL,
		ReadToken: "read-token",
	})
	if err != nil {
		testContext.Fatalf("unexpected constructor error: %v", err)
	}

	data, err := store.Read(context.Background(), "memories/m-1.json")
	if err != nil {
		testContext.Fatalf("unexpected read error: %v", err)
	}
	if string(data) != `{"id":"m-1"}` {
		testContext.Fatalf("unexpected payload %s", data)
	}
}

func TestHTTPStoreReadFailsOpenOnNotFound(testContext *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer testServer.Close()

	store, err := NewHTTPStore(HTTPStoreConfig{BaseURL: testServer.URL})
	if err != nil {
		testContext.Fatalf("unexpected constructor error: %v", err)
	}

	data, err := store.Read(context.Background(), "memories/absent.json")
	if err != nil {
		testContext.Fatalf("expected fail-open read, got %v", err)
	}
	if data != nil {
		testContext.Fatalf("expected nil payload, got %s", data)
	}
}

func TestHTTPStoreReadFailsOpenOnServerError(testContext *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer testServer.Close()

	store, err := NewHTTPStore(HTTPStoreConfig{BaseURL: testServer.URL})
	if err != nil {
		testContext.Fatalf("unexpected constructor error: %v", err)
	}

	data, err := store.Read(context.Background(), "memories/m-1.json")
	if err != nil || data != nil {
		testContext.Fatalf("expected fail-open read, got data=%s err=%v", data, err)
	}
}

func TestHTTPStoreWriteRequiresCredential(testContext *testing.T) {
	store, err := NewHTTPStore(HTTPStoreConfig{BaseURL: "http://blob.invalid"})
	if err != nil {
		testContext.Fatalf("unexpected constructor error: %v", err)
	}

	err = store.Write(context.Background(), "memories/m-1.json", []byte("{}"))
	if !errors.Is(err, ErrMissingWriteCredential) {
		testContext.Fatalf("expected missing credential error, got %v", err)
	}
	err = store.Delete(context.Background(), "memories/m-1.json")
	if !errors.Is(err, ErrMissingWriteCredential) {
		testContext.Fatalf("expected missing credential error, got %v", err)
	}
}

func TestHTTPStoreWriteSendsBearerToken(testContext *testing.T) {
	var receivedAuth, receivedMethod string
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedAuth = r.Header.Get("Authorization")
		receivedMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer testServer.Close()

	store, err := NewHTTPStore(HTTPStoreConfig{
		BaseURL:    testServer.URL,
		WriteToken: "write-token",
	})
	if err != nil {
		testContext.Fatalf("unexpected constructor error: %v", err)
	}

	if err := store.Write(context.Background(), "memories/m-1.json", []byte("{}")); err != nil {
		testContext.Fatalf("unexpected write error: %v", err)
	}
	if receivedAuth != "Bearer write-token" {
		testContext.Fatalf("unexpected authorization header %q", receivedAuth)
	}
	if receivedMethod != http.MethodPut {
		testContext.Fatalf("unexpected method %s", receivedMethod)
	}
}

func TestHTTPStoreWriteSurfacesRejection(testContext *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer testServer.Close()

	store, err := NewHTTPStore(HTTPStoreConfig{
		BaseURL:    testServer.URL,
		WriteToken: "write-token",
	})
	if err != nil {
		testContext.Fatalf("unexpected constructor error: %v", err)
	}

	if err := store.Write(context.Background(), "memories/m-1.json", []byte("{}")); err == nil {
		testContext.Fatalf("expected write rejection to surface")
	}
}

func TestHTTPStoreListFollowsCursor(testContext *testing.T) {
	pages := map[string]listResponsePayload{
		"":             {Keys: []string{"index/a.json", "index/b.json"}, Cursor: "index/b.json"},
		"index/b.json": {Keys: []string{"index/c.json"}},
	}
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("prefix") != "index/" {
			testContext.Errorf("unexpected prefix %q", r.URL.Query().Get("prefix"))
		}
		page := pages[r.URL.Query().Get("cursor")]
		json.NewEncoder(w).Encode(page)
	}))
	defer testServer.Close()

	store, err := NewHTTPStore(HTTPStoreConfig{BaseURL: testServer.URL})
	if err != nil {
		testContext.Fatalf("unexpected constructor error: %v", err)
	}

	first, err := store.List(context.Background(), "index/", "", 2)
	if err != nil {
		testContext.Fatalf("unexpected list error: %v", err)
	}
	if len(first.Keys) != 2 || first.Cursor != "index/b.json" {
		testContext.Fatalf("unexpected first page %+v", first)
	}

	second, err := store.List(context.Background(), "index/", first.Cursor, 2)
	if err != nil {
		testContext.Fatalf("unexpected list error: %v", err)
	}
	if len(second.Keys) != 1 || second.Cursor != "" {
		testContext.Fatalf("unexpected second page %+v", second)
	}
}

func TestReadJSONReportsMissingKeys(testContext *testing.T) {
	testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer testServer.Close()

	store, err := NewHTTPStore(HTTPStoreConfig{BaseURL: testServer.URL})
	if err != nil {
		testContext.Fatalf("unexpected constructor error: %v", err)
	}

	var value map[string]string
	found, err := ReadJSON(context.Background(), store, "memories/absent.json", &value)
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if found {
		testContext.Fatalf("expected found=false for missing key")
	}
}
