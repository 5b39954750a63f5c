package event

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPReport(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	e := Event{Type: TypeBootRequest, MACAddress: "aa:bb:cc:dd:ee:ff", Description: "pxelinux.0"}
	require.NoError(t, HTTP{URL: srv.URL, Client: srv.Client()}.Report(context.Background(), e))
	assert.Equal(t, e, got)
}

func TestHTTPReportRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := HTTP{URL: srv.URL}.Report(context.Background(), Event{Type: TypeBootRequest})
	assert.Error(t, err)
}

func TestLogReport(t *testing.T) {
	assert.NoError(t, Log{Log: logr.Discard()}.Report(context.Background(), Event{}))
}
