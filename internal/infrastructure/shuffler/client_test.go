package shuffler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cobalt/pkg/cobalterr"
)

func TestClientUploadSuccess(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.Upload(t.Context(), []byte("sealed-envelope"))
	require.NoError(t, err)
	require.Equal(t, "sealed-envelope", string(gotBody))
}

func TestClientUploadBadRequestIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.Upload(t.Context(), []byte("sealed-envelope"))
	require.Error(t, err)
	require.False(t, cobalterr.IsRetryable(err))
}

func TestClientUploadServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.Upload(t.Context(), []byte("sealed-envelope"))
	require.Error(t, err)
	require.True(t, cobalterr.IsRetryable(err))
}

func TestClientUploadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	err := c.Upload(t.Context(), []byte("sealed-envelope"))
	require.Error(t, err)
	require.Equal(t, cobalterr.ObservationTooBig, cobalterr.StatusOf(err))
}
