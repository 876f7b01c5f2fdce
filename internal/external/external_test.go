package external_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"contracker/internal/external"

	"github.com/stretchr/testify/require"
)

func TestStubVerifierRange(t *testing.T) {
	v := external.StubVerifier{}
	for i := 0; i < 50; i++ {
		score, remarks, err := v.Verify(context.Background(), nil)
		require.NoError(t, err)
		require.GreaterOrEqual(t, score, 60)
		require.LessOrEqual(t, score, 99)
		require.NotEmpty(t, remarks)
	}
}

func TestHTTPVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify", r.URL.Path)
		w.Write([]byte(`{"score": 82, "remarks": "ok"}`))
	}))
	defer srv.Close()

	v := external.NewHTTPVerifier(srv.URL)
	score, remarks, err := v.Verify(context.Background(), []string{"https://example.com/p.jpg"})
	require.NoError(t, err)
	require.Equal(t, 82, score)
	require.Equal(t, "ok", remarks)
}

func TestHTTPVerifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := external.NewHTTPVerifier(srv.URL)
	_, _, err := v.Verify(context.Background(), nil)
	require.Error(t, err)
}

func TestHTTPFundReleaser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/release", r.URL.Path)
		w.Write([]byte(`{"success": true, "receiptRef": "0xabc"}`))
	}))
	defer srv.Close()

	f := external.NewHTTPFundReleaser(srv.URL)
	ref, err := f.Release(context.Background(), "wallet-1", 1000)
	require.NoError(t, err)
	require.Equal(t, "0xabc", ref)
}

func TestHTTPFundReleaserRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false}`))
	}))
	defer srv.Close()

	f := external.NewHTTPFundReleaser(srv.URL)
	_, err := f.Release(context.Background(), "wallet-1", 1000)
	require.Error(t, err)
}
