package cmd

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farhad-zada/holders-collaborators-claims/internal/explorer"
)

func setIndexRetries(t *testing.T, retries int, delay time.Duration) {
	t.Helper()
	origRetries, origDelay, origLogger := indexRetries, indexRetryDelay, logger
	indexRetries, indexRetryDelay = retries, delay
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() {
		indexRetries, indexRetryDelay, logger = origRetries, origDelay, origLogger
	})
}

func notIndexedExplorer(t *testing.T) (*explorer.Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Unable to locate ContractCode at 0x5fbdb2315678afecb367f032d93f642f64180aa3"}`))
	}))
	t.Cleanup(srv.Close)

	client, err := explorer.New(srv.URL, "test-key")
	require.NoError(t, err)
	return client, &calls
}

func TestSubmitVerification_RetriesWhileNotIndexed(t *testing.T) {
	setIndexRetries(t, 3, time.Millisecond)
	client, calls := notIndexedExplorer(t)

	_, err := submitVerification(context.Background(), client, explorer.VerifyRequest{
		Address: crypto.CreateAddress(devAccount, 0),
	})
	assert.ErrorIs(t, err, explorer.ErrNotIndexed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmitVerification_NoWaitAfterLastAttempt(t *testing.T) {
	setIndexRetries(t, 1, time.Hour)
	client, calls := notIndexedExplorer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := submitVerification(ctx, client, explorer.VerifyRequest{
		Address: crypto.CreateAddress(devAccount, 0),
	})
	assert.ErrorIs(t, err, explorer.ErrNotIndexed)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}
