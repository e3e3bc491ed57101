package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/lagren/healthguard/api"
	"github.com/lagren/healthguard/check"
	"github.com/lagren/healthguard/config"
	"github.com/lagren/healthguard/persistence"
	"github.com/lagren/healthguard/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var results = []check.Result{
	{Name: "DatabaseHealthCheck", Status: check.Up, Message: "working"},
	{Name: "CacheBackend", Status: check.Down, Message: "connection refused"},
}

type fakeSink struct {
	name  string
	err   error
	calls int
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Send(_ context.Context, _ *Batch) error {
	f.calls++
	return f.err
}

func TestBatch_Payload(t *testing.T) {
	b := NewBatch(results)

	assert.Equal(t, LocalSource, b.Source)
	assert.Equal(t, time.UTC, b.Timestamp.Location())

	p := b.Payload("0171d964-1b85-4fb8-9ef3-3fef891d92dc")
	assert.Equal(t, b.ID.String(), p.UUID)
	assert.Equal(t, "0171d964-1b85-4fb8-9ef3-3fef891d92dc", p.SyncAppID)

	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	require.NoError(t, err)
	assert.True(t, ts.Equal(b.Timestamp))

	assert.Equal(t, []api.CheckPayload{
		{Name: "DatabaseHealthCheck", Status: 1, Message: "working"},
		{Name: "CacheBackend", Status: 0, Message: "connection refused"},
	}, p.Checks)

	assert.NotEqual(t, b.ID, NewBatch(results).ID)
}

func TestReporter_Dispatch(t *testing.T) {
	t.Run("all_sinks_run", func(t *testing.T) {
		failing := &fakeSink{name: "local", err: errors.New("disk full")}
		ok := &fakeSink{name: "remote"}

		err := NewReporter(failing, ok).Dispatch(context.Background(), NewBatch(results))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "local sink: disk full")
		assert.Equal(t, 1, failing.calls)
		assert.Equal(t, 1, ok.calls)
	})

	t.Run("errors_joined", func(t *testing.T) {
		a := &fakeSink{name: "local", err: errors.New("disk full")}
		b := &fakeSink{name: "remote", err: ErrDelivery}

		err := NewReporter(a, b).Dispatch(context.Background(), NewBatch(results))

		assert.ErrorIs(t, err, ErrDelivery)
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("no_sinks", func(t *testing.T) {
		r := NewReporter()

		assert.NoError(t, r.Dispatch(context.Background(), NewBatch(results)))
		assert.Empty(t, r.Sinks())
	})
}

func TestLocalSink(t *testing.T) {
	db, err := persistence.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", filepath.Base(t.Name())))
	require.NoError(t, err)
	require.NoError(t, persistence.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	store := persistence.NewStore(db)
	sink := NewLocalSink(store)

	require.NoError(t, sink.Send(context.Background(), NewBatch(results)))

	records, err := store.LocalRecords(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "CacheBackend", records[0].Name)
	assert.Equal(t, 0, records[0].Status)
	assert.Equal(t, "connection refused", records[0].Message)

	require.NoError(t, sqlDB.Close())
	assert.Error(t, sink.Send(context.Background(), NewBatch(results)))
}

func TestRemoteSink(t *testing.T) {
	appID := "0171d964-1b85-4fb8-9ef3-3fef891d92dc"

	t.Run("delivers_payload", func(t *testing.T) {
		var got api.JobPayload

		route := mux.NewRouter()
		route.HandleFunc(api.JobsPath, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Empty(t, r.Header.Get(signature.SignatureHeader))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
		}).Methods(http.MethodPost)

		srv := httptest.NewServer(route)
		defer srv.Close()

		sink, err := NewRemoteSink(srv.URL+"/", appID, time.Second, "")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+api.JobsPath, sink.URL())

		b := NewBatch(results)
		require.NoError(t, sink.Send(context.Background(), b))

		assert.Equal(t, b.Payload(appID), got)
	})

	t.Run("signed", func(t *testing.T) {
		route := mux.NewRouter()
		route.Use(signature.Verify("secret", 1<<20))
		route.HandleFunc(api.JobsPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})

		srv := httptest.NewServer(route)
		defer srv.Close()

		sink, err := NewRemoteSink(srv.URL, appID, time.Second, "secret")
		require.NoError(t, err)
		assert.NoError(t, sink.Send(context.Background(), NewBatch(results)))

		unsigned, err := NewRemoteSink(srv.URL, appID, time.Second, "")
		require.NoError(t, err)
		assert.ErrorIs(t, unsigned.Send(context.Background(), NewBatch(results)), ErrDelivery)
	})

	t.Run("non_2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"sync_app_id":["Invalid sync_app_id provided!"]}`))
		}))
		defer srv.Close()

		sink, err := NewRemoteSink(srv.URL, appID, time.Second, "")
		require.NoError(t, err)

		err = sink.Send(context.Background(), NewBatch(results))
		assert.ErrorIs(t, err, ErrDelivery)
		assert.Contains(t, err.Error(), "400")
		assert.Contains(t, err.Error(), "Invalid sync_app_id provided!")
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer srv.Close()
		defer close(release)

		sink, err := NewRemoteSink(srv.URL, appID, 50*time.Millisecond, "")
		require.NoError(t, err)

		assert.ErrorIs(t, sink.Send(context.Background(), NewBatch(results)), ErrDelivery)
	})

	t.Run("missing_configuration", func(t *testing.T) {
		var cfgErr *config.ConfigurationError

		_, err := NewRemoteSink("", appID, time.Second, "")
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "monitor.sync_url", cfgErr.Key)

		_, err = NewRemoteSink("http://monitoring.local", "", time.Second, "")
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "monitor.sync_app_id", cfgErr.Key)
	})
}
