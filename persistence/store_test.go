package persistence

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", filepath.Base(t.Name())))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return NewStore(db)
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "healthguard.db?_foreign_keys=on", sqliteDSN("healthguard.db"))
	assert.Equal(t, "file:x?mode=memory&_foreign_keys=on", sqliteDSN("file:x?mode=memory"))
	assert.Equal(t, "file:x?_fk=1", sqliteDSN("file:x?_fk=1"))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}

func TestStore_Clients(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	created, err := s.CreateClient(ctx, "billing")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.Identifier)

	found, err := s.FindClient(ctx, created.Identifier)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "billing", found.Name)

	_, err = s.FindClient(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrClientNotFound)

	_, err = s.CreateClient(ctx, "inventory")
	require.NoError(t, err)

	clients, err := s.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "billing", clients[0].Name)
	assert.Equal(t, "inventory", clients[1].Name)
}

func TestStore_CreateRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	client, err := s.CreateClient(ctx, "billing")
	require.NoError(t, err)

	newRun := func() *CheckRun {
		return &CheckRun{
			ExternalID: "5b943126-60c6-4c8a-9139-9ec161925ed6",
			Timestamp:  time.Date(2023, 12, 31, 13, 57, 48, 0, time.UTC),
			Source:     "http://monitoring.local/v1/healthcheckjobs/",
			ClientID:   client.ID,
		}
	}
	outcomes := func() []CheckOutcome {
		return []CheckOutcome{
			{Name: "MigrationsHealthCheck", Status: 1, Message: "working"},
			{Name: "DatabaseHealthCheck", Status: 1, Message: "working"},
		}
	}

	t.Run("stores_run_with_outcomes", func(t *testing.T) {
		run := newRun()
		require.NoError(t, s.CreateRun(ctx, run, outcomes()))
		assert.NotZero(t, run.ID)

		runs, err := s.RunsByExternalID(ctx, run.ExternalID)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, client.Identifier, runs[0].Client.Identifier)
		require.Len(t, runs[0].Outcomes, 2)
		for _, o := range runs[0].Outcomes {
			assert.Equal(t, 1, o.Status)
			assert.Equal(t, "working", o.Message)
		}
	})

	t.Run("duplicates_are_kept", func(t *testing.T) {
		require.NoError(t, s.CreateRun(ctx, newRun(), outcomes()))

		runs, err := s.RunsByExternalID(ctx, "5b943126-60c6-4c8a-9139-9ec161925ed6")
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.NotEqual(t, runs[0].ID, runs[1].ID)
		assert.NotEqual(t, runs[0].Outcomes[0].ID, runs[1].Outcomes[0].ID)
	})

	t.Run("empty_outcomes", func(t *testing.T) {
		run := newRun()
		run.ExternalID = "empty"
		require.NoError(t, s.CreateRun(ctx, run, nil))

		runs, err := s.RunsByExternalID(ctx, "empty")
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Empty(t, runs[0].Outcomes)
	})

	t.Run("rolls_back_on_outcome_failure", func(t *testing.T) {
		db := s.DB()
		require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_outcomes", func(tx *gorm.DB) {
			if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "check_outcomes" {
				_ = tx.AddError(errors.New("disk full"))
			}
		}))
		defer func() { _ = db.Callback().Create().Remove("test:fail_outcomes") }()

		run := newRun()
		run.ExternalID = "rolled-back"
		err := s.CreateRun(ctx, run, outcomes())
		require.Error(t, err)
		assert.Zero(t, run.ID)

		var count int64
		require.NoError(t, db.Model(&CheckRun{}).Where("external_id = ?", "rolled-back").Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("unknown_client", func(t *testing.T) {
		run := newRun()
		run.ClientID = 9999
		assert.Error(t, s.CreateRun(ctx, run, outcomes()))
	})

	t.Run("cascade_delete", func(t *testing.T) {
		run := newRun()
		run.ExternalID = "cascade"
		require.NoError(t, s.CreateRun(ctx, run, outcomes()))

		require.NoError(t, s.DB().Delete(&CheckRun{}, run.ID).Error)

		var count int64
		require.NoError(t, s.DB().Model(&CheckOutcome{}).Where("run_id = ?", run.ID).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestStore_CountOutcomes(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	client, err := s.CreateClient(ctx, "billing")
	require.NoError(t, err)

	run := &CheckRun{ExternalID: "a", Timestamp: time.Now().UTC(), Source: "test", ClientID: client.ID}
	require.NoError(t, s.CreateRun(ctx, run, []CheckOutcome{
		{Name: "DbHealthCheck", Status: 1, Message: "working"},
		{Name: "CeleryHealthCheck", Status: 0, Message: "unavailable"},
		{Name: "DbHealthCheck", Status: 1, Message: "working"},
		{Name: "DbHealthCheck", Status: 0, Message: "timeout"},
	}))

	want := []OutcomeCount{
		{Name: "CeleryHealthCheck", Status: 0, Count: 1},
		{Name: "DbHealthCheck", Status: 0, Count: 1},
		{Name: "DbHealthCheck", Status: 1, Count: 2},
	}

	t.Run("unbounded", func(t *testing.T) {
		counts, err := s.CountOutcomes(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, want, counts)
	})

	t.Run("range_spanning_now", func(t *testing.T) {
		from := time.Now().Add(-24 * time.Hour)
		to := time.Now().Add(24 * time.Hour)

		counts, err := s.CountOutcomes(ctx, &from, &to)
		require.NoError(t, err)
		assert.Equal(t, want, counts)
	})

	t.Run("range_in_the_past", func(t *testing.T) {
		from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)

		counts, err := s.CountOutcomes(ctx, &from, &to)
		require.NoError(t, err)
		assert.Empty(t, counts)
	})

	t.Run("lower_bound_only", func(t *testing.T) {
		from := time.Now().Add(time.Hour)

		counts, err := s.CountOutcomes(ctx, &from, nil)
		require.NoError(t, err)
		assert.Empty(t, counts)
	})
}

func TestStore_LocalRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.SaveLocalRecords(ctx, nil))
	require.NoError(t, s.SaveLocalRecords(ctx, []LocalCheckRecord{
		{Name: "DatabaseHealthCheck", Status: 1, Message: "working"},
		{Name: "CacheBackend", Status: 0, Message: "connection refused"},
	}))

	records, err := s.LocalRecords(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "CacheBackend", records[0].Name)
	assert.Equal(t, "DatabaseHealthCheck", records[1].Name)
	assert.False(t, records[0].CreatedAt.IsZero())
}
