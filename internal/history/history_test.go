package history

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatdock/chatdock/api/schemas"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for SQL matching.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	store, err := New(context.Background(), mockPool, zap.NewNop())
	require.NoError(t, err)
	return store, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("ping failure surfaces", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(errors.New("connection refused"))
		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to ping database")
	})

	t.Run("schema failure surfaces", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing()
		mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).
			WillReturnError(errors.New("permission denied"))
		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "executions table")
	})
}

func TestRecord(t *testing.T) {
	t.Run("fills id and timestamp", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		mockPool.ExpectExec(flexibleSQLMatcher(insertSQL)).
			WithArgs(pgxmock.AnyArg(), "chatgpt", "ask", "https://chatgpt.com/",
				true, "", int64(1234), 3, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := store.Record(context.Background(), Entry{
			PlatformID:      "chatgpt",
			TemplateName:    "ask",
			TargetURL:       "https://chatgpt.com/",
			Success:         true,
			DurationMs:      1234,
			ActionsExecuted: 3,
		})
		require.NoError(t, err)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("maps a failed result onto error_kind", func(t *testing.T) {
		store, mockPool := newMockStore(t)

		mockPool.ExpectExec(flexibleSQLMatcher(insertSQL)).
			WithArgs(pgxmock.AnyArg(), "claude", "ask", "https://claude.ai/",
				false, "SelectorNotFound", int64(88), 1, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		res := schemas.FailedResult(schemas.ErrSelectorNotFound, "no #prompt")
		res.DurationMs = 88
		res.ActionsExecuted = 1
		err := store.RecordResult(context.Background(), "claude", "ask", "https://claude.ai/", res)
		require.NoError(t, err)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("insert failure surfaces", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectExec(flexibleSQLMatcher(insertSQL)).
			WithArgs(pgxmock.AnyArg(), "chatgpt", "", "", false, "", int64(0), 0, pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))

		err := store.Record(context.Background(), Entry{PlatformID: "chatgpt"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to record execution")
	})
}

func TestRecent(t *testing.T) {
	t.Run("returns entries newest first", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		now := time.Now().UTC()

		rows := pgxmock.NewRows([]string{
			"id", "platform_id", "template_name", "target_url",
			"success", "error_kind", "duration_ms", "actions_executed", "created_at",
		}).
			AddRow("b0b0", "claude", "ask", "https://claude.ai/", false, "ResultTimeout", int64(120000), 2, now).
			AddRow("a0a0", "chatgpt", "ask", "https://chatgpt.com/", true, "", int64(900), 3, now.Add(-time.Minute))

		mockPool.ExpectQuery(flexibleSQLMatcher(recentSQL)).
			WithArgs(2).
			WillReturnRows(rows)

		entries, err := store.Recent(context.Background(), 2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "claude", entries[0].PlatformID)
		assert.Equal(t, "ResultTimeout", entries[0].ErrorKind)
		assert.True(t, entries[1].Success)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("defaults the limit", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(recentSQL)).
			WithArgs(20).
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "platform_id", "template_name", "target_url",
				"success", "error_kind", "duration_ms", "actions_executed", "created_at",
			}))

		entries, err := store.Recent(context.Background(), 0)
		require.NoError(t, err)
		assert.Empty(t, entries)
		require.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("query failure surfaces", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(recentSQL)).
			WithArgs(5).
			WillReturnError(errors.New("relation does not exist"))

		_, err := store.Recent(context.Background(), 5)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query executions")
	})
}
