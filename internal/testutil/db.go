// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"deadline-planner/internal/config"
	"deadline-planner/internal/model"
	"deadline-planner/internal/repository"
)

var dbSeq atomic.Int64

// NewDB opens a migrated in-memory SQLite database private to the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := repository.NewDB(config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, zaptest.NewLogger(t))
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser stores a user reachable at the given Telegram chat.
func CreateUser(t testing.TB, db *gorm.DB, telegramID int64) *model.User {
	t.Helper()

	user := &model.User{TelegramID: &telegramID, FirstName: fmt.Sprintf("user%d", telegramID)}
	require.NoError(t, db.Create(user).Error)
	return user
}

// SetUpdatedAt rewrites a task's modification time without touching
// anything else.
func SetUpdatedAt(t testing.TB, db *gorm.DB, taskID string, at time.Time) {
	t.Helper()

	err := db.Model(&model.Task{}).Where("id = ?", taskID).UpdateColumn("updated_at", at.UTC()).Error
	require.NoError(t, err)
}

// Clock is a settable time source.
type Clock struct {
	now atomic.Pointer[time.Time]
}

func NewClock(now time.Time) *Clock {
	c := &Clock{}
	c.Set(now)
	return c
}

func (c *Clock) Now() time.Time { return *c.now.Load() }

func (c *Clock) Set(now time.Time) { c.now.Store(&now) }

func (c *Clock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }
