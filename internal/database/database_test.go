package database

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nfrund/relaychat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasLimitClause(t *testing.T) {
	assert.True(t, hasLimitClause("SELECT * FROM account LIMIT 5"))
	assert.True(t, hasLimitClause("select * from account limit 1"))
	assert.False(t, hasLimitClause("SELECT * FROM account"))
	assert.False(t, hasLimitClause("SELECT * FROM limits"))
}

func TestRedactDBURL(t *testing.T) {
	assert.Equal(t, "ws://root:xxxxx@localhost:8000/rpc", redactDBURL("ws://root:secret@localhost:8000/rpc"))
	assert.Equal(t, "ws://localhost:8000", redactDBURL("ws://localhost:8000"))
	assert.Equal(t, "invalid-url", redactDBURL("://bad"))
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(context.DeadlineExceeded))
	assert.True(t, isConnectionError(errors.New("dial tcp: connection refused")))
	assert.True(t, isConnectionError(errors.New("read: unexpected EOF")))
	assert.False(t, isConnectionError(io.ErrShortWrite))
	assert.False(t, isConnectionError(errors.New("index already contains value")))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(errors.New("Database index `account_username` already contains 'bob'")))
	assert.False(t, isUniqueViolation(errors.New("parse error")))
	assert.False(t, isUniqueViolation(nil))
}

func TestDBError(t *testing.T) {
	err := NewDBError(ErrNotFound, "find account").WithQuery("SELECT 1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "find account")
	assert.Contains(t, err.Error(), "SELECT 1")

	wrapped := WrapError(err, "verify")
	assert.ErrorIs(t, wrapped, domain.ErrNotFound)
	assert.Contains(t, wrapped.Error(), "verify: find account")

	assert.Nil(t, WrapError(nil, "noop"))
	assert.ErrorIs(t, WrapError(io.EOF, "read"), io.EOF)
}

func TestRetryer(t *testing.T) {
	r := &ExponentialBackoffRetryer{maxRetries: 3, baseDelay: time.Millisecond, maxDelay: 5 * time.Millisecond, multiplier: 2}

	calls := 0
	err := r.Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = r.Retry(context.Background(), func() error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Contains(t, err.Error(), "after 4 attempts")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.Retry(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelayCapped(t *testing.T) {
	r := &ExponentialBackoffRetryer{baseDelay: 100 * time.Millisecond, maxDelay: time.Second, multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, r.calculateDelay(0))
	assert.Equal(t, 400*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, time.Second, r.calculateDelay(10))
}

func TestGetTimeoutFromContext(t *testing.T) {
	ctx, cancel := getTimeoutFromContext(context.Background(), time.Hour, ContextKeyQueryTimeout)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), deadline, time.Second)

	override := WithQueryTimeout(context.Background(), time.Minute)
	ctx2, cancel2 := getTimeoutFromContext(override, time.Hour, ContextKeyQueryTimeout)
	defer cancel2()
	deadline, ok = ctx2.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, time.Second)

	ctx3, cancel3 := getTimeoutFromContext(context.Background(), 0, ContextKeyExecuteTimeout)
	defer cancel3()
	_, ok = ctx3.Deadline()
	assert.False(t, ok)
}

func TestWithConnection_NotConnected(t *testing.T) {
	conn := NewConnection(&staticConfig{})
	err := conn.WithConnection(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, conn.IsHealthy())
	require.NoError(t, conn.Close(context.Background()))
	require.NoError(t, conn.Close(context.Background()))
}
