package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatSummary(t *testing.T) {
	st := NewStat()
	for i := 1; i <= 10; i++ {
		info := NewInfo(2)
		info.Granted = i%2 == 0
		info.Latency = time.Duration(i) * time.Millisecond
		st.Append(info)
	}
	fault := NewInfo(3)
	fault.Fault = true
	fault.Rollback = true
	st.Append(fault)

	s := st.Summary()
	assert.Equal(t, 11, s.Attempts)
	assert.Equal(t, 5, s.Granted)
	assert.Equal(t, 5, s.Refused)
	assert.Equal(t, 1, s.Faults)
	assert.Equal(t, 1, s.Rollbacks)
	assert.Equal(t, 23, s.Rows)
	assert.Equal(t, 10*time.Millisecond, s.P99)
	assert.Equal(t, 6*time.Millisecond, s.P50)
	assert.Equal(t, 5500*time.Microsecond, s.Average)
	assert.Contains(t, st.Log(), "granted:5;")

	st.Clear()
	assert.Equal(t, 0, st.Summary().Attempts)
	assert.Contains(t, st.Log(), "p99_latency:nil;")
}

func TestFaultClassification(t *testing.T) {
	cause := errors.New("connection reset")
	se := NewStoreError("acquire", cause)
	assert.True(t, IsStoreError(se))
	assert.False(t, IsDataAccessError(se))
	assert.ErrorIs(t, se, cause)
	assert.Contains(t, se.Error(), "acquire")

	de := NewDataAccessError("isLockable", cause)
	assert.True(t, IsDataAccessError(de))
	assert.True(t, IsStoreError(de))
	assert.ErrorIs(t, de, cause)

	assert.False(t, IsStoreError(cause))
	assert.False(t, IsStoreError(nil))
}
