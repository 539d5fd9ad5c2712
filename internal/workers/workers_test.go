package workers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRunsTasks(t *testing.T) {
	var runs atomic.Int32
	s, err := Start(Task{Name: "count", Every: 20 * time.Millisecond, Run: func() { runs.Add(1) }})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Shutdown())

	after := runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after shutdown")
}

func TestStartRejectsInvalidTask(t *testing.T) {
	_, err := Start(Task{Name: "zero", Every: 0, Run: func() {}})
	assert.Error(t, err)

	_, err = Start(Task{Name: "nil", Every: time.Second})
	assert.Error(t, err)
}
