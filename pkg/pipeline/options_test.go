package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	t.Parallel()
	var o Options
	require.NoError(t, o.Validate())

	assert.Equal(t, 3, o.Concurrency)
	assert.Equal(t, 3, o.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, o.RetryDelay)
	assert.Zero(t, o.MaxQueueDepth)
	assert.Nil(t, o.limiter())
}

func TestOptions_NegativeRetriesDisableRetry(t *testing.T) {
	t.Parallel()
	o := Options{MaxRetries: -1}
	require.NoError(t, o.Validate())
	assert.Zero(t, o.MaxRetries)
}

func TestOptions_RetryDelay(t *testing.T) {
	t.Parallel()
	o := Options{RetryDelay: 0}
	require.NoError(t, o.Validate())
	assert.Equal(t, DefaultRetryDelay, o.RetryDelay)

	o = Options{RetryDelay: time.Millisecond}
	require.NoError(t, o.Validate())
	assert.Equal(t, time.Millisecond, o.RetryDelay)
}

func TestOptions_Invalid(t *testing.T) {
	t.Parallel()
	o := Options{
		Concurrency:   -2,
		RetryDelay:    -time.Second,
		MaxQueueDepth: -1,
		DispatchQPS:   -3,
	}
	err := o.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "Concurrency")
	assert.ErrorContains(t, err, "RetryDelay")
	assert.ErrorContains(t, err, "MaxQueueDepth")
	assert.ErrorContains(t, err, "DispatchQPS")

	_, err = New(o)
	assert.ErrorContains(t, err, "invalid options")
}

func TestOptions_Limiter(t *testing.T) {
	t.Parallel()
	o := Options{DispatchQPS: 5}
	l := o.limiter()
	require.NotNil(t, l)
	assert.Equal(t, 5.0, float64(l.Limit()))
	assert.Equal(t, 1, l.Burst())
}
