package loader

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/state"
)

func TestDefaultRowID(t *testing.T) {
	assert.Equal(t, state.RowID("abc"), DefaultRowID(Row{"id": "abc"}))
	assert.Equal(t, state.RowID("42"), DefaultRowID(Row{"id": 42}))
	assert.Equal(t, state.RowID("42"), DefaultRowID(Row{"id": float64(42)}))
	assert.Equal(t, state.RowID(""), DefaultRowID(Row{"name": "no id"}))
	assert.Equal(t, state.RowID(""), DefaultRowID(Row{"id": nil}))
}

func TestQueryValidate(t *testing.T) {
	ok := Query{Pagination: state.PaginationModel{Page: 0, PageSize: 25}}
	require.NoError(t, ok.Validate())

	badPage := Query{Pagination: state.PaginationModel{Page: -1, PageSize: 25}}
	err := badPage.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	badSize := Query{Pagination: state.PaginationModel{Page: 0, PageSize: 0}}
	err = badSize.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.False(t, errors.IsRetryable(err))
}

func TestStaticLoader(t *testing.T) {
	s := NewStatic(sampleRows(), sampleEngineOptions())

	res, err := s.Load(context.Background(), Query{
		Pagination: state.PaginationModel{Page: 0, PageSize: 10},
	})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 5)
	assert.Equal(t, 5, res.TotalCount)

	res, err = s.Load(context.Background(), Query{
		Pagination: state.PaginationModel{Page: 1, PageSize: 2},
		Search:     "ro",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalCount)
	assert.Empty(t, res.Rows)
}

func TestStaticLoaderCopiesRows(t *testing.T) {
	rows := sampleRows()
	s := NewStatic(rows, sampleEngineOptions())
	rows[0] = Row{"id": "mutated"}

	res, err := s.Load(context.Background(), Query{
		Pagination: state.PaginationModel{Page: 0, PageSize: 10},
	})
	require.NoError(t, err)
	assert.NotContains(t, rowIDs(res.Rows), "mutated")
}

func TestStaticLoaderHonorsContext(t *testing.T) {
	s := NewStatic(sampleRows(), sampleEngineOptions())
	s.SetLatency(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Load(ctx, Query{Pagination: state.PaginationModel{Page: 0, PageSize: 10}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoadWithRetryRecovers(t *testing.T) {
	attempts := 0
	flaky := LoaderFunc(func(ctx context.Context, q Query) (Result, error) {
		attempts++
		if attempts < 3 {
			return Result{}, errors.New(errors.ErrorTypeLoader, "backend hiccup")
		}
		return Result{TotalCount: 1}, nil
	})

	policy := DefaultRetryPolicy().WithDelay(time.Millisecond, 5*time.Millisecond)
	res, err := LoadWithRetry(context.Background(), flaky, Query{
		Pagination: state.PaginationModel{PageSize: 10},
	}, policy)

	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCount)
	assert.Equal(t, 3, attempts)
}

func TestLoadWithRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	broken := LoaderFunc(func(ctx context.Context, q Query) (Result, error) {
		attempts++
		return Result{}, errors.New(errors.ErrorTypeValidation, "bad query")
	})

	policy := DefaultRetryPolicy().WithDelay(time.Millisecond, 5*time.Millisecond)
	_, err := LoadWithRetry(context.Background(), broken, Query{
		Pagination: state.PaginationModel{PageSize: 10},
	}, policy)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Equal(t, 1, attempts)
}

func TestLoadWithRetryExhausted(t *testing.T) {
	attempts := 0
	flaky := LoaderFunc(func(ctx context.Context, q Query) (Result, error) {
		attempts++
		return Result{}, fmt.Errorf("connection reset")
	})

	policy := DefaultRetryPolicy().WithMaxAttempts(3).WithDelay(time.Millisecond, 5*time.Millisecond)
	_, err := LoadWithRetry(context.Background(), flaky, Query{
		Pagination: state.PaginationModel{PageSize: 10},
	}, policy)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeLoader))
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, 3, attempts)
}

func TestLoadWithRetryCanceledDuringBackoff(t *testing.T) {
	flaky := LoaderFunc(func(ctx context.Context, q Query) (Result, error) {
		return Result{}, fmt.Errorf("connection reset")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	policy := DefaultRetryPolicy().WithDelay(time.Second, time.Second)
	_, err := LoadWithRetry(ctx, flaky, Query{
		Pagination: state.PaginationModel{PageSize: 10},
	}, policy)

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryPolicyDelays(t *testing.T) {
	policy := &RetryPolicy{
		MaxAttempts:  4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, 1*time.Second, policy.GetDelay(0))
	assert.Equal(t, 2*time.Second, policy.GetDelay(1))
	assert.Equal(t, 4*time.Second, policy.GetDelay(2))

	// Cap kicks in past the max.
	assert.Equal(t, 30*time.Second, policy.GetDelay(10))
}
