package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "kind only",
			err:  &AppError{Kind: KindNoData},
			want: "[NO_DATA]",
		},
		{
			name: "with op ticker and message",
			err:  NoData("merge", "AAPL", "both inputs empty"),
			want: "[NO_DATA] merge AAPL: both inputs empty",
		},
		{
			name: "with cause",
			err:  SourceUnavailable("fetch", "MSFT", errors.New("dial tcp: timeout")),
			want: "[SOURCE_UNAVAILABLE] fetch MSFT: data source unavailable: dial tcp: timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("run: %w", InsufficientHistory("window", "TSLA", 12, 60))

	assert.True(t, errors.Is(err, ErrInsufficientHistory))
	assert.False(t, errors.Is(err, ErrNoData))
	assert.Equal(t, KindInsufficientHistory, KindOf(err))
}

func TestAppError_UnwrapReachesCause(t *testing.T) {
	cause := errors.New("boom")
	err := InferenceError("forecast", "AAPL", 3, cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrInferenceError))
	assert.Contains(t, err.Error(), "step 3")
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
