package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	tests := []struct {
		name     string
		sentinel error
		check    func(error) bool
	}{
		{"dependency unmet", ErrDependencyUnmet, IsDependencyUnmet},
		{"tool acquisition", ErrToolAcquisitionFailed, IsToolAcquisitionFailed},
		{"not found", ErrNotFound, IsNotFoundError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Wrapf(tt.sentinel, "compile for %s", "akka")
			err = WithHint(err, "check the compile report")
			err = Wrap(err, "outer")

			assert.True(t, tt.check(err))
			assert.True(t, Is(err, tt.sentinel))
			assert.False(t, tt.check(nil))
		})
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	err := Wrap(ErrDependencyUnmet, "extract")
	assert.False(t, Is(err, ErrCommandFailed))
	assert.False(t, IsToolAcquisitionFailed(err))
}

func TestWithHint(t *testing.T) {
	err := WithHintf(New("error"), "try setting value to %d", 42)

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "try setting value to 42", hints[0])
}

func TestWithDetail(t *testing.T) {
	err := WithDetail(New("error"), "detailed information")

	details := GetAllDetails(err)
	require.Len(t, details, 1)
	assert.Equal(t, "detailed information", details[0])
}

func TestNewNotFoundError(t *testing.T) {
	err := NewNotFoundError("project %q", "cats")
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), `project "cats"`)
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
}

func ExampleWrap() {
	err := Wrap(ErrDependencyUnmet, "extract cats")
	fmt.Println(err)
	// Output: extract cats: dependency unmet
}
