package scripterr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Run("WithoutPosition", func(t *testing.T) {
		err := RuntimeErrorf("division by zero")
		assert.Equal(t, "RuntimeError: division by zero", err.Error())
	})

	t.Run("WithPosition", func(t *testing.T) {
		err := CompileErrorf("unexpected token %q", "}").At(3, 7)
		assert.Equal(t, `CompileError: unexpected token "}" (line 3, col 7)`, err.Error())
	})

	t.Run("LimitIncludesLimitName", func(t *testing.T) {
		err := Exceeded(Operations, "more than %d operations", 10)
		assert.Equal(t, "LimitExceeded(Operations): more than 10 operations", err.Error())
	})
}

func TestErrorsIs(t *testing.T) {
	cases := []struct {
		err      *Error
		sentinel error
	}{
		{ConfigErrorf("x"), ErrConfig},
		{CompileErrorf("x"), ErrCompile},
		{DisabledErrorf("x"), ErrDisabledCapability},
		{RuntimeErrorf("x"), ErrRuntime},
		{NotFoundErrorf("x"), ErrFunctionNotFound},
		{Exceeded(Memory, "x"), ErrLimitExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.err.Kind.String(), func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.sentinel)
			assert.NotErrorIs(t, wrapped, errors.New("other"))
		})
	}
}

func TestFrom(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.Nil(t, From(nil))
	})

	t.Run("KeepsClassification", func(t *testing.T) {
		orig := Exceeded(Time, "deadline")
		got := From(fmt.Errorf("wrap: %w", orig))
		require.NotNil(t, got)
		assert.Same(t, orig, got)
	})

	t.Run("UnknownBecomesRuntime", func(t *testing.T) {
		base := errors.New("boom")
		got := From(base)
		require.NotNil(t, got)
		assert.Equal(t, Runtime, got.Kind)
		assert.ErrorIs(t, got, base)
	})
}

func TestLimitOrderAndFatal(t *testing.T) {
	assert.Equal(t, []Limit{Operations, Time, StringLength, ArraySize, Memory}, LimitOrder())

	assert.True(t, Fatal(Exceeded(ArraySize, "x")))
	assert.True(t, Fatal(DisabledErrorf("eval")))
	assert.False(t, Fatal(RuntimeErrorf("x")))
	assert.True(t, IsLimit(fmt.Errorf("w: %w", Exceeded(StringLength, "x")), StringLength))
	assert.False(t, IsLimit(Exceeded(StringLength, "x"), ArraySize))
}
