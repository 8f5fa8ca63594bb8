package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorBuilder(t *testing.T) {
	t.Parallel()

	base := NewStd("embedding dimension 512 does not match corpus dimension 1024")
	err := New(base).
		Component("vectorsearch").
		Category(CategoryDimensionMismatch).
		Context("query_dim", 512).
		Context("corpus_dim", 1024).
		Build()

	assert.Equal(t, base.Error(), err.Error())
	assert.Equal(t, "vectorsearch", err.GetComponent())
	assert.Equal(t, string(CategoryDimensionMismatch), err.GetCategory())

	ctx := err.GetContext()
	require.NotNil(t, ctx)
	assert.Equal(t, 512, ctx["query_dim"])
	assert.Equal(t, 1024, ctx["corpus_dim"])
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("insufficient training data")
	wrapped := New(fmt.Errorf("train iteration 3: %w", sentinel)).
		Category(CategoryInsufficientData).
		Build()

	assert.True(t, Is(wrapped, sentinel))

	var enhanced *EnhancedError
	require.True(t, As(wrapped, &enhanced))
	assert.Equal(t, CategoryInsufficientData, enhanced.Category)
}

func TestCategoryDetection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{"dimension mismatch", NewStd("vector dimension mismatch"), CategoryDimensionMismatch},
		{"training failure", NewStd("training did not converge"), CategoryTraining},
		{"not found", NewStd("session not found"), CategoryNotFound},
		{"validation", NewStd("invalid similarity threshold"), CategoryValidation},
		{"generic", NewStd("something else"), CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := New(tt.err).Build()
			assert.Equal(t, tt.expected, err.Category)
		})
	}
}

func TestIsCategory(t *testing.T) {
	t.Parallel()

	err := Newf("cached model for session %d iteration %d is corrupt", 1, 2).
		Category(CategoryModelCache).
		Build()

	assert.True(t, IsCategory(err, CategoryModelCache))
	assert.False(t, IsCategory(err, CategoryDatabase))
	assert.False(t, IsCategory(NewStd("plain"), CategoryModelCache))
}

func TestPriorityValidation(t *testing.T) {
	t.Parallel()

	err := New(NewStd("oops")).Priority("bogus").Build()
	assert.Equal(t, PriorityMedium, err.GetPriority())

	err = New(NewStd("oops")).Priority(PriorityCritical).Build()
	assert.Equal(t, PriorityCritical, err.GetPriority())
}
