package trace_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/markegidiDev/ERP-ChatBot-LLM/common/trace"
)

func TestEnsure(t *testing.T) {
	ctx := trace.Ensure(context.Background())
	id := trace.FromContext(ctx)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, trace.FromContext(trace.Ensure(ctx)), "an existing ID is kept")

	assert.Equal(t, "abc", trace.FromContext(trace.WithTraceID(context.Background(), "abc")))
	assert.Empty(t, trace.FromContext(context.Background()))
	assert.NotEqual(t, trace.GenerateID(), trace.GenerateID())
}
