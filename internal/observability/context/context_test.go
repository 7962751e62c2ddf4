package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureRunIDIsStable(t *testing.T) {
	ctx, first := EnsureRunID(context.Background())
	assert.NotEmpty(t, first)

	ctx, second := EnsureRunID(ctx)
	assert.Equal(t, first, second)
	assert.Equal(t, first, RunIDFromContext(ctx))
}

func TestBlankValuesAreIgnored(t *testing.T) {
	ctx := WithCompanyID(context.Background(), "  ")
	ctx = WithRequestID(ctx, "")
	assert.Empty(t, CompanyIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithCompanyID(ctx, " acme ")
	assert.Equal(t, "acme", CompanyIDFromContext(ctx))
}
