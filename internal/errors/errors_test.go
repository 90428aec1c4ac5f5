package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/raid-tracker/internal/types"
)

func TestCategoryHelpers(t *testing.T) {
	auth := NewProviderAuthError(types.ProviderProfile, 401)
	notFound := NewProviderNotFoundError(types.ProviderProfile, "achievements")
	provider := NewProviderStatusError(types.ProviderCombatLog, 503, "unavailable")
	resolution := NewResolutionError("zone 38", "no season maps to this zone")

	t.Run("direct", func(t *testing.T) {
		assert.True(t, IsAuth(auth))
		assert.True(t, IsNotFound(notFound))
		assert.True(t, IsProvider(provider))
		assert.True(t, IsResolution(resolution))
		assert.False(t, IsAuth(provider))
		assert.False(t, IsNotFound(nil))
	})

	t.Run("wrapped", func(t *testing.T) {
		wrapped := fmt.Errorf("fetch zone: %w", auth)
		assert.True(t, IsAuth(wrapped))
		assert.Equal(t, CategoryAuth, Categorize(wrapped).Category)
	})
}

func TestCategorize(t *testing.T) {
	assert.Nil(t, Categorize(nil))

	plain := fmt.Errorf("boom")
	cat := Categorize(plain)
	assert.Equal(t, CategorySystem, cat.Category)
	assert.ErrorIs(t, cat, plain)

	// an uncategorized ServiceError is not trusted for its code
	svc := &types.ServiceError{Code: "SYNC_IN_PROGRESS", Message: "busy"}
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatusCode(svc))
}

func TestConflictError(t *testing.T) {
	busy := stderrors.New("catalog sync already in progress")
	err := fmt.Errorf("run sync: %w", NewConflictError("SYNC_IN_PROGRESS", "a catalog sync is already running", busy))

	assert.True(t, IsConflict(err))
	assert.ErrorIs(t, err, busy)
	assert.Equal(t, http.StatusConflict, GetHTTPStatusCode(err))
	assert.Equal(t, "SYNC_IN_PROGRESS", Categorize(err).Code)

	assert.Equal(t, "CONFLICT", NewConflictError("", "busy", nil).Code)
}

func TestStorageErrors(t *testing.T) {
	cause := stderrors.New("connection refused")

	db := NewDatabaseError("list raids", cause)
	assert.Equal(t, CategoryDatabase, Categorize(fmt.Errorf("wrapped: %w", db)).Category)
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatusCode(db))
	assert.ErrorIs(t, db, cause)
	assert.Equal(t, "list raids", db.Details["operation"])

	cache := NewCacheError("get zone:38", cause)
	assert.Equal(t, CategoryCache, cache.Category)
	assert.Contains(t, cache.Error(), "connection refused")

	notFound := NewNotFoundError("processing state", "42")
	assert.True(t, IsNotFound(notFound))
	assert.Equal(t, "NOT_FOUND", notFound.Code)
}

func TestErrorString(t *testing.T) {
	err := NewProviderError(types.ProviderDungeon, fmt.Errorf("timeout"))
	assert.Contains(t, err.Error(), "PROVIDER_ERROR")
	assert.Contains(t, err.Error(), "timeout")

	svc := NewInvalidParameterError("region", "required").ToServiceError()
	assert.Equal(t, "INVALID_PARAMETER", svc.Code)
	assert.Equal(t, "region", svc.Details["parameter"])
}
