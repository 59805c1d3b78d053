package utils

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/safnco/sweeping-backend/config"
)

// ErrScopeLocked means another reconciliation pass already holds the scope.
var ErrScopeLocked = errors.New("scope is locked by another run")

func GenerateUniqueFilename() string {

	timestamp := time.Now().UnixNano()

	random := rand.Intn(1000)

	uniqueFilename := fmt.Sprintf("%d_%d", timestamp, random)

	return uniqueFilename
}

func ProcessValidationErrors(err error) map[string]string {

	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)

	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			// if not exists in map, append it, otherwise do nothing
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// ObtainScopeLock takes a non-blocking redis lock for the given scope key.
// The caller must Release the returned lock; it is held for the whole pass,
// so a concurrent request for the same scope is rejected, not queued.
func ObtainScopeLock(ctx context.Context, lockType string, scope string, ttl time.Duration, moduleName string, functionName string) (*redislock.Lock, error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		// Avoid nil-pointer panics when Redis lock isn't initialized yet.
		config.LogError(logger, moduleName, functionName, "Redis lock not initialized", scope, errors.New("redis lock is nil"))
		return nil, errors.New("service not ready (redis lock not initialized)")
	}

	lockKey := fmt.Sprintf("%s:%s", lockType, scope)
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, moduleName, functionName, "Could not obtain lock for scope", scope, err)
		return nil, ErrScopeLocked
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining lock for scope", scope, err)
		return nil, err
	}
	return lock, nil
}
