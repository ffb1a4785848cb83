package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seu-repo/sigec-cms/internal/adapter/cache"
)

func TestRedisCache_SetGetDelete(t *testing.T) {
	// Arrange
	env := SetupTestEnvironment(t)
	FlushRedis(t, env.Redis)
	c, err := cache.NewRedisCache(env.RedisURL, env.Logger)
	if err != nil {
		t.Fatalf("Failed to create redis cache: %v", err)
	}
	ctx := context.Background()

	// Act
	if err := c.Set(ctx, "idtag:blocked:TAG-BAD", "stolen card", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	value, err := c.Get(ctx, "idtag:blocked:TAG-BAD")

	// Assert
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "stolen card" {
		t.Errorf("expected 'stolen card', got %q", value)
	}

	if err := c.Delete(ctx, "idtag:blocked:TAG-BAD"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "idtag:blocked:TAG-BAD"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRedisCache_MissReturnsNotFound(t *testing.T) {
	// Arrange
	env := SetupTestEnvironment(t)
	FlushRedis(t, env.Redis)
	c, err := cache.NewRedisCache(env.RedisURL, env.Logger)
	if err != nil {
		t.Fatalf("Failed to create redis cache: %v", err)
	}

	// Act
	_, err = c.Get(context.Background(), "no-such-key")

	// Assert
	if !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisCache_Expiration(t *testing.T) {
	// Arrange
	env := SetupTestEnvironment(t)
	FlushRedis(t, env.Redis)
	c, err := cache.NewRedisCache(env.RedisURL, env.Logger)
	if err != nil {
		t.Fatalf("Failed to create redis cache: %v", err)
	}
	ctx := context.Background()

	// Act
	if err := c.Set(ctx, "ephemeral", "value", 100*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	_, err = c.Get(ctx, "ephemeral")

	// Assert
	if !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound after TTL, got %v", err)
	}

	if err := c.Ping(); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
