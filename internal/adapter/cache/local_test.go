package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestLocalCache_SetGetDelete(t *testing.T) {
	// Arrange
	ctx := context.Background()
	log, _ := zap.NewDevelopment()
	c := NewLocalCache(time.Minute, log)
	defer c.Close()

	// Act / Assert
	if err := c.Set(ctx, "tag:ABC", "blocked", 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := c.Get(ctx, "tag:ABC")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != "blocked" {
		t.Errorf("expected %q, got %q", "blocked", value)
	}

	if err := c.Delete(ctx, "tag:ABC"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "tag:ABC"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestLocalCache_Expiration(t *testing.T) {
	// Arrange
	ctx := context.Background()
	log, _ := zap.NewDevelopment()
	c := NewLocalCache(time.Minute, log)
	defer c.Close()

	if err := c.Set(ctx, "short", "lived", 10*time.Millisecond); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	// Act
	time.Sleep(30 * time.Millisecond)
	_, err := c.Get(ctx, "short")

	// Assert
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for expired key, got %v", err)
	}
}

func TestLocalCache_MarshalsNonStringValues(t *testing.T) {
	// Arrange
	ctx := context.Background()
	log, _ := zap.NewDevelopment()
	c := NewLocalCache(time.Minute, log)
	defer c.Close()

	// Act
	if err := c.Set(ctx, "payload", map[string]int{"connector_id": 2}, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := c.Get(ctx, "payload")

	// Assert
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != `{"connector_id":2}` {
		t.Errorf("unexpected stored value: %q", value)
	}
}
