package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNop_AlwaysMisses(t *testing.T) {
	var s Store = Nop{}
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected ErrMiss, got %v", err)
	}
	if n, err := s.Incr(ctx, "gen"); err != nil || n != 0 {
		t.Errorf("expected 0, nil; got %d, %v", n, err)
	}
}

func TestNewRedis_InvalidURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "not a url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}
