package utils

import (
	"testing"
	"time"
)

func TestRedisConfig_Defaults(t *testing.T) {
	cfg := RedisConfig{Addr: "localhost:6379"}.withDefaults()
	if cfg.DialTimeout <= 0 || cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 {
		t.Fatalf("expected default timeouts")
	}
	if cfg.PoolSize <= 0 {
		t.Fatalf("expected default pool size")
	}
}

func TestRedisConfig_ExplicitValuesKept(t *testing.T) {
	cfg := RedisConfig{Addr: "localhost:6379", DialTimeout: time.Second, PoolSize: 5}.withDefaults()
	if cfg.DialTimeout != time.Second {
		t.Fatalf("expected explicit dial timeout kept, got %v", cfg.DialTimeout)
	}
	if cfg.PoolSize != 5 {
		t.Fatalf("expected explicit pool size kept, got %d", cfg.PoolSize)
	}
}
