package config

import (
	"testing"
	"time"
)

func TestWorkflowConfigNormalize(t *testing.T) {
	w := WorkflowConfig{}.Normalize()
	if w.TopK != 3 {
		t.Errorf("TopK = %d", w.TopK)
	}
	if w.CallTimeout != 30*time.Second {
		t.Errorf("CallTimeout = %s", w.CallTimeout)
	}
	if w.RetryBackoff != 500*time.Millisecond {
		t.Errorf("RetryBackoff = %s", w.RetryBackoff)
	}
	if w.EventBuffer != 64 {
		t.Errorf("EventBuffer = %d", w.EventBuffer)
	}

	set := WorkflowConfig{TopK: 7, CallTimeout: time.Second, MaxRetries: 2, RetryBackoff: time.Second, EventBuffer: 8}
	if got := set.Normalize(); got != set {
		t.Errorf("Normalize changed explicit values: %+v", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", User: "u", Password: "p", DBName: "app"}
	want := "postgres://u:p@db:5432/app?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}

	p.URL = "postgres://explicit"
	if got := p.DSN(); got != "postgres://explicit" {
		t.Errorf("DSN ignored explicit url: %q", got)
	}
}

func TestPostgresValidate(t *testing.T) {
	if err := (PostgresConfig{}).Validate(); err == nil {
		t.Error("empty config validated")
	}
	if err := (PostgresConfig{URL: "postgres://x"}).Validate(); err != nil {
		t.Errorf("url-only config rejected: %v", err)
	}
	if err := (PostgresConfig{Host: "db", DBName: "app"}).Validate(); err != nil {
		t.Errorf("host+dbname rejected: %v", err)
	}
}

func TestRedisAddr(t *testing.T) {
	if got := (RedisConfig{Host: "cache"}).Addr(); got != "cache:6379" {
		t.Errorf("Addr = %q", got)
	}
	if got := (RedisConfig{Host: "cache", Port: "7000"}).Addr(); got != "cache:7000" {
		t.Errorf("Addr = %q", got)
	}
}
