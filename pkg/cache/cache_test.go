package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name    string
		content string
		prefix  string
	}{
		{"plain", "hello", ""},
		{"prefixed", "hello", "llm_python"},
		{"empty content", "", "rep"},
		{"unicode", "pâté-�", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k1 := Key(tt.content, tt.prefix)
			k2 := Key(tt.content, tt.prefix)
			if k1 != k2 {
				t.Fatalf("Key not deterministic: %s vs %s", k1, k2)
			}

			hexPart := k1
			if tt.prefix != "" {
				if !strings.HasPrefix(k1, tt.prefix+":") {
					t.Fatalf("missing prefix: %s", k1)
				}
				hexPart = strings.TrimPrefix(k1, tt.prefix+":")
			}
			if len(hexPart) != 64 || hexPart != strings.ToLower(hexPart) {
				t.Errorf("not 64 lowercase hex chars: %s", hexPart)
			}
			want := sha256.Sum256([]byte(tt.content))
			if hexPart != hex.EncodeToString(want[:]) {
				t.Errorf("digest mismatch for %q", tt.content)
			}
		})
	}

	if Key("a", "") == Key("b", "") {
		t.Error("distinct content should produce distinct keys")
	}
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	m := map[string]Backend{"memory": NewMemoryBackend()}

	sq, err := NewSQLiteBackend(t.TempDir())
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	m["sqlite"] = sq

	srv := miniredis.RunT(t)
	rd, err := NewRedisBackend(srv.Addr())
	if err != nil {
		t.Fatalf("redis backend: %v", err)
	}
	t.Cleanup(func() { rd.Close() })
	m["redis"] = rd

	return m
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := NewWithBackend(b, 0, nil)

			value := map[string]any{"score": 0.7, "flags": []any{"new_package"}}
			key := Key("reputation:npm:left-pad:1.3.0", "")
			c.Store(ctx, key, value, time.Hour)

			var got map[string]any
			if !c.Get(ctx, key, &got) {
				t.Fatal("expected hit immediately after store")
			}
			if diff := cmp.Diff(value, got); diff != "" {
				t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
			}

			var miss map[string]any
			if c.Get(ctx, Key("other", ""), &miss) {
				t.Error("unexpected hit for unknown key")
			}
		})
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := NewWithBackend(b, 0, nil)
			now := time.Now()
			c.now = func() time.Time { return now }

			c.Store(ctx, "k", "v", 2*time.Second)

			var got string
			if !c.Get(ctx, "k", &got) || got != "v" {
				t.Fatalf("expected fresh hit, got %q", got)
			}

			now = now.Add(2200 * time.Millisecond)
			if c.Get(ctx, "k", &got) {
				t.Error("expected miss after TTL elapsed")
			}
		})
	}
}

func TestExpiredCountedUntilCleanup(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	c := NewWithBackend(b, 0, nil)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Store(ctx, "short", "v", time.Second)
	c.Store(ctx, "long", "v", time.Hour)
	now = now.Add(2 * time.Second)

	if st := c.Stats(ctx); st.ExpiredEntries < 1 {
		t.Fatalf("expired_entries = %d, want >= 1", st.ExpiredEntries)
	}
	if n := c.CleanupExpired(ctx); n != 1 {
		t.Fatalf("cleanup removed %d, want 1", n)
	}
	if st := c.Stats(ctx); st.ExpiredEntries != 0 {
		t.Errorf("expired_entries = %d after cleanup, want 0", st.ExpiredEntries)
	}
}

func TestLRUEviction(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// Each stored string value is 8 bytes of JSON ("vvvvvv").
			payload := "vvvvvv"
			c := NewWithBackend(b, 24, nil)
			now := time.Now()
			c.now = func() time.Time { return now }

			for i := range 3 {
				c.Store(ctx, fmt.Sprintf("k%d", i), payload, time.Hour)
				now = now.Add(time.Second)
			}

			// Touch k0 so k1 becomes the least recently accessed.
			var v string
			if !c.Get(ctx, "k0", &v) {
				t.Fatal("k0 should be present")
			}
			now = now.Add(time.Second)

			c.Store(ctx, "k3", payload, time.Hour)

			if c.Get(ctx, "k1", &v) {
				t.Error("k1 should have been evicted as least recently accessed")
			}
			for _, k := range []string{"k0", "k2", "k3"} {
				if !c.Get(ctx, k, &v) {
					t.Errorf("%s should have survived eviction", k)
				}
			}
		})
	}
}

func TestReplaceUnderCeilingKeepsInvariant(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// Ceiling 100; k (40 bytes) is the LRU candidate when its own
			// replacement (50 bytes) forces an eviction. The replaced bytes
			// must not count as freed twice.
			c := NewWithBackend(b, 100, nil)
			now := time.Now()
			c.now = func() time.Time { return now }

			c.Store(ctx, "k", strings.Repeat("a", 38), time.Hour)
			now = now.Add(time.Second)
			c.Store(ctx, "other", strings.Repeat("b", 58), time.Hour)
			now = now.Add(time.Second)

			c.Store(ctx, "k", strings.Repeat("c", 48), time.Hour)

			if st := c.Stats(ctx); st.TotalSizeBytes > st.MaxSizeBytes {
				t.Fatalf("size ceiling violated: total=%d > max=%d", st.TotalSizeBytes, st.MaxSizeBytes)
			}
			var v string
			if !c.Get(ctx, "k", &v) || v != strings.Repeat("c", 48) {
				t.Errorf("replacement lost: got %q", v)
			}
		})
	}
}

func TestStoreResetsHitCount(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	c := NewWithBackend(b, 0, nil)

	c.Store(ctx, "k", "v1", time.Hour)
	var v string
	c.Get(ctx, "k", &v)
	c.Get(ctx, "k", &v)

	if st := c.Stats(ctx); st.TotalHits != 2 {
		t.Fatalf("hits = %d, want 2", st.TotalHits)
	}
	c.Store(ctx, "k", "v2", time.Hour)
	if st := c.Stats(ctx); st.TotalHits != 0 {
		t.Errorf("hits = %d after re-store, want 0", st.TotalHits)
	}
}

func TestInvalidateAndClear(t *testing.T) {
	ctx := context.Background()
	c := NewWithBackend(NewMemoryBackend(), 0, nil)

	c.Store(ctx, "a", 1, time.Hour)
	c.Store(ctx, "b", 2, time.Hour)

	c.Invalidate(ctx, "a")
	var v int
	if c.Get(ctx, "a", &v) {
		t.Error("a should be gone after invalidate")
	}
	if !c.Get(ctx, "b", &v) {
		t.Error("b should remain")
	}

	c.ClearAll(ctx)
	if c.Get(ctx, "b", &v) {
		t.Error("b should be gone after clear")
	}
	if st := c.Stats(ctx); st.Entries != 0 {
		t.Errorf("entries = %d after clear, want 0", st.Entries)
	}
}

func TestNullBackendAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	c := NewWithBackend(NullBackend{}, 0, nil)
	c.Store(ctx, "k", "v", time.Hour)
	var v string
	if c.Get(ctx, "k", &v) {
		t.Error("null backend should never hit")
	}
	if got := c.Stats(ctx).Backend; got != "null" {
		t.Errorf("backend = %q, want null", got)
	}
}

func TestFallbackToMemory(t *testing.T) {
	// A path under a device node cannot be created, forcing sqlite init failure.
	c := New(Options{Backend: "sqlite", Dir: "/dev/null/nope"})
	if got := c.Stats(context.Background()).Backend; got != "memory" {
		t.Errorf("backend = %q, want memory fallback", got)
	}
}
