package config

import (
	"testing"
	"time"
)

func TestExternalConfigured(t *testing.T) {
	tests := []struct {
		name string
		url  string
		key  string
		want bool
	}{
		{name: "configured", url: "https://abc.supabase.co", key: "eyJhbGciOi", want: true},
		{name: "missing url", key: "eyJhbGciOi"},
		{name: "missing key", url: "https://abc.supabase.co"},
		{name: "placeholder key", url: "https://abc.supabase.co", key: "sb_publishable_xxx"},
		{name: "blank values", url: "  ", key: "  "},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{SupabaseURL: tc.url, SupabaseAnonKey: tc.key}
			if got := cfg.ExternalConfigured(); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestLoadReadsViteFallbacks(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("VITE_SUPABASE_URL", "https://vite.supabase.co")
	t.Setenv("VITE_SUPABASE_ANON_KEY", "vite-key")
	t.Setenv("BOOTSTRAP_TIMEOUT", "3s")

	cfg := Load()
	if cfg.SupabaseURL != "https://vite.supabase.co" || cfg.SupabaseAnonKey != "vite-key" {
		t.Fatalf("expected VITE_ values, got %q %q", cfg.SupabaseURL, cfg.SupabaseAnonKey)
	}
	if cfg.BootstrapTimeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.BootstrapTimeout)
	}
}

func TestStoreDriverAuto(t *testing.T) {
	cfg := Config{RecordStoreDriver: StoreDriverAuto}
	if got := cfg.StoreDriver(); got != StoreDriverMemory {
		t.Fatalf("expected memory without backend, got %s", got)
	}
	cfg.SupabaseURL = "https://abc.supabase.co"
	cfg.SupabaseAnonKey = "key"
	if got := cfg.StoreDriver(); got != StoreDriverREST {
		t.Fatalf("expected rest with backend, got %s", got)
	}
	cfg.RecordStoreDriver = StoreDriverPostgres
	if got := cfg.StoreDriver(); got != StoreDriverPostgres {
		t.Fatalf("expected explicit driver to win, got %s", got)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		RecordStoreDriver: StoreDriverAuto,
		BootstrapTimeout:  2 * time.Second,
		MaxBodyBytes:      1 << 20,
		AuthRatePerMinute: 20,
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	pg := base
	pg.RecordStoreDriver = StoreDriverPostgres
	if err := pg.Validate(); err == nil {
		t.Fatal("expected postgres without DATABASE_URL to fail")
	}

	rest := base
	rest.RecordStoreDriver = StoreDriverREST
	if err := rest.Validate(); err == nil {
		t.Fatal("expected rest without backend to fail")
	}

	unknown := base
	unknown.RecordStoreDriver = "mongo"
	if err := unknown.Validate(); err == nil {
		t.Fatal("expected unknown driver to fail")
	}

	prod := base
	prod.Environment = "production"
	prod.SupabaseURL = "https://abc.supabase.co"
	prod.SupabaseAnonKey = "key"
	if err := prod.Validate(); err == nil {
		t.Fatal("expected production without jwt secret to fail")
	}
}
