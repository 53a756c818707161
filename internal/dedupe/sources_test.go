package dedupe

import (
	"path/filepath"
	"testing"
)

func TestLoadSourceRegistry_MissingFileYieldsEmpty(t *testing.T) {
	t.Parallel()

	reg, err := LoadSourceRegistry(filepath.Join(t.TempDir(), "sources.yaml"))
	if err != nil {
		t.Fatalf("LoadSourceRegistry: %v", err)
	}
	if len(reg.Sources) != 0 {
		t.Fatalf("expected empty registry, got %+v", reg)
	}
}

func TestSaveAndLoadSourceRegistry_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sub", "sources.yaml")
	reg := &SourceRegistry{Sources: []TunnelSource{
		{Name: "cell_a", Listen: "0.0.0.0:9001", Enabled: true},
		{Name: "sl_a", Listen: "0.0.0.0:9002", Enabled: false},
	}}
	if err := SaveSourceRegistry(path, reg); err != nil {
		t.Fatalf("SaveSourceRegistry: %v", err)
	}
	if reg.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be stamped")
	}

	got, err := LoadSourceRegistry(path)
	if err != nil {
		t.Fatalf("LoadSourceRegistry: %v", err)
	}
	if len(got.Sources) != 2 || got.Sources[0].Name != "cell_a" || got.Sources[1].Enabled {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
