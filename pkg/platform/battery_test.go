package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBatteryPercent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capacity")

	for _, tc := range []struct {
		content string
		want    int
		known   bool
	}{
		{"87\n", 87, true},
		{"0", 0, true},
		{"100", 100, true},
		{"101", 0, false},
		{"-3", 0, false},
		{"soon", 0, false},
	} {
		if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		b := &Battery{capacityPath: path}
		got, known := b.BatteryPercent()
		if got != tc.want || known != tc.known {
			t.Errorf("BatteryPercent(%q) = %d, %v, want %d, %v", tc.content, got, known, tc.want, tc.known)
		}
	}

	missing := &Battery{capacityPath: filepath.Join(dir, "nope")}
	if _, known := missing.BatteryPercent(); known {
		t.Error("missing supply should read unknown")
	}
}
