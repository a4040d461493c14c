package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/viper"
)

func viperForDir(t *testing.T, dir string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigName("simwatch")
	v.SetConfigType("yml")
	v.AddConfigPath(dir)
	return v
}

func writeOptionsFile(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "simwatch.yml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write options file: %v", err)
	}
}

func TestOptionsMissingFileUsesDefaults(t *testing.T) {
	holder, err := newOptionsHolder(viperForDir(t, t.TempDir()))
	if err != nil {
		t.Fatalf("new options holder: %v", err)
	}

	if !reflect.DeepEqual(holder.Get(), DefaultOptions()) {
		t.Fatalf("expected defaults, got %+v", holder.Get())
	}
}

func TestPartialOptionsFileKeepsUnsetDefaults(t *testing.T) {
	dir := t.TempDir()
	writeOptionsFile(t, dir, "options:\n  deviceFields:\n    - status\n")

	holder, err := newOptionsHolder(viperForDir(t, dir))
	if err != nil {
		t.Fatalf("new options holder: %v", err)
	}

	opts := holder.Get()
	defaults := DefaultOptions()
	if !opts.EnableSwitch {
		t.Fatal("omitted enableSwitch must keep its default, not flip to false")
	}
	if opts.ScanIntervalSeconds != defaults.ScanIntervalSeconds {
		t.Fatalf("expected default interval %d, got %d",
			defaults.ScanIntervalSeconds, opts.ScanIntervalSeconds)
	}
	if !reflect.DeepEqual(opts.AccountFields, defaults.AccountFields) {
		t.Fatalf("expected default account fields, got %v", opts.AccountFields)
	}
	if !reflect.DeepEqual(opts.DeviceFields, []string{"status"}) {
		t.Fatalf("expected device fields from file, got %v", opts.DeviceFields)
	}
}

func TestOptionsFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeOptionsFile(t, dir, "options:\n  scanIntervalSeconds: 120\n  enableSwitch: false\n")

	holder, err := newOptionsHolder(viperForDir(t, dir))
	if err != nil {
		t.Fatalf("new options holder: %v", err)
	}

	opts := holder.Get()
	if opts.ScanIntervalSeconds != 120 {
		t.Fatalf("expected interval 120, got %d", opts.ScanIntervalSeconds)
	}
	if opts.EnableSwitch {
		t.Fatal("explicit enableSwitch false must be honored")
	}
}

func TestOptionsRejectNegativeInterval(t *testing.T) {
	dir := t.TempDir()
	writeOptionsFile(t, dir, "options:\n  scanIntervalSeconds: -5\n")

	if _, err := newOptionsHolder(viperForDir(t, dir)); err == nil {
		t.Fatal("expected negative interval to be rejected")
	}
}
