package cliconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Missing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := cfg.GetCredential("https://proxy.example.com"); !errors.Is(err, ErrCredentialNotFound) {
		t.Errorf("GetCredential() error = %v, want ErrCredentialNotFound", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetCredential("https://proxy.example.com:8443/some/path", "session"); err != nil {
		t.Fatal(err)
	}
	if err := cfg.SetCredential("not a url", "x"); err == nil {
		t.Error("expected error for a server without host")
	}
	if err := Save(cfg); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(home, ".magicproxy", "credentials.json"))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %v, want 0600", perm)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	cred, err := loaded.GetCredential("https://proxy.example.com:8443")
	if err != nil {
		t.Fatal(err)
	}
	if cred.Token != "session" {
		t.Errorf("Token = %q", cred.Token)
	}
}
