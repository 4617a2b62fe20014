package wallet

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileName(t *testing.T) {
	cases := map[string]string{
		"base-sepolia":     "wallet_data_base_sepolia.txt",
		"ethereum-mainnet": "wallet_data_ethereum_mainnet.txt",
		"polygon.amoy":     "wallet_data_polygon_amoy.txt",
	}
	for in, want := range cases {
		if got := FileName(in); got != want {
			t.Fatalf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(t.TempDir())
	record, err := store.Load(context.Background(), "base-sepolia")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %+v", record)
	}
}

func TestFileStoreLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "wallet_data_base_sepolia.txt"), []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	record, err := NewFileStore(dir).Load(context.Background(), "base-sepolia")
	if err != nil {
		t.Fatalf("invalid JSON should not fail: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil record for invalid JSON")
	}
}

func TestFileStoreSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	address := "0x1111111111111111111111111111111111111111"
	rec := Record{Address: &address, NetworkID: "base-sepolia", CreatedAt: "2024-05-01 10:00:00"}

	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "wallet_data_base_sepolia.txt"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "\n  \"address\": \"0x1111111111111111111111111111111111111111\"") {
		t.Fatalf("expected two-space indented output, got:\n%s", text)
	}

	loaded, err := store.Load(context.Background(), "base-sepolia")
	if err != nil || loaded == nil {
		t.Fatalf("load: %v %v", loaded, err)
	}
	if loaded.AddressValue() != address || loaded.CreatedAt != rec.CreatedAt {
		t.Fatalf("unexpected record %+v", loaded)
	}
}

func TestFileStoreSaveNullAddress(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	if err := store.Save(context.Background(), Record{NetworkID: "base-sepolia", CreatedAt: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	content, _ := os.ReadFile(filepath.Join(dir, "wallet_data_base_sepolia.txt"))
	if !strings.Contains(string(content), `"address": null`) {
		t.Fatalf("expected null address, got %s", content)
	}
}
