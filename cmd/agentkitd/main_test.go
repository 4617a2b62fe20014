package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRunStartsUninitializedAndStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	for key, value := range map[string]string{
		"CDP_API_KEY_ID":     "",
		"CDP_API_KEY_SECRET": "",
		"OPENAI_API_KEY":     "",
		"AGENTKIT_DATA_DIR":  dir,
		"WALLET_STORE":       "file",
		"TRANSCRIPT_STORE":   "memory",
		"EVENTS_DRIVER":      "none",
		"NETWORK_ID":         "base-sepolia",
	} {
		t.Setenv(key, value)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(300*time.Millisecond, cancel)

	err := run(ctx, []string{"-config", filepath.Join(dir, "missing.json"), "-addr", "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}

func TestRunRejectsUnknownNetwork(t *testing.T) {
	t.Setenv("AGENTKIT_DATA_DIR", t.TempDir())
	t.Setenv("NETWORK_ID", "solana-devnet")

	err := run(context.Background(), []string{"-config", "", "-addr", "127.0.0.1:0"})
	if err == nil {
		t.Fatal("expected error for unknown network")
	}
}

func TestRunRejectsUnknownStores(t *testing.T) {
	t.Setenv("AGENTKIT_DATA_DIR", t.TempDir())
	t.Setenv("NETWORK_ID", "base-sepolia")
	t.Setenv("TRANSCRIPT_STORE", "cassandra")

	if err := run(context.Background(), []string{"-config", ""}); err == nil {
		t.Fatal("expected error for unknown transcript store")
	}
}
