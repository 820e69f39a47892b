package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDiscoverShardsBasic(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "shard-000000.tar"))
	mustWrite(t, filepath.Join(dir, "nested", "shard-000001.tar"))
	mustWrite(t, filepath.Join(dir, "ignore.txt"))

	shards, err := DiscoverShards(dir)
	if err != nil {
		t.Fatalf("DiscoverShards error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "nested", "shard-000001.tar"),
		filepath.Join(dir, "shard-000000.tar"),
	}
	if len(shards) != len(want) {
		t.Fatalf("expected %d shards, got %d", len(want), len(shards))
	}
	for i, shard := range want {
		if shards[i] != shard {
			t.Fatalf("shard[%d]=%s want %s", i, shards[i], shard)
		}
	}
}

func TestLoadShardsDecodesImages(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, filepath.Join(dir, "shard-000000.tar"), []shardEntry{
		{key: "a", image: grayPNG(t, 28, 0), label: 4},
	})
	writeShard(t, filepath.Join(dir, "shard-000001.tar"), []shardEntry{
		{key: "b", image: grayPNG(t, 28, 255), label: 9},
	})

	ds, err := LoadShards(context.Background(), dir, 28, 28)
	if err != nil {
		t.Fatalf("LoadShards: %v", err)
	}
	if ds.Len() != 2 {
		t.Fatalf("expected 2 samples, got %d", ds.Len())
	}
	first, second := ds.Sample(0), ds.Sample(1)
	if first.Label != 4 || second.Label != 9 {
		t.Fatalf("labels %d,%d", first.Label, second.Label)
	}
	if len(first.Pixels) != 784 || first.Pixels[0] != 0 || second.Pixels[783] != 255 {
		t.Fatal("pixels not decoded")
	}
}

func TestLoadShardsRejectsWrongSize(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, filepath.Join(dir, "shard-000000.tar"), []shardEntry{
		{key: "a", image: grayPNG(t, 16, 0), label: 1},
	})
	if _, err := LoadShards(context.Background(), dir, 28, 28); err == nil {
		t.Fatal("expected size error")
	}
}

func TestLoadShardsEmptyRoot(t *testing.T) {
	if _, err := LoadShards(context.Background(), t.TempDir(), 28, 28); err == nil {
		t.Fatal("expected error for root without shards")
	}
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
