package dataset

import (
	"archive/tar"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/pkg/errors"
)

func TestStreamShardPairsEntries(t *testing.T) {
	shard := filepath.Join(t.TempDir(), "shard-000000.tar")
	writeShard(t, shard, []shardEntry{
		{key: "000001", image: []byte("png"), label: 3},
		{key: "000002", image: []byte("png"), label: 7},
	})

	records := collectRecords(t, shard)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Key != "000001" || records[0].Label != 3 {
		t.Fatalf("unexpected first record %+v", records[0])
	}
}

func TestStreamShardIncompletePair(t *testing.T) {
	shard := filepath.Join(t.TempDir(), "shard-000000.tar")
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	addTarEntry(t, tw, "lonely.png", []byte("png"))
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := os.WriteFile(shard, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}

	records, errCh := StreamShard(context.Background(), shard, 4)
	for range records {
		t.Fatal("no record expected")
	}
	if err := <-errCh; err == nil {
		t.Fatal("expected incomplete sample error")
	}
}

func TestStreamShardPendingOverflow(t *testing.T) {
	shard := filepath.Join(t.TempDir(), "shard-000000.tar")
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, key := range []string{"a", "b", "c"} {
		addTarEntry(t, tw, key+".png", []byte("png"))
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := os.WriteFile(shard, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}

	records, errCh := StreamShard(context.Background(), shard, 2)
	for range records {
	}
	if err := <-errCh; !errors.Is(err, ErrPendingOverflow) {
		t.Fatalf("expected ErrPendingOverflow, got %v", err)
	}
}

func TestStreamShardRejectsNegativeLabel(t *testing.T) {
	shard := filepath.Join(t.TempDir(), "shard-000000.tar")
	writeShard(t, shard, []shardEntry{{key: "x", image: []byte("png"), label: -1}})

	records, errCh := StreamShard(context.Background(), shard, 4)
	for range records {
		t.Fatal("no record expected")
	}
	if err := <-errCh; err == nil {
		t.Fatal("expected label error")
	}
}

func collectRecords(t *testing.T, shard string) []Record {
	t.Helper()
	records, errCh := StreamShard(context.Background(), shard, 4)
	var out []Record
	for rec := range records {
		out = append(out, rec)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("StreamShard returned error: %v", err)
	}
	return out
}

type shardEntry struct {
	key   string
	image []byte
	label int
}

func writeShard(t *testing.T, path string, entries []shardEntry) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, e := range entries {
		addTarEntry(t, tw, e.key+".png", e.image)
		addTarEntry(t, tw, e.key+".cls", []byte(strconv.Itoa(e.label)))
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}
}

func addTarEntry(t *testing.T, tw *tar.Writer, name string, data []byte) {
	t.Helper()
	hdr := &tar.Header{Typeflag: tar.TypeReg, Name: name, Size: int64(len(data)), Mode: 0o644}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("write data: %v", err)
	}
}

// grayPNG encodes a size×size image whose every pixel is v.
func grayPNG(t *testing.T, size int, v uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
