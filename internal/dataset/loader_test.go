package dataset

import (
	"context"
	"math"
	"reflect"
	"testing"
)

// sequentialDataset returns n 1×2 images whose pixels encode their index.
func sequentialDataset(t *testing.T, n int) *Dataset {
	t.Helper()
	pixels := make([]byte, 0, n*2)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		pixels = append(pixels, byte(i), byte(i))
		labels[i] = i % 10
	}
	ds, err := New(1, 2, pixels, labels)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ds
}

func drain(t *testing.T, l *Loader) []Batch {
	t.Helper()
	batches, errCh := l.Stream(context.Background())
	var out []Batch
	for b := range batches {
		out = append(out, b)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	return out
}

func firstPixels(batches []Batch) []float64 {
	var out []float64
	for _, b := range batches {
		for _, img := range b.Images {
			out = append(out, img.Pix[0])
		}
	}
	return out
}

func TestLoaderSequentialOrder(t *testing.T) {
	l, err := NewLoader(sequentialDataset(t, 10), LoaderOptions{BatchSize: 4, NumWorkers: 3})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if l.Len() != 3 {
		t.Fatalf("Len=%d want 3", l.Len())
	}
	batches := drain(t, l)
	sizes := []int{batches[0].Len(), batches[1].Len(), batches[2].Len()}
	if !reflect.DeepEqual(sizes, []int{4, 4, 2}) {
		t.Fatalf("batch sizes %v", sizes)
	}
	for i, v := range firstPixels(batches) {
		if math.Abs(v*255-float64(i)) > 1e-9 {
			t.Fatalf("sample %d out of order: %v", i, v)
		}
	}
}

func TestLoaderShuffleDeterministicAcrossWorkers(t *testing.T) {
	ds := sequentialDataset(t, 50)
	run := func(workers int) [][]float64 {
		l, err := NewLoader(ds, LoaderOptions{BatchSize: 8, Shuffle: true, Seed: 7, NumWorkers: workers})
		if err != nil {
			t.Fatalf("NewLoader: %v", err)
		}
		return [][]float64{firstPixels(drain(t, l)), firstPixels(drain(t, l))}
	}
	one, many := run(1), run(4)
	if !reflect.DeepEqual(one, many) {
		t.Fatal("order depends on worker count")
	}
	if reflect.DeepEqual(one[0], one[1]) {
		t.Fatal("expected a new permutation on each pass")
	}
	seen := map[float64]bool{}
	for _, v := range one[0] {
		seen[v] = true
	}
	if len(seen) != 50 {
		t.Fatalf("pass visited %d distinct samples, want 50", len(seen))
	}
}

func TestLoaderNormalizes(t *testing.T) {
	ds, err := New(1, 1, []byte{255}, []int{0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l, err := NewLoader(ds, LoaderOptions{BatchSize: 1, Normalize: MNISTNormalize})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	got := drain(t, l)[0].Images[0].Pix[0]
	want := (1 - 0.1307) / 0.3081
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("normalized=%f want %f", got, want)
	}
}

func TestLoaderEmptyDataset(t *testing.T) {
	ds, err := New(28, 28, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l, err := NewLoader(ds, LoaderOptions{BatchSize: 64})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	if got := drain(t, l); len(got) != 0 {
		t.Fatalf("expected no batches, got %d", len(got))
	}
}

func TestLoaderCancel(t *testing.T) {
	l, err := NewLoader(sequentialDataset(t, 100), LoaderOptions{BatchSize: 1, NumWorkers: 2})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	batches, errCh := l.Stream(ctx)
	<-batches
	cancel()
	for range batches {
	}
	if err := <-errCh; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewLoaderRejectsBadBatch(t *testing.T) {
	if _, err := NewLoader(sequentialDataset(t, 1), LoaderOptions{}); err == nil {
		t.Fatal("expected batch size error")
	}
}
