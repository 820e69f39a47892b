package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Record is an encoded image paired with its label inside a shard.
type Record struct {
	Key   string
	Image []byte
	Label int
}

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("webdataset: pending pair buffer exceeded")

const defaultPendingCap = 1024

// StreamShard streams paired records from the tar shard at path. Entries are
// paired by basename: <key>.png (or .jpg/.jpeg) with <key>.cls.
func StreamShard(ctx context.Context, path string, pendingCap int) (<-chan Record, <-chan error) {
	out := make(chan Record)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		if err := streamShard(ctx, path, newPairer(pendingCap), out); err != nil {
			errCh <- err
		}
	}()
	return out, errCh
}

func streamShard(ctx context.Context, path string, p *pairer, out chan<- Record) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open shard")
	}
	defer f.Close()

	tr := tar.NewReader(bufio.NewReader(f))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "read tar")
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		rec, ok, err := p.add(hdr.Name, tr)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- rec:
		}
	}
	if n := len(p.pending); n > 0 {
		return errors.Errorf("%s: %d samples incomplete", filepath.Base(path), n)
	}
	return nil
}

// pairer joins image and label entries that share a key. Entries with other
// extensions are ignored.
type pairer struct {
	limit   int
	pending map[string]*halfRecord
}

type halfRecord struct {
	image    []byte
	label    int
	hasLabel bool
}

func newPairer(limit int) *pairer {
	if limit <= 0 {
		limit = defaultPendingCap
	}
	return &pairer{limit: limit, pending: make(map[string]*halfRecord)}
}

// add consumes one entry and reports a Record once both halves are present.
func (p *pairer) add(name string, r io.Reader) (Record, bool, error) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	key := strings.TrimSuffix(base, ext)

	var isImage bool
	switch strings.ToLower(ext) {
	case ".png", ".jpg", ".jpeg":
		isImage = true
	case ".cls":
	default:
		return Record{}, false, nil
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return Record{}, false, errors.Wrapf(err, "read %s", base)
	}

	h := p.pending[key]
	if h == nil {
		if len(p.pending) >= p.limit {
			return Record{}, false, ErrPendingOverflow
		}
		h = &halfRecord{}
		p.pending[key] = h
	}
	if isImage {
		h.image = payload
	} else {
		label, err := strconv.Atoi(strings.TrimSpace(string(payload)))
		if err != nil {
			return Record{}, false, errors.Wrapf(err, "parse label %s", base)
		}
		if label < 0 {
			return Record{}, false, errors.Errorf("label %s: negative class %d", base, label)
		}
		h.label, h.hasLabel = label, true
	}

	if len(h.image) == 0 || !h.hasLabel {
		return Record{}, false, nil
	}
	delete(p.pending, key)
	return Record{Key: key, Image: h.image, Label: h.label}, true, nil
}
