package dataset

import (
	"bufio"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

// ErrChecksum indicates a dataset file whose sha256 does not match.
var ErrChecksum = errors.New("dataset: checksum mismatch")

const (
	trainImages = "train-images-idx3-ubyte.gz"
	trainLabels = "train-labels-idx1-ubyte.gz"
	testImages  = "t10k-images-idx3-ubyte.gz"
	testLabels  = "t10k-labels-idx1-ubyte.gz"

	idxImagesMagic = 0x00000803
	idxLabelsMagic = 0x00000801

	// maxIDXBytes bounds the payload a header may announce. The MNIST
	// training images take about 47 MB.
	maxIDXBytes = 1 << 30
)

// MNISTDigests are the sha256 digests of the gzip files.
var MNISTDigests = map[string]string{
	trainImages: "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609",
	trainLabels: "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c",
	testImages:  "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6",
	testLabels:  "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6",
}

// DefaultMirrors are tried in order when a file is missing.
var DefaultMirrors = []string{
	"https://ossci-datasets.s3.amazonaws.com/mnist/",
	"https://storage.googleapis.com/cvdf-datasets/mnist/",
}

// MNISTOptions controls where MNIST lives and how it is fetched.
type MNISTOptions struct {
	// Root is the cache directory; files live in Root/mnist.
	Root     string
	Download bool
	Mirrors  []string
	// Digests overrides MNISTDigests; SkipVerify disables checking entirely.
	Digests    map[string]string
	SkipVerify bool
	Client     *http.Client
	// MaxRetries bounds attempts per mirror after the first one.
	MaxRetries    uint64
	RetryInterval time.Duration
}

func (o MNISTOptions) dir() string {
	return filepath.Join(o.Root, "mnist")
}

func (o MNISTOptions) digest(name string) string {
	if o.SkipVerify {
		return ""
	}
	if o.Digests != nil {
		return o.Digests[name]
	}
	return MNISTDigests[name]
}

// LoadMNIST returns the training or the test split, downloading missing
// files first when opts.Download is set.
func LoadMNIST(ctx context.Context, opts MNISTOptions, train bool) (*Dataset, error) {
	imgName, lblName := testImages, testLabels
	if train {
		imgName, lblName = trainImages, trainLabels
	}
	for _, name := range []string{imgName, lblName} {
		if err := ensureFile(ctx, opts, name); err != nil {
			return nil, err
		}
	}

	rows, cols, pixels, err := readGzip(filepath.Join(opts.dir(), imgName), readIDXImages)
	if err != nil {
		return nil, err
	}
	_, _, labels, err := readGzip(filepath.Join(opts.dir(), lblName), func(r io.Reader) (int, int, []int, error) {
		l, err := readIDXLabels(r)
		return 0, 0, l, err
	})
	if err != nil {
		return nil, err
	}
	ds, err := New(rows, cols, pixels, labels)
	if err != nil {
		return nil, errors.Wrapf(err, "mnist %s", imgName)
	}
	return ds, nil
}

func readGzip[T any](path string, read func(io.Reader) (int, int, T, error)) (int, int, T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, zero, errors.Wrap(err, "open idx")
	}
	defer f.Close()
	zr, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return 0, 0, zero, errors.Wrapf(err, "gzip %s", filepath.Base(path))
	}
	defer zr.Close()
	rows, cols, v, err := read(zr)
	if err != nil {
		return 0, 0, zero, errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	return rows, cols, v, nil
}

func readIDXImages(r io.Reader) (int, int, []byte, error) {
	var hdr [4]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return 0, 0, nil, errors.Wrap(err, "idx header")
	}
	if hdr[0] != idxImagesMagic {
		return 0, 0, nil, errors.Errorf("idx: bad image magic %#08x", hdr[0])
	}
	// rows*cols fits in 64 bits; dividing avoids overflow in the full product.
	per := uint64(hdr[2]) * uint64(hdr[3])
	if per > maxIDXBytes || (per > 0 && uint64(hdr[1]) > maxIDXBytes/per) {
		return 0, 0, nil, errors.Errorf("idx: header announces %dx%dx%d images, over the %d byte limit", hdr[1], hdr[2], hdr[3], maxIDXBytes)
	}
	n, rows, cols := int(hdr[1]), int(hdr[2]), int(hdr[3])
	pixels := make([]byte, uint64(hdr[1])*per)
	if _, err := io.ReadFull(r, pixels); err != nil {
		return 0, 0, nil, errors.Wrapf(err, "idx: reading %d images", n)
	}
	return rows, cols, pixels, nil
}

func readIDXLabels(r io.Reader) ([]int, error) {
	var hdr [2]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, errors.Wrap(err, "idx header")
	}
	if hdr[0] != idxLabelsMagic {
		return nil, errors.Errorf("idx: bad label magic %#08x", hdr[0])
	}
	if hdr[1] > maxIDXBytes {
		return nil, errors.Errorf("idx: header announces %d labels, over the %d byte limit", hdr[1], maxIDXBytes)
	}
	raw := make([]byte, hdr[1])
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrapf(err, "idx: reading %d labels", hdr[1])
	}
	labels := make([]int, len(raw))
	for i, b := range raw {
		labels[i] = int(b)
	}
	return labels, nil
}

// ensureFile verifies name under the cache directory, fetching it when absent.
func ensureFile(ctx context.Context, opts MNISTOptions, name string) error {
	path := filepath.Join(opts.dir(), name)
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return verify(path, opts.digest(name))
	case !os.IsNotExist(err):
		return errors.Wrapf(err, "stat %s", path)
	case !opts.Download:
		return errors.Errorf("dataset file %s does not exist and download is disabled", path)
	}

	if err := os.MkdirAll(opts.dir(), 0o755); err != nil {
		return errors.Wrap(err, "create dataset dir")
	}
	mirrors := opts.Mirrors
	if len(mirrors) == 0 {
		mirrors = DefaultMirrors
	}
	var lastErr error
	for _, mirror := range mirrors {
		url := mirror + name
		lastErr = fetch(ctx, opts, url, path, opts.digest(name))
		if lastErr == nil {
			log.Printf("downloaded %s", url)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("download %s failed: %v", url, lastErr)
	}
	return errors.Wrapf(lastErr, "fetch %s", name)
}

func fetch(ctx context.Context, opts MNISTOptions, url, path, digest string) error {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	eb := backoff.NewExponentialBackOff()
	if opts.RetryInterval > 0 {
		eb.InitialInterval = opts.RetryInterval
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = 3
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, retries), ctx)

	return backoff.Retry(func() error {
		return download(ctx, client, url, path, digest)
	}, policy)
}

// download writes url to path through a temporary file so a partial or
// corrupt transfer never lands under the final name.
func download(ctx context.Context, client *http.Client, url, path, digest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := errors.Errorf("GET %s: %s", url, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return backoff.Permanent(errors.Wrap(err, "create temp file"))
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		tmp.Close()
		return errors.Wrap(err, "copy body")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if digest != "" {
		if got := hex.EncodeToString(h.Sum(nil)); got != digest {
			return errors.Wrapf(ErrChecksum, "%s: got %s", url, got)
		}
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "rename download")
}

func verify(path, digest string) error {
	if digest == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open for checksum")
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return errors.Wrap(err, "hash")
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != digest {
		return errors.Wrapf(ErrChecksum, "%s: got %s", path, got)
	}
	return nil
}
