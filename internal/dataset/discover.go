package dataset

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"
)

var shardRegexp = regexp.MustCompile(`^shard-[0-9]{6,}\.tar$`)

// DiscoverShards walks root for files named shard-NNNNNN.tar and returns
// their paths in lexical order, so LoadShards reads them in a stable order.
// Paths are joined onto root as given and are not made absolute.
func DiscoverShards(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if shardRegexp.MatchString(d.Name()) {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "discover shards")
	}
	sort.Strings(entries)
	return entries, nil
}

// LoadShards reads every shard beneath root into a Dataset of rows×cols
// grayscale images. Shards are read in path order and records in tar order,
// so the resulting sample order is stable.
func LoadShards(ctx context.Context, root string, rows, cols int) (*Dataset, error) {
	shards, err := DiscoverShards(root)
	if err != nil {
		return nil, err
	}
	if len(shards) == 0 {
		return nil, errors.Errorf("no shards discovered under %s", root)
	}

	var pixels []byte
	var labels []int
	for _, shard := range shards {
		records, errCh := StreamShard(ctx, shard, defaultPendingCap)
		for rec := range records {
			pix, err := decodeGray(rec.Image, rows, cols)
			if err != nil {
				// drain so the shard goroutine can exit
				for range records {
				}
				return nil, errors.Wrapf(err, "%s: sample %s", filepath.Base(shard), rec.Key)
			}
			pixels = append(pixels, pix...)
			labels = append(labels, rec.Label)
		}
		if err := <-errCh; err != nil {
			return nil, err
		}
	}
	return New(rows, cols, pixels, labels)
}

// decodeGray decodes an encoded image of exactly rows×cols into 8-bit luma.
func decodeGray(raw []byte, rows, cols int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if bounds.Dx() != cols || bounds.Dy() != rows {
		return nil, errors.Errorf("image is %dx%d, want %dx%d", bounds.Dy(), bounds.Dx(), rows, cols)
	}
	pix := make([]byte, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			g := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			pix[y*cols+x] = g.Y
		}
	}
	return pix, nil
}
