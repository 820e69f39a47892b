package dataset

import "github.com/pkg/errors"

// Dataset is an in-memory set of fixed-size grayscale images with labels.
type Dataset struct {
	Rows, Cols int
	pixels     []byte
	labels     []int
}

// Sample is one image of a Dataset. Pixels aliases the dataset storage and
// must not be modified.
type Sample struct {
	Pixels []byte
	Label  int
}

// New wraps pixels (row-major, one image after another) and labels.
func New(rows, cols int, pixels []byte, labels []int) (*Dataset, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.Errorf("dataset: image size must be > 0 (got %dx%d)", rows, cols)
	}
	if len(pixels) != len(labels)*rows*cols {
		return nil, errors.Errorf("dataset: %d pixel bytes for %d images of %dx%d", len(pixels), len(labels), rows, cols)
	}
	return &Dataset{Rows: rows, Cols: cols, pixels: pixels, labels: labels}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.labels)
}

// Sample returns sample i.
func (d *Dataset) Sample(i int) Sample {
	size := d.Rows * d.Cols
	return Sample{Pixels: d.pixels[i*size : (i+1)*size], Label: d.labels[i]}
}

// Normalize maps a pixel byte to (p/255 - Mean) / Std.
type Normalize struct {
	Mean, Std float64
}

// MNISTNormalize holds the MNIST training-set mean and standard deviation.
var MNISTNormalize = Normalize{Mean: 0.1307, Std: 0.3081}

// Apply normalizes one pixel.
func (n Normalize) Apply(p byte) float64 {
	return (float64(p)/255 - n.Mean) / n.Std
}

// Image is a normalized image, row-major.
type Image struct {
	Rows, Cols int
	Pix        []float64
}

// Batch groups consecutive images with their labels.
type Batch struct {
	Images []Image
	Labels []int
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int {
	return len(b.Labels)
}
