package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type tensorState struct {
	Rows, Cols int
	Data       []float64
}

type checkpoint struct {
	RunID  string
	Params map[string]tensorState
}

// Save writes every parameter of m to w as gob.
func (m *MLP) Save(w io.Writer, runID string) error {
	ck := checkpoint{RunID: runID, Params: make(map[string]tensorState)}
	for _, p := range m.Params() {
		r, c := p.Value.Dims()
		ck.Params[p.Name] = tensorState{Rows: r, Cols: c, Data: mat.DenseCopyOf(p.Value).RawMatrix().Data}
	}
	return errors.Wrap(gob.NewEncoder(w).Encode(ck), "encode checkpoint")
}

// Load replaces the parameters of m with those read from r. The checkpoint
// must hold exactly the parameters of m with the same shapes. It returns the
// run id stored with the checkpoint.
func (m *MLP) Load(r io.Reader) (string, error) {
	var ck checkpoint
	if err := gob.NewDecoder(r).Decode(&ck); err != nil {
		return "", errors.Wrap(err, "decode checkpoint")
	}
	params := m.Params()
	if len(ck.Params) != len(params) {
		return "", errors.Wrapf(ErrShapeMismatch, "checkpoint has %d params, model has %d", len(ck.Params), len(params))
	}
	for _, p := range params {
		st, ok := ck.Params[p.Name]
		if !ok {
			return "", errors.Errorf("checkpoint is missing %s", p.Name)
		}
		r, c := p.Value.Dims()
		if st.Rows != r || st.Cols != c || len(st.Data) != r*c {
			return "", errors.Wrapf(ErrShapeMismatch, "%s is %dx%d in checkpoint, %dx%d in model", p.Name, st.Rows, st.Cols, r, c)
		}
	}
	for _, p := range params {
		st := ck.Params[p.Name]
		copy(p.Value.RawMatrix().Data, st.Data)
		p.Grad.Zero()
	}
	return ck.RunID, nil
}

// SaveFile writes a checkpoint of m to path.
func SaveFile(path string, m *MLP, runID string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create checkpoint")
	}
	if err := m.Save(f, runID); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "close checkpoint")
}

// LoadFile reads a checkpoint from path into m.
func LoadFile(path string, m *MLP) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "open checkpoint")
	}
	defer f.Close()
	return m.Load(f)
}
