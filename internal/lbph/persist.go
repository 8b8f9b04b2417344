package lbph

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

// Histogram is one concatenated spatial histogram. It is stored in YAML as
// base64 of little endian float32 values, which round-trips bit for bit.
type Histogram []float32

func (h Histogram) MarshalYAML() (interface{}, error) {
	buf := make([]byte, 4*len(h))
	for i, v := range h {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func (h *Histogram) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("lbph: histogram: %w", err)
	}
	if len(buf)%4 != 0 {
		return fmt.Errorf("lbph: histogram has %d bytes, not a multiple of 4", len(buf))
	}
	out := make(Histogram, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	*h = out
	return nil
}

func (m *Model) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("lbph: encode model: %w", err)
	}
	return enc.Close()
}

func Load(r io.Reader) (*Model, error) {
	var m Model
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("lbph: decode model: %w", err)
	}
	if len(m.Histograms) == 0 {
		return nil, ErrNotTrained
	}
	if len(m.Histograms) != len(m.Labels) {
		return nil, fmt.Errorf("lbph: %d histograms but %d labels", len(m.Histograms), len(m.Labels))
	}
	if m.Radius < 1 || m.Neighbors < 1 || m.Neighbors > 16 || m.GridX < 1 || m.GridY < 1 {
		return nil, fmt.Errorf("lbph: invalid parameters radius=%d neighbors=%d grid=%dx%d",
			m.Radius, m.Neighbors, m.GridX, m.GridY)
	}
	if m.Width <= 2*m.Radius || m.Height <= 2*m.Radius ||
		m.GridX > m.Width-2*m.Radius || m.GridY > m.Height-2*m.Radius {
		return nil, fmt.Errorf("lbph: invalid sample size %dx%d for radius %d and grid %dx%d",
			m.Width, m.Height, m.Radius, m.GridX, m.GridY)
	}
	want := m.GridX * m.GridY * (1 << m.Neighbors)
	for i, h := range m.Histograms {
		if len(h) != want {
			return nil, fmt.Errorf("lbph: histogram %d has %d bins, want %d", i, len(h), want)
		}
	}
	return &m, nil
}
