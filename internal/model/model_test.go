package model

import (
	"encoding/json"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhossein5/facecheck/internal/lbph"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func pattern(k int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = uint8(((i * (k + 2)) % 13) * 19)
	}
	return img
}

func trained(t *testing.T, subjects ...string) (*lbph.Model, *LabelMap) {
	labels := NewLabelMap()
	var imgs []*image.Gray
	var ids []int
	for i, s := range subjects {
		imgs = append(imgs, pattern(i))
		ids = append(ids, labels.Assign(s))
	}
	m, err := lbph.Train(imgs, ids)
	require.NoError(t, err)
	return m, labels
}

func TestLabelMap_Assign(t *testing.T) {
	m := NewLabelMap()
	assert.Equal(t, 0, m.Assign("S002"))
	assert.Equal(t, 1, m.Assign("S001"))
	assert.Equal(t, 0, m.Assign("S002"))
	assert.Equal(t, 2, m.Len())

	s, ok := m.Subject(1)
	assert.True(t, ok)
	assert.Equal(t, "S001", s)

	_, ok = m.Subject(2)
	assert.False(t, ok)
	_, ok = m.Subject(-1)
	assert.False(t, ok)
}

func TestLabelMap_JSON(t *testing.T) {
	m := NewLabelMap()
	m.Assign("78945CB123")
	m.Assign("S001")

	buf, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"0": "78945CB123", "1": "S001"}`, string(buf))

	back := NewLabelMap()
	require.NoError(t, json.Unmarshal(buf, back))
	assert.Equal(t, m, back)
}

func TestLabelMap_RejectsInvalid(t *testing.T) {
	for _, doc := range []string{
		`{"0": "a", "2": "b"}`,
		`{"x": "a"}`,
		`{"0": "a", "1": "a"}`,
		`[1, 2]`,
	} {
		assert.Error(t, json.Unmarshal([]byte(doc), NewLabelMap()), doc)
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	classifier, labels := trained(t, "S001", "S002")

	version, err := Save(dir, classifier, labels, discard)
	require.NoError(t, err)

	session, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, version, session.Version)
	assert.Equal(t, 2, session.Labels.Len())

	subject, dist, ok, err := session.Predict(pattern(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "S002", subject)
	assert.InDelta(t, 0, dist, 1e-9)
}

func TestSave_ReplacesAndPrunes(t *testing.T) {
	dir := t.TempDir()

	c1, l1 := trained(t, "S001")
	first, err := Save(dir, c1, l1, discard)
	require.NoError(t, err)

	c2, l2 := trained(t, "S009", "S010", "S011")
	second, err := Save(dir, c2, l2, discard)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	session, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, second, session.Version)
	assert.Equal(t, 3, session.Labels.Len())

	_, err = os.Stat(filepath.Join(dir, first))
	assert.True(t, os.IsNotExist(err), "old version should be pruned")
}

func TestLoad_Unavailable(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrModelUnavailable)

	classifier, labels := trained(t, "S001")
	version, err := Save(dir, classifier, labels, discard)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, version, LabelMapFile)))

	_, err = Load(dir)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestLoad_CorruptClassifierIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	classifier, labels := trained(t, "S001", "S002")
	classifier.Radius = -1
	_, err := Save(dir, classifier, labels, discard)
	require.NoError(t, err)

	_, err = Load(dir)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}
