package trainer

import (
	"context"
	"image"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhossein5/facecheck/internal/dataset"
	"github.com/amirhossein5/facecheck/internal/imaging"
	"github.com/amirhossein5/facecheck/internal/model"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func face(seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, imaging.SampleSize, imaging.SampleSize))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

func setup(t *testing.T) (*dataset.Dataset, string) {
	root := t.TempDir()
	ds, err := dataset.New(filepath.Join(root, "dataSet"))
	require.NoError(t, err)
	return ds, filepath.Join(root, "model")
}

func TestTrainAndSave_LabelBijection(t *testing.T) {
	ds, modelDir := setup(t)

	subjects := map[string]int{"S003": 2, "S001": 3, "S002": 1}
	seed := int64(1)
	for subject, n := range subjects {
		for seq := 1; seq <= n; seq++ {
			_, err := ds.Save(subject, seq, face(seed))
			require.NoError(t, err)
			seed++
		}
	}

	tr := New(ds, modelDir, discard)
	var calls int
	tr.OnProgress = func(done, total int) {
		calls++
		assert.Equal(t, 6, total)
	}

	count, err := tr.TrainAndSave(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 6, calls)

	session, err := model.Load(modelDir)
	require.NoError(t, err)
	require.Equal(t, 3, session.Labels.Len())

	seen := map[string]bool{}
	for label := 0; label < 3; label++ {
		subject, ok := session.Labels.Subject(label)
		require.True(t, ok)
		seen[subject] = true
	}
	assert.Equal(t, map[string]bool{"S001": true, "S002": true, "S003": true}, seen)

	// Discovery order is lexicographic by file name.
	first, _ := session.Labels.Subject(0)
	assert.Equal(t, "S001", first)
}

func TestTrainAndSave_NoTrainingData(t *testing.T) {
	ds, modelDir := setup(t)

	_, err := New(ds, modelDir, discard).TrainAndSave(context.Background())
	assert.ErrorIs(t, err, ErrNoTrainingData)

	_, err = os.Stat(modelDir)
	assert.True(t, os.IsNotExist(err), "nothing may be written without training data")
}

func TestTrainAndSave_SkipsUndecodable(t *testing.T) {
	ds, modelDir := setup(t)

	require.NoError(t, os.WriteFile(filepath.Join(ds.Dir(), dataset.FileName("BAD", 1)), []byte("garbage"), 0o644))
	_, err := New(ds, modelDir, discard).TrainAndSave(context.Background())
	assert.ErrorIs(t, err, ErrNoTrainingData)

	_, err = ds.Save("S001", 1, face(42))
	require.NoError(t, err)

	count, err := New(ds, modelDir, discard).TrainAndSave(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	session, err := model.Load(modelDir)
	require.NoError(t, err)
	_, ok := session.Labels.Label("BAD")
	assert.False(t, ok)
}

func TestTrainAndSave_Retrain(t *testing.T) {
	ds, modelDir := setup(t)
	_, err := ds.Save("S001", 1, face(1))
	require.NoError(t, err)

	tr := New(ds, modelDir, discard)
	_, err = tr.TrainAndSave(context.Background())
	require.NoError(t, err)

	_, err = ds.Save("S002", 1, face(2))
	require.NoError(t, err)
	count, err := tr.TrainAndSave(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	session, err := model.Load(modelDir)
	require.NoError(t, err)
	assert.Equal(t, 2, session.Labels.Len())
}
