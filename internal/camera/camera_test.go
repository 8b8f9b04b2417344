package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestFrames(t *testing.T) {
	a := image.NewGray(image.Rect(0, 0, 4, 4))
	b := image.NewGray(image.Rect(0, 0, 8, 8))
	src := NewFrames(a, b)
	ctx := context.Background()

	got, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Same(t, a, got)

	got, err = src.Read(ctx)
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, ErrStreamEnded)

	require.NoError(t, src.Close())
	assert.True(t, src.Closed())
}

func TestFrames_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFrames(image.NewGray(image.Rect(0, 0, 1, 1))).Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "002.jpg"), jpegBytes(t, 20, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001.jpg"), jpegBytes(t, 10, 20), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "003.jpg"), []byte("broken"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("skip"), 0o644))

	src, err := OpenDir(dir)
	require.NoError(t, err)
	defer src.Close()
	ctx := context.Background()

	img, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, img.Bounds().Dx())

	img, err = src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())

	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, ErrDecode)
	assert.False(t, IsFatal(err))

	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, ErrStreamEnded)
	assert.True(t, IsFatal(err))
}

func TestOpenDir_Missing(t *testing.T) {
	_, err := OpenDir(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, ErrCaptureUnavailable)
}

func TestYUYVToGray(t *testing.T) {
	frame := []byte{10, 128, 20, 128, 30, 128, 40, 128}
	img, err := yuyvToGray(frame, 2, 2)
	require.NoError(t, err)
	gray := img.(*image.Gray)
	assert.Equal(t, []byte{10, 20, 30, 40}, gray.Pix)
	assert.Equal(t, color.Gray{Y: 40}, gray.GrayAt(1, 1))

	_, err = yuyvToGray(frame[:4], 2, 2)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestIngress(t *testing.T) {
	ingress := NewIngress(slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(ingress.Handler())
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan *WebsocketSource, 1)
	go func() {
		src, err := ingress.Accept(ctx)
		if err == nil {
			accepted <- src
		}
	}()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, err := websocket.Dial(url, "", server.URL)
	require.NoError(t, err)

	src := <-accepted
	require.NoError(t, websocket.Message.Send(conn, jpegBytes(t, 32, 24)))

	img, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), img.Bounds())

	require.NoError(t, src.Send("play-sound:success"))
	var reply string
	require.NoError(t, websocket.Message.Receive(conn, &reply))
	assert.Equal(t, "play-sound:success", reply)

	require.NoError(t, conn.Close())
	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, ErrStreamEnded)
}
