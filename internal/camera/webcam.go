package camera

import (
	"context"
	"fmt"
	"image"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"

	"github.com/amirhossein5/facecheck/internal/imaging"
)

const (
	pixFmtMJPEG webcam.PixelFormat = 0x47504A4D // 'MJPG'
	pixFmtYUYV  webcam.PixelFormat = 0x56595559 // 'YUYV'

	frameTimeoutSeconds = 1
)

// Webcam reads frames from a V4L2 device.
type Webcam struct {
	cam    *webcam.Webcam
	format webcam.PixelFormat
	width  int
	height int
}

// Open starts streaming from device, asking for width x height. MJPEG is
// preferred; YUYV is used when the device cannot compress.
func Open(device string, width, height uint32) (*Webcam, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, errors.Wrap(fmt.Errorf("%w: %v", ErrCaptureUnavailable, err), "Can not open device "+device)
	}

	formats := cam.GetSupportedFormats()
	want := pixFmtMJPEG
	if _, ok := formats[want]; !ok {
		want = pixFmtYUYV
		if _, ok := formats[want]; !ok {
			cam.Close()
			return nil, errors.Wrapf(ErrCaptureUnavailable, "device %s supports neither MJPEG nor YUYV", device)
		}
	}

	format, w, h, err := cam.SetImageFormat(want, width, height)
	if err != nil {
		cam.Close()
		return nil, errors.Wrap(fmt.Errorf("%w: %v", ErrCaptureUnavailable, err), "Can not set image format")
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrap(fmt.Errorf("%w: %v", ErrCaptureUnavailable, err), "Can not start streaming")
	}

	return &Webcam{cam: cam, format: format, width: int(w), height: int(h)}, nil
}

func (c *Webcam) Read(ctx context.Context) (image.Image, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := c.cam.WaitForFrame(frameTimeoutSeconds)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			return nil, errors.Wrap(fmt.Errorf("%w: %v", ErrCaptureUnavailable, err), "Frame wait failed")
		}

		frame, err := c.cam.ReadFrame()
		if err != nil {
			return nil, errors.Wrap(fmt.Errorf("%w: %v", ErrCaptureUnavailable, err), "Read frame failed")
		}
		if len(frame) == 0 {
			continue
		}

		if c.format == pixFmtYUYV {
			return yuyvToGray(frame, c.width, c.height)
		}
		img, err := imaging.DecodeFrame(frame)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return img, nil
	}
}

func (c *Webcam) Close() error {
	return c.cam.Close()
}

// yuyvToGray keeps the luma samples of a packed YUYV 4:2:2 frame.
func yuyvToGray(frame []byte, width, height int) (image.Image, error) {
	if len(frame) < width*height*2 {
		return nil, fmt.Errorf("%w: yuyv frame has %d bytes, want %d", ErrDecode, len(frame), width*height*2)
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = frame[2*i]
	}
	return img, nil
}
