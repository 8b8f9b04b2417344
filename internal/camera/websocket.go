package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/amirhossein5/facecheck/internal/imaging"
)

// acceptWait is how long a new connection waits for a loop to take it.
const acceptWait = 2 * time.Second

// Ingress accepts browser cameras that push JPEG frames over a websocket.
// Each connection becomes one WebsocketSource; a connection no loop picks up
// within acceptWait is turned away, so one loop owns the camera at a time.
type Ingress struct {
	sessions chan *WebsocketSource
	logger   *slog.Logger
}

func NewIngress(logger *slog.Logger) *Ingress {
	return &Ingress{sessions: make(chan *WebsocketSource), logger: logger}
}

// Accept blocks until a browser connects.
func (in *Ingress) Accept(ctx context.Context) (*WebsocketSource, error) {
	select {
	case src := <-in.sessions:
		return src, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (in *Ingress) Handler() websocket.Handler {
	return func(ws *websocket.Conn) {
		src := newWebsocketSource(ws)

		wait := time.NewTimer(acceptWait)
		defer wait.Stop()

		select {
		case in.sessions <- src:
		case <-wait.C:
			in.logger.Warn("camera already in use, rejecting connection", "remote", ws.Request().RemoteAddr)
			_ = websocket.Message.Send(ws, "busy")
			return
		}
		in.logger.Info("camera connected", "remote", ws.Request().RemoteAddr)

		err := src.pump()
		if err != nil && !errors.Is(err, io.EOF) {
			in.logger.Warn("failed to read websocket data", "err", err)
		}
		in.logger.Info("camera disconnected", "remote", ws.Request().RemoteAddr)
	}
}

// WebsocketSource is the frame stream of one connected browser.
type WebsocketSource struct {
	ws     *websocket.Conn
	frames chan []byte
	done   chan struct{}
	once   sync.Once
	sendMu sync.Mutex
}

func newWebsocketSource(ws *websocket.Conn) *WebsocketSource {
	return &WebsocketSource{
		ws:     ws,
		frames: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
}

// pump receives frames until the client goes away or the source is closed.
// Only the newest frame is kept when the reader falls behind.
func (s *WebsocketSource) pump() error {
	defer s.finish()
	for {
		var buf []byte
		if err := websocket.Message.Receive(s.ws, &buf); err != nil {
			return err
		}
		select {
		case <-s.done:
			return nil
		default:
		}
		select {
		case <-s.frames:
		default:
		}
		s.frames <- buf
	}
}

func (s *WebsocketSource) Read(ctx context.Context) (image.Image, error) {
	select {
	case buf := <-s.frames:
		img, err := imaging.DecodeFrame(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return img, nil
	case <-s.done:
		return nil, ErrStreamEnded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send pushes a text message back to the browser, e.g. "play-sound:success".
func (s *WebsocketSource) Send(msg string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return websocket.Message.Send(s.ws, msg)
}

func (s *WebsocketSource) Close() error {
	s.finish()
	return s.ws.Close()
}

func (s *WebsocketSource) finish() {
	s.once.Do(func() { close(s.done) })
}
