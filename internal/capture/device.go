package capture

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Device produces still images. Ready is closed once the device can
// capture; Capture returns the raw encoded bytes of one frame.
type Device interface {
	Ready() <-chan struct{}
	Capture(ctx context.Context) ([]byte, error)
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// FileDevice reads a still image from disk. It is always ready.
type FileDevice struct {
	mu   sync.Mutex
	path string
}

// NewFileDevice returns a device reading path. The path may be changed
// later with SetPath.
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{path: path}
}

// SetPath changes the file read by the next Capture.
func (d *FileDevice) SetPath(path string) {
	d.mu.Lock()
	d.path = path
	d.mu.Unlock()
}

func (d *FileDevice) Ready() <-chan struct{} { return closedCh }

func (d *FileDevice) Capture(context.Context) ([]byte, error) {
	d.mu.Lock()
	path := d.path
	d.mu.Unlock()
	if path == "" {
		return nil, fmt.Errorf("no image file selected")
	}
	return os.ReadFile(path)
}

// FrameDevice holds the latest frame pushed by an external camera (for
// example a browser posting to the control API). It is ready while an
// unused frame is held; Capture consumes the frame, so every capture needs
// a fresh push.
type FrameDevice struct {
	mu     sync.Mutex
	frame  []byte
	ready  chan struct{}
	closed bool
}

func NewFrameDevice() *FrameDevice {
	return &FrameDevice{ready: make(chan struct{})}
}

// Push replaces the latest frame. Empty frames are ignored.
func (d *FrameDevice) Push(frame []byte) {
	if len(frame) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = append([]byte(nil), frame...)
	if !d.closed {
		close(d.ready)
		d.closed = true
	}
}

func (d *FrameDevice) Ready() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// Capture hands out the held frame and drops it. An empty result means
// nothing was pushed since the last capture.
func (d *FrameDevice) Capture(context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	frame := d.frame
	d.frame = nil
	if d.closed {
		d.ready = make(chan struct{})
		d.closed = false
	}
	return frame, nil
}
