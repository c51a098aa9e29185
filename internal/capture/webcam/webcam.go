// Package webcam opens local video devices through OpenCV (gocv). It is the
// only package that needs cgo and an OpenCV installation.
package webcam

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/bryanchriswhite/ScanStreamer/internal/capture"
	"github.com/bryanchriswhite/ScanStreamer/internal/frame"
)

// Webcam reads frames from a local video device through OpenCV.
type Webcam struct {
	deviceID int
	cam      *gocv.VideoCapture
	raw      gocv.Mat
	rgb      gocv.Mat
}

// Open is a capture.DeviceOpener backed by gocv.
func Open(id int) (capture.Device, error) {
	cam, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open video device %d", id)
	}
	if !cam.IsOpened() {
		cam.Close()
		return nil, errors.Errorf("video device %d did not open", id)
	}

	return &Webcam{
		deviceID: id,
		cam:      cam,
		raw:      gocv.NewMat(),
		rgb:      gocv.NewMat(),
	}, nil
}

// Read grabs one frame and returns it as a 3-channel R,G,B frame.
func (w *Webcam) Read() (*frame.Frame, error) {
	if ok := w.cam.Read(&w.raw); !ok || w.raw.Empty() {
		return nil, errors.Wrapf(capture.ErrDeviceRead, "video device %d", w.deviceID)
	}

	gocv.CvtColor(w.raw, &w.rgb, gocv.ColorBGRToRGB)

	f, err := frame.Wrap(w.rgb.Cols(), w.rgb.Rows(), 3, w.rgb.ToBytes())
	if err != nil {
		return nil, errors.Wrap(err, "failed to wrap device frame")
	}
	return f, nil
}

// Close releases the device and its buffers.
func (w *Webcam) Close() error {
	w.raw.Close()
	w.rgb.Close()
	return w.cam.Close()
}
