package sdr

import (
	"errors"
	"fmt"
)

// ErrEmptyCapture is returned when a device read produced no samples.
var ErrEmptyCapture = errors.New("no samples returned")

// DeviceError reports a failure to open, tune or read a capture device.
type DeviceError struct {
	Op  string
	Err error
}

func NewDeviceError(op string, err error) *DeviceError {
	return &DeviceError{Op: op, Err: err}
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device: %s: %s", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// EmptyCaptureError reports a read that returned zero samples at Freq.
type EmptyCaptureError struct {
	Freq float64
}

func (e *EmptyCaptureError) Error() string {
	return fmt.Sprintf("device: %s at %.0f Hz", ErrEmptyCapture, e.Freq)
}

func (e *EmptyCaptureError) Is(target error) bool {
	return target == ErrEmptyCapture
}

// TransportError reports a failure of the remote rtl_tcp connection.
type TransportError struct {
	Op  string
	Err error
}

func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProcessingError reports a capture window the estimator could not process.
type ProcessingError struct {
	Freq float64
	Err  error
}

func NewProcessingError(freq float64, err error) *ProcessingError {
	return &ProcessingError{Freq: freq, Err: err}
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing: window at %.0f Hz: %s", e.Freq, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
