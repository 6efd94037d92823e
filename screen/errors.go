package screen

import (
	"fmt"
	"image"
)

// ConfigurationError is generated when the requested surface does not exist
type ConfigurationError struct {
	// Index is the requested surface index
	Index int

	// Available is the number of surfaces that were found
	Available int
}

// Error satisfies the error interface
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("screen: surface %d does not exist, %d available", e.Index, e.Available)
}

// InvalidStateError is generated when an operation is not allowed in the
// buffer's current state
type InvalidStateError struct {
	// Op is the operation that was attempted
	Op string

	// State is the state the buffer was in
	State State

	// Cause is the render failure that stopped the buffer, if any
	Cause error
}

// Error satisfies the error interface
func (e *InvalidStateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("screen: %s not allowed while %s: %v", e.Op, e.State, e.Cause)
	}
	return fmt.Sprintf("screen: %s not allowed while %s", e.Op, e.State)
}

// Unwrap returns the cause
func (e *InvalidStateError) Unwrap() error {
	return e.Cause
}

// ShapeError is generated when an image does not match the surface and the
// resize policy is Reject
type ShapeError struct {
	// Want is the (width, height) of the surface
	Want image.Point

	// Got is the (width, height) of the submitted image
	Got image.Point
}

// Error satisfies the error interface
func (e *ShapeError) Error() string {
	return fmt.Sprintf("screen: image is %dx%d, surface is %dx%d", e.Got.X, e.Got.Y, e.Want.X, e.Want.Y)
}
