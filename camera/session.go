package camera

import (
	"log"
	"sync"

	"github.com/pkg/errors"
)

// ErrNoBinding is returned by Acquire when no SDK has been registered
var ErrNoBinding = errors.New("camera: no SDK binding registered")

// SDK is an open vendor SDK handle
type SDK interface {
	Close() error
}

// Opener opens a vendor SDK
type Opener func() (SDK, error)

// Session is a process-wide vendor SDK handle.  The SDK is opened by the first
// Acquire and closed when the last holder calls Release, or by Shutdown.
type Session struct {
	// Name is used in logs and errors, e.g. vimba
	Name string

	mu   sync.Mutex
	open Opener
	sdk  SDK
	refs int
}

// NewSession returns a session with no binding
func NewSession(name string) *Session {
	return &Session{Name: name}
}

// Register installs the function used to open the SDK.  It does not affect a
// handle that is already open.
func (s *Session) Register(o Opener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = o
}

// Bound returns true if an opener has been registered
func (s *Session) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open != nil
}

// Acquire returns the SDK handle, opening it if needed, and takes a reference
// that must be returned with Release
func (s *Session) Acquire() (SDK, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sdk == nil {
		if s.open == nil {
			return nil, errors.Wrap(ErrNoBinding, s.Name)
		}
		sdk, err := s.open()
		if err != nil {
			return nil, errors.Wrapf(err, "%s: opening SDK", s.Name)
		}
		log.Printf("%s: SDK opened", s.Name)
		s.sdk = sdk
	}
	s.refs++
	return s.sdk, nil
}

// Release returns a reference.  The SDK is closed when none remain.
// Releasing with no references held does nothing.
func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return nil
	}
	s.refs--
	if s.refs > 0 {
		return nil
	}
	return s.closeLocked()
}

// Shutdown closes the SDK regardless of outstanding references
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs = 0
	return s.closeLocked()
}

// Refs is the number of outstanding references
func (s *Session) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

func (s *Session) closeLocked() error {
	if s.sdk == nil {
		return nil
	}
	err := s.sdk.Close()
	s.sdk = nil
	log.Printf("%s: SDK closed", s.Name)
	return errors.Wrapf(err, "%s: closing SDK", s.Name)
}
