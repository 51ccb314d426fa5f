package secure

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrEmpty is returned when there is no material to protect
var ErrEmpty = errors.New("secret material is empty")

// ErrDestroyed is returned when a destroyed buffer is used
var ErrDestroyed = errors.New("secure buffer already destroyed")

// SecureBuffer holds secret material encrypted in memory. Plaintext exists
// only inside the locked buffers handed out by Open and Use.
type SecureBuffer struct {
	enclave   *memguard.Enclave
	size      int
	mu        sync.RWMutex
	destroyed bool
}

// NewSecureBuffer moves data into an enclave. memguard wipes data once it
// has been copied.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	size := len(data)
	return &SecureBuffer{enclave: memguard.NewEnclave(data), size: size}, nil
}

// ReadSecureBuffer reads r to EOF directly into locked memory and seals it
func ReadSecureBuffer(r io.Reader) (*SecureBuffer, error) {
	locked, err := memguard.NewBufferFromEntireReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret material: %w", err)
	}
	size := locked.Size()
	if size == 0 {
		locked.Destroy()
		return nil, ErrEmpty
	}
	return &SecureBuffer{enclave: locked.Seal(), size: size}, nil
}

// Size is the length of the protected material
func (s *SecureBuffer) Size() int {
	return s.size
}

// Open decrypts the material into a locked buffer. The caller must Destroy
// the returned buffer.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return nil, ErrDestroyed
	}
	return s.enclave.Open()
}

// Use opens the material for the duration of fn and wipes it afterwards.
// fn must not retain the slice.
func (s *SecureBuffer) Use(fn func(plaintext []byte) error) error {
	locked, err := s.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()
	return fn(locked.Bytes())
}

// Destroy drops the enclave. Safe to call more than once.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.enclave = nil
	s.destroyed = true
}
