// Package ident provides id generation for motions and record nonces. The
// generator is injected into each component that needs identifiers; nothing
// in the module keeps process-wide id state.
package ident

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type Generator interface {
	// NewMotionID returns a fresh, collision-resistant motion identifier.
	NewMotionID() string
	// NewNonce returns a fresh path nonce for append-only records.
	NewNonce() string
}

// UUID is the production generator.
type UUID struct{}

func (UUID) NewMotionID() string {
	return "M" + hexUUID()[:12]
}

func (UUID) NewNonce() string {
	return hexUUID()
}

func hexUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Sequence is a deterministic generator for tests.
type Sequence struct {
	Prefix string
	mu     sync.Mutex
	n      int
}

func (s *Sequence) NewMotionID() string {
	return s.next("motion")
}

func (s *Sequence) NewNonce() string {
	return s.next("nonce")
}

func (s *Sequence) next(kind string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%s-%04d", s.Prefix, kind, s.n)
}
