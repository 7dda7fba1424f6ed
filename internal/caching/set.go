// Package caching holds bounded sets of recently seen messages.
package caching

import (
	"encoding/binary"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/crypto/blake2b"
)

var log = logging.Logger("ledgerbft/internal/caching")

type digest [32]byte

// Set remembers between capacity and 2*capacity of the most recently added
// samples. Samples are kept by the blake2b digest of their namespace and
// value, so equal bytes in two namespaces are distinct.
type Set struct {
	capacity int

	mu sync.Mutex
	// current receives new samples. Once it holds capacity samples it
	// replaces previous, whose samples are forgotten.
	current, previous map[digest]struct{}
}

// NewSet returns an empty set. Capacities below 1 are raised to 1.
func NewSet(capacity int) *Set {
	capacity = max(1, capacity)
	return &Set{
		capacity: capacity,
		current:  make(map[digest]struct{}, capacity),
		previous: make(map[digest]struct{}, capacity),
	}
}

func digestOf(namespace, v []byte) digest {
	// blake2b.New256 only fails on keys longer than 64 bytes.
	h, _ := blake2b.New256(nil)
	var prefix [binary.MaxVarintLen64]byte
	_, _ = h.Write(prefix[:binary.PutUvarint(prefix[:], uint64(len(namespace)))])
	_, _ = h.Write(namespace)
	_, _ = h.Write(v)
	var d digest
	h.Sum(d[:0])
	return d
}

func (s *Set) Contains(namespace, v []byte) bool {
	d := digestOf(namespace, v)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.has(d)
}

// ContainsOrAdd reports whether the sample was present, adding it if not.
func (s *Set) ContainsOrAdd(namespace, v []byte) bool {
	d := digestOf(namespace, v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.has(d) {
		return true
	}
	s.current[d] = struct{}{}
	if len(s.current) >= s.capacity {
		clear(s.previous)
		s.previous, s.current = s.current, s.previous
		log.Debugw("rotated sample generation", "capacity", s.capacity)
	}
	return false
}

func (s *Set) has(d digest) bool {
	if _, ok := s.current[d]; ok {
		return true
	}
	_, ok := s.previous[d]
	return ok
}

func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.current)
	clear(s.previous)
}
