package reactor

import "github.com/pkg/errors"

// Token identifies a slot in a Slab, handed out on Insert and stable until
// the corresponding Remove. It doubles as the epoll registration's user
// data, mirroring the original source's rt.rs Slab<Connection>/mio::Token
// pairing.
type Token int

// ErrSlabFull is returned by Insert when the Slab is at capacity.
var ErrSlabFull = errors.New("reactor: slab at capacity")

// Registration is anything a Slab can hold: an Acceptor or a Connection in
// the broker package's terms. The reactor package itself is agnostic to
// which.
type Registration interface {
	// FD returns the underlying file descriptor to register with epoll.
	FD() int
}

// Closer is optionally implemented by a Registration whose underlying
// resource must be released when the reactor tears it down outside the
// normal per-event dispatch path (e.g. Reactor.Close sweeping the Slab on
// shutdown). Both the broker package's acceptor and connection implement
// it.
type Closer interface {
	Close() error
}

// Slab is a fixed-capacity, free-list-backed table of Registrations keyed by
// Token, modeled on the original source's use of Rust's slab crate: Remove
// is O(1) and Tokens are reused once freed. Insert takes a freed Token in
// O(1) when one is available and otherwise scans for the first unoccupied
// slot.
type Slab struct {
	entries  []Registration
	occupied []bool
	free     []Token
}

// NewSlab returns a Slab that will hold at most capacity Registrations.
func NewSlab(capacity int) *Slab {
	return &Slab{
		entries:  make([]Registration, capacity),
		occupied: make([]bool, capacity),
		free:     nil,
	}
}

// Insert places r into the next free slot and returns its Token.
func (s *Slab) Insert(r Registration) (Token, error) {
	if n := len(s.free); n > 0 {
		var tok = s.free[n-1]
		s.free = s.free[:n-1]
		s.entries[tok] = r
		s.occupied[tok] = true
		return tok, nil
	}
	for i, occ := range s.occupied {
		if !occ {
			s.entries[i] = r
			s.occupied[i] = true
			return Token(i), nil
		}
	}
	return 0, ErrSlabFull
}

// Reserve occupies a specific tok unconditionally, bypassing the free-list
// and linear-scan allocation Insert does. Used to carve out a fixed Token
// (the reactor's waker) that Insert must never hand out.
func (s *Slab) Reserve(tok Token, r Registration) {
	s.entries[tok] = r
	s.occupied[tok] = true
}

// Get returns the Registration at tok, if any is currently occupying it.
func (s *Slab) Get(tok Token) (Registration, bool) {
	if int(tok) < 0 || int(tok) >= len(s.entries) || !s.occupied[tok] {
		return nil, false
	}
	return s.entries[tok], true
}

// Remove vacates tok, returning its prior occupant if any. The Token is
// eligible for reuse by a subsequent Insert.
func (s *Slab) Remove(tok Token) (Registration, bool) {
	if int(tok) < 0 || int(tok) >= len(s.entries) || !s.occupied[tok] {
		return nil, false
	}
	var r = s.entries[tok]
	s.entries[tok] = nil
	s.occupied[tok] = false
	s.free = append(s.free, tok)
	return r, true
}

// Len returns the number of currently occupied slots.
func (s *Slab) Len() int {
	var n int
	for _, occ := range s.occupied {
		if occ {
			n++
		}
	}
	return n
}

// CloseAll closes every currently occupied Registration that implements
// Closer and vacates the Slab entirely, returning the first error
// encountered (if any) after attempting every entry. Used to tear down
// every outstanding acceptor and connection together, e.g. when the
// reactor itself is being closed.
func (s *Slab) CloseAll() error {
	var first error
	for i, occ := range s.occupied {
		if !occ {
			continue
		}
		if closer, ok := s.entries[i].(Closer); ok {
			if err := closer.Close(); err != nil && first == nil {
				first = err
			}
		}
		s.entries[i] = nil
		s.occupied[i] = false
	}
	s.free = s.free[:0]
	return first
}
