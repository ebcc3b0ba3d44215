package securemem

import (
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/sirupsen/logrus"

	"qe2ee/internal/domain"
)

// Mode selects how a new buffer is initialised.
type Mode int

const (
	// Uninitialized reserves nothing until the first load.
	Uninitialized Mode = iota
	// ZeroFill allocates and zeroes the region.
	ZeroFill
	// RandomFill allocates and fills the whole region from a CSPRNG.
	RandomFill
)

var (
	ErrTooLarge      = errors.New("securemem: buffer size exceeds the secure heap")
	ErrHeapExhausted = errors.New("securemem: secure heap exhausted")
	ErrSizeMismatch  = fmt.Errorf("%w: source length differs from buffer size", domain.ErrInternal)
)

// Buffer is a fixed-size region of protected memory.
type Buffer struct {
	size int
	live bool
	lb   *memguard.LockedBuffer
}

// New constructs a buffer of size bytes.
func New(size int, mode Mode) (*Buffer, error) {
	if size < 0 || size >= TotalSecureHeapSize {
		log().WithFields(logrus.Fields{"size": size, "critical": true}).
			Error("too large buffer size")
		return nil, ErrTooLarge
	}
	b := &Buffer{size: size}
	if mode == Uninitialized {
		return b, nil
	}
	if err := b.allocate(mode); err != nil {
		return nil, err
	}
	return b, nil
}

// Random returns a buffer of n bytes of fresh randomness.
func Random(n int) (*Buffer, error) { return New(n, RandomFill) }

func (b *Buffer) allocate(mode Mode) error {
	if _, err := global.reserve(b, b.size); err != nil {
		return err
	}
	switch {
	case b.size == 0:
		b.lb = nil
	case mode == RandomFill:
		b.lb = memguard.NewBufferRandom(b.size)
	default:
		b.lb = memguard.NewBuffer(b.size)
	}
	b.live = true
	return nil
}

// LoadFrom moves src into the buffer: the bytes are copied into protected
// memory and src is wiped. Prior contents, if any, are wiped first.
func (b *Buffer) LoadFrom(src []byte) error {
	if err := b.prepareLoad(src); err != nil {
		return err
	}
	if err := global.reserveFor(b); err != nil {
		return err
	}
	if b.size > 0 {
		b.lb = memguard.NewBufferFromBytes(src)
	}
	b.live = true
	return nil
}

// LoadFromShared copies src without wiping it. Other copies of src stay in
// ordinary memory; the caller is responsible for clearing them.
func (b *Buffer) LoadFromShared(src []byte) error {
	if err := b.prepareLoad(src); err != nil {
		return err
	}
	if err := global.reserveFor(b); err != nil {
		return err
	}
	if b.size > 0 {
		b.lb = memguard.NewBuffer(b.size)
		b.lb.Copy(src)
	}
	b.live = true
	log().WithField("size", b.size).
		Warn("buffer source is shared; caller is responsible for clearing other copies")
	return nil
}

func (b *Buffer) prepareLoad(src []byte) error {
	if len(src) != b.size {
		log().WithFields(logrus.Fields{
			"size":       b.size,
			"source_len": len(src),
			"critical":   true,
		}).Error("cannot load fixed buffer from a source of different length")
		return ErrSizeMismatch
	}
	if b.live {
		log().WithField("size", b.size).Warn("overwriting loaded buffer")
		b.Clear()
	}
	return nil
}

// Clear wipes and releases the region. It is a no-op on an empty buffer.
func (b *Buffer) Clear() {
	if b == nil || !b.live {
		return
	}
	global.release(b)
	b.drop()
}

// drop wipes without touching heap accounting.
func (b *Buffer) drop() {
	if b.lb != nil {
		b.lb.Destroy()
		b.lb = nil
	}
	b.live = false
}

// Bytes returns a view of the region, valid until Clear. Nil when empty.
func (b *Buffer) Bytes() []byte {
	if b == nil || !b.live {
		return nil
	}
	if b.lb == nil {
		return []byte{}
	}
	return b.lb.Bytes()
}

// Size is fixed at construction.
func (b *Buffer) Size() int { return b.size }

// IsEmpty reports whether the buffer holds no data.
func (b *Buffer) IsEmpty() bool { return b == nil || !b.live }

// Clone makes an explicit copy of the secret into a new buffer.
func (b *Buffer) Clone() (*Buffer, error) {
	c := &Buffer{size: b.size}
	if b.IsEmpty() {
		return c, nil
	}
	if err := c.allocate(ZeroFill); err != nil {
		return nil, err
	}
	if c.lb != nil {
		c.lb.Copy(b.Bytes())
	}
	return c, nil
}
