package securemem

import (
	"sync"

	"github.com/awnumar/memguard"
	"github.com/sirupsen/logrus"

	"qe2ee/internal/logging"
)

// TotalSecureHeapSize is the budget shared by all live buffers.
const TotalSecureHeapSize = 65536

// minChunk is the smallest unit the heap hands out.
const minChunk = 16

// Stats describes the secure heap occupancy.
type Stats struct {
	Used  int
	Total int
	Live  int
}

type heap struct {
	mu     sync.Mutex
	inited bool
	used   int
	live   map[*Buffer]int
}

var global heap

func (h *heap) initLocked() {
	if h.inited {
		return
	}
	h.live = make(map[*Buffer]int)
	h.inited = true
	log().WithField("total", TotalSecureHeapSize).Debug("secure heap initialised")
}

// reserve accounts for a buffer of n bytes and returns the chunk size taken.
func (h *heap) reserve(b *Buffer, n int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.initLocked()

	actual := chunkSize(n)
	if h.used+actual > TotalSecureHeapSize {
		log().WithFields(logrus.Fields{
			"requested": n,
			"used":      h.used,
			"critical":  true,
		}).Error("secure heap exhausted")
		return 0, ErrHeapExhausted
	}
	h.used += actual
	h.live[b] = actual
	log().WithFields(logrus.Fields{
		"allocated": actual,
		"requested": n,
		"used":      h.used,
	}).Trace("secure heap allocation")
	return actual, nil
}

func (h *heap) release(b *Buffer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	actual, ok := h.live[b]
	if !ok {
		return
	}
	delete(h.live, b)
	h.used -= actual
	log().WithFields(logrus.Fields{
		"deallocated": actual,
		"used":        h.used,
	}).Trace("secure heap release")
}

// chunkSize rounds n up to the power of two the heap would hand out.
func chunkSize(n int) int {
	c := minChunk
	for c < n {
		c <<= 1
	}
	return c
}

// HeapStats reports the current secure heap occupancy.
func HeapStats() Stats {
	global.mu.Lock()
	defer global.mu.Unlock()
	return Stats{Used: global.used, Total: TotalSecureHeapSize, Live: len(global.live)}
}

// Shutdown wipes every live buffer and dismantles the heap. Buffers still
// held by callers become empty. A later allocation initialises a fresh heap.
func Shutdown() {
	global.mu.Lock()
	defer global.mu.Unlock()
	if !global.inited {
		return
	}
	for b := range global.live {
		b.drop()
	}
	memguard.Purge()
	global.live = nil
	global.used = 0
	global.inited = false
	log().Debug("dismantled secure heap")
}

func log() *logrus.Entry { return logging.For("securemem") }

func (h *heap) reserveFor(b *Buffer) error {
	_, err := h.reserve(b, b.size)
	return err
}
