package filecrypto

import (
	"sync"

	"qe2ee/internal/domain"
)

type eventKey struct {
	roomID, eventID string
}

// FileMetadataMap remembers the metadata of files sent or received per
// room and event, so a later download can be decrypted.
type FileMetadataMap struct {
	mu    sync.RWMutex
	infos map[eventKey]domain.EncryptedFileMetadata
}

// Files is the process-wide map.
var Files = NewFileMetadataMap()

func NewFileMetadataMap() *FileMetadataMap {
	return &FileMetadataMap{infos: make(map[eventKey]domain.EncryptedFileMetadata)}
}

func (m *FileMetadataMap) Add(roomID, eventID string, meta domain.EncryptedFileMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos[eventKey{roomID, eventID}] = meta
}

func (m *FileMetadataMap) Remove(roomID, eventID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.infos, eventKey{roomID, eventID})
}

// Lookup returns the metadata and whether it was present.
func (m *FileMetadataMap) Lookup(roomID, eventID string) (domain.EncryptedFileMetadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.infos[eventKey{roomID, eventID}]
	return meta, ok
}
