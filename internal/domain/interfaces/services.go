package interfaces

import domaintypes "qe2ee/internal/domain/types"

// RoomKeyImporter receives keys recovered from an export.
type RoomKeyImporter interface {
	ImportRoomKey(key domaintypes.ExportedRoomKey) error
}
