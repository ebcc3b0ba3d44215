package events

import (
	"encoding/json"
	"fmt"

	"qe2ee/internal/domain"
)

// FileSourceInfo is either a PlainURL or an EncryptedFile.
type FileSourceInfo interface {
	URL() string
	isFileSource()
}

// PlainURL is an unencrypted media URL.
type PlainURL string

func (u PlainURL) URL() string { return string(u) }
func (PlainURL) isFileSource() {}

// EncryptedFile points at an encrypted upload.
type EncryptedFile struct {
	Metadata domain.EncryptedFileMetadata
}

func (f EncryptedFile) URL() string { return f.Metadata.URL }
func (EncryptedFile) isFileSource() {}

// SetURL returns fsi with its URL replaced, keeping the variant.
func SetURL(fsi FileSourceInfo, url string) FileSourceInfo {
	switch v := fsi.(type) {
	case PlainURL:
		return PlainURL(url)
	case EncryptedFile:
		v.Metadata.URL = url
		return v
	}
	return PlainURL(url)
}

// Keys under which a file source is stored in content JSON.
const (
	FileURLKey = "url"
	FileKey    = "file"
)

// FileSourceKeys names the JSON keys for the plain and encrypted forms; a
// thumbnail uses a different pair than the main file.
type FileSourceKeys [2]string

var (
	MainFileKeys  = FileSourceKeys{FileURLKey, FileKey}
	ThumbnailKeys = FileSourceKeys{"thumbnail_url", "thumbnail_file"}
)

// FillJSON stores fsi into obj under the key matching its variant.
func FillJSON(obj map[string]any, keys FileSourceKeys, fsi FileSourceInfo) {
	switch v := fsi.(type) {
	case PlainURL:
		obj[keys[0]] = string(v)
	case EncryptedFile:
		obj[keys[1]] = v.Metadata
	}
}

// ParseFileSource reads a file source from obj. An encrypted form wins
// over a plain URL; nil means neither is present.
func ParseFileSource(obj map[string]json.RawMessage, keys FileSourceKeys) (FileSourceInfo, error) {
	if raw, ok := obj[keys[1]]; ok {
		var meta domain.EncryptedFileMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("events: %s: %w", keys[1], err)
		}
		return EncryptedFile{meta}, nil
	}
	if raw, ok := obj[keys[0]]; ok {
		var url string
		if err := json.Unmarshal(raw, &url); err != nil {
			return nil, fmt.Errorf("events: %s: %w", keys[0], err)
		}
		return PlainURL(url), nil
	}
	return nil, nil
}
