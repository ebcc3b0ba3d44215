package types

// JWK describes the symmetric key of an encrypted attachment.
type JWK struct {
	Kty    string   `json:"kty"`
	KeyOps []string `json:"key_ops"`
	Alg    string   `json:"alg"`
	K      string   `json:"k"`
	Ext    bool     `json:"ext"`
}

// EncryptedFileMetadata is attached to events that reference encrypted media.
type EncryptedFileMetadata struct {
	URL    string            `json:"url"`
	Key    JWK               `json:"key"`
	IV     string            `json:"iv"`
	Hashes map[string]string `json:"hashes"`
	V      string            `json:"v"`
}
