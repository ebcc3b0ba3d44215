package types

// AccountRecord is the persisted form of an account.
type AccountRecord struct {
	AccountID    string `json:"account_id"`
	Pickle       []byte `json:"pickle"`
	PicklingSalt []byte `json:"pickling_salt"`
}

// SessionRecord is one stored session. Seq is assigned by the store on the
// first save and orders the sessions with one peer by creation.
type SessionRecord struct {
	SessionID string `json:"session_id"`
	Pickle    []byte `json:"pickle"`
	Seq       int64  `json:"seq"`
}
