package tripledh_test

import (
	"bytes"
	"testing"

	"qe2ee/internal/crypto"
	"qe2ee/internal/domain"
	"qe2ee/internal/protocol/tripledh"
)

// makeKey returns an X25519 pair derived from a repeated seed byte.
func makeKey(t *testing.T, seed byte) (domain.X25519Private, domain.X25519Public) {
	t.Helper()
	priv, pub, err := crypto.X25519FromRandom(bytes.NewReader(bytes.Repeat([]byte{seed}, 32)))
	if err != nil {
		t.Fatalf("X25519FromRandom: %v", err)
	}
	return priv, pub
}

func TestInitiatorAndResponder_Agree(t *testing.T) {
	aID, aIDPub := makeKey(t, 1)
	aBase, aBasePub := makeKey(t, 2)
	bID, bIDPub := makeKey(t, 3)
	bOTK, bOTKPub := makeKey(t, 4)

	rkA, ckA, err := tripledh.InitiatorSecret(aID, aBase, bIDPub, bOTKPub)
	if err != nil {
		t.Fatalf("InitiatorSecret: %v", err)
	}
	rkB, ckB, err := tripledh.ResponderSecret(bID, bOTK, aIDPub, aBasePub)
	if err != nil {
		t.Fatalf("ResponderSecret: %v", err)
	}
	if rkA != rkB || ckA != ckB {
		t.Fatal("derived keys differ")
	}
	if rkA == ckA {
		t.Fatal("root and chain key must differ")
	}
}

func TestResponder_WrongOneTimeKeyDiverges(t *testing.T) {
	aID, aIDPub := makeKey(t, 1)
	aBase, aBasePub := makeKey(t, 2)
	bID, bIDPub := makeKey(t, 3)
	_, bOTKPub := makeKey(t, 4)
	otherOTK, _ := makeKey(t, 5)

	rkA, _, err := tripledh.InitiatorSecret(aID, aBase, bIDPub, bOTKPub)
	if err != nil {
		t.Fatalf("InitiatorSecret: %v", err)
	}
	rkB, _, err := tripledh.ResponderSecret(bID, otherOTK, aIDPub, aBasePub)
	if err != nil {
		t.Fatalf("ResponderSecret: %v", err)
	}
	if rkA == rkB {
		t.Fatal("keys should differ with a different one-time key")
	}
}

func TestSessionID_Stable(t *testing.T) {
	_, a := makeKey(t, 1)
	_, b := makeKey(t, 2)
	_, c := makeKey(t, 3)
	id := tripledh.SessionID(a, b, c)
	if id != tripledh.SessionID(a, b, c) {
		t.Fatal("session id not deterministic")
	}
	if id == tripledh.SessionID(a, c, b) {
		t.Fatal("session id must depend on key order")
	}
	if len(id) != 43 {
		t.Fatalf("want 43 chars of unpadded base64, got %d", len(id))
	}
}
