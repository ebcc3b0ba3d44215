package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qe2ee/internal/domain"
	"qe2ee/internal/services/keyimport"
)

func TestKeyLister_ListsOnly(t *testing.T) {
	svc := keyimport.New()
	data, err := svc.Encrypt([]domain.ExportedRoomKey{
		{Algorithm: domain.MegolmV1AesSha2, RoomID: "!a:example.org", SessionID: "one"},
		{Algorithm: domain.MegolmV1AesSha2, RoomID: "!b:example.org", SessionID: "two"},
	}, "pw", 1000)
	require.NoError(t, err)

	var out bytes.Buffer
	l := &keyLister{out: &out}
	require.NoError(t, svc.ImportKeys(data, "pw", l))

	assert.Equal(t, 2, l.n)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "!a:example.org  one  "+domain.MegolmV1AesSha2, lines[0])
	assert.Equal(t, "!b:example.org  two  "+domain.MegolmV1AesSha2, lines[1])

	cmd := importKeysCmd()
	assert.Contains(t, cmd.Short, "nothing is stored")
	assert.Equal(t, "true", cmd.Annotations[noAccount])
}
