package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useArrayKeyring(t *testing.T, items ...keyring.Item) *keyring.ArrayKeyring {
	t.Helper()
	ring := keyring.NewArrayKeyring(items)
	prev := Open
	Open = func() (keyring.Keyring, error) { return ring, nil }
	t.Cleanup(func() { Open = prev })
	return ring
}

func TestSetGetDelete(t *testing.T) {
	useArrayKeyring(t)

	require.NoError(t, Set("imap-ann", "s3cret"))
	v, err := Get("imap-ann")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", v)

	require.NoError(t, Delete("imap-ann"))
	_, err = Get("imap-ann")
	assert.ErrorIs(t, err, keyring.ErrKeyNotFound)

	// Deleting a missing key is not an error.
	assert.NoError(t, Delete("imap-ann"))
}

func TestResolveOrder(t *testing.T) {
	useArrayKeyring(t, keyring.Item{Key: "imap-ann", Data: []byte("from-keyring")})

	t.Setenv(EnvPassword, "")
	v, err := Resolve("", "imap-ann")
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", v)

	t.Setenv(EnvPassword, "from-env")
	v, err = Resolve("", "imap-ann")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	v, err = Resolve("from-flag", "imap-ann")
	require.NoError(t, err)
	assert.Equal(t, "from-flag", v)
}

func TestResolveMissing(t *testing.T) {
	useArrayKeyring(t)
	t.Setenv(EnvPassword, "")

	_, err := Resolve("", "imap-nobody")
	assert.ErrorIs(t, err, ErrNoPassword)

	_, err = Resolve("", "")
	assert.ErrorIs(t, err, ErrNoPassword)
}
