package gh

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"
)

func TestSealSecret_RoundTrip(t *testing.T) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	sealed, err := sealSecret(base64.StdEncoding.EncodeToString(pub[:]), "hunter2")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	plaintext, ok := box.OpenAnonymous(nil, raw, pub, priv)
	require.True(t, ok)
	assert.Equal(t, "hunter2", string(plaintext))
}

func TestSealSecret_BadKey(t *testing.T) {
	_, err := sealSecret("not base64!!", "value")
	assert.Error(t, err)

	_, err = sealSecret(base64.StdEncoding.EncodeToString([]byte("short")), "value")
	assert.Error(t, err)
}
