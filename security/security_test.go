package security

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdftask/ir/raw"
)

// legacyDict builds an R3 RC4-128 /Encrypt dictionary for the given passwords.
func legacyDict(t *testing.T, user, owner string, id []byte) *raw.DictObj {
	t.Helper()
	h := &standardHandler{r: 3, keyBytes: 16, p: PermissionsValue(AllPermissions()), fileID: id, encryptMeta: true}
	okey := h.ownerKey([]byte(owner))
	val := padPassword([]byte(user))
	tmp := make([]byte, len(okey))
	for i := 0; i <= 19; i++ {
		for j := range okey {
			tmp[j] = okey[j] ^ byte(i)
		}
		val = rc4Simple(tmp, val)
	}
	h.o = val
	u := append(h.computeU(h.deriveKey([]byte(user))), make([]byte, 16)...)

	d := raw.Dict()
	d.Set("Filter", raw.NameLiteral("Standard"))
	d.Set("V", raw.NumberInt(2))
	d.Set("R", raw.NumberInt(3))
	d.Set("Length", raw.NumberInt(128))
	d.Set("O", raw.Str(h.o))
	d.Set("U", raw.Str(u))
	d.Set("P", raw.NumberInt(int64(h.p)))
	return d
}

func TestLegacyUserAndOwnerPasswords(t *testing.T) {
	id := []byte("0123456789abcdef")
	dict := legacyDict(t, "user", "owner", id)

	for _, pw := range []string{"user", "owner"} {
		h, err := (&HandlerBuilder{}).WithEncryptDict(dict).WithFileID(id).Build()
		require.NoError(t, err)
		require.NoError(t, h.Authenticate(pw), "password %q", pw)
		assert.Equal(t, 3, h.Revision())
	}

	h, err := (&HandlerBuilder{}).WithEncryptDict(dict).WithFileID(id).Build()
	require.NoError(t, err)
	assert.True(t, errors.Is(h.Authenticate("nope"), ErrInvalidPassword))
}

func TestLegacyRC4RoundTrip(t *testing.T) {
	id := []byte("file-id")
	dict := legacyDict(t, "", "secret", id)
	h, err := (&HandlerBuilder{}).WithEncryptDict(dict).WithFileID(id).Build()
	require.NoError(t, err)

	ref := raw.ObjectRef{Num: 7, Gen: 0}
	plain := []byte("BT /F1 12 Tf (hello) Tj ET")
	enc, err := h.Encrypt(ref, plain, DataClassStream)
	require.NoError(t, err)
	assert.NotEqual(t, plain, enc)
	dec, err := h.Decrypt(ref, enc, DataClassStream)
	require.NoError(t, err)
	assert.Equal(t, plain, dec)

	other, err := h.Decrypt(raw.ObjectRef{Num: 8}, enc, DataClassStream)
	require.NoError(t, err)
	assert.NotEqual(t, plain, other, "object key must depend on the reference")
}

func TestAES256BuildAndAuthenticate(t *testing.T) {
	perms := AllPermissions()
	perms.Modify = false
	built, dict, err := BuildAES256Encryption("user", "owner", perms, true, rand.Reader)
	require.NoError(t, err)
	assert.Equal(t, 6, built.Revision())

	for _, pw := range []string{"user", "owner"} {
		h, err := (&HandlerBuilder{}).WithEncryptDict(dict).Build()
		require.NoError(t, err)
		require.NoError(t, h.Authenticate(pw), "password %q", pw)
		assert.False(t, h.Permissions().Modify)
		assert.True(t, h.Permissions().Print)
	}

	h, err := (&HandlerBuilder{}).WithEncryptDict(dict).Build()
	require.NoError(t, err)
	assert.ErrorIs(t, h.Authenticate("wrong"), ErrInvalidPassword)
}

func TestAES256EncryptDecrypt(t *testing.T) {
	built, dict, err := BuildAES256Encryption("", "owner", AllPermissions(), true, rand.Reader)
	require.NoError(t, err)

	ref := raw.ObjectRef{Num: 3}
	plain := bytes.Repeat([]byte("stream data "), 10)
	enc, err := built.Encrypt(ref, plain, DataClassStream)
	require.NoError(t, err)
	assert.Zero(t, len(enc)%16)

	// empty user password opens without an explicit Authenticate call
	reader, err := (&HandlerBuilder{}).WithEncryptDict(dict).Build()
	require.NoError(t, err)
	dec, err := reader.Decrypt(ref, enc, DataClassStream)
	require.NoError(t, err)
	assert.Equal(t, plain, dec)
}

func TestBuildRejectsUnknownHandlers(t *testing.T) {
	d := raw.Dict()
	d.Set("Filter", raw.NameLiteral("Adobe.PubSec"))
	_, err := (&HandlerBuilder{}).WithEncryptDict(d).Build()
	assert.ErrorIs(t, err, ErrUnsupportedEncryption)

	d = raw.Dict()
	d.Set("Filter", raw.NameLiteral("Standard"))
	d.Set("V", raw.NumberInt(2))
	d.Set("R", raw.NumberInt(7))
	_, err = (&HandlerBuilder{}).WithEncryptDict(d).Build()
	assert.ErrorIs(t, err, ErrUnsupportedEncryption)
}

func TestPermissionsValueRoundTrip(t *testing.T) {
	p := Permissions{Print: true, Copy: true}
	got := permissionsFromFlags(PermissionsValue(p))
	assert.Equal(t, p, got)
	assert.Equal(t, AllPermissions(), permissionsFromFlags(PermissionsValue(AllPermissions())))
}

func TestPasswordEncoding(t *testing.T) {
	assert.Equal(t, []byte{0xE9}, encodePasswordLatin1("é"))
	assert.Empty(t, encodePasswordLatin1("日本"))
	long := bytes.Repeat([]byte("é"), 100)
	out := encodePasswordUTF8(string(long))
	assert.LessOrEqual(t, len(out), 127)
	assert.Zero(t, len(out)%2)
	// NFKC folds the ligature
	assert.Equal(t, []byte("fi"), encodePasswordUTF8("ﬁ"))
}
