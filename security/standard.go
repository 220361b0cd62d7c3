package security

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/binary"

	"github.com/wudi/pdftask/ir/raw"
)

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

func (h *standardHandler) keyLength() int {
	if h.r == 2 {
		return 5
	}
	return h.keyBytes
}

// authenticateLegacy checks pwd as user password, then recovers the user
// password from /O and checks again (owner password).
func (h *standardHandler) authenticateLegacy(pwd []byte) ([]byte, bool) {
	if key := h.deriveKey(pwd); h.checkUserKey(key) {
		return key, true
	}
	userPad := h.decryptOwnerEntry(pwd)
	if userPad == nil {
		return nil, false
	}
	if key := h.deriveKey(userPad); h.checkUserKey(key) {
		return key, true
	}
	return nil, false
}

// deriveKey computes the file key from a user password.
func (h *standardHandler) deriveKey(pwd []byte) []byte {
	n := h.keyLength()
	d := md5.New()
	d.Write(padPassword(pwd))
	d.Write(h.o)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(h.p))
	d.Write(pBuf[:])
	d.Write(h.fileID)
	if h.r >= 4 && !h.encryptMeta {
		d.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := d.Sum(nil)
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:n])
			key = sum[:]
		}
	}
	return key[:n]
}

func (h *standardHandler) computeU(key []byte) []byte {
	if h.r == 2 {
		return rc4Simple(key, passwordPadding)
	}
	d := md5.New()
	d.Write(passwordPadding)
	d.Write(h.fileID)
	val := rc4Simple(key, d.Sum(nil))
	tmp := make([]byte, len(key))
	for i := 1; i <= 19; i++ {
		for j := range key {
			tmp[j] = key[j] ^ byte(i)
		}
		val = rc4Simple(tmp, val)
	}
	return val
}

func (h *standardHandler) checkUserKey(key []byte) bool {
	want := h.computeU(key)
	cmp := 32
	if h.r >= 3 {
		cmp = 16
	}
	if len(h.u) < cmp || len(want) < cmp {
		return false
	}
	return subtle.ConstantTimeCompare(want[:cmp], h.u[:cmp]) == 1
}

func (h *standardHandler) ownerKey(pwd []byte) []byte {
	n := h.keyLength()
	sum := md5.Sum(padPassword(pwd))
	key := sum[:]
	if h.r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key)
			key = sum[:]
		}
	}
	return key[:n]
}

func (h *standardHandler) decryptOwnerEntry(pwd []byte) []byte {
	if len(h.o) < 32 {
		return nil
	}
	key := h.ownerKey(pwd)
	if h.r == 2 {
		return rc4Simple(key, h.o[:32])
	}
	val := append([]byte(nil), h.o[:32]...)
	tmp := make([]byte, len(key))
	for i := 19; i >= 0; i-- {
		for j := range key {
			tmp[j] = key[j] ^ byte(i)
		}
		val = rc4Simple(tmp, val)
	}
	return val
}

// objectKey derives the per-object key used by RC4 and AESV2.
func objectKey(fileKey []byte, ref raw.ObjectRef, aes bool) []byte {
	d := md5.New()
	d.Write(fileKey)
	d.Write([]byte{byte(ref.Num), byte(ref.Num >> 8), byte(ref.Num >> 16), byte(ref.Gen), byte(ref.Gen >> 8)})
	if aes {
		d.Write([]byte("sAlT"))
	}
	sum := d.Sum(nil)
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}
