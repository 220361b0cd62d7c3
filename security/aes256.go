package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/wudi/pdftask/ir/raw"
)

// hash2B computes the revision 5/6 password hash. udata is the 48-byte /U
// prefix for owner checks and nil for user checks.
func hash2B(r int, pwd, salt, udata []byte) []byte {
	h := sha256.New()
	h.Write(pwd)
	h.Write(salt)
	h.Write(udata)
	k := h.Sum(nil)
	if r < 6 {
		return k
	}

	var e []byte
	for i := 0; i < 64 || int(e[len(e)-1]) > i-32; i++ {
		round := make([]byte, 0, len(pwd)+len(k)+len(udata))
		round = append(round, pwd...)
		round = append(round, k...)
		round = append(round, udata...)
		k1 := bytes.Repeat(round, 64)

		block, err := aes.NewCipher(k[:16])
		if err != nil {
			return nil
		}
		e = make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		var sum int
		for _, b := range e[:16] {
			sum += int(b)
		}
		var next hash.Hash
		switch sum % 3 {
		case 0:
			next = sha256.New()
		case 1:
			next = sha512.New384()
		default:
			next = sha512.New()
		}
		next.Write(e)
		k = next.Sum(nil)
	}
	return k[:32]
}

func (h *standardHandler) authenticateAES256(pwd []byte) ([]byte, bool) {
	if len(h.u) < 48 || len(h.o) < 48 || len(h.ue) < 32 || len(h.oe) < 32 {
		return nil, false
	}
	var key []byte
	if want := hash2B(h.r, pwd, h.u[32:40], nil); subtle.ConstantTimeCompare(want, h.u[:32]) == 1 {
		k, err := cbcNoPad(hash2B(h.r, pwd, h.u[40:48], nil), zeroIV, h.ue[:32], false)
		if err != nil {
			return nil, false
		}
		key = k
	} else if want := hash2B(h.r, pwd, h.o[32:40], h.u[:48]); subtle.ConstantTimeCompare(want, h.o[:32]) == 1 {
		k, err := cbcNoPad(hash2B(h.r, pwd, h.o[40:48], h.u[:48]), zeroIV, h.oe[:32], false)
		if err != nil {
			return nil, false
		}
		key = k
	} else {
		return nil, false
	}
	if len(h.perms) >= 16 {
		plain, err := ecbBlock(key, h.perms[:16], false)
		if err != nil || string(plain[9:12]) != "adb" {
			return nil, false
		}
	}
	return key, true
}

// BuildAES256Encryption creates a revision 6 handler and its /Encrypt
// dictionary. An empty owner password falls back to the user password.
func BuildAES256Encryption(userPwd, ownerPwd string, perms Permissions, encryptMetadata bool, random io.Reader) (Handler, *raw.DictObj, error) {
	if random == nil {
		return nil, nil, errors.New("security: random source is required")
	}
	if ownerPwd == "" {
		ownerPwd = userPwd
	}
	upw, opw := encodePasswordUTF8(userPwd), encodePasswordUTF8(ownerPwd)

	fileKey := make([]byte, 32)
	salts := make([]byte, 32)
	tail := make([]byte, 4)
	for _, b := range [][]byte{fileKey, salts, tail} {
		if _, err := io.ReadFull(random, b); err != nil {
			return nil, nil, fmt.Errorf("security: read random: %w", err)
		}
	}
	uvs, uks, ovs, oks := salts[0:8], salts[8:16], salts[16:24], salts[24:32]

	u := append(append(hash2B(6, upw, uvs, nil), uvs...), uks...)
	ue, err := cbcNoPad(hash2B(6, upw, uks, nil), zeroIV, fileKey, true)
	if err != nil {
		return nil, nil, err
	}
	o := append(append(hash2B(6, opw, ovs, u), ovs...), oks...)
	oe, err := cbcNoPad(hash2B(6, opw, oks, u), zeroIV, fileKey, true)
	if err != nil {
		return nil, nil, err
	}

	p := PermissionsValue(perms)
	permsPlain := make([]byte, 16)
	binary.LittleEndian.PutUint32(permsPlain[0:4], uint32(p))
	copy(permsPlain[4:8], []byte{0xFF, 0xFF, 0xFF, 0xFF})
	permsPlain[8] = 'F'
	if encryptMetadata {
		permsPlain[8] = 'T'
	}
	copy(permsPlain[9:12], "adb")
	copy(permsPlain[12:16], tail)
	permsEnc, err := ecbBlock(fileKey, permsPlain, true)
	if err != nil {
		return nil, nil, err
	}

	stdCF := raw.Dict()
	stdCF.Set("AuthEvent", raw.NameLiteral("DocOpen"))
	stdCF.Set("CFM", raw.NameLiteral("AESV3"))
	stdCF.Set("Length", raw.NumberInt(32))
	cf := raw.Dict()
	cf.Set("StdCF", stdCF)

	dict := raw.Dict()
	dict.Set("Filter", raw.NameLiteral("Standard"))
	dict.Set("V", raw.NumberInt(5))
	dict.Set("R", raw.NumberInt(6))
	dict.Set("Length", raw.NumberInt(256))
	dict.Set("CF", cf)
	dict.Set("StmF", raw.NameLiteral("StdCF"))
	dict.Set("StrF", raw.NameLiteral("StdCF"))
	dict.Set("O", raw.HexStr(o))
	dict.Set("U", raw.HexStr(u))
	dict.Set("OE", raw.HexStr(oe))
	dict.Set("UE", raw.HexStr(ue))
	dict.Set("Perms", raw.HexStr(permsEnc))
	dict.Set("P", raw.NumberInt(int64(p)))
	if !encryptMetadata {
		dict.Set("EncryptMetadata", raw.Bool(false))
	}

	h := &standardHandler{
		key:         fileKey,
		v:           5,
		r:           6,
		keyBytes:    32,
		o:           o,
		u:           u,
		oe:          oe,
		ue:          ue,
		perms:       permsEnc,
		p:           p,
		encryptMeta: encryptMetadata,
		authed:      true,
		streamAlgo:  algoAESV3,
		stringAlgo:  algoAESV3,
	}
	return h, dict, nil
}
