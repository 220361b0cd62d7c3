package security

import (
	"errors"
	"fmt"

	"github.com/wudi/pdftask/ir/raw"
)

// ErrInvalidPassword reports that neither the user nor the owner password matched.
var ErrInvalidPassword = errors.New("invalid password")

// ErrUnsupportedEncryption reports a security handler this package cannot open.
var ErrUnsupportedEncryption = errors.New("unsupported encryption")

type Permissions struct{ Print, Modify, Copy, ModifyAnnotations, FillForms, ExtractAccessible, Assemble, PrintHighQuality bool }

// AllPermissions grants every operation.
func AllPermissions() Permissions {
	return Permissions{Print: true, Modify: true, Copy: true, ModifyAnnotations: true, FillForms: true, ExtractAccessible: true, Assemble: true, PrintHighQuality: true}
}

// DataClass identifies the kind of payload being encrypted or decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
	DataClassMetadataStream
)

type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Decrypt(ref raw.ObjectRef, data []byte, class DataClass) ([]byte, error)
	Encrypt(ref raw.ObjectRef, data []byte, class DataClass) ([]byte, error)
	Permissions() Permissions
	EncryptMetadata() bool
	Revision() int
}

type HandlerBuilder struct {
	encryptDict *raw.DictObj
	fileID      []byte
}

func (b *HandlerBuilder) WithEncryptDict(d *raw.DictObj) *HandlerBuilder { b.encryptDict = d; return b }
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder           { b.fileID = id; return b }

func (b *HandlerBuilder) Build() (Handler, error) {
	if b.encryptDict == nil {
		return noEncryptionHandler{}, nil
	}
	d := b.encryptDict
	if name, ok := d.Name("Filter"); ok && name != "Standard" {
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupportedEncryption, name)
	}
	v, _ := d.Int("V")
	if v == 0 {
		v = 1
	}
	if v == 3 || v > 5 {
		return nil, fmt.Errorf("%w: V=%d", ErrUnsupportedEncryption, v)
	}
	r, ok := d.Int("R")
	if !ok {
		r = 2
	}
	if r < 2 || r > 6 {
		return nil, fmt.Errorf("%w: R=%d", ErrUnsupportedEncryption, r)
	}
	keyLen := 40
	if v == 4 {
		keyLen = 128
	}
	if n, ok := d.Int("Length"); ok && n > 0 {
		keyLen = int(n)
	}
	if v == 1 {
		keyLen = 40
	}
	if v >= 5 {
		keyLen = 256
	}
	if keyLen < 40 || keyLen > 256 || keyLen%8 != 0 {
		return nil, fmt.Errorf("%w: key length %d", ErrUnsupportedEncryption, keyLen)
	}
	p, _ := d.Int("P")
	h := &standardHandler{
		v:           int(v),
		r:           int(r),
		keyBytes:    keyLen / 8,
		o:           stringBytes(d, "O"),
		u:           stringBytes(d, "U"),
		oe:          stringBytes(d, "OE"),
		ue:          stringBytes(d, "UE"),
		perms:       stringBytes(d, "Perms"),
		p:           int32(p),
		fileID:      b.fileID,
		encryptMeta: true,
		streamAlgo:  algoRC4,
		stringAlgo:  algoRC4,
	}
	if bv, ok := d.Get("EncryptMetadata"); ok {
		if flag, isBool := bv.(raw.BoolObj); isBool {
			h.encryptMeta = flag.V
		}
	}
	if v >= 4 {
		filters, err := parseCryptFilters(d)
		if err != nil {
			return nil, err
		}
		h.streamAlgo = resolveCryptFilter(d, "StmF", filters)
		h.stringAlgo = resolveCryptFilter(d, "StrF", filters)
		if n, ok := filterKeyLength(d); ok && v == 4 {
			h.keyBytes = n
		}
	}
	if h.keyBytes > 16 && h.r < 5 {
		h.keyBytes = 16
	}
	return h, nil
}

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAESV2
	algoAESV3
)

type standardHandler struct {
	key         []byte
	v, r        int
	keyBytes    int
	o, u        []byte
	oe, ue      []byte
	perms       []byte
	p           int32
	fileID      []byte
	encryptMeta bool
	authed      bool
	streamAlgo  cryptAlgo
	stringAlgo  cryptAlgo
}

func (h *standardHandler) IsEncrypted() bool     { return true }
func (h *standardHandler) EncryptMetadata() bool { return h.encryptMeta }
func (h *standardHandler) Revision() int         { return h.r }

// Authenticate tries password as the user password first, then as the owner password.
func (h *standardHandler) Authenticate(password string) error {
	var key []byte
	var ok bool
	if h.r >= 5 {
		key, ok = h.authenticateAES256(encodePasswordUTF8(password))
	} else {
		key, ok = h.authenticateLegacy(encodePasswordLatin1(password))
	}
	if !ok {
		return ErrInvalidPassword
	}
	h.key = key
	h.authed = true
	return nil
}

func (h *standardHandler) algoFor(class DataClass) cryptAlgo {
	if class == DataClassMetadataStream && !h.encryptMeta {
		return algoNone
	}
	if class == DataClassString {
		return h.stringAlgo
	}
	return h.streamAlgo
}

func (h *standardHandler) Decrypt(ref raw.ObjectRef, data []byte, class DataClass) ([]byte, error) {
	if !h.authed {
		if err := h.Authenticate(""); err != nil {
			return nil, err
		}
	}
	algo := h.algoFor(class)
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	if algo == algoRC4 {
		return rc4Crypt(objectKey(h.key, ref, false), data)
	}
	key := h.key
	if algo == algoAESV2 {
		key = objectKey(h.key, ref, true)
	}
	return aesDecrypt(key, data)
}

func (h *standardHandler) Encrypt(ref raw.ObjectRef, data []byte, class DataClass) ([]byte, error) {
	if !h.authed {
		if err := h.Authenticate(""); err != nil {
			return nil, err
		}
	}
	algo := h.algoFor(class)
	if algo == algoNone {
		return data, nil
	}
	if algo == algoRC4 {
		return rc4Crypt(objectKey(h.key, ref, false), data)
	}
	key := h.key
	if algo == algoAESV2 {
		key = objectKey(h.key, ref, true)
	}
	return aesEncrypt(key, data, nil)
}

func (h *standardHandler) Permissions() Permissions { return permissionsFromFlags(h.p) }

// PermissionsValue builds the Standard security permissions flags for a document.
func PermissionsValue(p Permissions) int32 {
	val := int32(-4) // bits 1-2 must be 0
	deny := func(bit uint, allowed bool) {
		if !allowed {
			val &^= 1 << (bit - 1)
		}
	}
	deny(3, p.Print)
	deny(4, p.Modify)
	deny(5, p.Copy)
	deny(6, p.ModifyAnnotations)
	deny(9, p.FillForms)
	deny(10, p.ExtractAccessible)
	deny(11, p.Assemble)
	deny(12, p.PrintHighQuality)
	return val
}

func permissionsFromFlags(p int32) Permissions {
	return Permissions{
		Print:             p&(1<<2) != 0,
		Modify:            p&(1<<3) != 0,
		Copy:              p&(1<<4) != 0,
		ModifyAnnotations: p&(1<<5) != 0,
		FillForms:         p&(1<<8) != 0,
		ExtractAccessible: p&(1<<9) != 0,
		Assemble:          p&(1<<10) != 0,
		PrintHighQuality:  p&(1<<11) != 0,
	}
}

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool                  { return false }
func (noEncryptionHandler) Authenticate(password string) error { return nil }
func (noEncryptionHandler) Decrypt(ref raw.ObjectRef, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Encrypt(ref raw.ObjectRef, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Permissions() Permissions { return AllPermissions() }
func (noEncryptionHandler) EncryptMetadata() bool    { return false }
func (noEncryptionHandler) Revision() int            { return 0 }

// NoopHandler returns a reusable pass-through encryption handler.
func NoopHandler() Handler { return noEncryptionHandler{} }

func parseCryptFilters(d *raw.DictObj) (map[string]cryptAlgo, error) {
	out := map[string]cryptAlgo{"Identity": algoNone}
	cfObj, ok := d.Get("CF")
	if !ok {
		return out, nil
	}
	cf, ok := cfObj.(*raw.DictObj)
	if !ok {
		return nil, fmt.Errorf("%w: /CF is not a dictionary", ErrUnsupportedEncryption)
	}
	for _, name := range cf.Keys() {
		entry, ok := cf.KV[name].(*raw.DictObj)
		if !ok {
			continue
		}
		cfm, _ := entry.Name("CFM")
		switch cfm {
		case "", "None":
			out[name] = algoNone
		case "V2":
			out[name] = algoRC4
		case "AESV2":
			out[name] = algoAESV2
		case "AESV3":
			out[name] = algoAESV3
		default:
			return nil, fmt.Errorf("%w: crypt filter method %s", ErrUnsupportedEncryption, cfm)
		}
	}
	return out, nil
}

// resolveCryptFilter returns the algorithm named by StmF or StrF. Absent
// entries mean Identity.
func resolveCryptFilter(d *raw.DictObj, key string, filters map[string]cryptAlgo) cryptAlgo {
	name, ok := d.Name(key)
	if !ok {
		return algoNone
	}
	if algo, ok := filters[name]; ok {
		return algo
	}
	return algoNone
}

// filterKeyLength reads /Length from the stream crypt filter. V4 writers
// express it in bytes, some in bits.
func filterKeyLength(d *raw.DictObj) (int, bool) {
	cf, ok := d.KV["CF"].(*raw.DictObj)
	if !ok {
		return 0, false
	}
	name, _ := d.Name("StmF")
	entry, ok := cf.KV[name].(*raw.DictObj)
	if !ok {
		return 0, false
	}
	n, ok := entry.Int("Length")
	if !ok || n <= 0 {
		return 0, false
	}
	if n > 32 {
		n /= 8
	}
	if n < 5 || n > 16 {
		return 0, false
	}
	return int(n), true
}

func stringBytes(d *raw.DictObj, key string) []byte {
	if o, ok := d.Get(key); ok {
		if s, ok := o.(raw.StringObj); ok {
			return s.Bytes
		}
	}
	return nil
}
