package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rc4"
	"errors"
	"fmt"
	"io"
)

func rc4Crypt(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("rc4: %w", err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// rc4Simple is rc4Crypt for keys already known to be 1..256 bytes.
func rc4Simple(key, data []byte) []byte {
	out, err := rc4Crypt(key, data)
	if err != nil {
		return nil
	}
	return out
}

// aesDecrypt decrypts CBC data carrying its IV in the first block. Bad
// padding is tolerated; some writers omit it.
func aesDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes: ciphertext shorter than IV")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	if len(body) == 0 {
		return []byte{}, nil
	}
	if len(body)%aes.BlockSize != 0 {
		body = body[:len(body)-len(body)%aes.BlockSize]
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	if n := int(out[len(out)-1]); n > 0 && n <= aes.BlockSize && n <= len(out) {
		if bytes.Equal(out[len(out)-n:], bytes.Repeat([]byte{byte(n)}, n)) {
			out = out[:len(out)-n]
		}
	}
	return out, nil
}

// aesEncrypt pads data with PKCS#7 and prefixes the IV. A nil iv draws a
// random one.
func aesEncrypt(key, data, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	if iv == nil {
		iv = make([]byte, aes.BlockSize)
		if _, err := io.ReadFull(rand.Reader, iv); err != nil {
			return nil, fmt.Errorf("aes iv: %w", err)
		}
	}
	pad := aes.BlockSize - len(data)%aes.BlockSize
	plain := make([]byte, len(data)+pad)
	copy(plain, data)
	for i := len(data); i < len(plain); i++ {
		plain[i] = byte(pad)
	}
	out := make([]byte, aes.BlockSize+len(plain))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], plain)
	return out, nil
}

var zeroIV = make([]byte, aes.BlockSize)

func cbcNoPad(key, iv, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes: data is not a whole number of blocks")
	}
	out := make([]byte, len(data))
	if encrypt {
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	} else {
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	}
	return out, nil
}

func ecbBlock(key, data []byte, encrypt bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	if len(data) != aes.BlockSize {
		return nil, errors.New("aes: ecb expects a single block")
	}
	out := make([]byte, aes.BlockSize)
	if encrypt {
		block.Encrypt(out, data)
	} else {
		block.Decrypt(out, data)
	}
	return out, nil
}
