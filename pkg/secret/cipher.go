package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/andreburgaud/crypt2go/ecb"
	"github.com/andreburgaud/crypt2go/padding"
)

type blockMode int

const (
	modeCBC blockMode = iota
	modeECB
)

type algorithm struct {
	keyLen int
	mode   blockMode
}

// parseAlgorithm understands the OpenSSL cipher names used in the manifest,
// e.g. "aes-256-cbc", "aes-128-ecb" or the "aes256" alias.
func parseAlgorithm(name string) (algorithm, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "aes128":
		return algorithm{keyLen: 16, mode: modeCBC}, nil
	case "aes192":
		return algorithm{keyLen: 24, mode: modeCBC}, nil
	case "aes256":
		return algorithm{keyLen: 32, mode: modeCBC}, nil
	}

	parts := strings.Split(n, "-")
	if len(parts) != 3 || parts[0] != "aes" {
		return algorithm{}, fmt.Errorf("unsupported algorithm %q", name)
	}

	var a algorithm
	switch parts[1] {
	case "128":
		a.keyLen = 16
	case "192":
		a.keyLen = 24
	case "256":
		a.keyLen = 32
	default:
		return algorithm{}, fmt.Errorf("unsupported key size in %q", name)
	}

	switch parts[2] {
	case "cbc":
		a.mode = modeCBC
	case "ecb":
		a.mode = modeECB
	default:
		return algorithm{}, fmt.Errorf("unsupported block mode in %q", name)
	}

	return a, nil
}

// DecryptString decrypts hex ciphertext with a password, deriving key and IV
// the way OpenSSL's EVP_BytesToKey does (MD5, one round, no salt).
func DecryptString(algorithmName, password, hexCiphertext string) (string, error) {
	alg, err := parseAlgorithm(algorithmName)
	if err != nil {
		return "", err
	}

	ct, err := hex.DecodeString(strings.TrimSpace(hexCiphertext))
	if err != nil {
		return "", fmt.Errorf("decode hex: %w", err)
	}

	ivLen := aes.BlockSize
	if alg.mode == modeECB {
		ivLen = 0
	}
	key, iv := evpBytesToKey([]byte(password), alg.keyLen, ivLen)

	pt, err := decrypt(alg, key, iv, ct)
	if err != nil {
		return "", err
	}

	return string(pt), nil
}

// DecryptNoIV decrypts ciphertext with a raw key and no init vector. Only
// ECB algorithms qualify.
func DecryptNoIV(algorithmName string, key, ciphertext []byte) (string, error) {
	alg, err := parseAlgorithm(algorithmName)
	if err != nil {
		return "", err
	}
	if alg.mode != modeECB {
		return "", fmt.Errorf("algorithm %q needs an init vector", algorithmName)
	}
	if len(key) != alg.keyLen {
		return "", fmt.Errorf("key is %d bytes, %s needs %d", len(key), algorithmName, alg.keyLen)
	}

	pt, err := decrypt(alg, key, nil, ciphertext)
	if err != nil {
		return "", err
	}

	return string(pt), nil
}

func decrypt(alg algorithm, key, iv, ct []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ct))
	}

	var mode cipher.BlockMode
	switch alg.mode {
	case modeCBC:
		mode = cipher.NewCBCDecrypter(block, iv)
	case modeECB:
		mode = ecb.NewECBDecrypter(block)
	}

	pt := make([]byte, len(ct))
	mode.CryptBlocks(pt, ct)

	pt, err = padding.NewPkcs7Padding(aes.BlockSize).Unpad(pt)
	if err != nil {
		return nil, fmt.Errorf("unpad: %w", err)
	}
	return pt, nil
}

func evpBytesToKey(password []byte, keyLen, ivLen int) ([]byte, []byte) {
	var (
		out  []byte
		prev []byte
	)
	for len(out) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(password)
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	return out[:keyLen], out[keyLen : keyLen+ivLen]
}
