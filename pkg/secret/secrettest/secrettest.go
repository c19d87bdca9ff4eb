// Package secrettest builds encrypted manifest fixtures for tests.
package secrettest

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"

	"github.com/andreburgaud/crypt2go/ecb"
	"github.com/andreburgaud/crypt2go/padding"
)

const (
	Algorithm    = "aes-256-cbc"
	Password     = "test-secret-key"
	SBSAlgorithm = "aes-256-ecb"
	SBSKey       = "0123456789abcdef0123456789abcdef"
)

// Plain carries the plaintext values a fixture manifest encrypts.
type Plain struct {
	KBS, KBSAgent, KBSTs, KBSParam, KBSMeta, MBC, SBS string
}

// Manifest returns the JSON body of a manifest encrypting p.
func Manifest(p Plain) []byte {
	enc := func(s string) string { return EncryptString(Algorithm, Password, s) }
	b, _ := json.Marshal(map[string]string{
		"secretKey":  Password,
		"algorithm":  Algorithm,
		"stationKey": base64.StdEncoding.EncodeToString([]byte(SBSKey)),
		"algorithm2": SBSAlgorithm,
		"kbs":        enc(p.KBS),
		"kbsAgent":   enc(p.KBSAgent),
		"kbsTs":      enc(p.KBSTs),
		"kbsParam":   enc(p.KBSParam),
		"kbsMeta":    enc(p.KBSMeta),
		"mbc":        enc(p.MBC),
		"sbs":        enc(p.SBS),
	})
	return b
}

// EncryptString is the inverse of secret.DecryptString for aes-*-cbc.
func EncryptString(algorithm, password, plaintext string) string {
	keyLen := 32
	switch algorithm {
	case "aes-128-cbc":
		keyLen = 16
	case "aes-192-cbc":
		keyLen = 24
	}

	var out, prev []byte
	for len(out) < keyLen+aes.BlockSize {
		h := md5.New()
		h.Write(prev)
		h.Write([]byte(password))
		prev = h.Sum(nil)
		out = append(out, prev...)
	}
	key, iv := out[:keyLen], out[keyLen:keyLen+aes.BlockSize]

	block, _ := aes.NewCipher(key)
	pt := pad([]byte(plaintext))
	ct := make([]byte, len(pt))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, pt)

	return hex.EncodeToString(ct)
}

// EncryptSBS returns the base64 body the SBS endpoint would send for url.
func EncryptSBS(url string) string {
	block, _ := aes.NewCipher([]byte(SBSKey))
	pt := pad([]byte(url))
	ct := make([]byte, len(pt))
	ecb.NewECBEncrypter(block).CryptBlocks(ct, pt)
	return base64.StdEncoding.EncodeToString(ct)
}

func pad(b []byte) []byte {
	p, _ := padding.NewPkcs7Padding(aes.BlockSize).Pad(b)
	return p
}
