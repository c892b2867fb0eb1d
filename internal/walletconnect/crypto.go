package walletconnect

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrBadMAC     = errors.New("walletconnect: payload hmac mismatch")
	ErrBadPadding = errors.New("walletconnect: invalid payload padding")
)

// encryptedPayload is the envelope every relayed message travels in.
type encryptedPayload struct {
	Data string `json:"data"`
	HMAC string `json:"hmac"`
	IV   string `json:"iv"`
}

func newKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// encrypt seals plaintext with AES-256-CBC and signs ciphertext||iv with HMAC-SHA256.
func encrypt(key, plaintext []byte) (*encryptedPayload, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return &encryptedPayload{
		Data: hex.EncodeToString(ciphertext),
		HMAC: hex.EncodeToString(sign(key, ciphertext, iv)),
		IV:   hex.EncodeToString(iv),
	}, nil
}

func decrypt(key []byte, p *encryptedPayload) ([]byte, error) {
	ciphertext, err := hex.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	iv, err := hex.DecodeString(p.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	mac, err := hex.DecodeString(p.HMAC)
	if err != nil {
		return nil, fmt.Errorf("decode hmac: %w", err)
	}
	if !hmac.Equal(mac, sign(key, ciphertext, iv)) {
		return nil, ErrBadMAC
	}
	if len(iv) != aes.BlockSize || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrBadPadding
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func sign(key, ciphertext, iv []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(ciphertext)
	mac.Write(iv)
	return mac.Sum(nil)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}

// Seal encrypts a relayed message into the JSON envelope published on the bridge.
func Seal(key, plaintext []byte) (string, error) {
	sealed, err := encrypt(key, plaintext)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(sealed)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Open verifies and decrypts an envelope received from the bridge.
func Open(key []byte, payload string) ([]byte, error) {
	var sealed encryptedPayload
	if err := json.Unmarshal([]byte(payload), &sealed); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return decrypt(key, &sealed)
}
