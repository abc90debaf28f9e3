package engine

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// NewEncryption creates an encryption from a comma separated list of base64 encoded 32 byte keys.
//
// The first key is used for encryption. All keys are tried for decryption, which allows a key rotation.
func NewEncryption(keys string) (Encryption, error) {
	if keys == "" {
		return Encryption{}, nil
	}

	split := strings.Split(keys, ",")

	aeads := make([]cipher.AEAD, len(split))
	for i := range split {
		for j := i + 1; j < len(split); j++ {
			if split[i] == split[j] {
				return Encryption{}, fmt.Errorf("duplicate encryption key #%d and #%d", i, j)
			}
		}

		k, err := base64.StdEncoding.DecodeString(strings.TrimSpace(split[i]))
		if err != nil {
			return Encryption{}, fmt.Errorf("failed to decode encryption key #%d: %v", i, err)
		}
		if len(k) != 32 {
			return Encryption{}, fmt.Errorf("failed to decode encryption key #%d: expected a length of 32, but got %d", i, len(k))
		}

		c, err := aes.NewCipher(k)
		if err != nil {
			return Encryption{}, fmt.Errorf("failed to create AES cipher for key #%d: %v", i, err)
		}

		gcm, err := cipher.NewGCM(c)
		if err != nil {
			return Encryption{}, fmt.Errorf("failed to create GCM for key #%d: %v", i, err)
		}

		aeads[i] = gcm
	}

	return Encryption{aeads: aeads}, nil
}

// NewEncryptionKey creates a random, base64 encoded 32 byte key.
func NewEncryptionKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to create random key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encryption is used to encrypt and decrypt the values of sensitive variables, when snapshots are written and read.
// The zero value is unable to perform any encryption or decryption, since no encryption keys are set.
type Encryption struct {
	aeads []cipher.AEAD
}

func (e Encryption) Decrypt(encryptedValue string) (string, error) {
	if len(e.aeads) == 0 {
		return "", errors.New("no encryption keys configured")
	}

	b, err := base64.StdEncoding.DecodeString(encryptedValue)
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted value: %v", err)
	}

	var decryptErr error
	for _, gcm := range e.aeads {
		nonceSize := gcm.NonceSize()
		if len(b) < nonceSize {
			return "", errors.New("encrypted value is too short")
		}

		value, err := gcm.Open(nil, b[:nonceSize], b[nonceSize:], nil)
		if err != nil {
			decryptErr = err
			continue
		}

		return string(value), nil
	}

	return "", fmt.Errorf("failed to decrypt value: %v", decryptErr)
}

// DecryptData returns a decrypted copy of encrypted data. Unencrypted data is returned as it is.
func (e Encryption) DecryptData(data Data) (Data, error) {
	if !data.IsEncrypted {
		return data, nil
	}

	value, err := e.Decrypt(data.Value)
	if err != nil {
		return Data{}, err
	}

	return Data{Encoding: data.Encoding, Value: value}, nil
}

func (e Encryption) Encrypt(value string) (string, error) {
	if len(e.aeads) == 0 {
		return "", errors.New("no encryption keys configured")
	}

	gcm := e.aeads[0]

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to randomly generate nonce: %v", err)
	}

	b := gcm.Seal(nonce, nonce, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(b), nil
}

// EncryptData returns an encrypted copy of data.
func (e Encryption) EncryptData(data Data) (Data, error) {
	if data.IsEncrypted {
		return data, nil
	}

	encryptedValue, err := e.Encrypt(data.Value)
	if err != nil {
		return Data{}, err
	}

	return Data{Encoding: data.Encoding, IsEncrypted: true, Value: encryptedValue}, nil
}

func (e Encryption) IsZero() bool {
	return len(e.aeads) == 0
}
