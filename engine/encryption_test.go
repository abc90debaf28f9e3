package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncryption(t *testing.T) {
	assert := assert.New(t)

	oldKey := mustCreateEncryptionKey(t)
	newKey := mustCreateEncryptionKey(t)

	oldEncryption := mustCreateEncryption(t, oldKey)
	assert.Len(oldEncryption.aeads, 1)
	assert.False(oldEncryption.IsZero())

	newEncryption := mustCreateEncryption(t, newKey)
	assert.Len(newEncryption.aeads, 1)

	encryption := mustCreateEncryption(t, newKey+","+oldKey)
	assert.Len(encryption.aeads, 2)

	emptyEncryption := mustCreateEncryption(t, "")
	assert.True(emptyEncryption.IsZero())

	t.Run("returns error when duplicate key configured", func(t *testing.T) {
		_, err := NewEncryption(newKey + "," + newKey)
		assert.NotNil(err)
	})

	t.Run("returns error when key has invalid length", func(t *testing.T) {
		_, err := NewEncryption("dGVzdA==")
		assert.NotNil(err)
	})

	t.Run("encrypt and decrypt", func(t *testing.T) {
		encryptedValue, err := encryption.Encrypt("test")
		if err != nil {
			t.Fatalf("failed to encrypt value: %v", err)
		}

		value, err := encryption.Decrypt(encryptedValue)
		if err != nil {
			t.Fatalf("failed to decrypt value: %v", err)
		}

		assert.Equal("test", value)
	})

	t.Run("encrypt with old key and decrypt after rotation", func(t *testing.T) {
		encryptedValue, err := oldEncryption.Encrypt("test")
		if err != nil {
			t.Fatalf("failed to encrypt value: %v", err)
		}

		value, err := encryption.Decrypt(encryptedValue)
		if err != nil {
			t.Fatalf("failed to decrypt value: %v", err)
		}

		assert.Equal("test", value)

		_, err = newEncryption.Decrypt(encryptedValue)
		assert.Error(err)
	})

	t.Run("encrypt and decrypt data", func(t *testing.T) {
		// given
		data := Data{Encoding: "text", Value: "secret"}

		// when
		encryptedData, err := encryption.EncryptData(data)
		if err != nil {
			t.Fatalf("failed to encrypt data: %v", err)
		}

		// then
		assert.True(encryptedData.IsEncrypted)
		assert.Equal("text", encryptedData.Encoding)
		assert.NotEqual("secret", encryptedData.Value)
		assert.Equal("secret", data.Value)

		// when
		decryptedData, err := encryption.DecryptData(encryptedData)
		if err != nil {
			t.Fatalf("failed to decrypt data: %v", err)
		}

		// then
		assert.Equal(data, decryptedData)
	})

	t.Run("decrypt unencrypted data", func(t *testing.T) {
		data := Data{Encoding: "text", Value: "test"}

		decryptedData, err := emptyEncryption.DecryptData(data)
		assert.Nil(err)
		assert.Equal(data, decryptedData)
	})

	t.Run("encrypt returns error when keys are empty", func(t *testing.T) {
		_, err := emptyEncryption.Encrypt("test")
		assert.NotNil(err)
	})

	t.Run("decrypt returns error when keys are empty", func(t *testing.T) {
		_, err := emptyEncryption.Decrypt("test")
		assert.NotNil(err)
	})
}

func mustCreateEncryption(t *testing.T, keys string) Encryption {
	encryption, err := NewEncryption(keys)
	if err != nil {
		t.Fatalf("failed to create encryption: %v", err)
	}
	return encryption
}

func mustCreateEncryptionKey(t *testing.T) string {
	key, err := NewEncryptionKey()
	if err != nil {
		t.Fatalf("failed to create encryption key: %v", err)
	}
	return key
}
