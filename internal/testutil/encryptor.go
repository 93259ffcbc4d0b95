package testutil

import (
	"cav-go/internal/cav"
	"cav-go/internal/encryption"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() cav.Encryptor {
	return encryption.NewTestEncryptor()
}

// NewTestDecryptor returns the decryption context matching NewTestEncryptor.
func NewTestDecryptor() cav.DecryptionContext {
	return &encryption.TestDecryptionContext{}
}
