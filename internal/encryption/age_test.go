package encryption

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"cav-go/internal/config"
)

func configWithType(typ string) config.EncryptionConfig {
	return config.EncryptionConfig{Type: typ, PublicKeyPath: "/nonexistent/cav.pub", PrivateKeyPath: "/nonexistent/cav.key"}
}

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	return NewAgeEncryptor(config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "cav.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "cav.key"),
	})
}

func TestAgeEncryptor_Setup_IsConfigured(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)
	if e.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
	if err := e.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}
}

func TestAgeEncryptor_EncryptDecrypt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large data", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			passphrase := "test-passphrase"
			e := newTestAgeEncryptor(t)
			if err := e.Setup(passphrase); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			var encrypted bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &encrypted); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !strings.HasPrefix(encrypted.String(), "-----BEGIN AGE ENCRYPTED FILE-----") {
				t.Error("ciphertext is not armored")
			}

			ctx, err := e.Unlock(passphrase)
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var decrypted bytes.Buffer
			if err := ctx.Decrypt(bytes.NewReader(encrypted.Bytes()), &decrypted); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(decrypted.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %d bytes, want %d bytes", decrypted.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_Errors(t *testing.T) {
	t.Parallel()

	t.Run("wrong passphrase", func(t *testing.T) {
		t.Parallel()
		e := newTestAgeEncryptor(t)
		if err := e.Setup("correct-passphrase"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		if _, err := e.Unlock("wrong-passphrase"); err == nil {
			t.Error("Unlock() with wrong passphrase should return error")
		}
	})

	t.Run("encrypt before setup", func(t *testing.T) {
		t.Parallel()
		e := newTestAgeEncryptor(t)
		var buf bytes.Buffer
		if err := e.Encrypt(strings.NewReader("data"), &buf); err == nil {
			t.Error("Encrypt() before Setup should return error")
		}
	})

	t.Run("unlock before setup", func(t *testing.T) {
		t.Parallel()
		e := newTestAgeEncryptor(t)
		if _, err := e.Unlock("passphrase"); err == nil {
			t.Error("Unlock() before Setup should return error")
		}
	})
}
