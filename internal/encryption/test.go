package encryption

import (
	"bufio"
	"fmt"
	"io"

	"cav-go/internal/cav"
)

// testHeader mimics age armor framing so import format detection treats
// TestEncryptor output as encrypted, while remaining deterministic and
// trivially reversible.
const testHeader = "-----BEGIN AGE ENCRYPTED FILE-----\nCAV-TEST\n"

// TestEncryptor is a deterministic encryptor for tests. It prepends a fixed
// header during encryption and strips it during decryption.
type TestEncryptor struct {
	setupCalled bool
}

var _ cav.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a new TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.WriteString(w, testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (cav.DecryptionContext, error) {
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ cav.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(br, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if string(header) != testHeader {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, br); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
