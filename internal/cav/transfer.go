package cav

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"cav-go/internal/validation"
)

// ExportFormat is the portable representation of an exported backup.
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatBase64 ExportFormat = "base64"
	ExportFormatAge    ExportFormat = "age"
)

// Leading bytes of armored and binary age files.
const (
	ageArmorHeader  = "-----BEGIN AGE ENCRYPTED FILE-----"
	ageBinaryHeader = "age-encryption.org/"
)

// ExportFile is an exported backup ready to be written or downloaded.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// ImportOptions supplies what an import may need beyond the file itself.
type ImportOptions struct {
	// Decryptor is required to import age-encrypted files.
	Decryptor DecryptionContext
}

// ExportBackup serializes the whole backup entity in the given format and
// records a DATA_EXPORT event with the resulting size.
func (s *Service) ExportBackup(ctx context.Context, id string, format ExportFormat) (*ExportFile, error) {
	b, err := s.backups.Get(id)
	if err != nil {
		return nil, err
	}
	doc, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding backup %s: %w", id, err)
	}

	stamp := b.Timestamp.UTC().Format("20060102-150405")
	file := &ExportFile{}
	switch format {
	case ExportFormatJSON:
		file.Name = fmt.Sprintf("backup-%s-%s.json", id, stamp)
		file.ContentType = "application/json"
		file.Data = doc
	case ExportFormatBase64:
		file.Name = fmt.Sprintf("backup-%s-%s.b64", id, stamp)
		file.ContentType = "text/plain; charset=utf-8"
		file.Data = []byte(base64.StdEncoding.EncodeToString(doc))
	case ExportFormatAge:
		if s.encryptor == nil || !s.encryptor.IsConfigured() {
			return nil, NewValidationError("format", "age export requires configured encryption keys")
		}
		var buf bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(doc), &buf); err != nil {
			return nil, fmt.Errorf("encrypting backup %s: %w", id, err)
		}
		file.Name = fmt.Sprintf("backup-%s-%s.age", id, stamp)
		file.ContentType = "application/octet-stream"
		file.Data = buf.Bytes()
	default:
		return nil, NewValidationError("format", fmt.Sprintf("unsupported export format %q", format))
	}

	s.logger.Info("backup exported", "backupID", id, "format", format, "size", len(file.Data))
	s.audit.Append(ctx, AuditEvent{
		EventType: EventDataExport,
		Details: map[string]any{
			"backupId": id,
			"format":   string(format),
			"size":     len(file.Data),
			"fileName": file.Name,
		},
	})
	return file, nil
}

// ImportBackup parses an exported backup, detecting json, base64 and age
// armor automatically. The file must carry id, type, timestamp, data and
// checksum; otherwise a ValidationError matching ErrMalformed is returned and
// nothing is stored. Only completed or corrupted backups are accepted. The
// imported backup receives a fresh ID and is stored as completed when its
// checksum verifies, corrupted otherwise; restore refuses the latter.
func (s *Service) ImportBackup(ctx context.Context, contents []byte, opts ImportOptions) (*Backup, error) {
	doc, err := decodeImport(contents, opts)
	if err != nil {
		return nil, err
	}

	var b Backup
	if err := json.Unmarshal(doc, &b); err != nil {
		return nil, NewMalformedError("", fmt.Sprintf("not a backup document: %v", err))
	}
	if err := validation.Struct(&b); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, NewMalformedError(verrs[0].Field, verrs[0].Message)
		}
		return nil, NewMalformedError("", err.Error())
	}
	if !b.Type.IsValid() {
		return nil, NewMalformedError("type", fmt.Sprintf("unknown backup type %q", b.Type))
	}

	switch {
	case b.Status == "", b.Status == BackupStatusCompleted, b.Status == BackupStatusCorrupted:
	case b.Status.IsValid():
		return nil, NewMalformedError("status", fmt.Sprintf("backup is %s and carries no complete payload", b.Status))
	default:
		return nil, NewMalformedError("status", fmt.Sprintf("unknown backup status %q", b.Status))
	}

	originalID := b.ID
	now := s.clock.Now()
	b.ID = s.idgen.New()
	b.Imported = true
	b.ImportedAt = &now
	b.Status = BackupStatusCompleted
	if err := b.VerifyChecksum(); err != nil {
		var integrity *IntegrityError
		if !errors.As(err, &integrity) {
			return nil, NewMalformedError("data", err.Error())
		}
		b.Status = BackupStatusCorrupted
	}
	if len(b.Metadata.IncludedBuckets) == 0 {
		b.Metadata.IncludedBuckets = sortedKeys(b.Data)
	}

	s.mu.Lock()
	_, err = s.backups.Add(ctx, &b)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("storing imported backup: %w", err)
	}

	s.logger.Info("backup imported", "backupID", b.ID, "originalID", originalID, "status", b.Status, "size", len(contents))
	s.audit.Append(ctx, AuditEvent{
		EventType: EventDataImport,
		Details: map[string]any{
			"backupId":   b.ID,
			"originalId": originalID,
			"backupType": string(b.Type),
			"status":     string(b.Status),
			"size":       len(contents),
		},
	})
	return b.clone(), nil
}

// decodeImport returns the JSON document inside an import file.
func decodeImport(contents []byte, opts ImportOptions) ([]byte, error) {
	trimmed := bytes.TrimSpace(contents)
	switch {
	case len(trimmed) == 0:
		return nil, NewMalformedError("", "file is empty")
	case bytes.HasPrefix(trimmed, []byte(ageArmorHeader)), bytes.HasPrefix(contents, []byte(ageBinaryHeader)):
		if opts.Decryptor == nil {
			return nil, NewValidationError("file", "encrypted backup requires an unlocked key")
		}
		var buf bytes.Buffer
		if err := opts.Decryptor.Decrypt(bytes.NewReader(contents), &buf); err != nil {
			return nil, fmt.Errorf("decrypting backup: %w", err)
		}
		return buf.Bytes(), nil
	case trimmed[0] == '{':
		return trimmed, nil
	}

	compact := strings.Join(strings.Fields(string(trimmed)), "")
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, NewMalformedError("", "file is neither JSON, base64 nor age encrypted")
	}
	return bytes.TrimSpace(decoded), nil
}
