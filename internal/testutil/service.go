package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"cav-go/internal/cav"
	"cav-go/internal/storage"
)

// TestService bundles a Service with the collaborators tests need to reach.
type TestService struct {
	*cav.Service

	Store   *FailingStore
	Memory  *storage.MemoryStore
	Audit   *cav.AuditLog
	Backups *cav.BackupStore
	Clock   *StubClock
	IDGen   *StubIDGenerator
}

// TestServiceConfig tunes NewTestService.
type TestServiceConfig struct {
	// Store replaces the in-memory store. Memory is nil when it is set.
	Store          cav.BucketStore
	AuditCapacity  int
	BackupCapacity int
	Encryptor      cav.Encryptor
	AuditOptions   []cav.AuditLogOption
	ServiceOptions []cav.ServiceOption
}

// NewTestService creates a Service over an in-memory store, or cfg.Store,
// wrapped in a FailingStore, with a fixed clock and sequential IDs. Events
// are bucketed in UTC.
func NewTestService(t *testing.T, cfg TestServiceConfig) *TestService {
	t.Helper()

	var mem *storage.MemoryStore
	inner := cfg.Store
	if inner == nil {
		mem = storage.NewMemoryStore()
		inner = mem
	}
	store := NewFailingStore(inner)
	clock := FixedClock()
	idgen := NewStubIDGenerator()
	logger := cav.NewNopLogger()

	auditOpts := append([]cav.AuditLogOption{cav.WithLocation(time.UTC)}, cfg.AuditOptions...)
	if cfg.AuditCapacity > 0 {
		auditOpts = append(auditOpts, cav.WithCapacity(cfg.AuditCapacity))
	}
	audit := cav.NewAuditLog(store, logger, clock, idgen, auditOpts...)
	backups := cav.NewBackupStore(store, logger, clock, cfg.BackupCapacity)

	svc := cav.NewService(store, audit, backups, cfg.Encryptor, logger, clock, idgen, cfg.ServiceOptions...)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("loading test service: %v", err)
	}

	return &TestService{
		Service: svc,
		Store:   store,
		Memory:  mem,
		Audit:   audit,
		Backups: backups,
		Clock:   clock,
		IDGen:   idgen,
	}
}

// ActorContext returns a context attributing events to the given user.
func ActorContext(userID, userName, role string) context.Context {
	return cav.WithActor(context.Background(), cav.Actor{UserID: userID, UserName: userName, UserRole: role}, "session-"+userID)
}

// CorruptBackup rewrites one bucket of a persisted backup without updating
// its checksum, then reloads the backup list.
func CorruptBackup(t *testing.T, ts *TestService, id, bucket string) {
	t.Helper()
	raw, _ := BucketContents(t, ts.Memory, cav.BackupsBucket)
	var list []map[string]any
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		t.Fatalf("decoding backups: %v", err)
	}
	for _, b := range list {
		if b["id"] == id {
			b["data"].(map[string]any)[bucket] = []any{"tampered"}
		}
	}
	out, err := json.Marshal(list)
	if err != nil {
		t.Fatalf("encoding backups: %v", err)
	}
	SeedBuckets(t, ts.Memory, map[string]string{cav.BackupsBucket: string(out)})
	if err := ts.Backups.Load(context.Background()); err != nil {
		t.Fatalf("reloading backups: %v", err)
	}
}
