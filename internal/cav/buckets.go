package cav

import (
	"bytes"
	"sort"
)

// Bucket names of the application data the snapshot collector knows about.
const (
	BucketPatients             = "patients"
	BucketAppointments         = "appointments"
	BucketMedicalRecords       = "medicalRecords"
	BucketConsents             = "consents"
	BucketConsentTemplates     = "consentTemplates"
	BucketUsers                = "users"
	BucketTeams                = "teams"
	BucketDelegations          = "delegations"
	BucketRoles                = "roles"
	BucketSettings             = "settings"
	BucketInvoices             = "invoices"
	BucketQuotes               = "quotes"
	BucketProducts             = "products"
	BucketModuleConfig         = "moduleConfig"
	BucketTranslationOverrides = "translationOverrides"
	BucketAuthIdentity         = "authIdentity"

	// AuditLogBucket holds the audit log itself and doubles as a collectable bucket.
	AuditLogBucket = "auditLogs"

	// BackupsBucket holds the backup list. It is never collected into a backup.
	BackupsBucket = "backups"
)

// registry is the fixed, ordered set of collectable buckets.
var registry = []string{
	BucketPatients,
	BucketAppointments,
	BucketMedicalRecords,
	BucketConsents,
	BucketConsentTemplates,
	BucketUsers,
	BucketTeams,
	BucketDelegations,
	BucketRoles,
	BucketSettings,
	BucketInvoices,
	BucketQuotes,
	BucketProducts,
	BucketModuleConfig,
	BucketTranslationOverrides,
	AuditLogBucket,
	BucketAuthIdentity,
}

// Buckets returns the registry of collectable bucket names.
func Buckets() []string {
	return append([]string(nil), registry...)
}

// IsRegisteredBucket reports whether name is a collectable bucket.
func IsRegisteredBucket(name string) bool {
	for _, b := range registry {
		if b == name {
			return true
		}
	}
	return false
}

// typedBucketSets lists the buckets captured by each non-full backup type.
var typedBucketSets = map[BackupType][]string{
	BackupTypeConfiguration: {BucketSettings, BucketModuleConfig, BucketTranslationOverrides, BucketRoles, BucketConsentTemplates},
	BackupTypeUserData:      {BucketUsers, BucketTeams, BucketDelegations, BucketRoles},
	BackupTypeMedicalData:   {BucketPatients, BucketAppointments, BucketMedicalRecords, BucketConsents},
	BackupTypeAuditLogs:     {AuditLogBucket},
}

// BucketsForType returns the buckets a typed backup captures, or nil for
// full and partial backups.
func BucketsForType(t BackupType) []string {
	set, ok := typedBucketSets[t]
	if !ok {
		return nil
	}
	return append([]string(nil), set...)
}

// isEmptyBucket reports whether serialized bucket contents carry no data.
func isEmptyBucket(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	switch string(trimmed) {
	case "", "null", "[]", "{}", `""`:
		return true
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
