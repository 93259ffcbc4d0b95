package cav

import "sort"

// EventType identifies the kind of sensitive action an audit event records.
// The vocabulary is closed, but unknown values are still accepted and
// classified with the defaults below.
type EventType string

const (
	// Authentication
	EventLoginSuccess    EventType = "LOGIN_SUCCESS"
	EventLoginFailed     EventType = "LOGIN_FAILED"
	EventLogout          EventType = "LOGOUT"
	EventSessionExpired  EventType = "SESSION_EXPIRED"
	EventPasswordChanged EventType = "PASSWORD_CHANGED"

	// Patient records
	EventPatientCreated EventType = "PATIENT_CREATED"
	EventPatientViewed  EventType = "PATIENT_VIEWED"
	EventPatientUpdated EventType = "PATIENT_UPDATED"
	EventPatientDeleted EventType = "PATIENT_DELETED"
	EventPatientSearch  EventType = "PATIENT_SEARCH"

	// Medical records
	EventMedicalRecordCreated EventType = "MEDICAL_RECORD_CREATED"
	EventMedicalRecordViewed  EventType = "MEDICAL_RECORD_VIEWED"
	EventMedicalRecordUpdated EventType = "MEDICAL_RECORD_UPDATED"
	EventMedicalRecordDeleted EventType = "MEDICAL_RECORD_DELETED"
	EventPrescriptionCreated  EventType = "PRESCRIPTION_CREATED"

	// Administration
	EventUserCreated       EventType = "USER_CREATED"
	EventUserUpdated       EventType = "USER_UPDATED"
	EventUserDeleted       EventType = "USER_DELETED"
	EventRoleChanged       EventType = "ROLE_CHANGED"
	EventPermissionChanged EventType = "PERMISSION_CHANGED"
	EventSettingsChanged   EventType = "SETTINGS_CHANGED"

	// Security
	EventPermissionDenied   EventType = "PERMISSION_DENIED"
	EventUnauthorizedAccess EventType = "UNAUTHORIZED_ACCESS"
	EventSuspiciousActivity EventType = "SUSPICIOUS_ACTIVITY"

	// System
	EventDataExport     EventType = "DATA_EXPORT"
	EventDataImport     EventType = "DATA_IMPORT"
	EventBackupCreated  EventType = "BACKUP_CREATED"
	EventBackupRestored EventType = "BACKUP_RESTORED"
	EventBackupDeleted  EventType = "BACKUP_DELETED"
	EventSystemError    EventType = "SYSTEM_ERROR"

	// Compliance
	EventConsentGranted   EventType = "CONSENT_GRANTED"
	EventConsentRevoked   EventType = "CONSENT_REVOKED"
	EventGDPRRequest      EventType = "GDPR_REQUEST"
	EventAuditLogExported EventType = "AUDIT_LOG_EXPORTED"
	EventAuditLogCleanup  EventType = "AUDIT_LOG_CLEANUP"
)

// Category is a coarse grouping of event types used for filtering and reporting.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryPatientData    Category = "patient_data"
	CategoryMedicalData    Category = "medical_data"
	CategoryAdministration Category = "administration"
	CategorySecurity       Category = "security"
	CategorySystem         Category = "system"
	CategoryCompliance     Category = "compliance"
)

// Severity is the derived criticality tier of an event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	defaultCategory = CategorySystem
	defaultSeverity = SeverityLow
)

var eventCategories = map[EventType]Category{
	EventLoginSuccess:    CategoryAuthentication,
	EventLoginFailed:     CategoryAuthentication,
	EventLogout:          CategoryAuthentication,
	EventSessionExpired:  CategoryAuthentication,
	EventPasswordChanged: CategoryAuthentication,

	EventPatientCreated: CategoryPatientData,
	EventPatientViewed:  CategoryPatientData,
	EventPatientUpdated: CategoryPatientData,
	EventPatientDeleted: CategoryPatientData,
	EventPatientSearch:  CategoryPatientData,

	EventMedicalRecordCreated: CategoryMedicalData,
	EventMedicalRecordViewed:  CategoryMedicalData,
	EventMedicalRecordUpdated: CategoryMedicalData,
	EventMedicalRecordDeleted: CategoryMedicalData,
	EventPrescriptionCreated:  CategoryMedicalData,

	EventUserCreated:       CategoryAdministration,
	EventUserUpdated:       CategoryAdministration,
	EventUserDeleted:       CategoryAdministration,
	EventRoleChanged:       CategoryAdministration,
	EventPermissionChanged: CategoryAdministration,
	EventSettingsChanged:   CategoryAdministration,

	EventPermissionDenied:   CategorySecurity,
	EventUnauthorizedAccess: CategorySecurity,
	EventSuspiciousActivity: CategorySecurity,

	EventDataExport:     CategorySystem,
	EventDataImport:     CategorySystem,
	EventBackupCreated:  CategorySystem,
	EventBackupRestored: CategorySystem,
	EventBackupDeleted:  CategorySystem,
	EventSystemError:    CategorySystem,

	EventConsentGranted:   CategoryCompliance,
	EventConsentRevoked:   CategoryCompliance,
	EventGDPRRequest:      CategoryCompliance,
	EventAuditLogExported: CategoryCompliance,
	EventAuditLogCleanup:  CategoryCompliance,
}

// Types absent from this table are low severity.
var eventSeverities = map[EventType]Severity{
	EventLoginFailed:     SeverityMedium,
	EventPasswordChanged: SeverityMedium,

	EventPatientCreated: SeverityMedium,
	EventPatientUpdated: SeverityMedium,
	EventPatientDeleted: SeverityHigh,

	EventMedicalRecordCreated: SeverityMedium,
	EventMedicalRecordViewed:  SeverityMedium,
	EventMedicalRecordUpdated: SeverityHigh,
	EventMedicalRecordDeleted: SeverityCritical,
	EventPrescriptionCreated:  SeverityMedium,

	EventUserCreated:       SeverityMedium,
	EventUserUpdated:       SeverityMedium,
	EventUserDeleted:       SeverityHigh,
	EventRoleChanged:       SeverityHigh,
	EventPermissionChanged: SeverityHigh,
	EventSettingsChanged:   SeverityMedium,

	EventPermissionDenied:   SeverityHigh,
	EventUnauthorizedAccess: SeverityCritical,
	EventSuspiciousActivity: SeverityCritical,

	EventDataExport:     SeverityHigh,
	EventDataImport:     SeverityHigh,
	EventBackupCreated:  SeverityMedium,
	EventBackupRestored: SeverityCritical,
	EventBackupDeleted:  SeverityHigh,
	EventSystemError:    SeverityHigh,

	EventConsentGranted:   SeverityMedium,
	EventConsentRevoked:   SeverityMedium,
	EventGDPRRequest:      SeverityHigh,
	EventAuditLogExported: SeverityHigh,
	EventAuditLogCleanup:  SeverityHigh,
}

// CategoryOf returns the category for an event type, or "system" if the type
// is not in the vocabulary.
func CategoryOf(t EventType) Category {
	if c, ok := eventCategories[t]; ok {
		return c
	}
	return defaultCategory
}

// SeverityOf returns the severity for an event type, or "low" if the type is
// not in the vocabulary or carries no elevated severity.
func SeverityOf(t EventType) Severity {
	if s, ok := eventSeverities[t]; ok {
		return s
	}
	return defaultSeverity
}

// IsKnown reports whether t belongs to the event vocabulary.
func (t EventType) IsKnown() bool {
	_, ok := eventCategories[t]
	return ok
}

// KnownEventTypes returns the full vocabulary in lexical order.
func KnownEventTypes() []EventType {
	types := make([]EventType, 0, len(eventCategories))
	for t := range eventCategories {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Rank orders severities from 0 (low) to 3 (critical). Unknown values rank as low.
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}
