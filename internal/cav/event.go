package cav

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// genesisHash anchors the hash chain of an empty log.
const genesisHash = "GENESIS"

// Actor identifies the principal performing an audited action.
type Actor struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	UserRole string `json:"userRole"`
}

// AnonymousActor is recorded when no identity is available.
var AnonymousActor = Actor{UserID: "anonymous", UserName: "Anonymous", UserRole: "none"}

// IsZero reports whether no identity field is set.
func (a Actor) IsZero() bool {
	return a.UserID == "" && a.UserName == "" && a.UserRole == ""
}

// EventContext carries diagnostic descriptors of the environment an event
// originated from. It is never used for business logic.
type EventContext struct {
	Locale    string `json:"locale,omitempty"`
	URL       string `json:"url,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Viewport  string `json:"viewport,omitempty"`
}

// AuditEvent is an immutable record of one sensitive action.
// Category and Severity are always derived from EventType on append.
type AuditEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"eventType"`
	Category  Category       `json:"category"`
	Severity  Severity       `json:"severity"`
	Actor     Actor          `json:"user"`
	SessionID string         `json:"sessionId"`
	Details   map[string]any `json:"details,omitempty"`
	Context   EventContext   `json:"context"`
	PrevHash  string         `json:"prevHash,omitempty"`
	Hash      string         `json:"hash,omitempty"`
}

// clone returns a copy whose Details map is not shared with e.
func (e AuditEvent) clone() AuditEvent {
	e.Details = cloneDetails(e.Details)
	return e
}

func cloneDetails(d map[string]any) map[string]any {
	if d == nil {
		return nil
	}
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneDetails(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// DetailString returns details[key] as a string, or "" if it is absent or
// not a scalar.
func (e AuditEvent) DetailString(key string) string {
	v, ok := e.Details[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case map[string]any, []any:
		return ""
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// searchText is the derived string free-text search matches against.
func (e AuditEvent) searchText() string {
	var sb strings.Builder
	sb.WriteString(string(e.EventType))
	sb.WriteByte(' ')
	sb.WriteString(e.Actor.UserName)
	sb.WriteByte(' ')
	if len(e.Details) > 0 {
		if b, err := json.Marshal(e.Details); err == nil {
			sb.Write(b)
		}
	}
	return strings.ToLower(sb.String())
}

// computeEventHash links e to its predecessor. Details are encoded with sorted
// keys, so the digest survives a persistence round trip.
func computeEventHash(prev string, e AuditEvent) string {
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write([]byte("|" + e.ID))
	h.Write([]byte("|" + e.Timestamp.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte("|" + string(e.EventType) + "|" + string(e.Category) + "|" + string(e.Severity)))
	h.Write([]byte("|" + e.Actor.UserID + "|" + e.Actor.UserName + "|" + e.Actor.UserRole))
	h.Write([]byte("|" + e.SessionID + "|"))
	if len(e.Details) > 0 {
		if b, err := json.Marshal(e.Details); err == nil {
			h.Write(b)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

type actorKey struct{}

type actorInfo struct {
	actor     Actor
	sessionID string
	evctx     EventContext
}

// WithActor returns a context carrying the identity and session that audit
// events appended under it are attributed to.
func WithActor(ctx context.Context, actor Actor, sessionID string) context.Context {
	info := actorFrom(ctx)
	info.actor = actor
	info.sessionID = sessionID
	return context.WithValue(ctx, actorKey{}, info)
}

// WithEventContext returns a context carrying environment descriptors for
// events appended under it.
func WithEventContext(ctx context.Context, evctx EventContext) context.Context {
	info := actorFrom(ctx)
	info.evctx = evctx
	return context.WithValue(ctx, actorKey{}, info)
}

// ActorFromContext returns the actor and session attached by WithActor.
func ActorFromContext(ctx context.Context) (Actor, string) {
	info := actorFrom(ctx)
	return info.actor, info.sessionID
}

func actorFrom(ctx context.Context) actorInfo {
	if ctx == nil {
		return actorInfo{}
	}
	info, _ := ctx.Value(actorKey{}).(actorInfo)
	return info
}

// mergeDetails returns a new map holding base overlaid with extra.
func mergeDetails(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}
