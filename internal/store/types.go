package store

import (
	"time"

	"keytrace/internal/identity"
)

// Session is one capture run and the identity it was recorded under.
type Session struct {
	SessionID  string
	DeviceID   string
	AccountID  string
	DeviceName string
	Username   string
	Platform   string
	StartedNs  int64
	EndedNs    *int64 // nil while the session is open
	EventCount int64
}

// NewSession builds a Session row from an identity record.
func NewSession(sessionID string, id identity.Record, started time.Time) Session {
	return Session{
		SessionID:  sessionID,
		DeviceID:   id.DeviceID,
		AccountID:  id.AccountID,
		DeviceName: id.DeviceName,
		Username:   id.Username,
		Platform:   id.Platform,
		StartedNs:  started.UnixNano(),
	}
}

// Identity returns the identity the session was recorded under.
func (s Session) Identity() identity.Record {
	return identity.Record{
		DeviceID:   s.DeviceID,
		AccountID:  s.AccountID,
		DeviceName: s.DeviceName,
		Username:   s.Username,
		Platform:   s.Platform,
	}
}

// Open reports whether the session has not been ended.
func (s Session) Open() bool {
	return s.EndedNs == nil
}
