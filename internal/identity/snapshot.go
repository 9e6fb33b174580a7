package identity

import (
	"encoding/json"
	"strings"
	"sync"
)

// Snapshot is the identity of the capturing machine and user. Values are
// resolved once and never change.
type Snapshot struct {
	deviceID   string
	accountID  string
	deviceName string
	username   string
	platform   string
}

// Record is the serialisable form of a Snapshot.
type Record struct {
	DeviceID   string `json:"device_id" yaml:"device_id"`
	AccountID  string `json:"account_id" yaml:"account_id"`
	DeviceName string `json:"device_name" yaml:"device_name"`
	Username   string `json:"username" yaml:"username"`
	Platform   string `json:"platform" yaml:"platform"`
}

// NewSnapshot resolves every identity value from src.
func NewSnapshot(src Sources) *Snapshot {
	src = src.withDefaults()
	return &Snapshot{
		deviceID:   NewDeviceResolver(src).Resolve(),
		accountID:  NewAccountResolver(src).Resolve(),
		deviceName: hostname(src),
		username:   loginName(src),
		platform:   src.GOOS,
	}
}

var (
	currentOnce sync.Once
	current     *Snapshot
)

// Current returns the process-wide snapshot, resolving it on first use.
func Current() *Snapshot {
	currentOnce.Do(func() {
		current = NewSnapshot(DefaultSources())
	})
	return current
}

func (s *Snapshot) DeviceID() string   { return s.deviceID }
func (s *Snapshot) AccountID() string  { return s.accountID }
func (s *Snapshot) DeviceName() string { return s.deviceName }
func (s *Snapshot) Username() string   { return s.username }
func (s *Snapshot) Platform() string   { return s.platform }

// Record returns the snapshot values.
func (s *Snapshot) Record() Record {
	return Record{
		DeviceID:   s.deviceID,
		AccountID:  s.accountID,
		DeviceName: s.deviceName,
		Username:   s.username,
		Platform:   s.platform,
	}
}

// Map returns the snapshot keyed by field name.
func (s *Snapshot) Map() map[string]string {
	return map[string]string{
		"device_id":   s.deviceID,
		"account_id":  s.accountID,
		"device_name": s.deviceName,
		"username":    s.username,
		"platform":    s.platform,
	}
}

// JSON returns the snapshot as indented JSON.
func (s *Snapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s.Record(), "", "    ")
}

func hostname(src Sources) string {
	name, err := src.Hostname()
	if err != nil {
		return ""
	}
	return name
}

// loginName follows the usual lookup order: LOGNAME, USER, LNAME, USERNAME,
// then the password database.
func loginName(src Sources) string {
	for _, key := range []string{"LOGNAME", "USER", "LNAME", "USERNAME"} {
		if v := src.Getenv(key); v != "" {
			return v
		}
	}
	u, err := src.CurrentUser()
	if err != nil || u == nil {
		return ""
	}
	// Windows reports DOMAIN\user.
	if i := strings.LastIndex(u.Username, `\`); i != -1 {
		return u.Username[i+1:]
	}
	return u.Username
}
