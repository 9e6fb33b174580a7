package identity

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Account id prefixes.
const (
	TagSID = "sid:"
	TagUID = "uid:"
)

var sidPattern = regexp.MustCompile(`^S-1-\d+(-\d+)+$`)

// AccountResolver produces the per-user identifier: the Windows SID or the
// POSIX uid.
type AccountResolver struct {
	src  Sources
	once sync.Once
	id   string
}

// NewAccountResolver returns a resolver over src.
func NewAccountResolver(src Sources) *AccountResolver {
	return &AccountResolver{src: src.withDefaults()}
}

// Resolve returns the account id. The first result is cached.
func (r *AccountResolver) Resolve() string {
	r.once.Do(func() {
		if strings.HasPrefix(r.src.GOOS, "windows") {
			r.id = r.windows()
		} else {
			r.id = r.posix()
		}
	})
	return r.id
}

func (r *AccountResolver) windows() string {
	out, err := r.src.Run("whoami", "/user")
	if err != nil {
		return TagSID + "unknown"
	}
	if sid := parseWhoami(string(out)); sid != "" {
		return TagSID + sid
	}
	return TagSID + "unknown"
}

// parseWhoami extracts the SID from `whoami /user` output. A line that starts
// with a SID wins; otherwise the last SID-shaped token anywhere is used.
func parseWhoami(out string) string {
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && sidPattern.MatchString(fields[0]) {
			return fields[0]
		}
	}

	var last string
	for _, token := range strings.Fields(out) {
		if sidPattern.MatchString(token) {
			last = token
		}
	}
	return last
}

func (r *AccountResolver) posix() string {
	uid := r.src.Getuid()
	if uid < 0 {
		return TagUID + "unknown"
	}
	return TagUID + strconv.Itoa(uid)
}
