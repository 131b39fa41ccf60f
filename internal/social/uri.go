package social

import (
	"fmt"
	"regexp"
	"strings"
)

// ATURI — разобранный at://<repo>/<collection>/<rkey>.
type ATURI struct {
	Repo       string
	Collection string
	RKey       string
}

func (u ATURI) String() string {
	return "at://" + u.Repo + "/" + u.Collection + "/" + u.RKey
}

// ParseATURI разбирает URI записи.
func ParseATURI(s string) (ATURI, error) {
	rest, ok := strings.CutPrefix(s, "at://")
	if !ok {
		return ATURI{}, fmt.Errorf("%w: %q", ErrInvalidURI, s)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ATURI{}, fmt.Errorf("%w: %q", ErrInvalidURI, s)
	}
	return ATURI{Repo: parts[0], Collection: parts[1], RKey: parts[2]}, nil
}

var listURLPattern = regexp.MustCompile(`^https://bsky.app/profile/(did:plc:[a-z0-9]+)/lists/([a-z0-9]+)$`)

// ListATURI переводит ссылку на список bsky.app в at:// URI.
// URI вида at://.../app.bsky.graph.list/... возвращается как есть.
func ListATURI(s string) (string, error) {
	s = strings.TrimSpace(s)
	if m := listURLPattern.FindStringSubmatch(s); m != nil {
		return ATURI{Repo: m[1], Collection: CollectionList, RKey: m[2]}.String(), nil
	}
	if u, err := ParseATURI(s); err == nil && u.Collection == CollectionList {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidListURI, s)
}
