package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ID namespaces. Client-assigned ids and server-assigned ids live in
// disjoint prefixes so independently generated identifiers never collide.
const (
	offlineIDPrefix = "offline_"
	serverIDPrefix  = "server_"
)

// IDOrigin identifies which side assigned a transaction id.
type IDOrigin string

const (
	OriginOffline IDOrigin = "offline"
	OriginServer  IDOrigin = "server"
	OriginUnknown IDOrigin = "unknown"
)

func idToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// NewOfflineID generates an id for a transaction created without remote
// confirmation: offline_<unixTimestamp>_<randomToken>.
func NewOfflineID() string {
	return fmt.Sprintf("%s%d_%s", offlineIDPrefix, time.Now().Unix(), idToken())
}

// NewServerID generates a server-assigned id: server_<unixTimestamp>_<randomToken>.
func NewServerID() string {
	return fmt.Sprintf("%s%d_%s", serverIDPrefix, time.Now().Unix(), idToken())
}

// OriginOf reports the namespace an id belongs to. Used for diagnostics only.
func OriginOf(id string) IDOrigin {
	switch {
	case strings.HasPrefix(id, offlineIDPrefix):
		return OriginOffline
	case strings.HasPrefix(id, serverIDPrefix):
		return OriginServer
	}
	return OriginUnknown
}
