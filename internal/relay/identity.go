package relay

import "strings"

// =======================
// HOST IDENTITY
// =======================

// hostKeyFromSnapshot pulls the canonical host key out of an agent snapshot.
// Precedence: hostId, uniqueHostId, os.hostname, hostname. Empty result
// means the payload carries no identity and must be dropped.
func hostKeyFromSnapshot(payload map[string]any) string {
	if v, ok := payload["hostId"].(string); ok && v != "" {
		return v
	}
	if v, ok := payload["uniqueHostId"].(string); ok && v != "" {
		return v
	}
	if osInfo, ok := payload["os"].(map[string]any); ok {
		if v, ok := osInfo["hostname"].(string); ok && v != "" {
			return v
		}
	}
	if v, ok := payload["hostname"].(string); ok && v != "" {
		return v
	}
	return ""
}

// splitHostKey breaks a composite "hostname@ip" key into its parts.
// ok is true only when both sides are non-empty; a key with a dangling
// "@" is still a usable literal cache key but never feeds the IP index.
func splitHostKey(key string) (name, ip string, ok bool) {
	i := strings.Index(key, "@")
	if i < 0 {
		return "", "", false
	}
	name, ip = key[:i], key[i+1:]
	if name == "" || ip == "" {
		return "", "", false
	}
	return name, ip, true
}
