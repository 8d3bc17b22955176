package instance

import "os"

// GetID returns an identifier for this process, used to tell replicas apart in
// logs and lock owners.
func GetID() string {
	for _, key := range []string{"FAMILYHUB_INSTANCE_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
