package domain

import "strings"

// Platform identifies a supported social network.
type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformTwitter  Platform = "twitter"
)

// ParsePlatform normalizes a platform name from user input.
func ParsePlatform(name string) (Platform, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "linkedin":
		return PlatformLinkedIn, true
	case "twitter", "x":
		return PlatformTwitter, true
	default:
		return "", false
	}
}

func (p Platform) String() string {
	return string(p)
}
