package publish

import "strings"

// strippedPrefixes are removed from a variable name before normalization,
// in the order tried, see spec §6.
var strippedPrefixes = []string{"ENUM_", "LVAR_", "NASA_", "VAR_", "STR_"}

// Normalize turns a declarative variable name into the camelCase token
// used in topic paths: strip a known prefix, lowercase the first
// underscore-delimited token, title-case the rest, concatenate.
// NASA_OUTDOOR_TW2_TEMP -> outdoorTw2Temp.
func Normalize(name string) string {
	for _, p := range strippedPrefixes {
		if strings.HasPrefix(name, p) {
			name = strings.TrimPrefix(name, p)
			break
		}
	}

	parts := strings.Split(name, "_")
	var b strings.Builder
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(strings.ToLower(p))
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(strings.ToLower(p[1:]))
	}
	return b.String()
}

// StateTopic returns the "<prefix>/entity/<normalized_name>" topic for a
// variable under prefix.
func StateTopic(prefix, name string) string {
	return prefix + "/entity/" + Normalize(name)
}

// DiscoveryStateTopic returns the Home-Assistant-style discovery state
// topic "<discoveryRoot>/<platform>/<deviceID>_<normalized_name>/state".
func DiscoveryStateTopic(discoveryRoot, platform, deviceID, name string) string {
	return discoveryRoot + "/" + platform + "/" + deviceID + "_" + Normalize(name) + "/state"
}

// SetTopic returns the "<prefix>/entity/<raw_name>/set" topic a variable
// is written through.
func SetTopic(prefix, rawName string) string {
	return prefix + "/entity/" + rawName + "/set"
}
