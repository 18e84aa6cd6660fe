package casaMqtt

import "strings"

func StateTopic(prefix string, key string) string {
	return prefix + "/" + key + "/state"
}

func AttributesTopic(prefix string, key string) string {
	return prefix + "/" + key + "/attributes"
}

func SetTopic(prefix string, key string) string {
	return prefix + "/" + key + "/set"
}

// SetWildcard matches the set topic of every entity.
func SetWildcard(prefix string) string {
	return prefix + "/+/set"
}

func StatusTopic(prefix string) string {
	return prefix + "/status"
}

// KeyFromSetTopic extracts the entity key from <prefix>/<key>/set.
func KeyFromSetTopic(prefix string, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	key, ok := strings.CutSuffix(rest, "/set")
	if !ok || key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}
