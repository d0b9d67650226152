package metrics

import "fmt"

// Tag formats a DataDog "key:value" tag.
func Tag(key, value string) string {
	return fmt.Sprintf("%s:%s", key, value)
}

func ServiceTag(service string) string {
	return Tag("service", service)
}

func LimiterTag(limiter string) string {
	return Tag("limiter", limiter)
}

func OperationTag(op string) string {
	return Tag("operation", op)
}

// StatusTag is "ok" or "error".
func StatusTag(status string) string {
	return Tag("status", status)
}

// LayerTag names the cache layer.
func LayerTag(layer string) string {
	return Tag("layer", layer)
}

func CircuitStateTag(state string) string {
	return Tag("circuit_state", state)
}

func mergeTags(base, tags []string) []string {
	if len(tags) == 0 {
		return base
	}
	if len(base) == 0 {
		return tags
	}
	merged := make([]string, 0, len(base)+len(tags))
	merged = append(merged, base...)
	return append(merged, tags...)
}
