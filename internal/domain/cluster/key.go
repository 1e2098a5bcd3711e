package cluster

import (
	"fmt"
	"strconv"
	"strings"
)

// SummaryKey formats "<level>:<clusterID>".
func SummaryKey(level, clusterID int) string {
	return fmt.Sprintf("%d:%d", level, clusterID)
}

// ParseSummaryKey is the inverse of SummaryKey.
func ParseSummaryKey(key string) (level, clusterID int, err error) {
	l, c, ok := strings.Cut(key, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed summary key %q", key)
	}
	if level, err = strconv.Atoi(l); err != nil {
		return 0, 0, fmt.Errorf("summary key level: %w", err)
	}
	if clusterID, err = strconv.Atoi(c); err != nil {
		return 0, 0, fmt.Errorf("summary key cluster: %w", err)
	}
	return level, clusterID, nil
}
