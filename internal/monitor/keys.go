package monitor

import "fmt"

// DefaultKeyPrefix namespaces every key written by the worker directory
const DefaultKeyPrefix = "learninghub"

func WorkerKey(prefix, workerID string) string {
	return fmt.Sprintf("%s:worker:%s", prefix, workerID)
}

func WorkerSetKey(prefix string) string {
	return fmt.Sprintf("%s:workers", prefix)
}
