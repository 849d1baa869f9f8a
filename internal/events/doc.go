// Package events defines the lifecycle events published at every task
// transition and the publisher implementations that deliver them to
// downstream notification and observability collaborators.
package events
