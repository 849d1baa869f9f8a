// Package service implements the task lifecycle manager: the state
// machine that accepts paid generation requests, reserves credits,
// submits work to an external compute adapter, and guarantees that
// money is never kept for work that did not happen.
package service
