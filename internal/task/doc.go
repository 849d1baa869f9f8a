// Package task drives processing tasks to completion: the polling
// supervisor that turns the compute adapter's asynchronous completion
// into a lifecycle transition, and the dispatcher that pulls pending
// tasks, starts them, and reconciles abandoned ones.
package task
