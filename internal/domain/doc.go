// Package domain defines the core business entities of the generation
// engine: generation requests and tasks, credit accounts, and ledger
// entries, together with their validation rules and the task status
// transition graph.
package domain
