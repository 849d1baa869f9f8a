// Package genai implements the generation.ComputeAdapter contract on top
// of Google's Gemini API. Submitted jobs run as tracked background
// generations inside this process; status checks and result fetches read
// the in-memory job table, which stands in for the remote job API of a
// dedicated compute service.
package genai
