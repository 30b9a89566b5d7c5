// Package gateway is the HTTP front door: an OpenAI-compatible surface that
// resolves model aliases, borrows engine handles from the supervisor, and
// proxies request bodies to the selected llama-server process, streaming
// responses back verbatim.
package gateway
