// Tokenguard meters a paid per-token chat upstream, enforces a global spend
// ceiling and per-principal token quotas, and serves anonymous trial access.
//
// Usage:
//
//	# Start the HTTP server (config/<ENV>.yaml)
//	tokenguard serve
//
//	# Print per-day spend from the audit log
//	tokenguard audit --days 14
//
//	# Show the rates in effect at a moment
//	tokenguard pricing --at 2026-06-01T17:00:00Z
package main

func main() {
	Execute()
}
