// Holds is the legal and retention hold service.
//
// It manages hold membership for a content repository, runs asynchronous
// bulk add/remove jobs driven by search queries, and keeps a cached count
// of frozen children on every container.
//
// Usage:
//
//	# Start the API server with default configuration
//	holds run
//
//	# Start with a configuration file
//	holds run --config /etc/holds/config.yaml
//
//	# Run a bulk job in-process and follow its progress
//	holds bulk --hold litigation-42 --query 'path:/cases/42/**' --action add
//
//	# Load a repository tree into a sqlite repository
//	holds seed tree.yaml --config /etc/holds/config.yaml
//
//	# Show version information
//	holds version
package main

import "os"

func main() {
	os.Exit(Execute())
}
