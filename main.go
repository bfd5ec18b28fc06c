// Package main serves as the entry point for the edurecovery service.
// It classifies failures, retries transient ones behind circuit breakers and
// forwards error reports from the education platform's clients and backends.
package main

import "edurecovery/cmd"

func main() {
	cmd.Execute()
}
