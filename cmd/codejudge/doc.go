// Package main is the codejudge command.
//
// codejudge runs untrusted submissions inside resource-bounded containers and
// judges them against a problem's test cases. The serve subcommand starts the
// REST API, and optionally the MCP tool server, as a single fx application;
// the remaining subcommands are operator utilities that share the same
// configuration.
package main
