// Package mcpserver exposes the judge as Model Context Protocol tools.
//
// Three tools are registered on a mark3labs/mcp-go server: run_code,
// submit_solution and list_submissions. Unlike the REST surface there is no
// token; the caller names the user explicitly, so the server is meant for
// operator tooling on a trusted transport.
//
// Usage:
//
//	server := mcpserver.New(cfg, logger, judge, runner.Languages())
//	err := server.ServeStdio(ctx, os.Stdin, os.Stdout) // or server.ServeHTTP()
package mcpserver
