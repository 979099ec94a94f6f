// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and the environment. Besides the
// CODEJUDGE_-prefixed variables it honours the deployment-level names
// EXECUTION_TIMEOUT (ms), EXECUTION_MEMORY_LIMIT (MB) and
// EXECUTION_CPU_QUOTA.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Sandbox backend: %s\n", cfg.Sandbox.Backend)
package config
