// Package config handles loading and validating the CTI proxy configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with CTIPROXY_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The manager secret and the JWT secret should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/ctiproxy.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.AMIAddress())
package config
