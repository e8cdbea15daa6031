// Package config handles loading and validating NetFleet Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with NETFLEET_* environment variables
//   - Validation of every section, reported together
//   - Default value handling
//
// Security Considerations:
//   - Secrets (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/netfleet.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
