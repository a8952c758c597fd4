// Package config handles loading and validating ConsultEase Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (CONSULTEASE_*)
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (broker password, InfluxDB token) should be set via
// environment variables rather than committed to the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.BrokerURL())
package config
