// Package config handles loading and validating DVB node configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (DVBNODE_*)
//   - Validation of required fields
//   - Default value handling
//
// The topology itself (space, peers, shards, upgrade steps) is not part of
// this file; topology.config_file points at a separate document loaded by
// the topology package.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Instance.Name)
package config
