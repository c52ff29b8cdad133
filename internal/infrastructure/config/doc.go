// Package config loads the parser's YAML configuration.
//
// Load reads the file named by ResolvePath, applies DLMSPARSER_<SECTION>_<KEY>
// environment overrides on top, then runs struct-tag validation followed by
// the cross-field checks in Validate. Anything absent from the file keeps
// the value from defaultConfig().
//
// Credentials (MQTT password, InfluxDB token, JWT secret, operator password
// hash) belong in the environment rather than in configs/config.yaml.
//
//	cfg, err := config.Load(config.ResolvePath(flagPath))
//	if err != nil {
//	    return err
//	}
package config
