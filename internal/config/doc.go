// Package config defines the packager settings and provides helpers to load,
// validate and save them in YAML format.
//
// Load reads the file through viper so UPDATE_PACKAGER_* environment variables
// override file values; Save always writes plain YAML.
package config
