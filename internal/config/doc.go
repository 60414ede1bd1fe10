// Package config provides configuration loading and validation for the EMG bridge.
// Settings are read from an optional YAML file, EMG_* environment variables
// override the file, and mode-dependent defaults fill whatever is still unset.
package config
