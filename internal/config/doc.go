// Package config provides configuration loading for the control plane
// daemon: a JSON file with defaults applied for anything omitted, plus an
// environment-variable override for the file path.
package config
