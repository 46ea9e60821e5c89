// Package config loads the catalog configuration from environment
// variables into an explicit Config value.
//
// Components receive the Config (or the fields they need) at
// construction; nothing reads the environment after Load returns, so
// there is no process-wide mutable configuration.
package config
