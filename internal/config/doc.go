// Package config loads the ema-recorder host configuration from YAML.
//
// The file is decoded on top of Default, so every key is optional. Durations
// use Go duration strings ("400ms", "2s").
package config
