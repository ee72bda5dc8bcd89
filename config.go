package main

import "github.com/nzlov/roomsync/store"

var DefConfig Config

type Config struct {
	Host        string `json:"host"`
	PprofHost   string `json:"pprof_host" yaml:"pprof_host" mapstructure:"pprof_host"`
	AdminSecret string `json:"adminsecret"`
	DB          string `json:"db"`
	DBLog       bool   `json:"dblog"`
	PublicURL   string `json:"public_url" yaml:"public_url" mapstructure:"public_url"`

	Redis  store.RedisConfig `json:"redis" yaml:"redis" mapstructure:"redis"`
	Client ClientConfig      `json:"client" yaml:"client" mapstructure:"client"`
}

type ClientConfig struct {
	ReadMessageSizeLimit int64 `json:"read_message_size_limit" yaml:"read_message_size_limit" mapstructure:"read_message_size_limit"`
	Compression          bool  `json:"compression" yaml:"compression" mapstructure:"compression"`
	CompressionLevel     int   `json:"compression_level" yaml:"compression_level" mapstructure:"compression_level"`
	ReadBufferSize       int   `json:"read_buffer_size" yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize      int   `json:"write_buffer_size" yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	SendBuffer           int   `json:"send_buffer" yaml:"send_buffer" mapstructure:"send_buffer"`
}

// storeConfig returns the store settings, or false when no database is set.
func (c Config) storeConfig() (store.Config, bool) {
	if c.DB == "" {
		return store.Config{}, false
	}
	return store.Config{
		DB:        c.DB,
		DBLog:     c.DBLog,
		PublicURL: c.PublicURL,
		Redis:     c.Redis,
	}, true
}
