package config

import (
	"os"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
//	STORE_URL     - module store (badger:///dir, sqlite:///file.db,
//	                xml:///dir?courses=a,b)
//	ASSET_URL     - asset store (memory://, file:///dir, s3://bucket)
//	STRUCTURE_URL - snapshot repository (memory://, sqlite:///file.db,
//	                postgres://...)
//	NAMESPACE     - fixed module store namespace (default: random)
//
// S3 credentials come from the standard AWS environment variables when not
// embedded in ASSET_URL.
func WithEnv(prefix string) Option {
	return func(c *Config) error {
		if v, ok := lookupEnv(prefix, "STORE_URL"); ok && v != "" {
			c.StoreURL = v
		}
		if v, ok := lookupEnv(prefix, "ASSET_URL"); ok && v != "" {
			c.AssetURL = v
		}
		if v, ok := lookupEnv(prefix, "STRUCTURE_URL"); ok && v != "" {
			c.StructureURL = v
		}
		if v, ok := lookupEnv(prefix, "NAMESPACE"); ok && v != "" {
			c.Namespace = v
		}
		return nil
	}
}

// WithStoreURL sets the module store URL programmatically.
func WithStoreURL(storeURL string) Option {
	return func(c *Config) error {
		c.StoreURL = storeURL
		return nil
	}
}

// WithAssetURL sets the asset store URL programmatically.
func WithAssetURL(assetURL string) Option {
	return func(c *Config) error {
		c.AssetURL = assetURL
		return nil
	}
}

// WithStructureURL sets the snapshot repository URL programmatically.
func WithStructureURL(structureURL string) Option {
	return func(c *Config) error {
		c.StructureURL = structureURL
		return nil
	}
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}
