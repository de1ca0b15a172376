package config

// ConfigBackend is persistent storage for non-secret keys. Values are raw
// decoded JSON; keys.go converts them to the key's declared type.
type ConfigBackend interface {
	Lookup(key string) (any, bool)
	Set(key string, val any) error
}
