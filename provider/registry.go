package provider

import "github.com/alphadose/haxmap"

var registry = haxmap.New[string, Provider]()

// Register makes a provider available for lookup by its tag. Later
// registrations for the same tag replace earlier ones.
func Register(p Provider) {
	registry.Set(p.Tag(), p)
}

// Get returns the registered provider for a tag.
func Get(tag string) (Provider, bool) {
	return registry.Get(tag)
}

// GetOrRegister returns the provider for a tag, constructing and
// registering it on first use.
func GetOrRegister(tag string, construct func() Provider) Provider {
	p, _ := registry.GetOrCompute(tag, construct)
	return p
}

// Deregister removes a provider. Used by tests to install fakes.
func Deregister(tag string) {
	registry.Del(tag)
}
