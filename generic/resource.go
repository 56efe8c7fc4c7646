/*
resource.go - Resource type registration and lookup

PURPOSE:
  Lets domain packages register their resource types so that strings read
  back from storage or JSON can be turned into the concrete type again.

USAGE:
  // In leave/category.go (init, and again in NewRegistry for catalog entries)
  func init() {
      for _, p := range DefaultPolicies() {
          generic.RegisterResource(p.Category)
      }
  }

  // In store/sqlite
  resource := generic.GetOrCreateResource("vacation") // returns leave.Vacation

SEE ALSO:
  - types.go: ResourceType interface definition
  - leave/category.go: Leave category implementation
*/
package generic

import "sync"

var (
	resourceRegistry = make(map[string]ResourceType)
	registryMu       sync.RWMutex
)

// RegisterResource adds a resource type to the global registry.
func RegisterResource(r ResourceType) {
	registryMu.Lock()
	defer registryMu.Unlock()
	resourceRegistry[r.ResourceID()] = r
}

// LookupResource finds a registered resource type by ID.
// Returns nil if not found.
func LookupResource(id string) ResourceType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return resourceRegistry[id]
}

// StringResource stands in for an ID whose domain type isn't registered.
type StringResource struct {
	ID     string
	Domain string
}

func (r StringResource) ResourceID() string     { return r.ID }
func (r StringResource) ResourceDomain() string { return r.Domain }

// GetOrCreateResource looks up a resource type, or creates a StringResource fallback.
func GetOrCreateResource(id string) ResourceType {
	if r := LookupResource(id); r != nil {
		return r
	}
	return StringResource{ID: id, Domain: "unknown"}
}
