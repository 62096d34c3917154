package providers

import (
	"sort"
	"sync"
)

type Registry struct {
	mutex     sync.RWMutex
	providers map[string]PixProvider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]PixProvider),
	}
}

func (r *Registry) Register(provider PixProvider) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.providers[provider.Code()] = provider
}

func (r *Registry) Get(code string) (PixProvider, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	provider, ok := r.providers[code]
	return provider, ok
}

// All returns registered providers sorted by code
func (r *Registry) All() []PixProvider {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	list := make([]PixProvider, 0, len(r.providers))
	for _, provider := range r.providers {
		list = append(list, provider)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code() < list[j].Code() })
	return list
}
