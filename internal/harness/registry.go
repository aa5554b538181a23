package harness

import (
	"fmt"
	"regexp"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	registryMu sync.Mutex
	registry   = orderedmap.New[string, func() Class]()
)

// AddClass registers a class factory under name. It panics on duplicates and
// is meant to be called from init.
func AddClass(name string, factory func() Class) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry.Get(name); exists {
		panic(fmt.Sprintf("harness: class %q registered twice", name))
	}
	registry.Set(name, factory)
}

// Classes instantiates every registered class in registration order.
func Classes() []Class {
	registryMu.Lock()
	defer registryMu.Unlock()
	classes := make([]Class, 0, registry.Len())
	for pair := registry.Oldest(); pair != nil; pair = pair.Next() {
		classes = append(classes, pair.Value())
	}
	return classes
}

// Select returns the registered classes with at least one test whose
// "Class.test" name matches pattern. An empty pattern selects everything.
func Select(pattern string) ([]Class, *regexp.Regexp, error) {
	if pattern == "" {
		return Classes(), nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid test filter %q: %w", pattern, err)
	}
	var selected []Class
	for _, c := range Classes() {
		for _, test := range c.Tests() {
			if re.MatchString(c.Name() + "." + test.Name) {
				selected = append(selected, c)
				break
			}
		}
	}
	return selected, re, nil
}
