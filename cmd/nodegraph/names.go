package main

import (
	"sort"

	"github.com/randalmurphal/nodegraph/pkg/nodegraph"
)

func sortedNames(m map[string]nodegraph.Value) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
