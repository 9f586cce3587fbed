package schema

import (
	"fmt"
	"sort"
)

// Severity grades a compatibility issue
type Severity string

const (
	// SeverityBreaking marks changes that invalidate existing graph data
	SeverityBreaking Severity = "breaking"
	// SeverityInfo marks additive changes existing data is unaffected by
	SeverityInfo Severity = "info"
)

// Issue is one observed difference between two schema versions
type Issue struct {
	Severity Severity `json:"severity"`
	Path     string   `json:"path"`
	Detail   string   `json:"detail"`
}

// CompatibilityResult is the outcome of comparing two schema versions.
// Compatible means no breaking issue was found; additive changes are
// still listed as info.
type CompatibilityResult struct {
	Compatible bool    `json:"compatible"`
	Issues     []Issue `json:"issues"`
}

// Check compares an old schema version against a proposed new one.
// Removing an entity type or property, changing a property's kind, newly
// requiring a property, or re-pointing a relation endpoint breaks data
// written under the old version. Additions are compatible.
func Check(old, proposed *Schema) CompatibilityResult {
	result := CompatibilityResult{Compatible: true}
	add := func(severity Severity, path, detail string) {
		if severity == SeverityBreaking {
			result.Compatible = false
		}
		result.Issues = append(result.Issues, Issue{Severity: severity, Path: path, Detail: detail})
	}

	for _, typeName := range sortedKeys(old.EntityTypes) {
		oldType := old.EntityTypes[typeName]
		newType, stillThere := proposed.EntityTypes[typeName]
		path := "entity_types." + typeName
		if !stillThere {
			add(SeverityBreaking, path, "entity type removed")
			continue
		}

		for _, propName := range sortedKeys(oldType.Properties) {
			oldKind := oldType.Properties[propName]
			propPath := path + ".properties." + propName
			newKind, kept := newType.Properties[propName]
			if !kept {
				add(SeverityBreaking, propPath, "property removed")
				continue
			}
			if newKind != oldKind {
				add(SeverityBreaking, propPath,
					fmt.Sprintf("property kind changed from %s to %s", oldKind, newKind))
			}
		}

		oldRequired := stringSet(oldType.Required)
		for _, req := range sortedStrings(newType.Required) {
			if !oldRequired[req] {
				add(SeverityBreaking, path+".required."+req,
					"property newly required; existing entities lack it")
			}
		}

		for _, propName := range sortedKeys(newType.Properties) {
			if _, existed := oldType.Properties[propName]; !existed {
				add(SeverityInfo, path+".properties."+propName, "property added")
			}
		}
	}

	for _, typeName := range sortedKeys(proposed.EntityTypes) {
		if _, existed := old.EntityTypes[typeName]; !existed {
			add(SeverityInfo, "entity_types."+typeName, "entity type added")
		}
	}

	for _, relName := range sortedKeys(old.RelationTypes) {
		oldRel := old.RelationTypes[relName]
		path := "relation_types." + relName
		newRel, stillThere := proposed.RelationTypes[relName]
		if !stillThere {
			add(SeverityBreaking, path, "relation type removed")
			continue
		}
		if newRel.Source != oldRel.Source {
			add(SeverityBreaking, path+".source",
				fmt.Sprintf("relation source changed from %s to %s", oldRel.Source, newRel.Source))
		}
		if newRel.Target != oldRel.Target {
			add(SeverityBreaking, path+".target",
				fmt.Sprintf("relation target changed from %s to %s", oldRel.Target, newRel.Target))
		}
	}

	for _, relName := range sortedKeys(proposed.RelationTypes) {
		if _, existed := old.RelationTypes[relName]; !existed {
			add(SeverityInfo, "relation_types."+relName, "relation type added")
		}
	}

	return result
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

func stringSet(in []string) map[string]bool {
	set := make(map[string]bool, len(in))
	for _, s := range in {
		set[s] = true
	}
	return set
}
