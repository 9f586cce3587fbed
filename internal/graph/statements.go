package graph

import "time"

// Statement builders shared by the repository methods and the distributed
// transaction path, so both apply identical Cypher.

// UpsertEntityStatement returns the MERGE for an entity keyed by canonical
// name. Re-upserting refreshes name/type and keeps the highest confidence.
func UpsertEntityStatement(e Entity) (string, map[string]interface{}) {
	query := `
		MERGE (e:Entity {canonical_name: $canonical})
		ON CREATE SET e.id = $id,
		              e.created_at = datetime($now),
		              e.confidence = $confidence
		SET e.name = $name,
		    e.type = $type,
		    e.confidence = CASE WHEN e.confidence < $confidence THEN $confidence ELSE e.confidence END,
		    e.updated_at = datetime($now)
		SET e += $props
		RETURN e.id as id
	`
	return query, map[string]interface{}{
		"id":         e.ID,
		"canonical":  e.CanonicalName,
		"name":       e.Name,
		"type":       e.Type,
		"confidence": e.Confidence,
		"now":        time.Now().UTC().Format(time.RFC3339),
		"props":      propsToMap(e.Properties),
	}
}

// CreateRelationshipStatement returns the MERGE linking two existing
// entities. Both endpoints must already exist; nothing is materialized
// for a missing one, the MATCH just comes back empty.
func CreateRelationshipStatement(rel Relationship) (string, map[string]interface{}) {
	query := `
		MATCH (s:Entity {id: $source_id})
		MATCH (t:Entity {id: $target_id})
		MERGE (s)-[rel:RELATES {type: $type}]->(t)
		ON CREATE SET rel.id = $id,
		              rel.created_at = datetime($now),
		              rel.confidence = $confidence
		SET rel.confidence = CASE WHEN rel.confidence < $confidence THEN $confidence ELSE rel.confidence END
		SET rel += $props
		RETURN rel.id as id
	`
	return query, map[string]interface{}{
		"id":         rel.ID,
		"source_id":  rel.SourceID,
		"target_id":  rel.TargetID,
		"type":       rel.Type,
		"confidence": rel.Confidence,
		"now":        time.Now().UTC().Format(time.RFC3339),
		"props":      propsToMap(rel.Properties),
	}
}
