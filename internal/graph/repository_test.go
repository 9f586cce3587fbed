package graph

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	kgaserrors "kgas/pkg/errors"
)

// Integration tests require a running Neo4j instance on the default bolt
// port. Run with -short to skip them.

func TestRepository_UpsertAndGetEntity(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver, "neo4j")
	entity := Entity{
		ID:            uuid.New().String(),
		Name:          "Test Corp",
		CanonicalName: "test corp " + time.Now().Format("20060102150405"),
		Type:          "ORG",
		Confidence:    0.9,
	}
	defer cleanupEntity(ctx, driver, entity.ID)

	if err := repo.UpsertEntity(ctx, entity); err != nil {
		t.Fatalf("UpsertEntity failed: %v", err)
	}

	got, err := repo.GetEntity(ctx, entity.ID)
	if err != nil {
		t.Fatalf("GetEntity failed: %v", err)
	}
	if got.CanonicalName != entity.CanonicalName {
		t.Errorf("Expected canonical name %q, got %q", entity.CanonicalName, got.CanonicalName)
	}
	if got.Type != "ORG" {
		t.Errorf("Expected type ORG, got %q", got.Type)
	}

	// Upsert with lower confidence must not downgrade the stored value
	entity.Confidence = 0.3
	if err := repo.UpsertEntity(ctx, entity); err != nil {
		t.Fatalf("UpsertEntity (second) failed: %v", err)
	}
	got, err = repo.GetEntity(ctx, entity.ID)
	if err != nil {
		t.Fatalf("GetEntity failed: %v", err)
	}
	if got.Confidence < 0.9 {
		t.Errorf("Confidence downgraded to %v", got.Confidence)
	}
}

func TestRepository_GetEntity_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver, "neo4j")
	_, err = repo.GetEntity(ctx, "no-such-entity")
	if err == nil {
		t.Fatal("Expected error for missing entity")
	}
	if _, ok := err.(*kgaserrors.ErrEntityNotFound); !ok {
		t.Errorf("Expected ErrEntityNotFound, got %T", err)
	}
}

func TestRepository_CreateRelationship_MissingEndpoint(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver, "neo4j")
	rel := Relationship{
		ID:       uuid.New().String(),
		SourceID: "missing-a",
		TargetID: "missing-b",
		Type:     "WORKS_FOR",
	}

	if err := repo.CreateRelationship(ctx, rel); err == nil {
		t.Fatal("Expected error creating relationship between missing entities")
	}
}

func TestRepository_SnapshotAndNeighbors(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver, "neo4j")
	suffix := time.Now().Format("20060102150405")

	a := Entity{ID: uuid.New().String(), Name: "A", CanonicalName: "snap a " + suffix, Type: "PERSON", Confidence: 1}
	b := Entity{ID: uuid.New().String(), Name: "B", CanonicalName: "snap b " + suffix, Type: "PERSON", Confidence: 1}
	for _, e := range []Entity{a, b} {
		if err := repo.UpsertEntity(ctx, e); err != nil {
			t.Fatalf("UpsertEntity failed: %v", err)
		}
		defer cleanupEntity(ctx, driver, e.ID)
	}

	rel := Relationship{ID: uuid.New().String(), SourceID: a.ID, TargetID: b.ID, Type: "KNOWS", Confidence: 1}
	if err := repo.CreateRelationship(ctx, rel); err != nil {
		t.Fatalf("CreateRelationship failed: %v", err)
	}

	neighbors, err := repo.GetNeighbors(ctx, a.ID, 1)
	if err != nil {
		t.Fatalf("GetNeighbors failed: %v", err)
	}
	found := false
	for _, n := range neighbors {
		if n.Entity.ID == b.ID && n.Distance == 1 {
			found = true
		}
	}
	if !found {
		t.Error("Expected B among A's neighbors at distance 1")
	}

	snapshot, err := repo.LoadSnapshot(ctx, "")
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if snapshot.NodeCount() < 2 {
		t.Errorf("Expected at least 2 nodes in snapshot, got %d", snapshot.NodeCount())
	}
}

func TestRepository_Tx_RollbackLeavesNothing(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	ctx := context.Background()
	driver, err := createTestDriver()
	if err != nil {
		t.Fatalf("Failed to create driver: %v", err)
	}
	defer driver.Close(ctx)

	repo := NewRepository(driver, "neo4j")
	id := uuid.New().String()

	tx, err := repo.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	err = tx.Run(ctx, `CREATE (e:Entity {id: $id, canonical_name: $id, name: 'tx test', type: 'CONCEPT'})`,
		map[string]interface{}{"id": id})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if _, err := repo.GetEntity(ctx, id); err == nil {
		cleanupEntity(ctx, driver, id)
		t.Fatal("Entity visible after rollback")
	}
}

func createTestDriver() (neo4j.DriverWithContext, error) {
	uri := "bolt://localhost:7687"
	user := "neo4j"
	password := "password"

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, err
	}

	// Verify connection
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}

	return driver, nil
}

func cleanupEntity(ctx context.Context, driver neo4j.DriverWithContext, id string) {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	_, _ = session.Run(ctx, "MATCH (e:Entity {id: $id}) DETACH DELETE e", map[string]interface{}{"id": id})
}
