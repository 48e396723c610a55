package services

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"mdverse-hand/models"
	"mdverse-hand/snapshot"
)

func testFileRows() []snapshot.FileRow {
	size := 1024.0
	return []snapshot.FileRow{
		{
			DataSource:     "zenodo",
			IDInDataSource: "1234567",
			Name:           "run.zip",
			Type:           "zip",
			SizeInBytes:    &size,
			MD5:            "abc123",
			URL:            "https://zenodo.org/record/1234567/files/run.zip",
		},
		{
			DataSource:        "zenodo",
			IDInDataSource:    "1234567",
			Name:              "topol.gro",
			Type:              "gro",
			IsFromZipFile:     true,
			ParentZipFileName: "run.zip",
		},
		{
			DataSource:        "zenodo",
			IDInDataSource:    "1234567",
			Name:              "md.mdp",
			Type:              "mdp",
			IsFromZipFile:     true,
			ParentZipFileName: "run.zip",
		},
	}
}

// buildFiles löst die Typen auf und baut die Dateien eines Datensatzes in
// einer eigenen Transaktion, wie es der Ingest-Lauf tut.
func buildFiles(t *testing.T, db *gorm.DB, fb *FileBuilder, datasetID uint, rows []snapshot.FileRow) *FileBuildStats {
	t.Helper()
	typeIDs, err := fb.ResolveTypes(rows)
	if err != nil {
		t.Fatalf("type resolution failed: %v", err)
	}
	key := DatasetKey{DataSource: rows[0].DataSource, IDInDataSource: rows[0].IDInDataSource}
	stats := &FileBuildStats{}
	err = db.Transaction(func(tx *gorm.DB) error {
		return fb.BuildDataset(tx, datasetID, key, rows, typeIDs, stats)
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	return stats
}

func TestFileBuilderParentResolution(t *testing.T) {
	db := openTestDB(t)
	resolver := NewResolver(db, testLogger())
	result := runReconcile(t, db, NewReconciler(db, resolver, testLogger()), testDatasetRow())

	stats := buildFiles(t, db, NewFileBuilder(db, resolver, testLogger()), result.New[0], testFileRows())
	if stats.Created != 3 {
		t.Fatalf("expected 3 files created, got %d", stats.Created)
	}
	if stats.UnresolvedParents != 0 {
		t.Fatalf("expected all parents resolved, got %d unresolved", stats.UnresolvedParents)
	}

	var parent models.File
	if err := db.Where("name = ?", "run.zip").First(&parent).Error; err != nil {
		t.Fatalf("zip file not stored: %v", err)
	}
	var children []models.File
	if err := db.Where("parent_zip_file_id = ?", parent.ID).Find(&children).Error; err != nil {
		t.Fatalf("child query failed: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children of run.zip, got %d", len(children))
	}
}

func TestFileBuilderUnresolvableParent(t *testing.T) {
	db := openTestDB(t)
	resolver := NewResolver(db, testLogger())
	result := runReconcile(t, db, NewReconciler(db, resolver, testLogger()), testDatasetRow())

	rows := []snapshot.FileRow{
		{
			DataSource:        "zenodo",
			IDInDataSource:    "1234567",
			Name:              "orphan.gro",
			Type:              "gro",
			IsFromZipFile:     true,
			ParentZipFileName: "missing.zip",
		},
	}
	stats := buildFiles(t, db, NewFileBuilder(db, resolver, testLogger()), result.New[0], rows)
	if stats.Created != 1 {
		t.Fatalf("file with unresolvable parent must still be created, got %d", stats.Created)
	}
	if stats.UnresolvedParents != 1 {
		t.Fatalf("expected 1 unresolved parent, got %d", stats.UnresolvedParents)
	}

	var file models.File
	if err := db.Where("name = ?", "orphan.gro").First(&file).Error; err != nil {
		t.Fatalf("file not stored: %v", err)
	}
	if file.ParentZipFileID != nil {
		t.Fatal("unresolvable parent must be stored as null")
	}
}

func TestFileBuilderLookupDataset(t *testing.T) {
	db := openTestDB(t)
	resolver := NewResolver(db, testLogger())
	result := runReconcile(t, db, NewReconciler(db, resolver, testLogger()), testDatasetRow())

	fb := NewFileBuilder(db, resolver, testLogger())

	known := DatasetKey{DataSource: "zenodo", IDInDataSource: "1234567"}
	id, err := fb.LookupDataset(context.Background(), known)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if id != result.New[0] {
		t.Fatalf("expected id %d for known dataset, got %d", result.New[0], id)
	}

	unknown := DatasetKey{DataSource: "zenodo", IDInDataSource: "999"}
	id, err = fb.LookupDataset(context.Background(), unknown)
	if err != nil {
		t.Fatalf("unknown dataset must not be an error: %v", err)
	}
	if id != 0 {
		t.Fatalf("expected 0 for unknown dataset, got %d", id)
	}
}

func TestInvalidatorDeletesFilesAndMetadata(t *testing.T) {
	db := openTestDB(t)
	resolver := NewResolver(db, testLogger())
	result := runReconcile(t, db, NewReconciler(db, resolver, testLogger()), testDatasetRow())
	buildFiles(t, db, NewFileBuilder(db, resolver, testLogger()), result.New[0], testFileRows())

	// Simulations-Metadaten an eine Datei hängen
	var gro models.File
	if err := db.Where("name = ?", "topol.gro").First(&gro).Error; err != nil {
		t.Fatalf("file lookup failed: %v", err)
	}
	if err := db.Create(&models.TopologyFile{FileID: gro.ID, AtomNumber: 5000, HasProtein: true}).Error; err != nil {
		t.Fatalf("metadata create failed: %v", err)
	}

	datasetID := result.New[0]
	var deleted int64
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = NewInvalidator(testLogger()).InvalidateOne(tx, datasetID)
		return err
	})
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted files, got %d", deleted)
	}

	var fileCount, topoCount int64
	db.Model(&models.File{}).Count(&fileCount)
	db.Model(&models.TopologyFile{}).Count(&topoCount)
	if fileCount != 0 || topoCount != 0 {
		t.Fatalf("expected cascade delete, got %d files and %d topologies", fileCount, topoCount)
	}
}

func TestInvalidatorLeavesOtherDatasetsAlone(t *testing.T) {
	db := openTestDB(t)
	resolver := NewResolver(db, testLogger())

	other := testDatasetRow()
	other.IDInDataSource = "7654321"
	result := runReconcile(t, db, NewReconciler(db, resolver, testLogger()), testDatasetRow(), other)

	key := DatasetKey{DataSource: "zenodo", IDInDataSource: "1234567"}
	otherKey := DatasetKey{DataSource: "zenodo", IDInDataSource: "7654321"}

	fb := NewFileBuilder(db, resolver, testLogger())
	buildFiles(t, db, fb, result.IDs[key], testFileRows())
	buildFiles(t, db, fb, result.IDs[otherKey], []snapshot.FileRow{
		{DataSource: "zenodo", IDInDataSource: "7654321", Name: "other.gro", Type: "gro"},
	})

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := NewInvalidator(testLogger()).InvalidateOne(tx, result.IDs[key])
		return err
	})
	if err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	var remaining []models.File
	if err := db.Find(&remaining).Error; err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Name != "other.gro" {
		t.Fatalf("expected only the other dataset's file to survive, got %+v", remaining)
	}
}
