package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"mdverse-hand/models"
	"mdverse-hand/snapshot"
)

func writeSnapshotFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

const datasetHeader = "dataset_origin,dataset_id,doi,date_creation,date_last_modified,date_fetched,file_number,download_number,view_number,license,dataset_url,title,author,keywords,description\n"
const fileHeader = "dataset_origin,dataset_id,file_type,file_name,file_size,file_md5,file_url,from_zip_file,origin_zip_file\n"

func TestIngestRunEndToEnd(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	datasets := datasetHeader +
		"zenodo,111,10.1/z.111,2020-01-01,2020-02-01,2023-01-01T00:00:00,2,10,20,CC-BY-4.0,https://zenodo.org/record/111,First dataset,A. Smith,membrane;popc,desc one\n" +
		"zenodo,222,10.1/z.222,2021-03-01,2021-03-02,2023-01-01T00:00:00,1,5,8,CC-BY-4.0,https://zenodo.org/record/222,Second dataset,B. Jones,protein,desc two\n"
	files := fileHeader +
		"zenodo,111,zip,run.zip,2048,md5a,https://zenodo.org/record/111/files/run.zip,False,\n" +
		"zenodo,111,gro,topol.gro,,,,True,run.zip\n" +
		"zenodo,222,gro,solo.gro,512,md5b,https://zenodo.org/record/222/files/solo.gro,False,\n"

	paths := snapshot.Paths{
		Datasets: writeSnapshotFile(t, dir, "datasets.csv", datasets),
		Files:    writeSnapshotFile(t, dir, "files.csv", files),
	}

	service := NewIngestService(db, testLogger())
	report, err := service.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	if report.DatasetsCreated != 2 || report.DatasetsUpdated != 0 || report.DatasetsUnchanged != 0 {
		t.Fatalf("unexpected dataset partition %+v", report)
	}
	if report.FilesCreated != 3 {
		t.Fatalf("expected 3 files created, got %d", report.FilesCreated)
	}
	if report.Warnings != 0 {
		t.Fatalf("expected clean run, got %d warnings", report.Warnings)
	}

	// Parent-Verweis aus demselben Lauf
	var child models.File
	if err := db.Where("name = ?", "topol.gro").First(&child).Error; err != nil {
		t.Fatalf("child file not stored: %v", err)
	}
	if child.ParentZipFileID == nil {
		t.Fatal("expected resolved parent zip")
	}
}

func TestIngestRunIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	datasets := datasetHeader +
		"zenodo,111,10.1/z.111,2020-01-01,2020-02-01,2023-01-01T00:00:00,1,10,20,CC-BY-4.0,https://zenodo.org/record/111,First dataset,A. Smith,membrane,desc\n"
	files := fileHeader +
		"zenodo,111,gro,topol.gro,512,md5a,https://zenodo.org/record/111/files/topol.gro,False,\n"

	paths := snapshot.Paths{
		Datasets: writeSnapshotFile(t, dir, "datasets.csv", datasets),
		Files:    writeSnapshotFile(t, dir, "files.csv", files),
	}

	service := NewIngestService(db, testLogger())
	if _, err := service.Run(context.Background(), paths); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	report, err := service.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if report.DatasetsUnchanged != 1 || report.DatasetsCreated != 0 || report.DatasetsUpdated != 0 {
		t.Fatalf("identical re-run must be unchanged, got %+v", report)
	}
	if report.FilesCreated != 0 || report.FilesDeleted != 0 {
		t.Fatalf("identical re-run must not touch files, got %+v", report)
	}

	var fileCount int64
	db.Model(&models.File{}).Count(&fileCount)
	if fileCount != 1 {
		t.Fatalf("expected stable file count, got %d", fileCount)
	}
}

func TestIngestModifiedDatasetRebuildsFiles(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	datasetsV1 := datasetHeader +
		"zenodo,111,10.1/z.111,2020-01-01,2020-02-01,2023-01-01T00:00:00,2,10,20,CC-BY-4.0,https://zenodo.org/record/111,First dataset,A. Smith,membrane,desc\n"
	filesV1 := fileHeader +
		"zenodo,111,gro,old_a.gro,512,md5a,,False,\n" +
		"zenodo,111,gro,old_b.gro,512,md5b,,False,\n"

	service := NewIngestService(db, testLogger())
	paths := snapshot.Paths{
		Datasets: writeSnapshotFile(t, dir, "datasets_v1.csv", datasetsV1),
		Files:    writeSnapshotFile(t, dir, "files_v1.csv", filesV1),
	}
	if _, err := service.Run(context.Background(), paths); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Neue Crawl-Runde: Titel geändert, Dateiliste komplett anders
	datasetsV2 := datasetHeader +
		"zenodo,111,10.1/z.111,2020-01-01,2020-03-01,2023-06-01T00:00:00,1,99,99,CC-BY-4.0,https://zenodo.org/record/111,Renamed dataset,A. Smith,membrane,desc\n"
	filesV2 := fileHeader +
		"zenodo,111,xtc,traj.xtc,4096,md5c,,False,\n"

	paths = snapshot.Paths{
		Datasets: writeSnapshotFile(t, dir, "datasets_v2.csv", datasetsV2),
		Files:    writeSnapshotFile(t, dir, "files_v2.csv", filesV2),
	}
	report, err := service.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if report.DatasetsUpdated != 1 {
		t.Fatalf("expected modified dataset, got %+v", report)
	}
	if report.FilesDeleted != 2 || report.FilesCreated != 1 {
		t.Fatalf("expected full file rebuild, got deleted=%d created=%d", report.FilesDeleted, report.FilesCreated)
	}

	var names []string
	if err := db.Model(&models.File{}).Pluck("name", &names).Error; err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(names) != 1 || names[0] != "traj.xtc" {
		t.Fatalf("expected only the new file to remain, got %v", names)
	}

	// Datensatz selbst bleibt erhalten (nie tombstonen), nur aktualisiert
	var dataset models.Dataset
	if err := db.First(&dataset).Error; err != nil {
		t.Fatalf("dataset lost: %v", err)
	}
	if dataset.Title != "Renamed dataset" {
		t.Fatalf("expected updated title, got %q", dataset.Title)
	}
}

func TestIngestMissingColumnAbortsBeforeWrite(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	// Pflichtspalte title fehlt
	broken := "dataset_origin,dataset_id,doi,date_creation,date_last_modified,date_fetched,file_number,download_number,view_number,license,dataset_url,author,keywords,description\n" +
		"zenodo,111,,,,,0,0,0,,,A. Smith,,\n"
	files := fileHeader

	paths := snapshot.Paths{
		Datasets: writeSnapshotFile(t, dir, "datasets.csv", broken),
		Files:    writeSnapshotFile(t, dir, "files.csv", files),
	}

	service := NewIngestService(db, testLogger())
	if _, err := service.Run(context.Background(), paths); err == nil {
		t.Fatal("expected contract violation error")
	}

	var count int64
	db.Model(&models.Dataset{}).Count(&count)
	if count != 0 {
		t.Fatalf("contract violation must abort before any write, got %d datasets", count)
	}
}

const topologyHeader = "dataset_origin,dataset_id,file_name,atom_number,has_protein,has_nucleic,has_lipid,has_glucid,has_water_ion\n"

func TestIngestDuplicateDatasetRowBuildsFilesOnce(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	// Derselbe Schlüssel zweimal identisch im Snapshot: der Datensatz bleibt
	// new und seine Dateien werden genau einmal aufgebaut
	datasets := datasetHeader +
		"zenodo,111,10.1/z.111,2020-01-01,2020-02-01,2023-01-01T00:00:00,1,10,20,CC-BY-4.0,https://zenodo.org/record/111,First dataset,A. Smith,membrane,desc\n" +
		"zenodo,111,10.1/z.111,2020-01-01,2020-02-01,2023-01-01T00:00:00,1,10,20,CC-BY-4.0,https://zenodo.org/record/111,First dataset,A. Smith,membrane,desc\n"
	files := fileHeader +
		"zenodo,111,gro,topol.gro,512,md5a,https://zenodo.org/record/111/files/topol.gro,False,\n"

	paths := snapshot.Paths{
		Datasets: writeSnapshotFile(t, dir, "datasets.csv", datasets),
		Files:    writeSnapshotFile(t, dir, "files.csv", files),
	}

	service := NewIngestService(db, testLogger())
	report, err := service.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	if report.DatasetsCreated != 1 || report.DatasetsUnchanged != 0 {
		t.Fatalf("duplicate identical row must not downgrade a created dataset, got %+v", report)
	}
	if report.FilesCreated != 1 || report.FilesDeleted != 0 {
		t.Fatalf("expected exactly one file build, got created=%d deleted=%d", report.FilesCreated, report.FilesDeleted)
	}
	if report.Warnings != 0 {
		t.Fatalf("expected clean run, got %d warnings", report.Warnings)
	}

	var fileCount int64
	db.Model(&models.File{}).Count(&fileCount)
	if fileCount != 1 {
		t.Fatalf("expected 1 file for duplicated dataset row, got %d", fileCount)
	}
}

func TestIngestAbortedRunLeavesNoPartialDataset(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	datasets := datasetHeader +
		"zenodo,111,10.1/z.111,2020-01-01,2020-02-01,2023-01-01T00:00:00,1,10,20,CC-BY-4.0,https://zenodo.org/record/111,First dataset,A. Smith,membrane,desc\n"
	files := fileHeader +
		"zenodo,111,gro,topol.gro,512,md5a,https://zenodo.org/record/111/files/topol.gro,False,\n"
	topologies := topologyHeader +
		"zenodo,111,topol.gro,5000,True,False,True,False,True\n"

	paths := snapshot.Paths{
		Datasets:   writeSnapshotFile(t, dir, "datasets.csv", datasets),
		Files:      writeSnapshotFile(t, dir, "files.csv", files),
		Topologies: writeSnapshotFile(t, dir, "topologies.csv", topologies),
	}

	// Metadaten-Schreibzugriff zum Scheitern bringen: der gesamte Datensatz
	// muss zurückgerollt werden, nicht nur der letzte Schritt
	if err := db.Migrator().DropTable(&models.TopologyFile{}); err != nil {
		t.Fatalf("drop failed: %v", err)
	}

	service := NewIngestService(db, testLogger())
	if _, err := service.Run(context.Background(), paths); err == nil {
		t.Fatal("expected run to fail on metadata write")
	}

	var datasetCount, fileCount int64
	db.Model(&models.Dataset{}).Count(&datasetCount)
	db.Model(&models.File{}).Count(&fileCount)
	if datasetCount != 0 || fileCount != 0 {
		t.Fatalf("aborted dataset must roll back completely, got %d datasets and %d files", datasetCount, fileCount)
	}

	// Wiederholter Lauf nach behobener Störung holt alles nach
	if err := db.AutoMigrate(&models.TopologyFile{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	report, err := service.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("resumed run failed: %v", err)
	}
	if report.DatasetsCreated != 1 || report.Topologies != 1 {
		t.Fatalf("resumed run must rebuild dataset and metadata, got %+v", report)
	}

	var topoCount int64
	db.Model(&models.TopologyFile{}).Count(&topoCount)
	if topoCount != 1 {
		t.Fatalf("expected 1 topology row after resume, got %d", topoCount)
	}
}

func TestIngestUnchangedRunAttachesNothingAndWarnsNothing(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()

	datasets := datasetHeader +
		"zenodo,111,10.1/z.111,2020-01-01,2020-02-01,2023-01-01T00:00:00,1,10,20,CC-BY-4.0,https://zenodo.org/record/111,First dataset,A. Smith,membrane,desc\n"
	files := fileHeader +
		"zenodo,111,gro,topol.gro,512,md5a,https://zenodo.org/record/111/files/topol.gro,False,\n"
	topologies := topologyHeader +
		"zenodo,111,topol.gro,5000,True,False,True,False,True\n"

	paths := snapshot.Paths{
		Datasets:   writeSnapshotFile(t, dir, "datasets.csv", datasets),
		Files:      writeSnapshotFile(t, dir, "files.csv", files),
		Topologies: writeSnapshotFile(t, dir, "topologies.csv", topologies),
	}

	service := NewIngestService(db, testLogger())
	first, err := service.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.Topologies != 1 || first.Warnings != 0 {
		t.Fatalf("unexpected first run %+v", first)
	}

	// Metadaten-Zeilen unveränderter Datensätze sind keine Referenzfehler
	second, err := service.Run(context.Background(), paths)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.DatasetsUnchanged != 1 {
		t.Fatalf("expected unchanged dataset, got %+v", second)
	}
	if second.Topologies != 0 {
		t.Fatalf("unchanged dataset must keep existing metadata, got %d attached", second.Topologies)
	}
	if second.Warnings != 0 {
		t.Fatalf("unchanged re-run must not warn, got %d warnings", second.Warnings)
	}

	var topoCount int64
	db.Model(&models.TopologyFile{}).Count(&topoCount)
	if topoCount != 1 {
		t.Fatalf("expected stable topology count, got %d", topoCount)
	}
}

func TestIngestMissingFileAborts(t *testing.T) {
	db := openTestDB(t)

	service := NewIngestService(db, testLogger())
	paths := snapshot.Paths{
		Datasets: filepath.Join(t.TempDir(), "does_not_exist.csv"),
		Files:    filepath.Join(t.TempDir(), "also_missing.csv"),
	}
	if _, err := service.Run(context.Background(), paths); err == nil {
		t.Fatal("expected error for missing snapshot file")
	}
}
