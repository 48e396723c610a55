package services

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"mdverse-hand/models"
	"mdverse-hand/snapshot"
)

// Archivtypen, deren Inhalt in den Snapshots als extrahierte Kinddateien
// auftauchen kann. Nur Dateien dieser Typen kommen als Parent infrage.
var archiveTypes = map[string]bool{
	"zip":    true,
	"tar":    true,
	"gz":     true,
	"tgz":    true,
	"tar.gz": true,
}

// FileBuilder baut die File-Zeilen neuer und modifizierter Datensätze aus
// dem Snapshot neu auf, inklusive Auflösung der Parent-Zip-Verweise.
// Dateien unveränderter Datensätze werden nicht angefasst.
type FileBuilder struct {
	db       *gorm.DB
	resolver *Resolver
	logger   *zap.Logger
}

// NewFileBuilder erstellt eine neue FileBuilder-Instanz.
func NewFileBuilder(db *gorm.DB, resolver *Resolver, logger *zap.Logger) *FileBuilder {
	return &FileBuilder{db: db, resolver: resolver, logger: logger}
}

// FileBuildStats zählt die Ergebnisse eines File-Neuaufbaus.
type FileBuildStats struct {
	Created int
	// Zeilen, die einen unbekannten Datensatz referenzieren
	Skipped int
	// Parent-Zip-Verweise, die nicht aufgelöst werden konnten
	UnresolvedParents int
}

// ResolveTypes löst die Dateitypen aller Zeilen eines Datensatzes vorab über
// den Resolver auf und legt fehlende Typen an. Läuft vor der
// Datensatz-Transaktion (siehe Reconciler.Resolve).
func (fb *FileBuilder) ResolveTypes(rows []snapshot.FileRow) ([]uint, error) {
	typeIDs := make([]uint, len(rows))
	for i, row := range rows {
		typeID, err := fb.resolver.FileType(normalizeFileType(row.Type, row.Name))
		if err != nil {
			return nil, err
		}
		typeIDs[i] = typeID
	}
	return typeIDs, nil
}

// LookupDataset findet die interne ID eines Datensatz-Schlüssels im Store —
// Dateien können zu einem in einem früheren Lauf ingestierten Datensatz
// gehören. 0 = unbekannt.
func (fb *FileBuilder) LookupDataset(ctx context.Context, key DatasetKey) (uint, error) {
	var dataset models.Dataset
	err := fb.db.WithContext(ctx).
		Joins("JOIN data_sources ON data_sources.data_source_id = datasets.data_source_id").
		Where("data_sources.name = ? AND datasets.id_in_data_source = ?", key.DataSource, key.IDInDataSource).
		First(&dataset).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return dataset.ID, nil
}

// BuildDataset legt die Dateien eines Datensatzes innerhalb der übergebenen
// Transaktion an. Top-Level-Dateien zuerst, danach die aus Archiven
// extrahierten — so sind alle Parent-Kandidaten angelegt, bevor das erste
// Kind aufgelöst wird. typeIDs kommt zeilenparallel aus ResolveTypes.
func (fb *FileBuilder) BuildDataset(tx *gorm.DB, datasetID uint, key DatasetKey, rows []snapshot.FileRow, typeIDs []uint, stats *FileBuildStats) error {
	// Parent-Cache je Datensatz: Dateiname -> ID der Archivdatei
	parents := map[string]uint{}

	create := func(i int, row snapshot.FileRow) error {
		file := models.File{
			DatasetID:     datasetID,
			Name:          row.Name,
			FileTypeID:    typeIDs[i],
			SizeInBytes:   row.SizeInBytes,
			MD5:           row.MD5,
			URL:           row.URL,
			IsFromZipFile: row.IsFromZipFile,
		}

		if row.IsFromZipFile && row.ParentZipFileName != "" {
			parentID, err := fb.resolveParent(tx, parents, datasetID, row.ParentZipFileName)
			if err != nil {
				return err
			}
			if parentID == 0 || row.ParentZipFileName == row.Name {
				fb.logger.Warn("Parent-Zip nicht auflösbar",
					zap.String("data_source", key.DataSource),
					zap.String("id_in_data_source", key.IDInDataSource),
					zap.String("file", row.Name),
					zap.String("parent", row.ParentZipFileName))
				stats.UnresolvedParents++
			} else {
				file.ParentZipFileID = &parentID
			}
		}

		if err := tx.Create(&file).Error; err != nil {
			return err
		}
		if archiveTypes[normalizeFileType(row.Type, row.Name)] {
			parents[row.Name] = file.ID
		}
		stats.Created++
		return nil
	}

	for i, row := range rows {
		if row.IsFromZipFile {
			continue
		}
		if err := create(i, row); err != nil {
			return err
		}
	}
	for i, row := range rows {
		if !row.IsFromZipFile {
			continue
		}
		if err := create(i, row); err != nil {
			return err
		}
	}
	return nil
}

// resolveParent löst einen Parent-Zip-Namen über den Lauf-Cache auf, mit
// Store-Fallback für Archive aus einem früheren Lauf. 0 = nicht auflösbar.
func (fb *FileBuilder) resolveParent(tx *gorm.DB, parents map[string]uint, datasetID uint, name string) (uint, error) {
	if id, ok := parents[name]; ok {
		return id, nil
	}

	var parent models.File
	err := tx.Where("dataset_id = ? AND name = ?", datasetID, name).First(&parent).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	parents[name] = parent.ID
	return parent.ID, nil
}

// normalizeFileType normalisiert den Snapshot-Typ; fehlt er, wird die
// Dateiendung genommen, Fallback "none".
func normalizeFileType(fileType, name string) string {
	fileType = strings.ToLower(strings.TrimSpace(fileType))
	if fileType != "" {
		return fileType
	}
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		return strings.ToLower(name[i+1:])
	}
	return "none"
}
