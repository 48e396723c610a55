package services

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mdverse-hand/models"
)

// Invalidator entfernt für neue und modifizierte Datensätze alle abhängigen
// File-Zeilen samt Simulations-Metadaten. Abhängige Records werden nie
// in-place gepatcht, sondern verworfen und aus dem aktuellen Snapshot neu
// aufgebaut.
type Invalidator struct {
	logger *zap.Logger
}

// NewInvalidator erstellt eine neue Invalidator-Instanz.
func NewInvalidator(logger *zap.Logger) *Invalidator {
	return &Invalidator{logger: logger}
}

// InvalidateOne löscht Simulations-Metadaten und Dateien eines Datensatzes
// innerhalb der übergebenen Transaktion. Die Metadaten-Tabellen werden
// explizit über die file_id-Subquery geräumt, damit das Verhalten nicht von
// aktivierten FK-Kaskaden der Engine abhängt. Liefert die Zahl gelöschter
// File-Zeilen.
func (iv *Invalidator) InvalidateOne(tx *gorm.DB, datasetID uint) (int64, error) {
	fileIDs := tx.Model(&models.File{}).Select("file_id").Where("dataset_id = ?", datasetID)

	if err := tx.Where("file_id IN (?)", fileIDs).Delete(&models.TopologyFile{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("file_id IN (?)", fileIDs).Delete(&models.ParameterFile{}).Error; err != nil {
		return 0, err
	}
	if err := tx.Where("file_id IN (?)", fileIDs).Delete(&models.TrajectoryFile{}).Error; err != nil {
		return 0, err
	}

	result := tx.Where("dataset_id = ?", datasetID).Delete(&models.File{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
