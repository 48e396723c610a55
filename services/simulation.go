package services

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mdverse-hand/models"
	"mdverse-hand/snapshot"
)

// SimulationBuilder hängt die geparsten Simulations-Metadaten (Topologien,
// Parameter, Trajektorien) an die zuvor neu aufgebauten File-Zeilen. Jede
// Metadaten-Zeile adressiert ihre Datei über (Datensatz, Dateiname, Typ);
// null oder mehrere Treffer sind Referenzfehler und werden übersprungen.
type SimulationBuilder struct {
	resolver *Resolver
	logger   *zap.Logger
}

// NewSimulationBuilder erstellt eine neue SimulationBuilder-Instanz.
func NewSimulationBuilder(resolver *Resolver, logger *zap.Logger) *SimulationBuilder {
	return &SimulationBuilder{resolver: resolver, logger: logger}
}

// SimulationBuildStats zählt die Ergebnisse eines Metadaten-Aufbaus.
// Skipped zählt nur echte Referenzfehler (unbekannter Datensatz, null oder
// mehrdeutige Datei-Treffer) — Zeilen unveränderter Datensätze sind kein
// Fehler und tauchen hier nicht auf.
type SimulationBuildStats struct {
	Topologies   int
	Parameters   int
	Trajectories int
	Skipped      int
}

// SimRows sind die Simulations-Metadaten eines einzelnen Datensatzes,
// gruppiert nach Tabelle.
type SimRows struct {
	Topologies   []snapshot.TopologyRow
	Parameters   []snapshot.ParameterRow
	Trajectories []snapshot.TrajectoryRow
}

// Empty meldet, ob der Datensatz überhaupt Metadaten-Zeilen hat.
func (s SimRows) Empty() bool {
	return len(s.Topologies) == 0 && len(s.Parameters) == 0 && len(s.Trajectories) == 0
}

// Rows liefert die Gesamtzahl der Metadaten-Zeilen.
func (s SimRows) Rows() int {
	return len(s.Topologies) + len(s.Parameters) + len(s.Trajectories)
}

// ParameterRefs sind die vorab aufgelösten Lookup-IDs der Parameter-Zeilen
// eines Datensatzes, zeilenparallel zu SimRows.Parameters.
type ParameterRefs struct {
	Integrators []uint
	Thermostats []*uint
	Barostats   []*uint
}

// ResolveLookups löst Integrator, Thermostat und Barostat aller
// Parameter-Zeilen vorab über den Resolver auf. Leerer Integrator wird als
// "undefined" abgelegt; leerer Thermostat oder Barostat bleibt null. Läuft
// vor der Datensatz-Transaktion (siehe Reconciler.Resolve).
func (sb *SimulationBuilder) ResolveLookups(params []snapshot.ParameterRow) (ParameterRefs, error) {
	refs := ParameterRefs{
		Integrators: make([]uint, len(params)),
		Thermostats: make([]*uint, len(params)),
		Barostats:   make([]*uint, len(params)),
	}
	for i, row := range params {
		integratorID, err := sb.resolver.Integrator(row.Integrator)
		if err != nil {
			return refs, err
		}
		refs.Integrators[i] = integratorID

		if row.Thermostat != "" {
			thermostatID, err := sb.resolver.Thermostat(row.Thermostat)
			if err != nil {
				return refs, err
			}
			refs.Thermostats[i] = &thermostatID
		}
		if row.Barostat != "" {
			barostatID, err := sb.resolver.Barostat(row.Barostat)
			if err != nil {
				return refs, err
			}
			refs.Barostats[i] = &barostatID
		}
	}
	return refs, nil
}

// AttachDataset legt die Simulations-Metadaten eines Datensatzes innerhalb
// der übergebenen Transaktion an. refs kommt aus ResolveLookups.
func (sb *SimulationBuilder) AttachDataset(tx *gorm.DB, datasetID uint, key DatasetKey, rows SimRows, refs ParameterRefs, stats *SimulationBuildStats) error {
	for _, row := range rows.Topologies {
		fileID, ok, err := sb.matchFile(tx, datasetID, key, row.Name, "gro")
		if err != nil {
			return err
		}
		if !ok {
			stats.Skipped++
			continue
		}
		topology := models.TopologyFile{
			FileID:      fileID,
			AtomNumber:  row.AtomNumber,
			HasProtein:  row.HasProtein,
			HasNucleic:  row.HasNucleic,
			HasLipid:    row.HasLipid,
			HasGlucid:   row.HasGlucid,
			HasWaterIon: row.HasWaterIon,
		}
		if err := tx.Create(&topology).Error; err != nil {
			return err
		}
		stats.Topologies++
	}

	for i, row := range rows.Parameters {
		fileID, ok, err := sb.matchFile(tx, datasetID, key, row.Name, "mdp")
		if err != nil {
			return err
		}
		if !ok {
			stats.Skipped++
			continue
		}
		parameter := models.ParameterFile{
			FileID:       fileID,
			Dt:           row.Dt,
			Nsteps:       row.Nsteps,
			Temperature:  row.Temperature,
			IntegratorID: refs.Integrators[i],
			ThermostatID: refs.Thermostats[i],
			BarostatID:   refs.Barostats[i],
		}
		if err := tx.Create(&parameter).Error; err != nil {
			return err
		}
		stats.Parameters++
	}

	for _, row := range rows.Trajectories {
		fileID, ok, err := sb.matchFile(tx, datasetID, key, row.Name, "xtc")
		if err != nil {
			return err
		}
		if !ok {
			stats.Skipped++
			continue
		}
		trajectory := models.TrajectoryFile{
			FileID:      fileID,
			AtomNumber:  row.AtomNumber,
			FrameNumber: row.FrameNumber,
		}
		if err := tx.Create(&trajectory).Error; err != nil {
			return err
		}
		stats.Trajectories++
	}

	return nil
}

// matchFile findet die eindeutige Datei zu (Datensatz, Name, Typ). Null
// Treffer und mehrdeutige Treffer werden als nicht verarbeitbar gemeldet
// (ok=false), nicht als Fehler.
func (sb *SimulationBuilder) matchFile(tx *gorm.DB, datasetID uint, key DatasetKey, name, fileType string) (uint, bool, error) {
	var files []models.File
	err := tx.
		Joins("JOIN file_types ON file_types.file_type_id = files.file_type_id").
		Where("files.dataset_id = ? AND files.name = ? AND file_types.name = ?", datasetID, name, fileType).
		Find(&files).Error
	if err != nil {
		return 0, false, err
	}

	switch len(files) {
	case 1:
		return files[0].ID, true, nil
	case 0:
		sb.logger.Warn("Keine Datei zu Metadaten-Zeile gefunden",
			zap.String("data_source", key.DataSource),
			zap.String("id_in_data_source", key.IDInDataSource),
			zap.String("file", name),
			zap.String("type", fileType))
		return 0, false, nil
	default:
		sb.logger.Warn("Mehrdeutiger Dateiname in Metadaten-Zeile",
			zap.String("data_source", key.DataSource),
			zap.String("id_in_data_source", key.IDInDataSource),
			zap.String("file", name),
			zap.String("type", fileType),
			zap.Int("matches", len(files)))
		return 0, false, nil
	}
}
