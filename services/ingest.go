package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"mdverse-hand/models"
	"mdverse-hand/snapshot"
)

// Advisory-Lock-Schlüssel für Ingestion-Läufe (beliebige, feste Konstante).
const ingestLockKey = 824919

// ErrIngestRunning wird geliefert, wenn bereits ein Ingestion-Lauf aktiv ist
// (lokal oder in einer anderen Instanz auf derselben Datenbank).
var ErrIngestRunning = errors.New("ingestion läuft bereits")

// Report fasst einen Ingestion-Lauf zusammen.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	DatasetsCreated   int `json:"datasets_created"`
	DatasetsUpdated   int `json:"datasets_updated"`
	DatasetsUnchanged int `json:"datasets_unchanged"`

	FilesCreated int   `json:"files_created"`
	FilesDeleted int64 `json:"files_deleted"`
	FilesSkipped int   `json:"files_skipped"`

	Topologies   int `json:"topology_files_created"`
	Parameters   int `json:"parameter_files_created"`
	Trajectories int `json:"trajectory_files_created"`

	// Summe aller Referenzfehler-Warnungen (unbekannte Datensätze,
	// unauflösbare Parents, mehrdeutige Metadaten-Treffer)
	Warnings int `json:"warnings"`
}

// IngestService orchestriert einen kompletten Ingestion-Lauf: Snapshot
// laden, dann pro Datensatz reconcilen, abhängige Dateien invalidieren und
// neu aufbauen sowie Simulations-Metadaten anhängen — alles in EINER
// Transaktion je Datensatz, damit ein Abbruch nie einen halb aufgebauten
// Datensatz hinterlässt. Läufe sind strikt serialisiert: in-process über den
// Mutex, über Instanzen hinweg per Postgres Advisory Lock.
type IngestService struct {
	db     *gorm.DB
	logger *zap.Logger

	mu sync.Mutex
}

// NewIngestService erstellt eine neue IngestService-Instanz.
func NewIngestService(db *gorm.DB, logger *zap.Logger) *IngestService {
	return &IngestService{db: db, logger: logger}
}

// Run führt einen Ingestion-Lauf über die gegebenen Snapshot-Dateien aus.
// Ein bereits laufender Ingest liefert ErrIngestRunning. Contract Violations
// (fehlende Datei, fehlende Spalte) brechen vor dem ersten Schreibzugriff
// ab; ein Storage-Fehler rollt die Transaktion des aktuellen Datensatzes
// zurück und bricht den Lauf ab, bereits committete Datensätze bleiben
// bestehen und werden beim nächsten Lauf als modified nachgezogen.
func (s *IngestService) Run(ctx context.Context, paths snapshot.Paths) (*Report, error) {
	if !s.mu.TryLock() {
		return nil, ErrIngestRunning
	}
	defer s.mu.Unlock()

	locked, unlock, err := s.acquireDBLock(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	if !locked {
		return nil, ErrIngestRunning
	}
	defer unlock()

	report := &Report{StartedAt: time.Now().UTC()}
	s.logger.Info("Ingestion-Lauf gestartet",
		zap.String("datasets", paths.Datasets),
		zap.String("files", paths.Files))

	snap, err := snapshot.Load(paths)
	if err != nil {
		return nil, err
	}

	resolver := NewResolver(s.db, s.logger)
	reconciler := NewReconciler(s.db, resolver, s.logger)
	invalidator := NewInvalidator(s.logger)
	fileBuilder := NewFileBuilder(s.db, resolver, s.logger)
	simBuilder := NewSimulationBuilder(resolver, s.logger)

	filesByKey, fileOrder := groupFileRows(snap.Files)
	simsByKey, simOrder := groupSimRows(snap)

	result := NewReconcileResult()
	fileStats := &FileBuildStats{}
	simStats := &SimulationBuildStats{}
	rebuilt := map[DatasetKey]bool{}

	for _, row := range snap.Datasets {
		key := DatasetKey{DataSource: row.DataSource, IDInDataSource: row.IDInDataSource}
		fileRows := filesByKey[key]
		simRows := simsByKey[key]

		// Lookups vor der Transaktion auflösen: Resolver-Zugriffe laufen
		// auf der Haupt-Connection und dürfen nicht in die offene
		// Datensatz-Transaktion greifen. Angelegte Lookup-Zeilen überleben
		// einen Rollback als harmlose Waisen.
		refs, err := reconciler.Resolve(row)
		if err != nil {
			return nil, err
		}
		typeIDs, err := fileBuilder.ResolveTypes(fileRows)
		if err != nil {
			return nil, err
		}
		paramRefs, err := simBuilder.ResolveLookups(simRows.Parameters)
		if err != nil {
			return nil, err
		}

		prev, dup := result.Outcomes[key]

		var outcome Outcome
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var id uint
			var err error
			outcome, id, err = reconciler.ReconcileOne(tx, row, refs)
			if err != nil {
				return err
			}

			rebuild := outcome != OutcomeUnchanged
			if dup {
				s.logger.Warn("Doppelter Datensatz-Schlüssel im Snapshot, letzte Zeile gewinnt",
					zap.String("data_source", key.DataSource),
					zap.String("id_in_data_source", key.IDInDataSource))
				// Identische Duplikat-Zeile: das Outcome der ersten Zeile
				// bleibt stehen (insbesondere new), und die bereits in
				// diesem Lauf aufgebauten Dateien werden nicht erneut
				// verworfen und angelegt.
				if rebuilt[key] && outcome == OutcomeUnchanged {
					rebuild = false
				}
				outcome = MergeOutcome(prev, outcome)
				result.RemoveID(id)
			}

			if rebuild {
				deleted, err := invalidator.InvalidateOne(tx, id)
				if err != nil {
					return err
				}
				report.FilesDeleted += deleted

				if err := fileBuilder.BuildDataset(tx, id, key, fileRows, typeIDs, fileStats); err != nil {
					return err
				}
				if err := simBuilder.AttachDataset(tx, id, key, simRows, paramRefs, simStats); err != nil {
					return err
				}
			}

			result.Record(key, outcome, id)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("dataset %s/%s: %w", key.DataSource, key.IDInDataSource, err)
		}
		if outcome != OutcomeUnchanged {
			rebuilt[key] = true
		}
	}

	// Dateizeilen ohne Datensatz-Zeile im Snapshot: der Datensatz kann aus
	// einem früheren Lauf stammen. Bekannte Datensätze werden komplett neu
	// aufgebaut, unbekannte gezählt und übersprungen — ein Referenzfehler in
	// einer Zeile darf den Lauf nicht abbrechen.
	for _, key := range fileOrder {
		if _, ok := result.Outcomes[key]; ok {
			continue
		}
		fileRows := filesByKey[key]

		datasetID, err := fileBuilder.LookupDataset(ctx, key)
		if err != nil {
			return nil, err
		}
		if datasetID == 0 {
			s.logger.Warn("Dateizeilen referenzieren unbekannten Datensatz",
				zap.String("data_source", key.DataSource),
				zap.String("id_in_data_source", key.IDInDataSource),
				zap.Int("rows", len(fileRows)))
			fileStats.Skipped += len(fileRows)
			continue
		}

		simRows := simsByKey[key]
		typeIDs, err := fileBuilder.ResolveTypes(fileRows)
		if err != nil {
			return nil, err
		}
		paramRefs, err := simBuilder.ResolveLookups(simRows.Parameters)
		if err != nil {
			return nil, err
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			deleted, err := invalidator.InvalidateOne(tx, datasetID)
			if err != nil {
				return err
			}
			report.FilesDeleted += deleted

			if err := fileBuilder.BuildDataset(tx, datasetID, key, fileRows, typeIDs, fileStats); err != nil {
				return err
			}
			return simBuilder.AttachDataset(tx, datasetID, key, simRows, paramRefs, simStats)
		})
		if err != nil {
			return nil, fmt.Errorf("dataset %s/%s: %w", key.DataSource, key.IDInDataSource, err)
		}
		rebuilt[key] = true
	}

	// Übrige Metadaten-Zeilen: für unveränderte Datensätze existieren die
	// Zeilen bereits, das ist kein Referenzfehler. Nur Zeilen zu gänzlich
	// unbekannten Datensätzen werden als übersprungen gezählt.
	for _, key := range simOrder {
		if rebuilt[key] {
			continue
		}
		if _, ok := result.Outcomes[key]; ok {
			continue
		}
		simRows := simsByKey[key]
		s.logger.Warn("Metadaten-Zeilen referenzieren unbekannten Datensatz",
			zap.String("data_source", key.DataSource),
			zap.String("id_in_data_source", key.IDInDataSource),
			zap.Int("rows", simRows.Rows()))
		simStats.Skipped += simRows.Rows()
	}

	report.DatasetsCreated = len(result.New)
	report.DatasetsUpdated = len(result.Modified)
	report.DatasetsUnchanged = len(result.Unchanged)
	report.FilesCreated = fileStats.Created
	report.FilesSkipped = fileStats.Skipped
	report.Topologies = simStats.Topologies
	report.Parameters = simStats.Parameters
	report.Trajectories = simStats.Trajectories
	report.Warnings = fileStats.Skipped + fileStats.UnresolvedParents + simStats.Skipped

	report.FinishedAt = time.Now().UTC()
	s.logger.Info("Ingestion-Lauf beendet",
		zap.Int("created", report.DatasetsCreated),
		zap.Int("updated", report.DatasetsUpdated),
		zap.Int("unchanged", report.DatasetsUnchanged),
		zap.Int("files_created", report.FilesCreated),
		zap.Int64("files_deleted", report.FilesDeleted),
		zap.Int("warnings", report.Warnings),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

// groupFileRows gruppiert die Dateizeilen je Datensatz-Schlüssel, in
// Snapshot-Reihenfolge der Schlüssel.
func groupFileRows(rows []snapshot.FileRow) (map[DatasetKey][]snapshot.FileRow, []DatasetKey) {
	grouped := map[DatasetKey][]snapshot.FileRow{}
	order := []DatasetKey{}
	for _, row := range rows {
		key := DatasetKey{DataSource: row.DataSource, IDInDataSource: row.IDInDataSource}
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], row)
	}
	return grouped, order
}

// groupSimRows gruppiert die Simulations-Metadaten je Datensatz-Schlüssel.
func groupSimRows(snap *snapshot.Snapshot) (map[DatasetKey]SimRows, []DatasetKey) {
	grouped := map[DatasetKey]SimRows{}
	order := []DatasetKey{}
	note := func(key DatasetKey) {
		if _, ok := grouped[key]; !ok {
			grouped[key] = SimRows{}
			order = append(order, key)
		}
	}
	for _, row := range snap.Topologies {
		key := DatasetKey{DataSource: row.DataSource, IDInDataSource: row.IDInDataSource}
		note(key)
		rows := grouped[key]
		rows.Topologies = append(rows.Topologies, row)
		grouped[key] = rows
	}
	for _, row := range snap.Parameters {
		key := DatasetKey{DataSource: row.DataSource, IDInDataSource: row.IDInDataSource}
		note(key)
		rows := grouped[key]
		rows.Parameters = append(rows.Parameters, row)
		grouped[key] = rows
	}
	for _, row := range snap.Trajectories {
		key := DatasetKey{DataSource: row.DataSource, IDInDataSource: row.IDInDataSource}
		note(key)
		rows := grouped[key]
		rows.Trajectories = append(rows.Trajectories, row)
		grouped[key] = rows
	}
	return grouped, order
}

// acquireDBLock nimmt den Postgres Advisory Lock für Ingestion-Läufe.
// Auf anderen Engines (sqlite in Tests) gibt es keine Instanz-übergreifende
// Serialisierung — dort reicht der Prozess-Mutex.
func (s *IngestService) acquireDBLock(ctx context.Context) (bool, func(), error) {
	if s.db.Dialector.Name() != "postgres" {
		return true, func() {}, nil
	}

	var locked bool
	err := s.db.WithContext(ctx).Raw("SELECT pg_try_advisory_lock(?)", ingestLockKey).Scan(&locked).Error
	if err != nil {
		return false, nil, err
	}
	if !locked {
		return false, nil, nil
	}

	unlock := func() {
		if err := s.db.Exec("SELECT pg_advisory_unlock(?)", ingestLockKey).Error; err != nil {
			s.logger.Error("Advisory Lock konnte nicht freigegeben werden", zap.Error(err))
		}
	}
	return true, unlock, nil
}

// TableCounts liefert die Zeilenzahl jeder Entitätstabelle, für den
// Status-Report der API.
func (s *IngestService) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := map[string]int64{}
	tables := []struct {
		name  string
		model interface{}
	}{
		{"data_sources", &models.DataSource{}},
		{"datasets", &models.Dataset{}},
		{"authors", &models.Author{}},
		{"keywords", &models.Keyword{}},
		{"file_types", &models.FileType{}},
		{"files", &models.File{}},
		{"topology_files", &models.TopologyFile{}},
		{"parameter_files", &models.ParameterFile{}},
		{"trajectory_files", &models.TrajectoryFile{}},
		{"thermostats", &models.Thermostat{}},
		{"barostats", &models.Barostat{}},
		{"integrators", &models.Integrator{}},
	}
	for _, t := range tables {
		var n int64
		if err := s.db.WithContext(ctx).Model(t.model).Count(&n).Error; err != nil {
			return nil, err
		}
		counts[t.name] = n
	}
	return counts, nil
}
