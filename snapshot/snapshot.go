// Package snapshot lädt die periodischen Bulk-Exporte (tabellarische
// CSV-Dateien, eine pro Entitätsfamilie) und normalisiert die Rohzeilen in
// die kanonische Form, die die Ingestion-Pipeline erwartet. Die Umbenennung
// der quellspezifischen Spalten und die Normalisierung der Mehrfachwerte
// (Autoren, Schlagwörter) passieren ausschließlich hier — nachgelagerter
// Code sieht nie rohe Spaltennamen oder null-Werte.
package snapshot

// Paths bündelt die Pfade der Snapshot-Dateien eines Ingestion-Laufs.
// Die Simulations-Metadaten-Dateien sind optional (leerer Pfad = nicht
// vorhanden); Datasets und Files sind Pflicht.
type Paths struct {
	Datasets     string
	Files        string
	Topologies   string
	Parameters   string
	Trajectories string
}

// DatasetRow ist eine normalisierte Zeile des Datasets-Snapshots.
type DatasetRow struct {
	DataSource       string
	IDInDataSource   string
	DOI              string
	DateCreated      string
	DateLastModified string
	DateLastCrawled  string
	FileNumber       int
	DownloadNumber   int
	ViewNumber       int
	License          string
	URL              string
	Title            string
	Description      string
	// Autoren und Schlagwörter sind bereits aufgespalten und getrimmt;
	// fehlende Felder werden als leere Slices geliefert, nie als nil-Branch.
	Authors  []string
	Keywords []string
}

// FileRow ist eine normalisierte Zeile des Files-Snapshots.
type FileRow struct {
	DataSource        string
	IDInDataSource    string
	Name              string
	Type              string
	SizeInBytes       *float64
	MD5               string
	URL               string
	IsFromZipFile     bool
	ParentZipFileName string
}

// TopologyRow ist eine normalisierte Zeile des Topologie-Snapshots (.gro).
type TopologyRow struct {
	DataSource     string
	IDInDataSource string
	Name           string
	AtomNumber     int
	HasProtein     bool
	HasNucleic     bool
	HasLipid       bool
	HasGlucid      bool
	HasWaterIon    bool
}

// ParameterRow ist eine normalisierte Zeile des Parameter-Snapshots (.mdp).
type ParameterRow struct {
	DataSource     string
	IDInDataSource string
	Name           string
	Dt             *float64
	Nsteps         *int64
	Temperature    *float64
	Thermostat     string
	Barostat       string
	// Fehlender Integrator wird als "undefined" geführt
	Integrator string
}

// TrajectoryRow ist eine normalisierte Zeile des Trajektorien-Snapshots (.xtc).
type TrajectoryRow struct {
	DataSource     string
	IDInDataSource string
	Name           string
	AtomNumber     int
	FrameNumber    int
}

// Snapshot bündelt alle Tabellen eines Bulk-Exports.
type Snapshot struct {
	Datasets     []DatasetRow
	Files        []FileRow
	Topologies   []TopologyRow
	Parameters   []ParameterRow
	Trajectories []TrajectoryRow
}

// Load lädt alle Snapshot-Dateien. Eine fehlende oder unlesbare
// Pflichtdatei bzw. eine fehlende Pflichtspalte bricht den gesamten Batch
// ab — vor dem ersten Schreibzugriff (Contract Violation, fail fast).
func Load(paths Paths) (*Snapshot, error) {
	snap := &Snapshot{}

	datasets, err := LoadDatasets(paths.Datasets)
	if err != nil {
		return nil, err
	}
	snap.Datasets = datasets

	files, err := LoadFiles(paths.Files)
	if err != nil {
		return nil, err
	}
	snap.Files = files

	if paths.Topologies != "" {
		topologies, err := LoadTopologies(paths.Topologies)
		if err != nil {
			return nil, err
		}
		snap.Topologies = topologies
	}
	if paths.Parameters != "" {
		parameters, err := LoadParameters(paths.Parameters)
		if err != nil {
			return nil, err
		}
		snap.Parameters = parameters
	}
	if paths.Trajectories != "" {
		trajectories, err := LoadTrajectories(paths.Trajectories)
		if err != nil {
			return nil, err
		}
		snap.Trajectories = trajectories
	}

	return snap, nil
}
