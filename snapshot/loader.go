package snapshot

import (
	"encoding/csv"
	"fmt"
	"os"
)

// Quellspezifische Spaltennamen der Bulk-Exporte. Die Umbenennung auf die
// kanonischen Feldnamen (dataset_id -> id_in_data_source, date_fetched ->
// date_last_crawled usw.) passiert beim Einlesen.
var (
	datasetColumns = []string{
		"dataset_origin", "dataset_id", "doi", "date_creation",
		"date_last_modified", "date_fetched", "file_number",
		"download_number", "view_number", "license", "dataset_url",
		"title", "author", "keywords", "description",
	}
	fileColumns = []string{
		"dataset_origin", "dataset_id", "file_type", "file_name",
		"file_size", "file_md5", "file_url", "from_zip_file",
		"origin_zip_file",
	}
	topologyColumns = []string{
		"dataset_origin", "dataset_id", "file_name", "atom_number",
		"has_protein", "has_nucleic", "has_lipid", "has_glucid",
		"has_water_ion",
	}
	parameterColumns = []string{
		"dataset_origin", "dataset_id", "file_name", "dt", "nsteps",
		"temperature", "thermostat", "barostat", "integrator",
	}
	trajectoryColumns = []string{
		"dataset_origin", "dataset_id", "file_name", "atom_number",
		"frame_number",
	}
)

// record ist eine CSV-Zeile mit Zugriff über den Spaltennamen.
type record struct {
	index  map[string]int
	fields []string
}

func (r record) get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return cleanValue(r.fields[i])
}

// readTable liest eine CSV-Datei und prüft, dass alle erwarteten Spalten
// vorhanden sind. Eine fehlende Spalte ist eine Contract Violation und
// bricht den Batch ab.
func readTable(path string, columns []string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s nicht lesbar: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("snapshot %s nicht parsbar: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("snapshot %s ist leer (keine Header-Zeile)", path)
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[name] = i
	}
	for _, column := range columns {
		if _, ok := index[column]; !ok {
			return nil, fmt.Errorf("snapshot %s: Pflichtspalte %q fehlt", path, column)
		}
	}

	records := make([]record, 0, len(rows)-1)
	for _, fields := range rows[1:] {
		records = append(records, record{index: index, fields: fields})
	}
	return records, nil
}

// LoadDatasets lädt und normalisiert den Datasets-Snapshot.
func LoadDatasets(path string) ([]DatasetRow, error) {
	records, err := readTable(path, datasetColumns)
	if err != nil {
		return nil, err
	}

	rows := make([]DatasetRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, DatasetRow{
			DataSource:       r.get("dataset_origin"),
			IDInDataSource:   r.get("dataset_id"),
			DOI:              r.get("doi"),
			DateCreated:      r.get("date_creation"),
			DateLastModified: r.get("date_last_modified"),
			DateLastCrawled:  r.get("date_fetched"),
			FileNumber:       parseInt(r.get("file_number")),
			DownloadNumber:   parseInt(r.get("download_number")),
			ViewNumber:       parseInt(r.get("view_number")),
			License:          r.get("license"),
			URL:              r.get("dataset_url"),
			Title:            r.get("title"),
			Description:      r.get("description"),
			Authors:          SplitAuthors(r.get("author")),
			Keywords:         SplitKeywords(r.get("keywords")),
		})
	}
	return rows, nil
}

// LoadFiles lädt und normalisiert den Files-Snapshot.
func LoadFiles(path string) ([]FileRow, error) {
	records, err := readTable(path, fileColumns)
	if err != nil {
		return nil, err
	}

	rows := make([]FileRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, FileRow{
			DataSource:        r.get("dataset_origin"),
			IDInDataSource:    r.get("dataset_id"),
			Name:              r.get("file_name"),
			Type:              r.get("file_type"),
			SizeInBytes:       parseFloatPtr(r.get("file_size")),
			MD5:               r.get("file_md5"),
			URL:               r.get("file_url"),
			IsFromZipFile:     parseBool(r.get("from_zip_file")),
			ParentZipFileName: r.get("origin_zip_file"),
		})
	}
	return rows, nil
}

// LoadTopologies lädt und normalisiert den Topologie-Snapshot.
func LoadTopologies(path string) ([]TopologyRow, error) {
	records, err := readTable(path, topologyColumns)
	if err != nil {
		return nil, err
	}

	rows := make([]TopologyRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, TopologyRow{
			DataSource:     r.get("dataset_origin"),
			IDInDataSource: r.get("dataset_id"),
			Name:           r.get("file_name"),
			AtomNumber:     parseInt(r.get("atom_number")),
			HasProtein:     parseBool(r.get("has_protein")),
			HasNucleic:     parseBool(r.get("has_nucleic")),
			HasLipid:       parseBool(r.get("has_lipid")),
			HasGlucid:      parseBool(r.get("has_glucid")),
			HasWaterIon:    parseBool(r.get("has_water_ion")),
		})
	}
	return rows, nil
}

// LoadParameters lädt und normalisiert den Parameter-Snapshot.
func LoadParameters(path string) ([]ParameterRow, error) {
	records, err := readTable(path, parameterColumns)
	if err != nil {
		return nil, err
	}

	rows := make([]ParameterRow, 0, len(records))
	for _, r := range records {
		integrator := r.get("integrator")
		if integrator == "" {
			integrator = "undefined"
		}
		rows = append(rows, ParameterRow{
			DataSource:     r.get("dataset_origin"),
			IDInDataSource: r.get("dataset_id"),
			Name:           r.get("file_name"),
			Dt:             parseFloatPtr(r.get("dt")),
			Nsteps:         parseIntPtr(r.get("nsteps")),
			Temperature:    parseFloatPtr(r.get("temperature")),
			Thermostat:     r.get("thermostat"),
			Barostat:       r.get("barostat"),
			Integrator:     integrator,
		})
	}
	return rows, nil
}

// LoadTrajectories lädt und normalisiert den Trajektorien-Snapshot.
func LoadTrajectories(path string) ([]TrajectoryRow, error) {
	records, err := readTable(path, trajectoryColumns)
	if err != nil {
		return nil, err
	}

	rows := make([]TrajectoryRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, TrajectoryRow{
			DataSource:     r.get("dataset_origin"),
			IDInDataSource: r.get("dataset_id"),
			Name:           r.get("file_name"),
			AtomNumber:     parseInt(r.get("atom_number")),
			FrameNumber:    parseInt(r.get("frame_number")),
		})
	}
	return rows, nil
}
