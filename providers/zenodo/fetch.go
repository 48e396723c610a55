package zenodo

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"mdverse-hand/config"
)

var httpClient = &http.Client{Timeout: 10 * time.Minute}

// Fetcher ist eine Struktur, die die Logik zum Abruf der Snapshot-Exporte
// von Zenodo kapselt.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt eine neue Instanz des Zenodo-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "zenodo"
}

// FetchRecord holt die Metadaten des konfigurierten Zenodo-Records.
func (f *Fetcher) FetchRecord() (*RecordResponse, error) {
	recordURL := fmt.Sprintf("%s/records/%s", f.Config.ZenodoBaseURL, f.Config.ZenodoRecordID)
	f.Logger.Info("Rufe Zenodo-Record ab", zap.String("url", recordURL))

	resp, err := httpClient.Get(recordURL)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Abruf des Zenodo-Records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		f.Logger.Error("Zenodo-API hat nicht-200-Status zurückgegeben",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return nil, fmt.Errorf("zenodo record failed: status %d", resp.StatusCode)
	}

	var record RecordResponse
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, fmt.Errorf("fehler beim Parsen der Zenodo-Antwort: %w", err)
	}
	return &record, nil
}

// DownloadSnapshots lädt alle Record-Dateien mit dem konfigurierten Suffix
// ins Snapshot-Verzeichnis und gibt die lokalen Pfade zurück. Bestehende
// Dateien werden überschrieben — der Record ist die Wahrheit.
func (f *Fetcher) DownloadSnapshots() ([]string, error) {
	record, err := f.FetchRecord()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(f.Config.SnapshotDir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot-Verzeichnis nicht anlegbar: %w", err)
	}

	var paths []string
	for _, file := range record.Files {
		if !strings.HasSuffix(file.Key, f.Config.SnapshotSuffix) {
			f.Logger.Debug("Überspringe Record-Datei (Suffix passt nicht)", zap.String("key", file.Key))
			continue
		}

		path := filepath.Join(f.Config.SnapshotDir, file.Key)
		if err := f.downloadFile(file, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	f.Logger.Info("Snapshot-Download abgeschlossen",
		zap.String("record", f.Config.ZenodoRecordID),
		zap.Int("files", len(paths)))
	return paths, nil
}

// downloadFile lädt eine einzelne Record-Datei herunter. Der Download geht
// in eine .part-Datei und wird erst nach Erfolg umbenannt, damit nie eine
// halbe Snapshot-Datei im Verzeichnis liegt.
func (f *Fetcher) downloadFile(file RecordFile, path string) error {
	log := f.Logger.With(zap.String("key", file.Key), zap.Int64("size", file.Size))
	log.Info("Lade Snapshot-Datei herunter.")

	resp, err := httpClient.Get(file.Links.Self)
	if err != nil {
		return fmt.Errorf("download %s: %w", file.Key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s failed: status %d", file.Key, resp.StatusCode)
	}

	partPath := path + ".part"
	out, err := os.Create(partPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(partPath)
		return fmt.Errorf("download %s: %w", file.Key, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(partPath, path)
}
