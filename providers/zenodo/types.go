package zenodo

// RecordResponse ist die Antwort der Zenodo Record-API.
type RecordResponse struct {
	ID       int          `json:"id"`
	DOI      string       `json:"doi"`
	Files    []RecordFile `json:"files"`
	Metadata struct {
		Title           string `json:"title"`
		PublicationDate string `json:"publication_date"`
		Version         string `json:"version"`
	} `json:"metadata"`
}

// RecordFile ist ein Datei-Eintrag eines Zenodo-Records.
type RecordFile struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	Links    struct {
		Self string `json:"self"`
	} `json:"links"`
}
