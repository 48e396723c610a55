package snapshot

import (
	"strconv"
	"strings"
)

// Platzhalter, mit denen die Exporte fehlende Werte kodieren.
var missingValues = map[string]bool{
	"":     true,
	"none": true,
	"nan":  true,
	"null": true,
	"na":   true,
	"<na>": true,
}

// cleanValue trimmt einen Rohwert und bildet Fehlwert-Platzhalter auf den
// leeren String ab, damit nachgelagerter Code nie auf null vs. leer
// verzweigen muss.
func cleanValue(s string) string {
	s = strings.TrimSpace(s)
	if missingValues[strings.ToLower(s)] {
		return ""
	}
	return s
}

// SplitAuthors zerlegt einen Mehrfachautoren-String. Manche Quellen trennen
// mit Komma, manche mit Semikolon — beides wird akzeptiert. Einträge werden
// getrimmt, leere Einträge verworfen. Ein fehlendes Autorenfeld (OSF liefert
// teils keins) ergibt eine leere Liste, keinen Fehler.
func SplitAuthors(s string) []string {
	s = strings.ReplaceAll(s, ";", ",")
	authors := []string{}
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		authors = append(authors, name)
	}
	return authors
}

// SplitKeywords zerlegt einen Semikolon-getrennten Schlagwort-String.
// Einträge werden kleingeschrieben, getrimmt und pro Zeile dedupliziert.
func SplitKeywords(s string) []string {
	keywords := []string{}
	seen := map[string]bool{}
	for _, entry := range strings.Split(s, ";") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" || seen[entry] {
			continue
		}
		seen[entry] = true
		keywords = append(keywords, entry)
	}
	return keywords
}

// parseInt liest eine Ganzzahl; Exporte liefern Zähler teils als Float
// ("3.0"), daher der Fallback über ParseFloat. Fehlwert ergibt 0.
func parseInt(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

// parseIntPtr liest eine optionale Ganzzahl; Fehlwert ergibt nil.
func parseIntPtr(s string) *int64 {
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		n := int64(f)
		return &n
	}
	return nil
}

// parseFloatPtr liest eine optionale Gleitkommazahl; Fehlwert ergibt nil.
func parseFloatPtr(s string) *float64 {
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return &f
	}
	return nil
}

// parseBool liest die Bool-Kodierungen der Exporte ("True"/"False", "1"/"0").
func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
