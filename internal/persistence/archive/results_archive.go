package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentsim.ai/internal/persistence/snapshot"
)

type ResultsArchiveMeta struct {
	RunID       string `json:"run_id"`
	Scenario    string `json:"scenario"`
	Agents      int    `json:"agents"`
	Cores       int    `json:"cores"`
	TotalTicks  int    `json:"total_ticks"`
	WarmUpTicks int    `json:"warm_up_ticks"`
	Synced      bool   `json:"synced"`
	Rows        int    `json:"rows"`
	Results     string `json:"results"`
	CreatedAt   string `json:"created_at"`
}

// ArchiveResults copies a written results file into
// `archiveDir/<scenario>/<run id>/` next to a meta.json describing the run.
func ArchiveResults(archiveDir, resultsPath string, res snapshot.ResultsV1) (archivedPath string, err error) {
	if res.Header.RunID == "" {
		return "", fmt.Errorf("archive: results without run id")
	}
	scenario := res.Scenario
	if scenario == "" {
		scenario = "unnamed"
	}
	dir := filepath.Join(archiveDir, safeName(scenario), safeName(res.Header.RunID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	dst := filepath.Join(dir, filepath.Base(resultsPath))
	if err := copyFile(resultsPath, dst); err != nil {
		return "", err
	}

	meta := ResultsArchiveMeta{
		RunID:       res.Header.RunID,
		Scenario:    res.Scenario,
		Agents:      res.Agents,
		Cores:       res.Cores,
		TotalTicks:  res.TotalTicks,
		WarmUpTicks: res.WarmUpTicks,
		Synced:      res.Synced,
		Rows:        res.Header.Rows,
		Results:     filepath.Base(dst),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

// ReadMeta loads the meta.json stored next to an archived results file.
func ReadMeta(archivedPath string) (ResultsArchiveMeta, error) {
	var meta ResultsArchiveMeta
	b, err := os.ReadFile(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(b, &meta)
	return meta, err
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, s)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
