package recorder

import (
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Manifest summarizes a session; rewritten when the recorder closes
type Manifest struct {
	SessionID   string            `yaml:"session_id"`
	Participant map[string]string `yaml:"participant"`
	Seed        uint64            `yaml:"seed"`
	Stimuli     string            `yaml:"stimuli,omitempty"`
	StartedAt   time.Time         `yaml:"started_at"`
	FinishedAt  *time.Time        `yaml:"finished_at,omitempty"`
	Trials      int               `yaml:"trials"`
	Completed   int               `yaml:"completed"`
	Aborted     bool              `yaml:"aborted"`
	EventErrors int               `yaml:"event_errors,omitempty"`
}

// WriteManifest replaces path atomically
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return goerr.Wrap(err, "encode manifest")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*.yaml")
	if err != nil {
		return goerr.Wrap(err, "create manifest", goerr.V("path", path))
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return goerr.Wrap(err, "write manifest", goerr.V("path", path))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return goerr.Wrap(err, "close manifest", goerr.V("path", path))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return goerr.Wrap(err, "replace manifest", goerr.V("path", path))
	}
	return nil
}

func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, goerr.Wrap(err, "read manifest", goerr.V("path", path))
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, goerr.Wrap(err, "decode manifest", goerr.V("path", path))
	}
	return m, nil
}
