package deposits

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// checkpoint records the last block scanned for deposits on a network.
type checkpoint struct {
	Network            string `json:"network"`
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// checkpointFile persists the checkpoint as JSON. An empty path keeps it in memory only.
type checkpointFile struct {
	path    string
	network string
	last    uint64
	loaded  bool
}

func newCheckpointFile(path, network string) *checkpointFile {
	return &checkpointFile{path: path, network: network}
}

// Load returns the last processed block and whether one was recorded.
func (c *checkpointFile) Load() (uint64, bool, error) {
	if c.loaded || c.path == "" {
		return c.last, c.loaded, nil
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return 0, false, fmt.Errorf("parse checkpoint: %w", err)
	}
	if cp.Network != "" && cp.Network != c.network {
		return 0, false, fmt.Errorf("checkpoint %s belongs to network %s", c.path, cp.Network)
	}
	c.last, c.loaded = cp.LastProcessedBlock, true
	return c.last, true, nil
}

// Save records lastProcessed. The file is replaced by rename.
func (c *checkpointFile) Save(lastProcessed uint64) error {
	c.last, c.loaded = lastProcessed, true
	if c.path == "" {
		return nil
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	data, err := json.Marshal(checkpoint{
		Network:            c.network,
		LastProcessedBlock: lastProcessed,
		UpdatedAt:          time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
