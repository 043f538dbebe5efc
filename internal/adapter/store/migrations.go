package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"ragqa/config"
	"ragqa/internal/adapter/index"
)

// CurrentSchemaVersion is the current snapshot layout version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

// SchemaInfo stores schema version and configuration hash.
type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltIndex) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)

		v, _, err := getInt(meta, keySchemaVersion)
		if err != nil {
			return err
		}
		info.Version = v

		if hash := meta.Get(keyConfigHash); hash != nil {
			info.ConfigHash = string(hash)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltIndex) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if err := putInt(meta, keySchemaVersion, info.Version); err != nil {
			return err
		}
		return meta.Put(keyConfigHash, []byte(info.ConfigHash))
	})
}

// ComputeConfigHash hashes the configuration that shapes stored vectors.
// A different hash means the index should be rebuilt.
func ComputeConfigHash(cfg *config.Config, dim int) string {
	relevant := struct {
		Dimension    int    `json:"dimension"`
		EmbProvider  string `json:"emb_provider"`
		EmbModel     string `json:"emb_model"`
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap int    `json:"chunk_overlap"`
		Separator    string `json:"separator"`
	}{
		Dimension:    dim,
		EmbProvider:  cfg.Embedding.Provider,
		EmbModel:     cfg.Embedding.Model,
		ChunkSize:    cfg.Index.ChunkSize,
		ChunkOverlap: cfg.Index.ChunkOverlap,
		Separator:    cfg.Index.Separator,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	NeedsRebuild   bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// CheckMigration reports whether the snapshot must be stamped or rebuilt.
func (s *BoltIndex) CheckMigration(cfg *config.Config) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	newHash := ComputeConfigHash(cfg, s.Dimension())
	if info.ConfigHash != "" && info.ConfigHash != newHash {
		result.NeedsRebuild = true
		result.Reason = "index configuration changed"
	}

	return result, nil
}

// Migrate stamps the current schema version and config hash.
func (s *BoltIndex) Migrate(cfg *config.Config) error {
	return s.SetSchemaInfo(&SchemaInfo{
		Version:    CurrentSchemaVersion,
		ConfigHash: ComputeConfigHash(cfg, s.Dimension()),
	})
}

// Clear removes every entry, keeping the dimension and schema info.
func (s *BoltIndex) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := resetBucket(tx, bucketEntries); err != nil {
			return err
		}
		if _, err := resetBucket(tx, bucketIndex); err != nil {
			return err
		}
		return putInt(tx.Bucket(bucketMeta), keyCount, 0)
	})
	if err != nil {
		return fmt.Errorf("clear index: %w", err)
	}

	s.flat = index.NewFlatL2(s.flat.Dim())
	s.entries = nil
	return nil
}

// NeedsRebuild checks if the index needs a full rebuild due to config changes.
func (s *BoltIndex) NeedsRebuild(cfg *config.Config) (bool, string, error) {
	result, err := s.CheckMigration(cfg)
	if err != nil {
		return false, "", err
	}
	return result.NeedsRebuild, result.Reason, nil
}
