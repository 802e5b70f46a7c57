package storage

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// snapshotDoc is the on-disk shape of a shard's snapshot blob: a plain
// mapping of key to value, self-describing and UTF-8 safe.
type snapshotDoc struct {
	Data map[string]string `yaml:"data"`
}

// WriteSnapshot replaces path wholesale with kv, encoded as YAML. The write
// goes to a temp file in the same directory and is renamed into place so a
// reader never observes a partially-written snapshot.
func WriteSnapshot(path string, kv map[string]string) error {
	doc := snapshotDoc{Data: kv}
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot blob written by WriteSnapshot. A missing
// file is reported via os.IsNotExist on the returned error; callers should
// treat that as "start empty", not a fatal condition.
func ReadSnapshot(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc snapshotDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if doc.Data == nil {
		doc.Data = make(map[string]string)
	}
	return doc.Data, nil
}
