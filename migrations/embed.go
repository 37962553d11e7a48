// Package migrations embeds the SQL schema migrations for the Postgres
// notebook backend (internal/notebook/postgres) and validates them at
// startup: filename format, up/down pairing, and sequence gaps. Checksum
// digests one file's content; Validate does not compare checksums.
package migrations

import (
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// Embedded is the embedded filesystem containing every *.sql migration
// file, consumed by golang-migrate's source/iofs driver in cmd/migrator.
// internal/config's test helpers read the same files from disk through a
// file:// source instead.
//
//go:embed *.sql
var Embedded embed.FS

// filenameRegex matches 001_name.up.sql / 001_name.down.sql.
var filenameRegex = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// Info describes one parsed migration filename.
type Info struct {
	Sequence  int
	Name      string
	Direction string
	Filename  string
}

// List returns every embedded *.sql file matching the naming convention,
// lexicographically sorted (which also orders down before up within a
// sequence, and sequence before sequence).
func List() ([]string, error) {
	entries, err := fs.ReadDir(Embedded, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations: read embedded dir: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if filepath.Ext(name) == ".sql" && filenameRegex.MatchString(name) {
			files = append(files, name)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Parse extracts the sequence/name/direction from a migration filename.
func Parse(filename string) (Info, error) {
	m := filenameRegex.FindStringSubmatch(filename)
	if len(m) != 4 {
		return Info{}, fmt.Errorf("migrations: invalid filename %q (want 001_name.up.sql)", filename)
	}

	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return Info{}, fmt.Errorf("migrations: invalid sequence in %q: %w", filename, err)
	}

	return Info{Sequence: seq, Name: m[2], Direction: m[3], Filename: filename}, nil
}

// Validate checks filename format, up/down pairing, and sequence
// contiguity (starting at 001, no gaps) across every embedded migration.
func Validate() error {
	files, err := List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("migrations: no embedded migration files found")
	}

	pairs := map[string]map[string]Info{}
	sequences := map[int]bool{}

	for _, f := range files {
		info, err := Parse(f)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%03d_%s", info.Sequence, info.Name)
		if pairs[key] == nil {
			pairs[key] = map[string]Info{}
		}

		pairs[key][info.Direction] = info
		sequences[info.Sequence] = true
	}

	for key, dirs := range pairs {
		if _, ok := dirs["up"]; !ok {
			return fmt.Errorf("migrations: orphaned down migration: missing up for %s", key)
		}

		if _, ok := dirs["down"]; !ok {
			return fmt.Errorf("migrations: orphaned up migration: missing down for %s", key)
		}
	}

	seqs := make([]int, 0, len(sequences))
	for s := range sequences {
		seqs = append(seqs, s)
	}

	sort.Ints(seqs)

	if seqs[0] != 1 {
		return fmt.Errorf("migrations: sequence must start at 001, found %03d", seqs[0])
	}

	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			return fmt.Errorf("migrations: gap in sequence: expected %03d, found %03d", seqs[i-1]+1, seqs[i])
		}
	}

	return nil
}

// Checksum returns the SHA-256 hex digest of filename's content, used by
// callers that want to detect a modified migration at runtime.
func Checksum(filename string) (string, error) {
	content, err := fs.ReadFile(Embedded, filename)
	if err != nil {
		return "", fmt.Errorf("migrations: read %q: %w", filename, err)
	}

	sum := sha256.Sum256(content)

	return fmt.Sprintf("%x", sum), nil
}

// MaxSequence returns the highest migration sequence embedded in this
// binary, used by cmd/migrator's status/version schema-compatibility
// report.
func MaxSequence() int {
	files, err := List()
	if err != nil {
		return 0
	}

	max := 0

	for _, f := range files {
		if info, err := Parse(f); err == nil && info.Sequence > max {
			max = info.Sequence
		}
	}

	return max
}
