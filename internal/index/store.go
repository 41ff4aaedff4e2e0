package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/retriever/internal/domain"
)

// Artifact names under the store directory.
const (
	currentFile    = "CURRENT"
	generationsDir = "generations"
	checkpointsDir = "checkpoints"
	vectorsFile    = "vectors.bin"
	metadataFile   = "metadata.json"
	tmpPrefix      = ".tmp-"
)

// Store persists index generations. Each generation is a directory holding
// the vectors and the chunk metadata; the CURRENT file names the live one
// and is replaced atomically, so readers never observe a half-written pair.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

// Current returns the live build ID. A store without a committed generation
// returns domain.ErrIndexNotLoaded.
func (s *Store) Current() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("no committed index in %s: %w", s.dir, domain.ErrIndexNotLoaded)
		}
		return "", fmt.Errorf("read %s: %w", currentFile, err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", fmt.Errorf("empty %s: %w", currentFile, domain.ErrCorruptIndex)
	}
	return id, nil
}

// Load reads the live generation.
func (s *Store) Load() (*Index, error) {
	id, err := s.Current()
	if err != nil {
		return nil, err
	}
	return s.LoadGeneration(id)
}

// LoadGeneration reads one generation and checks that its two artifacts agree.
func (s *Store) LoadGeneration(buildID string) (*Index, error) {
	genDir := s.generationPath(buildID)

	f, err := os.Open(filepath.Join(genDir, vectorsFile))
	if err != nil {
		return nil, artifactErr(buildID, vectorsFile, err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", vectorsFile, err)
	}
	dim, count, vectors, err := readVectors(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("generation %s: %w", buildID, err)
	}

	raw, err := os.ReadFile(filepath.Join(genDir, metadataFile))
	if err != nil {
		return nil, artifactErr(buildID, metadataFile, err)
	}
	var chunks []domain.Chunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return nil, fmt.Errorf("generation %s: decode %s: %v: %w", buildID, metadataFile, err, domain.ErrCorruptIndex)
	}

	if len(chunks) != count {
		return nil, fmt.Errorf("generation %s: %d vectors but %d metadata records: %w",
			buildID, count, len(chunks), domain.ErrCorruptIndex)
	}

	return &Index{buildID: buildID, dim: dim, vectors: vectors, chunks: chunks}, nil
}

// Commit writes idx as a new generation and makes it live. The previous live
// generation stays on disk; older ones are pruned.
func (s *Store) Commit(idx *Index) error {
	if idx.BuildID() == "" {
		return errors.New("commit: empty build id")
	}
	if err := os.MkdirAll(filepath.Join(s.dir, generationsDir), 0o755); err != nil {
		return fmt.Errorf("create generations dir: %w", err)
	}

	previous, err := s.Current()
	if err != nil && !errors.Is(err, domain.ErrIndexNotLoaded) && !errors.Is(err, domain.ErrCorruptIndex) {
		return err
	}

	// A committed generation is never rewritten; it may be the one being served.
	genDir := s.generationPath(idx.BuildID())
	if _, err := os.Stat(genDir); err == nil || idx.BuildID() == previous {
		return fmt.Errorf("commit %s: %w", idx.BuildID(), domain.ErrGenerationExists)
	}

	tmpDir, err := os.MkdirTemp(filepath.Join(s.dir, generationsDir), tmpPrefix+idx.BuildID()+"-")
	if err != nil {
		return fmt.Errorf("create generation dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	var vbuf bytes.Buffer
	if err := writeVectors(&vbuf, idx.dim, idx.vectors); err != nil {
		return err
	}
	if err := writeFileSync(filepath.Join(tmpDir, vectorsFile), vbuf.Bytes()); err != nil {
		return err
	}

	meta, err := json.Marshal(idx.chunks)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := writeFileSync(filepath.Join(tmpDir, metadataFile), meta); err != nil {
		return err
	}

	if err := os.Rename(tmpDir, genDir); err != nil {
		return fmt.Errorf("publish generation: %w", err)
	}

	if err := writeAtomic(filepath.Join(s.dir, currentFile), []byte(idx.BuildID()+"\n")); err != nil {
		return fmt.Errorf("switch %s: %w", currentFile, err)
	}

	s.logger.Info("Index generation committed",
		zap.String("build_id", idx.BuildID()),
		zap.String("previous", previous),
		zap.Int("chunks", idx.Len()),
		zap.Int("dim", idx.Dim()),
	)

	s.prune(idx.BuildID(), previous)
	return nil
}

// Generations lists generation build IDs, oldest first.
func (s *Store) Generations() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, generationsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list generations: %w", err)
	}

	type gen struct {
		id  string
		mod time.Time
	}
	var gens []gen
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		gens = append(gens, gen{id: e.Name(), mod: info.ModTime()})
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].mod.Before(gens[j].mod) })

	ids := make([]string, len(gens))
	for i, g := range gens {
		ids[i] = g.id
	}
	return ids, nil
}

// prune removes every generation except keep..., plus abandoned temp dirs.
func (s *Store) prune(keep ...string) {
	root := filepath.Join(s.dir, generationsDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		s.logger.Warn("Failed to list generations for pruning", zap.Error(err))
		return
	}

	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		if k != "" {
			kept[k] = true
		}
	}
	for _, e := range entries {
		if !e.IsDir() || kept[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			s.logger.Warn("Failed to prune generation", zap.String("generation", e.Name()), zap.Error(err))
			continue
		}
		s.logger.Debug("Pruned generation", zap.String("generation", e.Name()))
	}
}

func (s *Store) generationPath(buildID string) string {
	return filepath.Join(s.dir, generationsDir, buildID)
}

func artifactErr(buildID, name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("generation %s: missing %s: %w", buildID, name, domain.ErrCorruptIndex)
	}
	return fmt.Errorf("generation %s: open %s: %w", buildID, name, err)
}

// writeAtomic writes data to a temp file in the target directory and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), tmpPrefix+filepath.Base(path)+"-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	defer func() { _ = os.Remove(name) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return nil
}
