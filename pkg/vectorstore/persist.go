package vectorstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/perbu/epasrag/pkg/epas"
)

// Files making up a persisted store. All three are required by Load.
const (
	IndexFile    = "index.bin"
	ChunksFile   = "chunks.gob"
	MetadataFile = "metadata.json"
)

const (
	indexMagic    = "EPVI"
	formatVersion = 1
	// magic + version + dim + count
	indexHeaderSize = 16
)

// chunkFile is the content of chunks.gob.
type chunkFile struct {
	Chunks []epas.Chunk
}

// manifest is the content of metadata.json.
type manifest struct {
	FormatVersion int            `json:"format_version"`
	Dimension     int            `json:"dimension"`
	Count         int            `json:"count"`
	Model         string         `json:"model,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	IDs           map[string]int `json:"id_to_ordinal"`
}

// Save writes the store to dir as a set. The files are written to a
// temporary sibling directory which then replaces dir, so a reader never
// sees a mix of old and new files.
func (s *Store) Save(dir string) error {
	if s == nil {
		return epas.WrapError("Save", epas.ErrNotInitialized)
	}
	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return epas.WrapError("Save", err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".tmp-")
	if err != nil {
		return epas.WrapError("Save", err)
	}
	defer os.RemoveAll(tmp)

	chunks, err := s.encodeChunks()
	if err != nil {
		return epas.WrapError("Save", err)
	}
	meta, err := sonic.ConfigStd.MarshalIndent(s.manifest(), "", "  ")
	if err != nil {
		return epas.WrapError("Save", fmt.Errorf("encoding manifest: %w", err))
	}

	files := []struct {
		name string
		data []byte
	}{
		{IndexFile, s.encodeIndex()},
		{ChunksFile, chunks},
		{MetadataFile, meta},
	}
	for _, f := range files {
		if err := writeFileSync(filepath.Join(tmp, f.name), f.data); err != nil {
			return epas.WrapError("Save", err)
		}
	}

	if err := swapDir(tmp, dir); err != nil {
		return epas.WrapError("Save", err)
	}
	syncDir(parent)

	s.log.Info("saved vector store",
		zap.String("dir", dir),
		zap.Int("chunks", len(s.chunks)))
	return nil
}

func (s *Store) manifest() manifest {
	return manifest{
		FormatVersion: formatVersion,
		Dimension:     s.dim,
		Count:         len(s.chunks),
		Model:         s.model,
		CreatedAt:     s.createdAt,
		IDs:           s.byID,
	}
}

func (s *Store) encodeIndex() []byte {
	n := len(s.chunks)
	buf := make([]byte, indexHeaderSize+len(s.vectors)*4+4)
	copy(buf[0:4], indexMagic)
	binary.LittleEndian.PutUint32(buf[4:8], formatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(s.dim))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(n))
	off := indexHeaderSize
	for _, v := range s.vectors {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], crc32.ChecksumIEEE(buf[:off]))
	return buf
}

func decodeIndex(data []byte) (dim, count int, vectors []float32, err error) {
	if len(data) < indexHeaderSize+4 {
		return 0, 0, nil, fmt.Errorf("%w: %s truncated (%d bytes)", epas.ErrCorrupt, IndexFile, len(data))
	}
	if string(data[0:4]) != indexMagic {
		return 0, 0, nil, fmt.Errorf("%w: %s has bad magic", epas.ErrCorrupt, IndexFile)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != formatVersion {
		return 0, 0, nil, fmt.Errorf("%w: %s has unsupported version %d", epas.ErrCorrupt, IndexFile, v)
	}
	dim = int(binary.LittleEndian.Uint32(data[8:12]))
	count = int(binary.LittleEndian.Uint32(data[12:16]))
	if dim <= 0 {
		return 0, 0, nil, fmt.Errorf("%w: %s has dimension %d", epas.ErrCorrupt, IndexFile, dim)
	}
	want := indexHeaderSize + dim*count*4 + 4
	if len(data) != want {
		return 0, 0, nil, fmt.Errorf("%w: %s is %d bytes, want %d", epas.ErrCorrupt, IndexFile, len(data), want)
	}
	end := len(data) - 4
	if crc32.ChecksumIEEE(data[:end]) != binary.LittleEndian.Uint32(data[end:]) {
		return 0, 0, nil, fmt.Errorf("%w: %s checksum mismatch", epas.ErrCorrupt, IndexFile)
	}

	vectors = make([]float32, dim*count)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[indexHeaderSize+i*4:]))
	}
	return dim, count, vectors, nil
}

func (s *Store) encodeChunks() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(chunkFile{Chunks: s.chunks}); err != nil {
		return nil, fmt.Errorf("encoding chunks: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads a store saved by Save. Missing files are reported together
// as ErrNotFound; inconsistent files as ErrCorrupt.
func Load(dir string, opts ...Option) (*Store, error) {
	o := buildOptions(opts)

	var missing []string
	for _, name := range []string{IndexFile, ChunksFile, MetadataFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				missing = append(missing, name)
				continue
			}
			return nil, epas.WrapError("Load", err)
		}
	}
	if len(missing) > 0 {
		return nil, epas.WrapError("Load", fmt.Errorf("%w: %s missing in %s",
			epas.ErrNotFound, strings.Join(missing, ", "), dir))
	}

	indexData, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, epas.WrapError("Load", err)
	}
	dim, count, vectors, err := decodeIndex(indexData)
	if err != nil {
		return nil, epas.WrapError("Load", err)
	}

	chunksData, err := os.ReadFile(filepath.Join(dir, ChunksFile))
	if err != nil {
		return nil, epas.WrapError("Load", err)
	}
	var cf chunkFile
	if err := gob.NewDecoder(bytes.NewReader(chunksData)).Decode(&cf); err != nil {
		return nil, epas.WrapError("Load", fmt.Errorf("%w: decoding %s: %v", epas.ErrCorrupt, ChunksFile, err))
	}
	chunks := cf.Chunks

	metaData, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, epas.WrapError("Load", err)
	}
	var m manifest
	if err := sonic.ConfigStd.Unmarshal(metaData, &m); err != nil {
		return nil, epas.WrapError("Load", fmt.Errorf("%w: decoding %s: %v", epas.ErrCorrupt, MetadataFile, err))
	}

	if err := checkConsistency(m, dim, count, chunks); err != nil {
		return nil, epas.WrapError("Load", err)
	}

	if m.IDs == nil {
		m.IDs = make(map[string]int)
	}
	model := m.Model
	if o.model != "" {
		model = o.model
	}
	s := &Store{
		dim:       dim,
		model:     model,
		createdAt: m.CreatedAt,
		chunks:    chunks,
		vectors:   vectors,
		byID:      m.IDs,
		log:       o.log,
	}
	s.indexAdjacency()

	s.log.Info("loaded vector store",
		zap.String("dir", dir),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimension", dim),
		zap.String("model", model))
	return s, nil
}

func checkConsistency(m manifest, dim, count int, chunks []epas.Chunk) error {
	if m.FormatVersion != formatVersion {
		return fmt.Errorf("%w: %s has format version %d", epas.ErrCorrupt, MetadataFile, m.FormatVersion)
	}
	if m.Dimension != dim {
		return fmt.Errorf("%w: %s says dimension %d, index has %d", epas.ErrCorrupt, MetadataFile, m.Dimension, dim)
	}
	if len(chunks) != count || m.Count != count {
		return fmt.Errorf("%w: index has %d vectors, %s has %d chunks, %s says %d",
			epas.ErrCorrupt, count, ChunksFile, len(chunks), MetadataFile, m.Count)
	}
	if len(m.IDs) != count {
		return fmt.Errorf("%w: id map has %d entries for %d chunks", epas.ErrCorrupt, len(m.IDs), count)
	}
	for i, c := range chunks {
		if j, ok := m.IDs[c.ID]; !ok || j != i {
			return fmt.Errorf("%w: id map disagrees with chunk %d (%s)", epas.ErrCorrupt, i, c.ID)
		}
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// swapDir moves src into place at dst. An existing dst is moved aside
// first and restored if the second rename fails.
func swapDir(src, dst string) error {
	old := ""
	if _, err := os.Stat(dst); err == nil {
		old = src + ".old"
		if err := os.Rename(dst, old); err != nil {
			return err
		}
	}
	if err := os.Rename(src, dst); err != nil {
		if old != "" {
			os.Rename(old, dst)
		}
		return err
	}
	if old != "" {
		os.RemoveAll(old)
	}
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}
