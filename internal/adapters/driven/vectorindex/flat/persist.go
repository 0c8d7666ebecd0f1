package flat

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/custodia-labs/esgrag/internal/core/domain"
)

// On-disk layout. Both data files are replaced atomically on every write,
// vectors first. The lock file is only ever locked, never written.
const (
	vectorsFile   = "vectors.bin"
	metadataFile  = "metadata.json"
	lockFile      = "index.lock"
	formatVersion = 1
)

var fileMagic = [4]byte{'E', 'S', 'G', 'V'}

// vectorHeader is the fixed-size prefix of vectors.bin.
type vectorHeader struct {
	Magic     [4]byte
	Version   uint16
	Metric    uint8
	Dimension uint32
	Count     uint64
}

// headerSize is the encoded size of vectorHeader.
const headerSize = 4 + 2 + 1 + 4 + 8

// sidecar is the JSON document stored in metadata.json. Count is the number
// of vectors the sidecar describes and is authoritative over vectors.bin.
type sidecar struct {
	Version   int                 `json:"version"`
	Dimension int                 `json:"dimension"`
	Metric    string              `json:"metric"`
	Count     int                 `json:"count"`
	Entries   []domain.IndexEntry `json:"entries"`
}

// fileWriter writes a file so that readers see either the old or the new content.
type fileWriter func(path string, write func(w io.Writer) error) error

// writeAtomic writes to a temp file in the target directory, syncs it and
// renames it over path.
func writeAtomic(path string, write func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		cleanup()
		return err
	}
	if err := bw.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flushing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func metricCode(m domain.DistanceMetric) uint8 {
	if m == domain.MetricCosine {
		return 1
	}
	return 0
}

func metricFromCode(c uint8) (domain.DistanceMetric, bool) {
	switch c {
	case 0:
		return domain.MetricL2, true
	case 1:
		return domain.MetricCosine, true
	default:
		return "", false
	}
}

// encodeVectors writes the header followed by count*dimension float32 values.
func encodeVectors(w io.Writer, metric domain.DistanceMetric, dimension int, vectors []float32) error {
	h := vectorHeader{
		Magic:     fileMagic,
		Version:   formatVersion,
		Metric:    metricCode(metric),
		Dimension: uint32(dimension),
		Count:     uint64(len(vectors) / dimension),
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("writing vector header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, vectors); err != nil {
		return fmt.Errorf("writing vectors: %w", err)
	}
	return nil
}

// decodeVectors reads vectors.bin. Any structural problem is ErrIndexCorrupt.
func decodeVectors(r io.Reader, size int64) (vectorHeader, []float32, error) {
	var h vectorHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, nil, fmt.Errorf("%w: reading vector header: %v", domain.ErrIndexCorrupt, err)
	}
	if h.Magic != fileMagic {
		return h, nil, fmt.Errorf("%w: bad magic %q", domain.ErrIndexCorrupt, h.Magic[:])
	}
	if h.Version != formatVersion {
		return h, nil, fmt.Errorf("%w: unsupported format version %d", domain.ErrIndexCorrupt, h.Version)
	}
	if h.Dimension == 0 {
		return h, nil, fmt.Errorf("%w: zero dimension", domain.ErrIndexCorrupt)
	}
	if _, ok := metricFromCode(h.Metric); !ok {
		return h, nil, fmt.Errorf("%w: unknown metric code %d", domain.ErrIndexCorrupt, h.Metric)
	}

	want := int64(headerSize) + int64(h.Count)*int64(h.Dimension)*4
	if size != want {
		return h, nil, fmt.Errorf("%w: vector file is %d bytes, header implies %d", domain.ErrIndexCorrupt, size, want)
	}

	vectors := make([]float32, int(h.Count)*int(h.Dimension))
	if err := binary.Read(r, binary.LittleEndian, vectors); err != nil {
		return h, nil, fmt.Errorf("%w: reading vectors: %v", domain.ErrIndexCorrupt, err)
	}
	return h, vectors, nil
}

func encodeSidecar(w io.Writer, sc sidecar) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(sc); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

func decodeSidecar(r io.Reader) (sidecar, error) {
	var sc sidecar
	if err := json.NewDecoder(r).Decode(&sc); err != nil {
		return sc, fmt.Errorf("%w: parsing metadata: %v", domain.ErrIndexCorrupt, err)
	}
	if sc.Version != formatVersion {
		return sc, fmt.Errorf("%w: unsupported metadata version %d", domain.ErrIndexCorrupt, sc.Version)
	}
	if sc.Count != len(sc.Entries) {
		return sc, fmt.Errorf("%w: metadata count %d but %d entries", domain.ErrIndexCorrupt, sc.Count, len(sc.Entries))
	}
	for i := range sc.Entries {
		if sc.Entries[i].ID != i {
			return sc, fmt.Errorf("%w: metadata entry %d has id %d", domain.ErrIndexCorrupt, i, sc.Entries[i].ID)
		}
	}
	return sc, nil
}

// readFiles loads both files of an index directory.
func readFiles(dir string) (vectorHeader, []float32, sidecar, error) {
	vf, err := os.Open(filepath.Join(dir, vectorsFile))
	if errors.Is(err, os.ErrNotExist) {
		return vectorHeader{}, nil, sidecar{}, fmt.Errorf("%w: %s", domain.ErrIndexMissing, dir)
	}
	if err != nil {
		return vectorHeader{}, nil, sidecar{}, fmt.Errorf("opening vectors: %w", err)
	}
	defer vf.Close()

	info, err := vf.Stat()
	if err != nil {
		return vectorHeader{}, nil, sidecar{}, fmt.Errorf("stat vectors: %w", err)
	}
	h, vectors, err := decodeVectors(bufio.NewReader(vf), info.Size())
	if err != nil {
		return h, nil, sidecar{}, err
	}

	mf, err := os.Open(filepath.Join(dir, metadataFile))
	if errors.Is(err, os.ErrNotExist) {
		return h, nil, sidecar{}, fmt.Errorf("%w: metadata sidecar missing", domain.ErrIndexCorrupt)
	}
	if err != nil {
		return h, nil, sidecar{}, fmt.Errorf("opening metadata: %w", err)
	}
	defer mf.Close()

	sc, err := decodeSidecar(bufio.NewReader(mf))
	if err != nil {
		return h, nil, sc, err
	}

	metric, _ := metricFromCode(h.Metric)
	switch {
	case uint64(sc.Count) > h.Count:
		return h, nil, sc, fmt.Errorf("%w: %d vectors but %d metadata entries",
			domain.ErrIndexCorrupt, h.Count, sc.Count)
	case sc.Dimension != int(h.Dimension):
		return h, nil, sc, fmt.Errorf("%w: vector dimension %d, metadata dimension %d",
			domain.ErrIndexCorrupt, h.Dimension, sc.Dimension)
	case sc.Metric != string(metric):
		return h, nil, sc, fmt.Errorf("%w: vector metric %s, metadata metric %s",
			domain.ErrIndexCorrupt, metric, sc.Metric)
	}

	// Trailing vectors were renamed into place by an append whose sidecar
	// never followed.
	if uint64(sc.Count) < h.Count {
		vectors = vectors[:sc.Count*int(h.Dimension)]
		h.Count = uint64(sc.Count)
	}
	return h, vectors, sc, nil
}
