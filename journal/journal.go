package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/pithecene-io/ordo/iox"
	"github.com/pithecene-io/ordo/types"
)

// FileName is the journal file name inside a strategy directory.
const FileName = "journal.bin"

// ErrMismatch is returned when a journal belongs to a different ordering.
var ErrMismatch = errors.New("journal does not match the ordering being run")

// Header identifies the run a journal belongs to.
type Header struct {
	Type            string             `msgpack:"type"`
	ContractVersion string             `msgpack:"contract_version"`
	RunID           string             `msgpack:"run_id"`
	Strategy        string             `msgpack:"strategy"`
	Ordering        []types.TestID     `msgpack:"ordering"`
	PrefixPolicy    types.PrefixPolicy `msgpack:"prefix_policy"`
}

// NewHeader builds a header for one strategy's run.
func NewHeader(runID, strategy string, ordering types.Ordering, prefix types.PrefixPolicy) *Header {
	return &Header{
		Type:            HeaderType,
		ContractVersion: types.ContractVersion,
		RunID:           runID,
		Strategy:        strategy,
		Ordering:        slices.Clone(ordering),
		PrefixPolicy:    prefix,
	}
}

// Matches reports whether h describes the same strategy, ordering and
// prefix policy as other. Run IDs may differ across resumes.
func (h *Header) Matches(other *Header) bool {
	return h.Strategy == other.Strategy &&
		h.PrefixPolicy == other.PrefixPolicy &&
		slices.Equal(h.Ordering, other.Ordering)
}

// StepFrame is one resolved step.
type StepFrame struct {
	Type   string            `msgpack:"type"`
	Record *types.StepRecord `msgpack:"record"`
}

// Journal is the replayed content of a journal file.
type Journal struct {
	Header  *Header
	Records []*types.StepRecord
	// ValidSize is the byte length of the complete frames. Bytes past it
	// belong to a write that was interrupted and are discarded on resume.
	ValidSize int64
	// Truncated reports whether a partial trailing frame was found.
	Truncated bool
}

// Apply folds every replayed record into run in journal order.
func (j *Journal) Apply(run *types.CoverageRun) {
	for _, rec := range j.Records {
		rec.Apply(run)
	}
}

// Read replays a journal stream.
// A partial final frame is tolerated and reported through Truncated; any
// other decode error fails the replay.
func Read(r io.Reader) (*Journal, error) {
	dec := NewFrameDecoder(r)
	j := &Journal{}

	for {
		payload, err := dec.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			if IsPartialFrame(err) && j.Header != nil {
				j.Truncated = true
				break
			}
			return nil, fmt.Errorf("read journal: %w", err)
		}

		frame, err := DecodeFrame(payload)
		if err != nil {
			return nil, fmt.Errorf("read journal: %w", err)
		}

		switch f := frame.(type) {
		case *Header:
			if j.Header != nil {
				return nil, errors.New("read journal: duplicate header")
			}
			j.Header = f
		case *StepFrame:
			if j.Header == nil {
				return nil, errors.New("read journal: step before header")
			}
			if f.Record == nil {
				return nil, errors.New("read journal: empty step frame")
			}
			j.Records = append(j.Records, f.Record)
		}
		j.ValidSize += int64(LengthPrefixSize + len(payload))
	}

	if j.Header == nil {
		return nil, errors.New("read journal: missing header")
	}
	return j, nil
}

// ReadFile replays the journal at path.
func ReadFile(path string) (*Journal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(f)
	return Read(f)
}

// Writer appends step frames to a journal file. Safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	f  *os.File
}

// Create starts a new journal at path, replacing any existing file.
func Create(path string, h *Header) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create journal: %w", err)
	}
	w := &Writer{f: f}
	if err := w.writeFrame(h); err != nil {
		iox.DiscardClose(f)
		return nil, err
	}
	return w, nil
}

// Resume replays the journal at path and reopens it for appending.
// The file is cut back to its last complete frame. The journal's header
// must match h.
func Resume(path string, h *Header) (*Writer, *Journal, error) {
	j, err := ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if !j.Header.Matches(h) {
		return nil, nil, fmt.Errorf("%w: %s", ErrMismatch, path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	if err := f.Truncate(j.ValidSize); err != nil {
		iox.DiscardClose(f)
		return nil, nil, fmt.Errorf("truncate journal: %w", err)
	}
	if _, err := f.Seek(j.ValidSize, io.SeekStart); err != nil {
		iox.DiscardClose(f)
		return nil, nil, fmt.Errorf("seek journal: %w", err)
	}
	return &Writer{f: f}, j, nil
}

// Append writes one resolved step and syncs it to disk.
func (w *Writer) Append(rec *types.StepRecord) error {
	return w.writeFrame(&StepFrame{Type: StepType, Record: rec})
}

func (w *Writer) writeFrame(v any) error {
	buf, err := EncodeFrame(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Close closes the journal file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
