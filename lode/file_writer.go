package lode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"
)

// FileWriter writes per-attempt artifacts: tool logs and copies of the
// execution data and report of each step.
type FileWriter interface {
	// PutFile writes data under the slash-separated relative name.
	// The name must be relative and must not contain "..".
	PutFile(ctx context.Context, name, contentType string, data []byte) error
}

// ValidateFileName checks a FileWriter name.
func ValidateFileName(name string) error {
	if name == "" {
		return errors.New("file name is empty")
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return fmt.Errorf("file name %q must be a relative slash path", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("file name %q has an invalid segment", name)
		}
	}
	return nil
}

// FileWriter returns a FileWriter storing files for one strategy at
// datasets/<dataset>/partitions/project=<p>/strategy=<s>/day=<d>/run_id=<r>/files/<name>.
// The Store is created lazily from the client's factory.
func (c *LodeClient) FileWriter(strategy string) FileWriter {
	return &storeFileWriter{client: c, strategy: strategy}
}

type storeFileWriter struct {
	client   *LodeClient
	strategy string
}

func (w *storeFileWriter) PutFile(ctx context.Context, name, _ string, data []byte) error {
	if err := ValidateFileName(name); err != nil {
		return err
	}
	store, err := w.client.getOrCreateStore()
	if err != nil {
		return WrapInitError(err, w.client.config.Dataset)
	}
	p := w.client.buildFilePath(w.strategy, name)
	if err := store.Put(ctx, p, bytes.NewReader(data)); err != nil {
		return WrapWriteError(err, p)
	}
	return nil
}

// getOrCreateStore lazily initializes the Store from the factory.
func (c *LodeClient) getOrCreateStore() (lode.Store, error) {
	c.storeOnce.Do(func() {
		c.store, c.storeErr = c.storeFactory()
	})
	return c.store, c.storeErr
}

// buildFilePath computes the Hive-partitioned path for an artifact file.
func (c *LodeClient) buildFilePath(strategy, name string) string {
	dataset := c.config.Dataset
	if dataset == "" {
		dataset = DefaultDataset
	}
	return path.Join(
		"datasets", dataset, "partitions",
		"project="+c.config.Project,
		"strategy="+strategy,
		"day="+c.config.Day,
		"run_id="+c.config.RunID,
		"files", name,
	)
}

// DirFileWriter writes files below a local directory, creating parents.
type DirFileWriter struct {
	Root string
}

// NewDirFileWriter creates a writer rooted at root.
func NewDirFileWriter(root string) *DirFileWriter {
	return &DirFileWriter{Root: root}
}

// PutFile implements FileWriter.
func (w *DirFileWriter) PutFile(_ context.Context, name, _ string, data []byte) error {
	if err := ValidateFileName(name); err != nil {
		return err
	}
	dst := filepath.Join(w.Root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	return nil
}

// TeeFileWriter writes every file to each writer in order.
// All writers are attempted; their errors are joined.
type TeeFileWriter []FileWriter

// PutFile implements FileWriter.
func (t TeeFileWriter) PutFile(ctx context.Context, name, contentType string, data []byte) error {
	var errs []error
	for _, w := range t {
		if err := w.PutFile(ctx, name, contentType, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StubFileWriter records PutFile calls for testing.
type StubFileWriter struct {
	mu    sync.Mutex
	Files []StubFileRecord
}

// StubFileRecord is a recorded file write for testing.
type StubFileRecord struct {
	Name        string
	ContentType string
	Data        []byte
}

// NewStubFileWriter creates a new stub file writer.
func NewStubFileWriter() *StubFileWriter {
	return &StubFileWriter{}
}

// PutFile implements FileWriter by recording the call.
func (w *StubFileWriter) PutFile(_ context.Context, name, contentType string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Files = append(w.Files, StubFileRecord{
		Name:        name,
		ContentType: contentType,
		Data:        data,
	})
	return nil
}

// Names returns the recorded file names in write order.
func (w *StubFileWriter) Names() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.Files))
	for i, f := range w.Files {
		out[i] = f.Name
	}
	return out
}

var (
	_ FileWriter = (*storeFileWriter)(nil)
	_ FileWriter = (*DirFileWriter)(nil)
	_ FileWriter = TeeFileWriter(nil)
	_ FileWriter = (*StubFileWriter)(nil)
)
