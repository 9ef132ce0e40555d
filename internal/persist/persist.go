// Package persist reads and writes fitted pipelines as binary artifacts.
//
// An artifact is a fixed header followed by a msgpack payload:
//
//	offset 0  magic "ESCM"
//	offset 4  format version, uint16 big-endian
//	offset 6  xxhash64 of the payload, uint64 big-endian
//	offset 14 payload
package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/paveg/escalation/internal/errors"
	"github.com/paveg/escalation/internal/features"
	"github.com/paveg/escalation/internal/model"
	"github.com/paveg/escalation/internal/pipeline"
	"github.com/paveg/escalation/internal/preprocess"
	"github.com/paveg/escalation/internal/schema"
	"github.com/paveg/escalation/internal/version"
	"github.com/vmihailenco/msgpack/v5"
)

// Magic opens every artifact
const Magic = "ESCM"

// FormatVersion is bumped whenever the payload layout changes
const FormatVersion uint16 = 2

const headerSize = len(Magic) + 2 + 8

// payload is the msgpack body. The model travels as raw bytes next to its
// kind so it can be decoded into the right concrete type.
type payload struct {
	Schema      schema.Schema                 `msgpack:"schema"`
	Features    features.Options              `msgpack:"features"`
	Transformer *preprocess.ColumnTransformer `msgpack:"transformer"`
	ModelKind   string                        `msgpack:"model_kind"`
	Model       msgpack.RawMessage            `msgpack:"model"`
	Threshold   float64                       `msgpack:"threshold"`
	Metadata    pipeline.Metadata             `msgpack:"metadata"`
}

// Encode serialises a fitted pipeline.
func Encode(p *pipeline.Pipeline) ([]byte, error) {
	if p == nil || p.Model == nil || p.Transformer == nil {
		return nil, errors.ErrNotFitted
	}
	body, err := msgpack.Marshal(p.Model)
	if err != nil {
		return nil, fmt.Errorf("encoding model: %w", err)
	}
	raw, err := msgpack.Marshal(&payload{
		Schema:      p.Schema,
		Features:    p.Features,
		Transformer: p.Transformer,
		ModelKind:   p.Model.Name(),
		Model:       body,
		Threshold:   p.Threshold,
		Metadata:    p.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding pipeline: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(raw))
	buf.WriteString(Magic)
	_ = binary.Write(&buf, binary.BigEndian, FormatVersion)
	_ = binary.Write(&buf, binary.BigEndian, xxhash.Sum64(raw))
	buf.Write(raw)
	return buf.Bytes(), nil
}

// Decode verifies the header and checksum and rebuilds the pipeline.
func Decode(data []byte) (*pipeline.Pipeline, error) {
	const op = "persist.Load"
	if len(data) < headerSize || string(data[:len(Magic)]) != Magic {
		return nil, errors.NewInvalidInputError(op, "not an escalation model artifact")
	}
	v := binary.BigEndian.Uint16(data[len(Magic):])
	if v != FormatVersion {
		return nil, errors.NewInvalidInputError(op,
			fmt.Sprintf("unsupported artifact format version %d (this build reads %d)", v, FormatVersion))
	}
	sum := binary.BigEndian.Uint64(data[len(Magic)+2:])
	raw := data[headerSize:]
	if xxhash.Sum64(raw) != sum {
		return nil, errors.ErrChecksumMismatch
	}

	var pl payload
	if err := msgpack.Unmarshal(raw, &pl); err != nil {
		return nil, errors.NewInternalError(op, err)
	}

	var clf model.Classifier
	switch pl.ModelKind {
	case model.KindRandomForest:
		rf := &model.RandomForest{}
		if err := msgpack.Unmarshal(pl.Model, rf); err != nil {
			return nil, errors.NewInternalError(op, err)
		}
		clf = rf
	case model.KindGradientBoosting:
		gb := &model.GradientBoosting{}
		if err := msgpack.Unmarshal(pl.Model, gb); err != nil {
			return nil, errors.NewInternalError(op, err)
		}
		clf = gb
	default:
		return nil, errors.NewInvalidInputError(op, fmt.Sprintf("unknown model kind %q", pl.ModelKind))
	}
	if pl.Transformer == nil {
		return nil, errors.NewInvalidInputError(op, "artifact has no transformer")
	}

	ok, err := version.Compatible(pl.Metadata.ToolVersion)
	if err != nil {
		return nil, errors.NewInvalidInputError(op, err.Error())
	}
	if !ok {
		return nil, errors.NewInvalidInputError(op,
			fmt.Sprintf("artifact written by %s cannot be read by %s", pl.Metadata.ToolVersion, version.Version))
	}

	return &pipeline.Pipeline{
		Schema:      pl.Schema,
		Features:    pl.Features,
		Transformer: pl.Transformer,
		Model:       clf,
		Threshold:   pl.Threshold,
		Metadata:    pl.Metadata,
	}, nil
}

// Save writes the artifact atomically: a temp file in the destination
// directory is renamed over path once fully written.
func Save(path string, p *pipeline.Pipeline) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".escm-*")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming artifact: %w", err)
	}
	return nil
}

// Load reads an artifact from path.
func Load(path string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	p, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}
