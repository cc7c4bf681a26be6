// Package archive writes a point-in-time export of a tenant namespace to blob
// storage before the namespace is dropped.
//
// An archive is a single MongoDB Extended JSON (canonical mode) document so that
// type information such as ObjectIDs and dates survives a restore with mongoimport
// or Decode. With a Sealer configured the document is encrypted before upload and
// stored under the same key with a ".enc" suffix.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/orgspace/orgspace/internal/docstore"
	"github.com/orgspace/orgspace/internal/namespace"
	"github.com/orgspace/orgspace/internal/storage"
	"github.com/orgspace/orgspace/internal/telemetry"
	"github.com/orgspace/orgspace/pkg/checksum"
)

// FormatVersion identifies the archive layout.
const FormatVersion = 1

// ErrChecksumMismatch is returned by Load when the downloaded bytes do not match
// the checksum recorded by the storage backend at upload time.
var ErrChecksumMismatch = errors.New("archive checksum mismatch")

// SealedSuffix marks encrypted archive objects.
const SealedSuffix = ".enc"

// Sealer encrypts archives at rest. The object key is bound as additional data so
// a sealed archive cannot be moved to another key and still open.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(sealed, aad []byte) ([]byte, error)
}

// Snapshot is the archived content of one namespace.
type Snapshot struct {
	Version     int          `bson:"version"`
	OrgName     string       `bson:"org_name"`
	Namespace   string       `bson:"namespace"`
	TakenAt     time.Time    `bson:"taken_at"`
	Collections []Collection `bson:"collections"`
}

// Collection holds every document of one collection, in store order.
type Collection struct {
	Name      string   `bson:"name"`
	Documents []bson.M `bson:"documents"`
}

// DocumentCount returns the number of documents across all collections.
func (s *Snapshot) DocumentCount() int {
	n := 0
	for _, c := range s.Collections {
		n += len(c.Documents)
	}
	return n
}

// Result describes a written archive.
type Result struct {
	Key         string
	Collections int
	Documents   int
	Size        int64
	Checksum    string
}

// Archiver snapshots namespaces from a document store into a blob backend.
type Archiver struct {
	store  docstore.Store
	blobs  storage.Storage
	prefix string
	now    func() time.Time
	logger *slog.Logger
	sealer Sealer
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithClock overrides the time source used for TakenAt and object keys.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archiver) { a.logger = l }
}

// WithSealer encrypts every archive with s.
func WithSealer(s Sealer) Option {
	return func(a *Archiver) { a.sealer = s }
}

// New creates an Archiver writing objects under prefix.
func New(store docstore.Store, blobs storage.Storage, prefix string, opts ...Option) *Archiver {
	a := &Archiver{
		store:  store,
		blobs:  blobs,
		prefix: prefix,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Key returns the object key for a snapshot of ns taken at t.
func Key(prefix string, ns namespace.ID, t time.Time) string {
	return path.Join(prefix, ns.String(), t.UTC().Format("20060102T150405.000000000Z")+".json")
}

// Snapshot reads every collection of ns and uploads the export. Nothing is
// written when reading the namespace fails.
func (a *Archiver) Snapshot(ctx context.Context, orgName string, ns namespace.ID) (*Result, error) {
	snap, err := a.read(ctx, orgName, ns)
	if err != nil {
		telemetry.ArchiveSnapshotsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	data, err := bson.MarshalExtJSON(snap, true, false)
	if err != nil {
		telemetry.ArchiveSnapshotsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to encode archive of %s: %w", ns, err)
	}

	key := Key(a.prefix, ns, snap.TakenAt)
	if a.sealer != nil {
		key += SealedSuffix
		data, err = a.sealer.Seal(data, []byte(key))
		if err != nil {
			telemetry.ArchiveSnapshotsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to seal archive of %s: %w", ns, err)
		}
	}
	info, err := a.blobs.Upload(ctx, key, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		telemetry.ArchiveSnapshotsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to upload archive of %s: %w", ns, err)
	}
	telemetry.ArchiveSnapshotsTotal.WithLabelValues("ok").Inc()

	res := &Result{
		Key:         key,
		Collections: len(snap.Collections),
		Documents:   snap.DocumentCount(),
		Size:        info.Size,
		Checksum:    info.Checksum,
	}
	a.logger.Info("namespace archived",
		"org_name", orgName,
		"namespace", ns,
		"key", key,
		"collections", res.Collections,
		"documents", res.Documents,
		"bytes", res.Size,
		"sealed", a.sealer != nil)
	return res, nil
}

func (a *Archiver) read(ctx context.Context, orgName string, ns namespace.ID) (*Snapshot, error) {
	colls, err := a.store.ListCollections(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections of %s: %w", ns, err)
	}

	snap := &Snapshot{
		Version:     FormatVersion,
		OrgName:     orgName,
		Namespace:   ns.String(),
		TakenAt:     a.now().UTC(),
		Collections: make([]Collection, 0, len(colls)),
	}
	for _, name := range colls {
		c := Collection{Name: name, Documents: []bson.M{}}
		err := a.store.IterateDocuments(ctx, ns, name, func(doc docstore.Document) error {
			c.Documents = append(c.Documents, bson.M(doc))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read %s.%s: %w", ns, name, err)
		}
		snap.Collections = append(snap.Collections, c)
	}
	return snap, nil
}

// Load downloads and decodes the archive stored at key, opening it first when
// it was sealed.
func (a *Archiver) Load(ctx context.Context, key string) (*Snapshot, error) {
	rc, err := a.blobs.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to download archive %s: %w", key, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive %s: %w", key, err)
	}
	if info, err := a.blobs.GetMetadata(ctx, key); err == nil && info.Checksum != "" {
		ok, err := checksum.VerifySHA256(bytes.NewReader(raw), info.Checksum)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("archive %s: %w", key, ErrChecksumMismatch)
		}
	}

	if !strings.HasSuffix(key, SealedSuffix) {
		return Decode(bytes.NewReader(raw))
	}
	if a.sealer == nil {
		return nil, fmt.Errorf("archive %s is sealed and no key is configured", key)
	}
	data, err := a.sealer.Open(raw, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", key, err)
	}
	return Decode(bytes.NewReader(data))
}

// RestoreResult reports what Restore wrote.
type RestoreResult struct {
	Inserted   int
	Duplicates int
}

// Restore writes every document of snap into ns, keeping document ids. A
// document whose id already exists in ns is counted and left untouched, so a
// restore interrupted half way can simply be run again.
func (a *Archiver) Restore(ctx context.Context, snap *Snapshot, ns namespace.ID) (*RestoreResult, error) {
	res := &RestoreResult{}
	for _, coll := range snap.Collections {
		for _, doc := range coll.Documents {
			err := a.store.InsertDocument(ctx, ns, coll.Name, docstore.Document(doc))
			switch {
			case err == nil:
				res.Inserted++
			case docstore.IsDuplicateKey(err):
				res.Duplicates++
			default:
				return res, fmt.Errorf("failed to restore %s.%s: %w", ns, coll.Name, err)
			}
		}
	}
	a.logger.Info("namespace restored from archive",
		"org_name", snap.OrgName,
		"namespace", ns,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates)
	return res, nil
}

// Decode parses an archive produced by Snapshot.
func Decode(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	var snap Snapshot
	if err := bson.UnmarshalExtJSON(data, true, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode archive: %w", err)
	}
	if snap.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported archive version %d", snap.Version)
	}
	return &snap, nil
}
