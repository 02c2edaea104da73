package gridfs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/memoryweaver/memory-weaver/internal/config"
	mongostore "github.com/memoryweaver/memory-weaver/internal/plugin/store/mongo"
	registrymedia "github.com/memoryweaver/memory-weaver/internal/registry/media"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/memoryweaver/memory-weaver/internal/tempfiles"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// BucketName is the GridFS bucket holding narration audio.
const BucketName = "audio"

func init() {
	registrymedia.Register(registrymedia.Plugin{
		Name:   "gridfs",
		Loader: load,
	})
}

func load(ctx context.Context) (registrymedia.MediaStore, error) {
	cfg := config.FromContext(ctx)
	client, err := mongostore.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gridfs: %w", err)
	}
	return New(client.Database(cfg.DBName), cfg.ResolvedTempDir()), nil
}

// Store keeps media in a GridFS bucket; the newest revision of a name wins.
type Store struct {
	bucket  *mongo.GridFSBucket
	tempDir string
}

// New opens the audio bucket in db.
func New(db *mongo.Database, tempDir string) *Store {
	return &Store{
		bucket:  db.GridFSBucket(options.GridFSBucket().SetName(BucketName)),
		tempDir: tempDir,
	}
}

func (s *Store) Put(ctx context.Context, name string, data io.Reader, contentType string) (*registrymedia.PutResult, error) {
	if !registrymedia.ValidName(name) {
		return nil, &registrystore.ValidationError{Field: "filename", Message: "invalid media name"}
	}
	counted := &countingReader{r: data}
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	if _, err := s.bucket.UploadFromStream(ctx, name, counted, opts); err != nil {
		return nil, fmt.Errorf("gridfs: upload %s: %w", name, mongostore.ClassifyError(err))
	}
	return &registrymedia.PutResult{Name: name, Size: counted.n}, nil
}

// Open spools the newest revision to a temp file so the download cursor is
// released before the response is streamed.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !registrymedia.ValidName(name) {
		return nil, &registrystore.NotFoundError{Resource: "audio", ID: name}
	}
	ds, err := s.bucket.OpenDownloadStreamByName(ctx, name)
	if errors.Is(err, mongo.ErrFileNotFound) {
		return nil, &registrystore.NotFoundError{Resource: "audio", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("gridfs: open %s: %w", name, mongostore.ClassifyError(err))
	}
	defer ds.Close()

	rc, _, err := tempfiles.Spool(s.tempDir, "memory-weaver-gridfs-*", ds)
	if err != nil {
		return nil, fmt.Errorf("gridfs: %w", err)
	}
	return rc, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
