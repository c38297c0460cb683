package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const DefaultBucket = "soundboard-audio"

// Mirror copies finished artifacts into a JetStream object store bucket.
type Mirror struct {
	conn   *nats.Conn
	bucket string
	store  nats.ObjectStore
	logger *log.Logger
}

// ConnectMirror dials url and binds the bucket, creating it if needed.
func ConnectMirror(url, bucket string, logger *log.Logger) (*Mirror, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("no NATS url configured")
	}
	conn, err := nats.Connect(url,
		nats.Name("soundboard"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	m, err := NewMirror(js, bucket, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	m.conn = conn
	m.logger.Info("connected to NATS", "url", url, "bucket", m.bucket)
	return m, nil
}

// NewMirror binds an object store on an existing JetStream context.
func NewMirror(js nats.JetStreamContext, bucket string, logger *log.Logger) (*Mirror, error) {
	if strings.TrimSpace(bucket) == "" {
		bucket = DefaultBucket
	}
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Synthesized speech artifacts.",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("create object store bucket %q: %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("bind object store bucket %q: %w", bucket, err)
		}
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Mirror{bucket: bucket, store: store, logger: logger.WithPrefix("mirror")}, nil
}

func (m *Mirror) Bucket() string { return m.bucket }

func (m *Mirror) Upload(_ context.Context, key string, data []byte) error {
	if _, err := m.store.Put(&nats.ObjectMeta{Name: key}, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("put object %q to bucket %q: %w", key, m.bucket, err)
	}
	return nil
}

// UploadFile mirrors the file at path under key.
func (m *Mirror) UploadFile(ctx context.Context, key, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	return m.Upload(ctx, key, data)
}

func (m *Mirror) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := m.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("get object %q from bucket %q: %w", key, m.bucket, err)
	}
	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read object %q: %w", key, readErr)
	}
	if closeErr != nil {
		return data, fmt.Errorf("close object %q: %w", key, closeErr)
	}
	return data, nil
}

// Close drains the connection when the mirror owns it.
func (m *Mirror) Close() error {
	if m == nil || m.conn == nil {
		return nil
	}
	err := m.conn.Drain()
	m.conn.Close()
	return err
}
