package export

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPDeliverer(t *testing.T) {
	rec := httptest.NewRecorder()
	d := NewHTTPDeliverer(rec)
	err := d.Deliver(context.Background(), Artifact{Name: DefaultFilename, ContentType: ContentType, Data: []byte("Name\n\"A\"")})
	require.NoError(t, err)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=students_in_buffer.csv`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "8", rec.Header().Get("Content-Length"))
	assert.Equal(t, "Name\n\"A\"", rec.Body.String())
}

func TestFileDeliverer(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	d := FileDeliverer{Dir: dir}
	require.NoError(t, d.Deliver(context.Background(), Artifact{Name: "../escape.csv", Data: []byte("x")}))

	data, err := os.ReadFile(filepath.Join(dir, "escape.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
	assert.Equal(t, filepath.Join(dir, "escape.csv"), Location(d, "../escape.csv"))
}

func TestNewObjectDeliverer_Validation(t *testing.T) {
	_, err := NewObjectDeliverer(ObjectConfig{Bucket: "b"})
	assert.Error(t, err)
	_, err = NewObjectDeliverer(ObjectConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	d, err := NewObjectDeliverer(ObjectConfig{Endpoint: "localhost:9000", Bucket: "exports", Prefix: "buffers"})
	require.NoError(t, err)
	assert.Equal(t, "s3://exports/buffers/students_in_buffer.csv", Location(d, DefaultFilename))
}

// TestObjectDeliverer_Integration requires a running MinIO instance.
func TestObjectDeliverer_Integration(t *testing.T) {
	d, err := NewObjectDeliverer(ObjectConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "student-map-test",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	exists, err := d.client.BucketExists(ctx, d.bucket)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	if !exists {
		t.Skip("MinIO bucket student-map-test not present")
	}

	err = d.Deliver(ctx, Artifact{Name: DefaultFilename, ContentType: ContentType, Data: []byte("Name\n\"A\"")})
	require.NoError(t, err)
}
