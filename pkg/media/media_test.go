package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"civicfix/pkg/apperror"
	"civicfix/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
	body []byte
}

func (m *mockStore) PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	m.body, _ = io.ReadAll(r)
	args := m.Called(bucket, object, size, opts.ContentType)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newUploader(store ObjectStore) *Uploader {
	u := NewUploader(store, "complaint-images", "http://cdn.local/")
	u.now = func() time.Time { return time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC) }
	return u
}

func TestUpload_StoresImage(t *testing.T) {
	store := &mockStore{}
	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, 1000)...)
	store.On("PutObject", "complaint-images", mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "complaints/2024/01/") && strings.HasSuffix(key, ".png")
	}), int64(len(body)), "image/png").Return(minio.UploadInfo{Size: int64(len(body))}, nil)

	up, err := newUploader(store).Upload(context.Background(), bytes.NewReader(body), int64(len(body)))
	require.NoError(t, err)

	assert.Equal(t, "image/png", up.ContentType)
	assert.Equal(t, int64(len(body)), up.Size)
	assert.Equal(t, "http://cdn.local/complaint-images/"+up.Key, up.URL)
	assert.Equal(t, body, store.body, "sniffed bytes must still be uploaded")
	store.AssertExpectations(t)
}

func TestUpload_Rejects(t *testing.T) {
	store := &mockStore{}
	u := newUploader(store)
	ctx := context.Background()

	_, err := u.Upload(ctx, bytes.NewReader(nil), 0)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = u.Upload(ctx, bytes.NewReader(pngHeader), MaxUploadSize+1)
	assert.ErrorIs(t, err, apperror.ErrValidation)

	text := []byte("just some text, definitely not an image")
	_, err = u.Upload(ctx, bytes.NewReader(text), int64(len(text)))
	assert.ErrorIs(t, err, apperror.ErrValidation)

	store.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpload_StoreFailure(t *testing.T) {
	store := &mockStore{}
	store.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("connection reset"))

	_, err := newUploader(store).Upload(context.Background(), bytes.NewReader(pngHeader), int64(len(pngHeader)))
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "http://minio:9000", PublicURL(config.MinIO{Endpoint: "minio:9000"}))
	assert.Equal(t, "https://s3.local", PublicURL(config.MinIO{Endpoint: "s3.local", UseSSL: true}))
	assert.Equal(t, "https://cdn.example", PublicURL(config.MinIO{Endpoint: "x", PublicURL: "https://cdn.example"}))
}
