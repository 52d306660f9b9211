package invite

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotthespy/game-engine/internal/config"
	"github.com/spotthespy/game-engine/pkg/logger"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestLink_RoundTrip(t *testing.T) {
	link := Link("https://t.me/SpotTheSpyBot", "abc-123")

	require.True(t, strings.HasPrefix(link, "https://t.me/SpotTheSpyBot?start="))
	payload := strings.TrimPrefix(link, "https://t.me/SpotTheSpyBot?start=")
	assert.NotContains(t, payload, "=")

	id, err := ParseStart(payload)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", id)
}

func TestParseStart_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not base64", "!!!"},
		{"wrong prefix", "aGVsbG8"},
		{"empty id", "am9pbjo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStart(tt.payload)
			assert.ErrorIs(t, err, ErrInvalidStart)
		})
	}
}

func TestRenderQR(t *testing.T) {
	png, err := RenderQR(Link("https://t.me/bot", "s1"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

type fakeObjects struct {
	puts    map[string][]byte
	deleted []string
	err     error
}

func (f *fakeObjects) Put(_ context.Context, key string, body []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = body
	return "https://cdn.example/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return f.err
}

func TestService_CreateWithoutStorage(t *testing.T) {
	svc := NewService("https://t.me/bot", nil, logger.Discard())

	resp, err := svc.Create(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, Link("https://t.me/bot", "s1"), resp.Link)
	assert.Empty(t, resp.QRCodeURL)

	svc.Remove(context.Background(), "s1")
}

func TestService_CreateUploadsQR(t *testing.T) {
	objects := &fakeObjects{}
	svc := NewService("https://t.me/bot", objects, logger.Discard())

	resp, err := svc.Create(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/qr_codes/s1.png", resp.QRCodeURL)
	require.Contains(t, objects.puts, "qr_codes/s1.png")
	assert.True(t, bytes.HasPrefix(objects.puts["qr_codes/s1.png"], pngMagic))

	svc.Remove(context.Background(), "s1")
	assert.Equal(t, []string{"qr_codes/s1.png"}, objects.deleted)
}

func TestService_UploadFailure(t *testing.T) {
	svc := NewService("https://t.me/bot", &fakeObjects{err: errors.New("bucket gone")}, logger.Discard())

	_, err := svc.Create(context.Background(), "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")

	// Removal failures are only logged.
	svc.Remove(context.Background(), "s1")
}

type fakeS3 struct {
	put    *s3.PutObjectInput
	body   []byte
	delete *s3.DeleteObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.delete = in
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store_PutAndDelete(t *testing.T) {
	client := &fakeS3{}
	st := newS3Store(client, "invites", "http://localhost:9000/invites/")

	url, err := st.Put(context.Background(), "qr_codes/s1.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/invites/qr_codes/s1.png", url)
	assert.Equal(t, "invites", aws.ToString(client.put.Bucket))
	assert.Equal(t, "qr_codes/s1.png", aws.ToString(client.put.Key))
	assert.Equal(t, "image/png", aws.ToString(client.put.ContentType))
	assert.Equal(t, []byte("png"), client.body)

	require.NoError(t, st.Delete(context.Background(), "qr_codes/s1.png"))
	assert.Equal(t, "qr_codes/s1.png", aws.ToString(client.delete.Key))
}

func TestNewS3Store_PublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.InviteConfig
		want string
	}{
		{
			name: "explicit",
			cfg:  config.InviteConfig{Region: "us-east-1", Bucket: "b", PublicURL: "https://cdn.example/"},
			want: "https://cdn.example",
		},
		{
			name: "custom endpoint",
			cfg:  config.InviteConfig{Region: "us-east-1", Bucket: "b", Endpoint: "http://minio:9000", AccessKey: "k", SecretKey: "s"},
			want: "http://minio:9000/b",
		},
		{
			name: "aws",
			cfg:  config.InviteConfig{Region: "eu-west-1", Bucket: "b", AccessKey: "k", SecretKey: "s"},
			want: "https://b.s3.eu-west-1.amazonaws.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := NewS3Store(context.Background(), tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.publicURL)
			assert.Equal(t, "b", st.bucket)
		})
	}
}
