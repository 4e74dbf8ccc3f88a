package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
)

func TestSnapshotSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snapshot" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		frame := imaging.New(320, 200, color.White)
		assert.NoError(t, imaging.Encode(w, frame, imaging.PNG))
	}))
	defer server.Close()

	ctx := context.Background()

	source := newSnapshotSource(Config{SnapshotURL: server.URL + "/snapshot"})
	assert.NoError(t, source.Open(ctx))
	frame, err := source.Frame(ctx)
	assert.NoError(t, err)
	assert.Equal(t, image.Pt(320, 200), frame.Bounds().Size())
	assert.NoError(t, source.Close())

	missing := newSnapshotSource(Config{SnapshotURL: server.URL + "/missing"})
	assert.ErrorContains(t, missing.Open(ctx), "unexpected status 404")
}

func TestSnapshotSource_NotAnImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>login required</html>"))
	}))
	defer server.Close()

	source := newSnapshotSource(Config{SnapshotURL: server.URL})
	_, err := source.Frame(context.Background())
	assert.ErrorContains(t, err, "decode snapshot")
}

func TestSnapshotSource_TooLarge(t *testing.T) {
	body := bytes.Repeat([]byte{0xff}, 4096)

	tests := []struct {
		name    string
		chunked bool
	}{
		{name: "declared length", chunked: false},
		{name: "chunked", chunked: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.chunked {
					w.(http.Flusher).Flush()
				}
				w.Write(body)
			}))
			defer server.Close()

			source := newSnapshotSource(Config{SnapshotURL: server.URL})
			source.maxBytes = 1024
			_, err := source.Frame(context.Background())
			assert.ErrorContains(t, err, "exceeds limit of 1024")
		})
	}
}

func TestPreprocess(t *testing.T) {
	frame := imaging.New(1280, 720, color.NRGBA{R: 255, A: 255})

	img := Preprocess(frame, &Region{X: 320, Y: 270, Width: 640, Height: 180})
	assert.LessOrEqual(t, img.Bounds().Dx(), recognitionWidth)
	assert.LessOrEqual(t, img.Bounds().Dy(), recognitionHeight)

	// grayscale output has equal channels
	c := img.NRGBAAt(0, 0)
	assert.Equal(t, c.R, c.G)
	assert.Equal(t, c.G, c.B)

	// a region outside the frame is ignored rather than producing an empty image
	img = Preprocess(frame, &Region{X: 5000, Y: 5000, Width: 10, Height: 10})
	assert.False(t, img.Bounds().Empty())
}

func TestMockRecognizer(t *testing.T) {
	r := NewMockRecognizer()
	r.BaseWeight = 42350
	r.Jitter = 0

	recognition, err := r.Recognize(context.Background(), imaging.New(640, 240, color.Black))
	assert.NoError(t, err)
	assert.Equal(t, 42350.0, recognition.Weight)
	assert.Equal(t, "42,350 LB", recognition.Text)
	assert.Equal(t, BoundingBox{X: 64, Y: 60, Width: 512, Height: 120}, recognition.Box)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{SnapshotURL: "https://cam.local/jpg"}.Validate())
	assert.NoError(t, Config{Source: SourceSimulated}.Validate())
	assert.Error(t, Config{}.Validate())
	assert.Error(t, Config{Source: "usb"}.Validate())
	assert.Error(t, Config{Source: SourceSimulated, DisplayRegion: &Region{Width: 0, Height: 10}}.Validate())
}
