package detect

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-cmc/images"
)

func validTestConfig() Config {
	return Config{
		ModelPath:           "model.onnx",
		InputShape:          image.Pt(640, 640),
		ConfidenceThreshold: 0.5,
		NMSThreshold:        0.4,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing_model_path", mutate: func(c *Config) { c.ModelPath = "" }, wantErr: true},
		{name: "zero_input_shape", mutate: func(c *Config) { c.InputShape = image.Point{} }, wantErr: true},
		{name: "negative_confidence", mutate: func(c *Config) { c.ConfidenceThreshold = -0.1 }, wantErr: true},
		{name: "confidence_above_one", mutate: func(c *Config) { c.ConfidenceThreshold = 1.5 }, wantErr: true},
		{name: "zero_nms", mutate: func(c *Config) { c.NMSThreshold = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewMissingModelFile(t *testing.T) {
	cfg := validTestConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")
	_, err := New(cfg)
	assert.Error(t, err)
}

// yoloOutput builds a raw model output Mat with rows of
// [cx, cy, w, h, objectness, class scores...], all coordinates normalized.
func yoloOutput(t *testing.T, rows [][]float32) gocv.Mat {
	t.Helper()
	require.NotEmpty(t, rows)
	out := gocv.NewMatWithSize(len(rows), len(rows[0]), gocv.MatTypeCV32F)
	for i, row := range rows {
		for j, v := range row {
			out.SetFloatAt(i, j, v)
		}
	}
	return out
}

func TestPostprocessDecodesBoxes(t *testing.T) {
	cfg := validTestConfig()
	d := &Detector{cfg: cfg, relevant: map[string]bool{}}

	// One confident person (class 0) centered at (0.5, 0.5), one below the
	// objectness threshold.
	output := yoloOutput(t, [][]float32{
		{0.5, 0.5, 0.2, 0.4, 0.9, 0.95, 0.01},
		{0.1, 0.1, 0.1, 0.1, 0.2, 0.99, 0.01},
	})
	defer output.Close()

	detections := d.postprocess(output, image.Pt(1000, 500))
	require.Len(t, detections, 1)

	det := detections[0]
	assert.Equal(t, "person", det.ClassName)
	assert.InDelta(t, 0.9*0.95, float64(det.Score), 1e-6)
	assert.InDelta(t, 400, float64(det.Box.X1), 1e-3)
	assert.InDelta(t, 150, float64(det.Box.Y1), 1e-3)
	assert.InDelta(t, 600, float64(det.Box.X2), 1e-3)
	assert.InDelta(t, 350, float64(det.Box.Y2), 1e-3)
}

func TestPostprocessClampsToFrame(t *testing.T) {
	cfg := validTestConfig()
	d := &Detector{cfg: cfg, relevant: map[string]bool{}}

	// Box centered near the origin spills outside the frame.
	output := yoloOutput(t, [][]float32{
		{0.02, 0.02, 0.2, 0.2, 0.9, 0.9},
	})
	defer output.Close()

	detections := d.postprocess(output, image.Pt(100, 100))
	require.Len(t, detections, 1)
	assert.Equal(t, float32(0), detections[0].Box.X1)
	assert.Equal(t, float32(0), detections[0].Box.Y1)
}

func TestPostprocessRelevantClassFilter(t *testing.T) {
	cfg := validTestConfig()
	cfg.RelevantClasses = []string{"car"}
	d := &Detector{cfg: cfg, relevant: map[string]bool{"car": true}}

	// Class 0 is "person", class 2 is "car".
	output := yoloOutput(t, [][]float32{
		{0.5, 0.5, 0.1, 0.1, 0.9, 0.95, 0.0, 0.0},
		{0.3, 0.3, 0.1, 0.1, 0.9, 0.0, 0.0, 0.95},
	})
	defer output.Close()

	detections := d.postprocess(output, image.Pt(100, 100))
	require.Len(t, detections, 1)
	assert.Equal(t, "car", detections[0].ClassName)
}

func TestSuppressKeepsHighestScore(t *testing.T) {
	cfg := validTestConfig()
	d := &Detector{cfg: cfg}

	overlapping := images.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}
	nearlySame := images.Box{X1: 5, Y1: 5, X2: 105, Y2: 105}
	elsewhere := images.Box{X1: 300, Y1: 300, X2: 400, Y2: 400}

	kept := d.suppress([]Detection{
		{Box: overlapping, Score: 0.7},
		{Box: nearlySame, Score: 0.9},
		{Box: elsewhere, Score: 0.6},
	})

	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Score)
	assert.Equal(t, float32(0.6), kept[1].Score)
}

func TestSuppressEmpty(t *testing.T) {
	d := &Detector{cfg: validTestConfig()}
	assert.Empty(t, d.suppress(nil))
}

func TestClassName(t *testing.T) {
	assert.Equal(t, "person", ClassName(0))
	assert.Equal(t, "car", ClassName(2))
	assert.Equal(t, "unknown_-1", ClassName(-1))
	assert.Equal(t, "unknown_80", ClassName(len(COCOClasses)))
}

func TestDetectEmptyFrame(t *testing.T) {
	d := &Detector{cfg: validTestConfig()}
	empty := gocv.NewMat()
	defer empty.Close()
	_, err := d.Detect(empty)
	assert.Error(t, err)
}
