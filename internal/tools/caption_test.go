package tools

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngHeader(w, h uint32) []byte {
	data := make([]byte, 24)
	copy(data, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	// Length + "IHDR" then dimensions.
	binary.BigEndian.PutUint32(data[8:12], 13)
	copy(data[12:16], "IHDR")
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	return data
}

func gifHeader(w, h uint16) []byte {
	data := make([]byte, 10)
	copy(data, "GIF89a")
	binary.LittleEndian.PutUint16(data[6:8], w)
	binary.LittleEndian.PutUint16(data[8:10], h)
	return data
}

func jpegWithSOF(w, h uint16) []byte {
	data := []byte{0xFF, 0xD8}
	// APP0 segment, 4 bytes of payload.
	data = append(data, 0xFF, 0xE0, 0x00, 0x06, 'J', 'F', 'I', 'F')
	// SOF0: length, precision, height, width.
	sof := []byte{0xFF, 0xC0, 0x00, 0x0B, 0x08, 0, 0, 0, 0, 0x03}
	binary.BigEndian.PutUint16(sof[5:7], h)
	binary.BigEndian.PutUint16(sof[7:9], w)
	return append(data, sof...)
}

func TestHeuristicCaption(t *testing.T) {
	assert.Equal(t, "Image: chart.png (PNG, 640x480)", HeuristicCaption("chart.png", pngHeader(640, 480)))
	assert.Equal(t, "Image: anim.gif (GIF, 320x200)", HeuristicCaption("anim.gif", gifHeader(320, 200)))
	assert.Equal(t, "Image: photo.jpg (JPEG, 1024x768)", HeuristicCaption("photo.jpg", jpegWithSOF(1024, 768)))
	// Unknown bytes degrade to the bare name.
	assert.Equal(t, "Image: blob.bin", HeuristicCaption("blob.bin", []byte{0x00, 0x01, 0x02}))
}

func TestZeroShotCaption(t *testing.T) {
	labels := &ZeroShotResult{
		Subjects: []ZeroShotLabel{
			{Label: "whiteboard", Score: 0.72},
			{Label: "diagram", Score: 0.31},
			{Label: "cat", Score: 0.05}, // below threshold
		},
		Scenes: []ZeroShotLabel{{Label: "office", Score: 0.6}},
		Styles: []ZeroShotLabel{{Label: "photograph", Score: 0.8}},
	}

	out := zeroShotCaption(labels)
	require.NotNil(t, out)
	assert.Equal(t, "Image of whiteboard, diagram in a office setting", out["caption"])
	assert.Equal(t, "openclip-zeroshot", out["model"])
	assert.Equal(t, []any{"whiteboard", "diagram"}, out["subjects"])
	assert.Equal(t, []any{"office", "photograph"}, out["tags"])
}

func TestZeroShotCaptionNoConfidentSubjects(t *testing.T) {
	labels := &ZeroShotResult{
		Subjects: []ZeroShotLabel{{Label: "cat", Score: 0.05}},
	}
	assert.Nil(t, zeroShotCaption(labels))
}

func TestZeroShotCaptionCapsSubjects(t *testing.T) {
	labels := &ZeroShotResult{}
	for i := 0; i < 10; i++ {
		labels.Subjects = append(labels.Subjects, ZeroShotLabel{Label: string(rune('a' + i)), Score: 0.9})
	}
	out := zeroShotCaption(labels)
	require.NotNil(t, out)
	assert.Len(t, out["subjects"], captionMaxSubjects)
}
