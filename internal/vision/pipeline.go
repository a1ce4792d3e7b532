package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/your-org/faceattend/internal/engine"
)

// Pipeline bundles the detector and embedder for one-shot image embedding,
// used by the API's face search endpoint.
type Pipeline struct {
	det      *Detector
	emb      *Embedder
	faceSize int
}

func NewPipeline(det *Detector, emb *Embedder, faceSize int) *Pipeline {
	return &Pipeline{det: det, emb: emb, faceSize: faceSize}
}

// EmbedImage decodes image bytes, detects the primary face and returns its
// embedding.
func (p *Pipeline) EmbedImage(data []byte) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	gray := engine.ToGray(img)
	faces := p.det.Detect(gray)
	if len(faces) == 0 {
		return nil, fmt.Errorf("no face detected")
	}

	// Largest box wins when several faces are present.
	best := faces[0]
	for _, r := range faces[1:] {
		if r.Dx()*r.Dy() > best.Dx()*best.Dy() {
			best = r
		}
	}

	face := engine.NormalizeFace(gray, best, p.faceSize)
	if face == nil {
		return nil, fmt.Errorf("degenerate face region")
	}
	return p.emb.EmbedFace(face)
}

func (p *Pipeline) Close() {
	if p.det != nil {
		p.det.Close()
	}
	if p.emb != nil {
		p.emb.Close()
	}
}
