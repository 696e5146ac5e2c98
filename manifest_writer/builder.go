package manifest_writer

import (
	"fmt"
	"strconv"

	"pdftomanifest/config"
	"pdftomanifest/contracts"
	"pdftomanifest/files_manager"
)

const (
	PresentationContext = "http://iiif.io/api/presentation/2/context.json"

	typeManifest    = "sc:Manifest"
	typeSequence    = "sc:Sequence"
	typeCanvas      = "sc:Canvas"
	typeAnnotation  = "oa:Annotation"
	typeImage       = "dctypes:Image"
	motivationPaint = "sc:painting"
)

type ImageDescriptor = contracts.ImageDescriptor
type ImageService = contracts.ImageService

type MetadataEntry struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Manifest struct {
	Context     string          `json:"@context"`
	ID          string          `json:"@id"`
	Type        string          `json:"@type"`
	Label       string          `json:"label"`
	Description string          `json:"description,omitempty"`
	Metadata    []MetadataEntry `json:"metadata,omitempty"`
	Sequences   []Sequence      `json:"sequences"`
}

type Sequence struct {
	ID       string   `json:"@id"`
	Type     string   `json:"@type"`
	Label    string   `json:"label,omitempty"`
	Canvases []Canvas `json:"canvases"`
}

type Canvas struct {
	ID       string          `json:"@id"`
	Type     string          `json:"@type"`
	Label    string          `json:"label"`
	Width    int             `json:"width"`
	Height   int             `json:"height"`
	Metadata []MetadataEntry `json:"metadata,omitempty"`
	Images   []Annotation    `json:"images"`
}

type Annotation struct {
	ID         string        `json:"@id"`
	Type       string        `json:"@type"`
	Motivation string        `json:"motivation"`
	On         string        `json:"on"`
	Resource   ImageResource `json:"resource"`
}

type ImageResource struct {
	ID      string     `json:"@id"`
	Type    string     `json:"@type"`
	Format  string     `json:"format"`
	Width   int        `json:"width"`
	Height  int        `json:"height"`
	Service ServiceRef `json:"service"`
}

// ServiceRef points an image resource at the info.json of its pyramid.
type ServiceRef struct {
	Context string `json:"@context"`
	ID      string `json:"@id"`
	Profile string `json:"profile"`
}

// Builder assembles the manifest graph of one run.
type Builder struct {
	cfg    config.Config
	layout *files_manager.Layout
}

func NewBuilder(cfg config.Config, layout *files_manager.Layout) *Builder {
	return &Builder{cfg: cfg, layout: layout}
}

// Build creates one canvas per descriptor, in the order given. Every
// descriptor needs a service in services; a missing one fails the whole
// build so a partial manifest is never produced.
func (b *Builder) Build(descs []ImageDescriptor, services map[string]*ImageService, provenance string) (*Manifest, error) {
	canvases := make([]Canvas, 0, len(descs))
	for i, desc := range descs {
		svc, ok := services[desc.ID]
		if !ok || svc == nil {
			return nil, contracts.NewImageError(contracts.ErrMissingServiceDescriptor, desc.ID, nil)
		}
		canvases = append(canvases, b.canvas(i, desc, svc))
	}

	m := &Manifest{
		Context:     PresentationContext,
		ID:          b.layout.ManifestURI(),
		Type:        typeManifest,
		Label:       b.cfg.Manifest.Label,
		Description: b.cfg.Manifest.Description,
		Sequences: []Sequence{{
			ID:       b.layout.SequenceURI(),
			Type:     typeSequence,
			Label:    "Current Page Order",
			Canvases: canvases,
		}},
	}
	if provenance != "" {
		m.Metadata = []MetadataEntry{{Label: b.cfg.Manifest.ProvenanceLabel, Value: provenance}}
	}

	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (b *Builder) canvas(index int, desc ImageDescriptor, svc *ImageService) Canvas {
	canvasID := b.layout.CanvasURI(desc.ID)
	c := Canvas{
		ID:     canvasID,
		Type:   typeCanvas,
		Label:  "Canvas " + strconv.Itoa(index),
		Width:  desc.Width,
		Height: desc.Height,
		Images: []Annotation{{
			ID:         b.layout.AnnotationURI(desc.ID),
			Type:       typeAnnotation,
			Motivation: motivationPaint,
			On:         canvasID,
			Resource: ImageResource{
				ID:     b.layout.ImageResourceURI(desc.ID, b.cfg.Format),
				Type:   typeImage,
				Format: b.cfg.Format.MediaType(),
				Width:  svc.Width,
				Height: svc.Height,
				Service: ServiceRef{
					Context: contracts.ImageContext,
					ID:      b.layout.PublicImageBaseURI(desc.ID),
					Profile: contracts.Level0Profile,
				},
			},
		}},
	}
	if desc.DPI > 0 {
		c.Metadata = []MetadataEntry{{Label: "Resolution", Value: strconv.Itoa(int(desc.DPI+0.5)) + " dpi"}}
	}
	return c
}

// Validate checks the structural rules of the graph: one annotation per
// canvas painting that canvas, and matching canvas and resource sizes.
func Validate(m *Manifest) error {
	if m == nil || len(m.Sequences) != 1 {
		return fmt.Errorf("%w: manifest needs exactly one sequence", contracts.ErrInconsistentGraph)
	}
	seen := make(map[string]struct{}, len(m.Sequences[0].Canvases))
	for _, c := range m.Sequences[0].Canvases {
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate canvas %s", contracts.ErrInconsistentGraph, c.ID)
		}
		seen[c.ID] = struct{}{}

		if c.Width <= 0 || c.Height <= 0 {
			return fmt.Errorf("%w: canvas %s is %dx%d", contracts.ErrInconsistentGraph, c.ID, c.Width, c.Height)
		}
		if len(c.Images) != 1 {
			return fmt.Errorf("%w: canvas %s has %d annotations", contracts.ErrInconsistentGraph, c.ID, len(c.Images))
		}
		a := c.Images[0]
		if a.On != c.ID {
			return fmt.Errorf("%w: annotation %s targets %s, not %s", contracts.ErrInconsistentGraph, a.ID, a.On, c.ID)
		}
		if a.Resource.Width != c.Width || a.Resource.Height != c.Height {
			return fmt.Errorf("%w: canvas %s is %dx%d but its image is %dx%d", contracts.ErrInconsistentGraph,
				c.ID, c.Width, c.Height, a.Resource.Width, a.Resource.Height)
		}
	}
	return nil
}
