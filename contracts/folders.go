package contracts

type OutputFolderName string

const (
	Extracted OutputFolderName = "images"
	IIIF      OutputFolderName = "iiif"
	Images    OutputFolderName = "images"
	Manifest  OutputFolderName = "manifest"
)

const (
	InfoFileName     = "info.json"
	ManifestFileName = "manifest.json"
)

type TileLayout string

const (
	// LayoutIIIF writes {id}/{region}/{size}/0/default.{ext}.
	LayoutIIIF TileLayout = "iiif"
	// LayoutLevel writes {id}/{level}/{regionX}_{regionY}.{ext}.
	LayoutLevel TileLayout = "level"
)

type ExtractMode string

const (
	// ExtractEmbedded saves every image embedded in the PDF, in page order.
	ExtractEmbedded ExtractMode = "embedded"
	// ExtractRender rasterizes each page to one image.
	ExtractRender ExtractMode = "render"
)
