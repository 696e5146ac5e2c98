package contracts

// InputFlags carries the command line values that override the loaded
// configuration. Zero values leave the configuration untouched.
type InputFlags struct {
	Input      string
	ConfigPath string
	OutputDir  string
	Engine     string
	TileSize   int
	Workers    int
	RenderDPI  int
	Mode       string
	FailFast   bool
}
