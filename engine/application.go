package engine

type ApplicationConfig struct {
	// The application name reported to the graphics driver.
	Name string
	// Path of the TOML configuration. Empty runs on the defaults and disables
	// live reload.
	ConfigPath string
	// Debug enables the Vulkan validation layer.
	Debug bool
}
