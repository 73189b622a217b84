package renderer

import "github.com/spaghettifunk/cadence/engine/renderer/metadata"

// Backend supplies the device objects the Renderer submits to. Device and
// swap-chain creation happen inside the backend.
type Backend interface {
	Device() metadata.Device
	Queue() metadata.CommandQueue
	Presenter() metadata.Presenter
	Shutdown() error
}
