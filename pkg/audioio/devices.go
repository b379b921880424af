package audioio

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes one capture device.
type DeviceInfo struct {
	Name      string
	IsDefault bool
}

// CaptureDevices enumerates the machine's capture devices.
func CaptureDevices() ([]DeviceInfo, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audioio: init context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("audioio: enumerate capture devices: %w", err)
	}
	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return devices, nil
}
