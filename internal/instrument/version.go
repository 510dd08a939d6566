package instrument

import "fmt"

// Driver version, bumped on releases that change device behavior.
const (
	versionMajor = 1
	versionMinor = 3
	versionPatch = 0
)

// Version returns the driver version string.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", versionMajor, versionMinor, versionPatch)
}

// VersionCode packs the version the way the meters report theirs:
// one byte per component.
func VersionCode() uint32 {
	return versionMajor<<16 | versionMinor<<8 | versionPatch
}
