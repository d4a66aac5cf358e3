// Package capability derives a DeviceCapabilities snapshot from the signals
// a client supplies with a generation request.
//
// Signal precedence:
//  1. Explicit structured hardware flags. These are ground truth: the
//     client sets them after querying its own OS APIs.
//  2. A best-effort parse of a client identification string, classifying
//     known accelerator-bearing device families.
//  3. Neither: platform unknown, no accelerator.
//
// Probe is total. It never fails and always returns a usable, possibly
// conservative, capability set.
package capability

import (
	"strconv"
	"strings"

	"github.com/storyloom/storyloom-orchestrator/internal/domain"
)

// HardwareFlags are the explicit structured signals a client can supply at
// session start. When present they override the string heuristic entirely.
type HardwareFlags struct {
	Platform        domain.Platform
	HasAccelerator  bool
	AcceleratorType domain.AcceleratorType
	// LocalModelAssets records per content kind whether the packaged model
	// is present on device.
	LocalModelAssets map[domain.Kind]bool
}

// Signals is everything the probe may consult for one request.
type Signals struct {
	Flags        *HardwareFlags
	ClientDevice string
}

// deviceFamily classifies a device-model prefix as accelerator-bearing on
// a given OS major-version floor.
type deviceFamily struct {
	modelPrefix string
	platform    domain.Platform
	accelerator domain.AcceleratorType
	minOSMajor  int
}

// Accelerator-bearing families the heuristic recognizes. Model strings
// come from the device-info header; version floors match the first OS
// release that exposed the accelerator's inference delegate.
var knownFamilies = []deviceFamily{
	{modelPrefix: "Pixel 6", platform: domain.PlatformAndroid, accelerator: domain.AcceleratorTensor, minOSMajor: 12},
	{modelPrefix: "Pixel 7", platform: domain.PlatformAndroid, accelerator: domain.AcceleratorTensor, minOSMajor: 13},
	{modelPrefix: "Pixel 8", platform: domain.PlatformAndroid, accelerator: domain.AcceleratorTensor, minOSMajor: 14},
	{modelPrefix: "Pixel 9", platform: domain.PlatformAndroid, accelerator: domain.AcceleratorTensor, minOSMajor: 14},
	{modelPrefix: "Pixel 10", platform: domain.PlatformAndroid, accelerator: domain.AcceleratorTensor, minOSMajor: 15},
	{modelPrefix: "Galaxy S23", platform: domain.PlatformAndroid, accelerator: domain.AcceleratorNPU, minOSMajor: 13},
	{modelPrefix: "Galaxy S24", platform: domain.PlatformAndroid, accelerator: domain.AcceleratorNPU, minOSMajor: 14},
	{modelPrefix: "Galaxy S25", platform: domain.PlatformAndroid, accelerator: domain.AcceleratorNPU, minOSMajor: 15},
	{modelPrefix: "SM8550", platform: domain.PlatformAndroid, accelerator: domain.AcceleratorNPU, minOSMajor: 13},
	{modelPrefix: "SM8650", platform: domain.PlatformAndroid, accelerator: domain.AcceleratorNPU, minOSMajor: 14},
}

// iPhone 12 family ships as the iPhone13,x identifier generation; that and
// newer carry a Neural Engine usable from iOS 14 up. Same cutoff generation
// for iPads.
const (
	minIPhoneIdentifierMajor = 13
	minIPadIdentifierMajor   = 13
	minIOSMajor              = 14
)

// Probe derives the capability snapshot for one request.
func Probe(sig Signals) domain.DeviceCapabilities {
	if sig.Flags != nil {
		return fromFlags(sig.Flags)
	}
	if sig.ClientDevice != "" {
		return fromClientString(sig.ClientDevice)
	}
	return domain.NewDeviceCapabilities(domain.PlatformUnknown, domain.AcceleratorNone, nil)
}

func fromFlags(flags *HardwareFlags) domain.DeviceCapabilities {
	platform := flags.Platform
	if platform != domain.PlatformAndroid && platform != domain.PlatformIOS {
		platform = domain.PlatformUnknown
	}

	accel := flags.AcceleratorType
	if !flags.HasAccelerator {
		accel = domain.AcceleratorNone
	} else if accel == "" || accel == domain.AcceleratorNone {
		// Accelerator reported present but untyped. Keep the claim with the
		// generic NPU label so tier requirements still see it.
		accel = domain.AcceleratorNPU
	}

	return domain.NewDeviceCapabilities(platform, accel, flags.LocalModelAssets)
}

// fromClientString parses strings like "Pixel 9 Pro; Android 15" or
// "iPhone16,2; iOS 17.2". The heuristic never claims local model assets:
// asset presence can only be known from explicit flags, and the
// native_accelerated tier requires both accelerator and assets.
func fromClientString(s string) domain.DeviceCapabilities {
	model, platform, osMajor := splitClientString(s)

	switch platform {
	case domain.PlatformAndroid:
		for _, fam := range knownFamilies {
			if fam.platform == domain.PlatformAndroid && strings.HasPrefix(model, fam.modelPrefix) && osMajor >= fam.minOSMajor {
				return domain.NewDeviceCapabilities(platform, fam.accelerator, nil)
			}
		}
	case domain.PlatformIOS:
		if osMajor >= minIOSMajor && appleIdentifierQualifies(model) {
			return domain.NewDeviceCapabilities(platform, domain.AcceleratorNeuralEngine, nil)
		}
	}

	return domain.NewDeviceCapabilities(platform, domain.AcceleratorNone, nil)
}

// splitClientString separates the device model from the OS segment and
// extracts the OS major version. Unparseable input degrades to
// (whole-string model, unknown platform, 0).
func splitClientString(s string) (model string, platform domain.Platform, osMajor int) {
	platform = domain.PlatformUnknown

	parts := strings.Split(s, ";")
	model = strings.TrimSpace(parts[0])

	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		lower := strings.ToLower(part)
		switch {
		case strings.HasPrefix(lower, "android"):
			platform = domain.PlatformAndroid
			osMajor = parseMajorVersion(part[len("android"):])
		case strings.HasPrefix(lower, "ios"), strings.HasPrefix(lower, "ipados"):
			platform = domain.PlatformIOS
			osMajor = parseMajorVersion(part[strings.Index(lower, "s")+1:])
		}
	}

	// No OS segment: infer platform from the model identifier alone.
	if platform == domain.PlatformUnknown {
		lowerModel := strings.ToLower(model)
		if strings.HasPrefix(lowerModel, "iphone") || strings.HasPrefix(lowerModel, "ipad") {
			platform = domain.PlatformIOS
		}
	}

	return model, platform, osMajor
}

// parseMajorVersion extracts the leading integer of a version string like
// " 15" or " 17.2". Returns 0 when no digits are found.
func parseMajorVersion(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	major, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return major
}

// appleIdentifierQualifies reports whether an identifier like "iPhone16,2"
// or "iPad14,5" belongs to a Neural Engine generation we target.
func appleIdentifierQualifies(model string) bool {
	lower := strings.ToLower(model)
	var rest string
	var floor int
	switch {
	case strings.HasPrefix(lower, "iphone"):
		rest = model[len("iphone"):]
		floor = minIPhoneIdentifierMajor
	case strings.HasPrefix(lower, "ipad"):
		rest = model[len("ipad"):]
		floor = minIPadIdentifierMajor
	default:
		return false
	}

	if i := strings.IndexByte(rest, ','); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimSpace(rest)
	major, err := strconv.Atoi(rest)
	if err != nil {
		// Marketing names like "iPhone 14 Pro" instead of identifiers:
		// parse the first number the same way.
		major = parseMajorVersion(rest)
		if major == 0 {
			return false
		}
		// Marketing numbering trails identifier numbering by one
		// generation (iPhone 12 == iPhone13,x).
		return major >= floor-1
	}
	return major >= floor
}
