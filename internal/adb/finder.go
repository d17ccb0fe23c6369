package adb

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// FindADB attempts to locate the adb executable
func FindADB(preferredPath string) (string, error) {
	if preferredPath != "" {
		if info, err := os.Stat(preferredPath); err == nil {
			if !info.IsDir() {
				return preferredPath, nil
			}
			candidate := filepath.Join(preferredPath, adbBinary())
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
	}

	if sdk := os.Getenv("ANDROID_HOME"); sdk != "" {
		candidate := filepath.Join(sdk, "platform-tools", adbBinary())
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if adbPath, err := exec.LookPath(adbBinary()); err == nil {
		return adbPath, nil
	}

	return "", fmt.Errorf("adb not found, please specify path in config")
}

func adbBinary() string {
	if runtime.GOOS == "windows" {
		return "adb.exe"
	}
	return "adb"
}

// ListDevices returns the serials of attached devices in the "device" state
func ListDevices(adbPath string, run Runner) ([]string, error) {
	if run == nil {
		run = execRunner
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()

	output, err := run(ctx, adbPath, "devices")
	if err != nil {
		return nil, fmt.Errorf("adb devices failed: %w", err)
	}
	return parseDevices(string(output)), nil
}

func parseDevices(output string) []string {
	var devices []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "device" {
			devices = append(devices, fields[0])
		}
	}
	return devices
}

// ConnectADB finds adb and connects to device, or to the first attached
// device when device is empty
func ConnectADB(adbPath, device string) (*Controller, error) {
	path, err := FindADB(adbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find ADB: %w", err)
	}

	if device == "" {
		devices, err := ListDevices(path, nil)
		if err != nil {
			return nil, err
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("no adb devices attached")
		}
		device = devices[0]
	}

	ctrl := NewController(path, device)
	if err := ctrl.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to device: %w", err)
	}

	return ctrl, nil
}
