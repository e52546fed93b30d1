package media

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/browser"
)

var (
	// ErrExists is returned by Rename when the target name is taken.
	ErrExists = errors.New("a file with this name already exists")
	// ErrUnsupported is returned for operations the platform cannot do.
	ErrUnsupported = errors.New("operation not supported on this platform")
)

var linuxFileManagers = []string{"nautilus", "dolphin", "thunar", "nemo", "pcmanfm"}

// Rename renames path to newName inside the same folder and returns the
// new path.
func Rename(path, newName string) (string, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" || newName == "." || newName == ".." || strings.ContainsAny(newName, `/\`) {
		return "", fmt.Errorf("invalid name %q", newName)
	}
	newPath := filepath.Join(filepath.Dir(path), newName)
	if newPath == path {
		return path, nil
	}
	if _, err := os.Lstat(newPath); err == nil {
		return "", ErrExists
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking %s: %w", newPath, err)
	}
	if err := os.Rename(path, newPath); err != nil {
		return "", fmt.Errorf("renaming %s: %w", path, err)
	}
	return newPath, nil
}

// Delete removes a file. Folders are refused.
func Delete(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("deleting %s: is a folder", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

// Reveal shows path in the platform file manager, selecting it where the
// platform supports selection.
func Reveal(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", "-R", abs).Start()
	case "windows":
		return exec.Command("explorer", "/select,", abs).Start()
	case "linux", "freebsd", "openbsd", "netbsd":
		dir := filepath.Dir(abs)
		if _, err := exec.LookPath("xdg-open"); err == nil {
			return exec.Command("xdg-open", dir).Start()
		}
		for _, fm := range linuxFileManagers {
			if _, err := exec.LookPath(fm); err == nil {
				return exec.Command(fm, dir).Start()
			}
		}
		return errors.New("no suitable file manager found")
	}
	return ErrUnsupported
}

// OpenDefault opens path with the system default application.
func OpenDefault(path string) error {
	if err := browser.OpenFile(path); err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return nil
}

// OpenWith shows the platform "open with" chooser. Platforms without a
// chooser fall back to the default application.
func OpenWith(path string) error {
	if runtime.GOOS == "windows" {
		return exec.Command("rundll32", "shell32.dll,OpenAs_RunDLL", path).Start()
	}
	return OpenDefault(path)
}

// Drives lists filesystem roots. On Windows these are the existing drive
// letters; elsewhere the single root "/".
func Drives() []string {
	if runtime.GOOS != "windows" {
		return []string{"/"}
	}
	var drives []string
	for c := 'A'; c <= 'Z'; c++ {
		root := string(c) + `:\`
		if _, err := os.Stat(root); err == nil {
			drives = append(drives, root)
		}
	}
	return drives
}
