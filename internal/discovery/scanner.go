// internal/discovery/scanner.go
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"micmgmt-service/pkg/micsdk"
)

const classPath = "class/mic"

// Card states reported by the host driver.
const (
	StateReady     = "ready"
	StateBooting   = "booting"
	StateOnline    = "online"
	StateShutdown  = "shutting_down"
	StateResetting = "resetting"
	StateError     = "error"
)

// CardScanner enumerates installed coprocessors.
type CardScanner interface {
	Scan(ctx context.Context) ([]*DiscoveredCard, error)
	GetScannerType() string
	IsAvailable() bool
}

// DiscoveredCard is one entry under <sysfs>/class/mic.
type DiscoveredCard struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Family   string `json:"family,omitempty"`
	State    string `json:"state,omitempty"`
	Mode     string `json:"mode,omitempty"`
	PostCode string `json:"post_code,omitempty"`
	Path     string `json:"path"`
}

// Online reports whether the card OS is up and reachable over SCIF.
func (c *DiscoveredCard) Online() bool {
	return c.State == StateOnline
}

// SysfsScanner reads the mic class directory of a sysfs tree.
type SysfsScanner struct {
	root   string
	logger *zap.Logger
}

// NewSysfsScanner creates a scanner rooted at root, normally "/sys".
func NewSysfsScanner(root string, logger *zap.Logger) *SysfsScanner {
	if root == "" {
		root = "/sys"
	}
	return &SysfsScanner{
		root:   root,
		logger: logger.With(zap.String("scanner", "sysfs")),
	}
}

func (s *SysfsScanner) GetScannerType() string {
	return "sysfs"
}

// IsAvailable reports whether the host driver registered its device class.
func (s *SysfsScanner) IsAvailable() bool {
	info, err := os.Stat(filepath.Join(s.root, classPath))
	return err == nil && info.IsDir()
}

// Scan returns the installed cards ordered by index. A missing class
// directory means the host driver is not loaded.
func (s *SysfsScanner) Scan(ctx context.Context) ([]*DiscoveredCard, error) {
	dir := filepath.Join(s.root, classPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", micsdk.DriverNotLoaded, dir)
		}
		return nil, fmt.Errorf("%w: %w", micsdk.FileIOError, err)
	}

	var cards []*DiscoveredCard
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		index, ok := parseCardName(entry.Name())
		if !ok {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		card := &DiscoveredCard{
			Index:    index,
			Name:     entry.Name(),
			Family:   s.readProperty(path, "family"),
			State:    s.readProperty(path, "state"),
			Mode:     s.readProperty(path, "mode"),
			PostCode: s.readProperty(path, filepath.Join("device", "spad", "post_code")),
			Path:     path,
		}
		cards = append(cards, card)
	}

	slices.SortFunc(cards, func(a, b *DiscoveredCard) int { return a.Index - b.Index })

	s.logger.Debug("Scan completed",
		zap.String("path", dir),
		zap.Int("cards_found", len(cards)),
	)
	return cards, nil
}

// Indices returns the card indices of cards.
func Indices(cards []*DiscoveredCard) []int {
	indices := make([]int, 0, len(cards))
	for _, card := range cards {
		indices = append(indices, card.Index)
	}
	return indices
}

func (s *SysfsScanner) readProperty(cardPath, name string) string {
	data, err := os.ReadFile(filepath.Join(cardPath, name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to read card property",
				zap.String("path", cardPath),
				zap.String("property", name),
				zap.Error(err),
			)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

// parseCardName accepts "mic<N>" with a decimal, non-negative N.
func parseCardName(name string) (int, bool) {
	digits, found := strings.CutPrefix(name, "mic")
	if !found || digits == "" {
		return 0, false
	}
	index, err := strconv.Atoi(digits)
	if err != nil || index < 0 || strconv.Itoa(index) != digits {
		return 0, false
	}
	return index, true
}
