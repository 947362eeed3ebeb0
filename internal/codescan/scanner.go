// Package codescan walks source trees looking for embedded Kubernetes
// manifests and imperative cluster mutations in application code. The
// scanner only detects and classifies; severity policy lives elsewhere.
package codescan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"

	"github.com/alevsk/driftwatch/internal/config"
	"github.com/alevsk/driftwatch/internal/logger"
	"github.com/alevsk/driftwatch/internal/types"
)

const defaultManifestWindow = 20

var (
	apiVersionKey = regexp.MustCompile(`(^|\s|"|')apiVersion:\s`)
	kindKey       = regexp.MustCompile(`(^|\s|"|')kind:\s`)
	dryRunRe      = regexp.MustCompile(dryRunPattern)
)

// Scanner detects compliance violations in source trees.
type Scanner struct {
	signatures    []*regexp.Regexp
	excludes      []glob.Glob
	operatorGlobs []glob.Glob
	window        int
	concurrency   int
}

// NewScanner compiles the configured signatures and path globs.
func NewScanner(cfg *config.Config) (*Scanner, error) {
	patterns := cfg.MutationSignatures
	if len(patterns) == 0 {
		patterns = defaultMutationSignatures
	}

	signatures := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid mutation signature %q: %w", pattern, err)
		}
		signatures = append(signatures, re)
	}

	excludes, err := compileGlobs(cfg.CodeScanExclude)
	if err != nil {
		return nil, fmt.Errorf("invalid code_scan_exclude glob: %w", err)
	}
	operatorGlobs, err := compileGlobs(cfg.OperatorPaths)
	if err != nil {
		return nil, fmt.Errorf("invalid operator_paths glob: %w", err)
	}

	window := cfg.EmbeddedManifestWindow
	if window <= 0 {
		window = defaultManifestWindow
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Scanner{
		signatures:    signatures,
		excludes:      excludes,
		operatorGlobs: operatorGlobs,
		window:        window,
		concurrency:   concurrency,
	}, nil
}

// Scan walks each root concurrently and returns every violation found.
// Unreadable files are skipped; an I/O hiccup is not a compliance signal.
func (s *Scanner) Scan(ctx context.Context, roots []string) ([]types.Finding, error) {
	var mu sync.Mutex
	var findings []types.Finding

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for _, root := range roots {
		group.Go(func() error {
			buffer, err := s.scanRoot(groupCtx, root)
			if err != nil {
				return err
			}
			mu.Lock()
			findings = append(findings, buffer...)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return findings, nil
}

func (s *Scanner) scanRoot(ctx context.Context, root string) ([]types.Finding, error) {
	var findings []types.Finding

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		// Excluded files are never opened.
		if s.excluded(path) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable file")
			return nil
		}

		findings = append(findings, s.scanFile(path, content)...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return findings, nil
}

// scanFile runs both detectors over one file.
func (s *Scanner) scanFile(path string, content []byte) []types.Finding {
	var findings []types.Finding
	lines := strings.Split(string(content), "\n")
	classification := s.classify(path)

	findings = append(findings, s.detectMutations(path, lines, classification)...)
	if !isManifestFile(path) {
		findings = append(findings, s.detectEmbeddedManifests(path, lines, classification)...)
	}
	return findings
}

func (s *Scanner) detectMutations(path string, lines []string, classification string) []types.Finding {
	var findings []types.Finding
	for i, line := range lines {
		for _, signature := range s.signatures {
			if !signature.MatchString(line) {
				continue
			}
			if dryRunRe.MatchString(line) {
				continue
			}
			locator := fmt.Sprintf("%s:%d", path, i+1)
			findings = append(findings, types.Finding{
				ID:             types.FindingID(types.FindingCodeViolation, locator, signature.String()),
				Kind:           types.FindingCodeViolation,
				Locator:        locator,
				Description:    fmt.Sprintf("imperative cluster mutation at %s: %s", locator, strings.TrimSpace(line)),
				Classification: classification,
				Remediation:    "move the change into a declarative manifest and let the GitOps controller sync it",
			})
			break
		}
	}
	return findings
}

// detectEmbeddedManifests flags apiVersion and kind keys appearing within
// the configured line window of each other outside manifest files. The
// window is symmetric: kind may come before or after apiVersion, both
// orders occur in real manifests.
func (s *Scanner) detectEmbeddedManifests(path string, lines []string, classification string) []types.Finding {
	var findings []types.Finding
	for i, line := range lines {
		if !apiVersionKey.MatchString(line) {
			continue
		}
		start := i - s.window + 1
		if start < 0 {
			start = 0
		}
		end := i + s.window
		if end > len(lines) {
			end = len(lines)
		}
		for j := start; j < end; j++ {
			if !kindKey.MatchString(lines[j]) {
				continue
			}
			first, last := i, j
			if j < i {
				first, last = j, i
			}
			locator := fmt.Sprintf("%s:%d", path, i+1)
			findings = append(findings, types.Finding{
				ID:             types.FindingID(types.FindingCodeViolation, locator, "embedded-manifest"),
				Kind:           types.FindingCodeViolation,
				Locator:        locator,
				Description:    fmt.Sprintf("embedded Kubernetes manifest at %s (lines %d-%d)", path, first+1, last+1),
				Classification: classification,
				Remediation:    "extract the manifest into the GitOps repository",
			})
			// One finding per apiVersion occurrence is enough.
			break
		}
	}
	return findings
}

func (s *Scanner) excluded(path string) bool {
	return matchAny(s.excludes, path)
}

func (s *Scanner) classify(path string) string {
	if matchAny(s.operatorGlobs, path) {
		return types.ClassificationOperatorEligible
	}
	return types.ClassificationViolation
}

func isManifestFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func matchAny(globs []glob.Glob, path string) bool {
	slashPath := filepath.ToSlash(path)
	for _, g := range globs {
		if g.Match(slashPath) {
			return true
		}
	}
	return false
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%q: %w", pattern, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}
