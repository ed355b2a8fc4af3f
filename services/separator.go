package services

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Models accepted by the separation backend.
var ValidModels = []string{"htdemucs", "htdemucs_ft", "htdemucs_6s", "mdx_extra"}

// DefaultStems is the stem set produced by the four-source models.
var DefaultStems = []string{"vocals", "drums", "bass", "other"}

// ValidStems lists every stem any supported model can produce; the
// six-source model adds guitar and piano.
var ValidStems = []string{"vocals", "drums", "bass", "other", "guitar", "piano"}

// IsValidModel reports whether the given model name is supported.
func IsValidModel(model string) bool {
	for _, m := range ValidModels {
		if m == model {
			return true
		}
	}
	return false
}

// IsValidStem reports whether the given stem name is known.
func IsValidStem(stem string) bool {
	for _, s := range ValidStems {
		if s == stem {
			return true
		}
	}
	return false
}

// SeparationRequest describes one separation run.
type SeparationRequest struct {
	EntryID   string
	InputPath string
	Model     string
	Stems     []string
	OutputDir string
}

// StemResult is one output file produced by a separation run.
type StemResult struct {
	Name   string
	Path   string
	Format string
}

// Separator runs source separation on an uploaded file. The algorithm
// itself lives in an external tool; implementations report percentage
// progress through the callback as the run advances.
type Separator interface {
	Separate(ctx context.Context, req SeparationRequest, onProgress func(percent int)) ([]StemResult, error)
}

// demucsSeparator shells out to the demucs CLI.
type demucsSeparator struct {
	binary string
}

// NewDemucsSeparator creates a Separator backed by the demucs command.
func NewDemucsSeparator() Separator {
	return &demucsSeparator{binary: "demucs"}
}

// demucs prints lines like " 45%|####      | ..." on stderr while separating.
var progressPattern = regexp.MustCompile(`(\d{1,3})%\|`)

func (d *demucsSeparator) Separate(ctx context.Context, req SeparationRequest, onProgress func(percent int)) ([]StemResult, error) {
	if !IsValidModel(req.Model) {
		return nil, fmt.Errorf("unknown model %q", req.Model)
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, d.binary,
		"-n", req.Model,
		"-o", req.OutputDir,
		req.InputPath,
	)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("attach stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start demucs: %w", err)
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() {
		if matches := progressPattern.FindStringSubmatch(scanner.Text()); len(matches) == 2 {
			if percent, convErr := strconv.Atoi(matches[1]); convErr == nil && onProgress != nil {
				onProgress(percent)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("demucs failed: %w", err)
	}

	return collectStems(req)
}

// collectStems maps demucs' output layout (<out>/<model>/<track>/<stem>.wav)
// onto the requested stem names.
func collectStems(req SeparationRequest) ([]StemResult, error) {
	trackName := strings.TrimSuffix(filepath.Base(req.InputPath), filepath.Ext(req.InputPath))
	stemDir := filepath.Join(req.OutputDir, req.Model, trackName)

	wanted := req.Stems
	if len(wanted) == 0 {
		wanted = DefaultStems
	}

	var results []StemResult
	for _, name := range wanted {
		path := filepath.Join(stemDir, name+".wav")
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("stem %s missing from separator output: %w", name, err)
		}
		results = append(results, StemResult{Name: name, Path: path, Format: "wav"})
	}
	return results, nil
}
