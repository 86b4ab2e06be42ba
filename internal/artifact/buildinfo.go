package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuildInfo is the subset of a Hardhat build-info file needed for source verification.
type BuildInfo struct {
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}

// debugFile is the <Contract>.dbg.json written next to every Hardhat artifact.
type debugFile struct {
	BuildInfo string `json:"buildInfo"`
}

// LoadBuildInfo follows an artifact's debug file to its build-info.
func LoadBuildInfo(artifactPath string) (*BuildInfo, error) {
	dbgPath := strings.TrimSuffix(artifactPath, filepath.Ext(artifactPath)) + ".dbg.json"
	data, err := os.ReadFile(dbgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoBuildInfo, dbgPath)
		}
		return nil, fmt.Errorf("read debug file: %w", err)
	}

	var dbg debugFile
	if err := json.Unmarshal(data, &dbg); err != nil {
		return nil, fmt.Errorf("parse debug file %s: %w", dbgPath, err)
	}
	if dbg.BuildInfo == "" {
		return nil, fmt.Errorf("%w: %s has no buildInfo", ErrNoBuildInfo, dbgPath)
	}

	path := dbg.BuildInfo
	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(dbgPath), path)
	}
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoBuildInfo, err)
	}

	var info BuildInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse build info %s: %w", path, err)
	}
	if len(info.Input) == 0 || info.SolcLongVersion == "" {
		return nil, fmt.Errorf("%w: %s is missing input or solcLongVersion", ErrNoBuildInfo, path)
	}
	return &info, nil
}

// CompilerVersion returns the version string explorers expect, e.g. "v0.8.20+commit.a1b79de6".
func (b *BuildInfo) CompilerVersion() string {
	return "v" + strings.TrimPrefix(b.SolcLongVersion, "v")
}
